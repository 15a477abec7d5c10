package openaihttp

import (
	"context"
	"net/http"
)

// HeaderSource 提供访问 Copilot backend 所需的完整请求头。
// initiator 用于 X-Initiator（user/agent），vision 表示请求中包含图片。
// 通常直接传 auth.Manager 的 Headers 方法。
type HeaderSource func(ctx context.Context, initiator string, vision bool) (http.Header, error)

type Config struct {
	// BasePath 仅用于 Gin 注册路由时拼接路径，默认 "/v1"。
	BasePath string
	// ChatURL Copilot chat/completions 端点地址，默认 ghcp2o.DefaultChatURL。
	ChatURL string
	// HTTPClient 可选，nil 时内部使用 &http.Client{}。
	HTTPClient *http.Client
	// Headers 必填：通过回调注入鉴权与客户端标识请求头。
	Headers HeaderSource
}
