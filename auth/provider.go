package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
)

// TokenSource 是凭证核心对外暴露的能力集合，
// 上层协作方（HTTP 兼容层 / SDK）只依赖这个接口。
type TokenSource interface {
	// Token 返回一个可用的短效 API token。
	Token(ctx context.Context) (string, error)
	// Headers 返回访问 Copilot API 所需的完整请求头。
	Headers(ctx context.Context, initiator string, vision bool) (http.Header, error)
}

var _ TokenSource = (*Manager)(nil)

// Lazy 是两态的延迟 TokenSource：真正的 Manager 推迟到第一次使用时
// 才由 New 构造，这样调用方可以在 Device Flow 授权完成之前就拿到
// 一个 TokenSource 句柄。构造一旦成功即被记住，之后不再重试；
// 构造失败则下一次调用会再试。
type Lazy struct {
	// New 构造真正的 TokenSource，必填。
	New func() (TokenSource, error)

	mu  sync.Mutex
	src TokenSource
}

func (l *Lazy) get() (TokenSource, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.src != nil {
		return l.src, nil
	}
	if l.New == nil {
		return nil, fmt.Errorf("Lazy.New is required")
	}
	src, err := l.New()
	if err != nil {
		return nil, err
	}
	l.src = src
	return src, nil
}

func (l *Lazy) Token(ctx context.Context) (string, error) {
	src, err := l.get()
	if err != nil {
		return "", err
	}
	return src.Token(ctx)
}

func (l *Lazy) Headers(ctx context.Context, initiator string, vision bool) (http.Header, error) {
	src, err := l.get()
	if err != nil {
		return nil, err
	}
	return src.Headers(ctx, initiator, vision)
}
