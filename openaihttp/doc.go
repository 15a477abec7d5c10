// Package openaihttp 提供基于 GitHub Copilot chat/completions 端点的
// OpenAI v1 兼容 HTTP 处理器。
//
// Copilot backend 本身就说 OpenAI 协议，因此该包只做薄透传：
// 校验模型、推断 X-Initiator / Copilot-Vision-Request、
// 补齐鉴权请求头，然后把请求体原样转发、把响应（JSON 或 SSE）原样回写。
//
// 该包对外只暴露：
// - net/http 形式的 handlers（models/chat.completions）
// - Gin 路由注册方法
//
// 鉴权头只通过回调注入（HeaderSource），该包不会读取本地凭证文件。
//
// 使用示例：
//
//	// net/http
//	modelsH, chatH, _ := openaihttp.Handlers(openaihttp.Config{
//		Headers: manager.Headers,
//	})
//	mux.HandleFunc("/v1/models", modelsH)
//	mux.HandleFunc("/v1/chat/completions", chatH)
//
//	// gin
//	_ = openaihttp.RegisterGinRoutes(r, openaihttp.Config{
//		BasePath: "/v1",
//		Headers:  manager.Headers,
//	})
package openaihttp
