package openaihttp

import (
	"encoding/json"
	"net/http"
	"path"
	"strings"

	"github.com/LubyRuffy/ghcp2o/openaiapi"
)

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// writeOpenAIError 以 OpenAI 错误格式写出响应。
// 类型按本服务实际会出现的状态码归类：
// 4xx 是请求问题，502 是后端转发失败，503 是凭证不可用。
func writeOpenAIError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errType := "api_error"
	switch {
	case statusCode == http.StatusServiceUnavailable:
		errType = "service_unavailable_error"
	case statusCode == http.StatusBadGateway:
		errType = "upstream_error"
	case statusCode >= http.StatusBadRequest && statusCode < http.StatusInternalServerError:
		errType = "invalid_request_error"
	}

	errResp := openaiapi.OpenAIError{}
	errResp.Error.Message = message
	errResp.Error.Type = errType
	_ = json.NewEncoder(w).Encode(errResp)
}

// normalizeBasePath 把用户输入的前缀规整为以 / 开头、不以 / 结尾的形式，
// 为空时回退到 /v1。
func normalizeBasePath(basePath string) string {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	basePath = strings.TrimRight(basePath, "/")
	if basePath == "" {
		return "/"
	}
	return basePath
}

func joinPath(basePath, suffix string) string {
	basePath = normalizeBasePath(basePath)
	if suffix == "" {
		return basePath
	}
	if !strings.HasPrefix(suffix, "/") {
		suffix = "/" + suffix
	}
	// path.Join 会清理重复的 /，并保证结果以 / 开头
	return path.Join(basePath, suffix)
}
