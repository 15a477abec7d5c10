package openaihttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/LubyRuffy/ghcp2o"
	"github.com/LubyRuffy/ghcp2o/auth"
	"github.com/LubyRuffy/ghcp2o/openaiapi"
)

func Handlers(cfg Config) (modelsHandler http.HandlerFunc, chatHandler http.HandlerFunc, err error) {
	resolved, err := resolveConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	return handleModels, newChatHandler(resolved), nil
}

type resolvedConfig struct {
	BasePath   string
	ChatURL    string
	HTTPClient *http.Client
	Headers    HeaderSource
}

func resolveConfig(cfg Config) (resolvedConfig, error) {
	if cfg.Headers == nil {
		return resolvedConfig{}, fmt.Errorf("Headers is required")
	}

	chatURL := strings.TrimSpace(cfg.ChatURL)
	if chatURL == "" {
		chatURL = ghcp2o.DefaultChatURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	return resolvedConfig{
		BasePath:   normalizeBasePath(cfg.BasePath),
		ChatURL:    chatURL,
		HTTPClient: client,
		Headers:    cfg.Headers,
	}, nil
}

func handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeOpenAIError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	presetModels := ghcp2o.PresetModels()
	modelsList := make([]openaiapi.OpenAIModel, 0, len(presetModels))
	now := time.Now().Unix()
	for _, m := range presetModels {
		modelsList = append(modelsList, openaiapi.OpenAIModel{
			ID:      m.ID,
			Object:  "model",
			Created: now,
			OwnedBy: "github-copilot",
		})
	}

	writeJSON(w, openaiapi.OpenAIModelList{
		Object: "list",
		Data:   modelsList,
	})
}

// inferInitiator 按消息内容推断 X-Initiator：
// 出现过 assistant/tool 消息说明是多轮 agent 会话，否则按 user 处理。
func inferInitiator(messages []openaiapi.OpenAIMessage) string {
	for _, msg := range messages {
		if msg.Role == "assistant" || msg.Role == "tool" {
			return "agent"
		}
	}
	return "user"
}

func inferVision(messages []openaiapi.OpenAIMessage) bool {
	for _, msg := range messages {
		if msg.HasImageContent() {
			return true
		}
	}
	return false
}

func newChatHandler(cfg resolvedConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeOpenAIError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeOpenAIError(w, http.StatusBadRequest, "failed to read request body")
			return
		}

		var req openaiapi.OpenAIChatRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeOpenAIError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		req.Model = strings.TrimSpace(req.Model)
		if req.Model == "" {
			writeOpenAIError(w, http.StatusBadRequest, "model is required")
			return
		}
		if !ghcp2o.IsSupportedModelID(req.Model) {
			writeOpenAIError(w, http.StatusBadRequest, "unsupported model")
			return
		}

		// 原样转发请求体，只把带命名空间的模型 ID 还原为后端真实 ID；
		// 其余字段（包括该包不认识的字段）全部透传。
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			writeOpenAIError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		payload["model"] = ghcp2o.NormalizeModelID(req.Model)
		outBody, err := json.Marshal(payload)
		if err != nil {
			writeOpenAIError(w, http.StatusInternalServerError, "failed to encode backend request")
			return
		}

		headers, err := cfg.Headers(r.Context(), inferInitiator(req.Messages), inferVision(req.Messages))
		if err != nil {
			if errors.Is(err, auth.ErrCredentialNotFound) {
				writeOpenAIError(w, http.StatusServiceUnavailable, err.Error())
				return
			}
			writeOpenAIError(w, http.StatusServiceUnavailable, "auth not available")
			return
		}

		backendReq, err := http.NewRequestWithContext(r.Context(), http.MethodPost, cfg.ChatURL, strings.NewReader(string(outBody)))
		if err != nil {
			writeOpenAIError(w, http.StatusInternalServerError, "failed to build backend request")
			return
		}
		for k, vs := range headers {
			for _, v := range vs {
				backendReq.Header.Add(k, v)
			}
		}
		backendReq.Header.Set("Content-Type", "application/json")
		if req.Stream {
			backendReq.Header.Set("Accept", "text/event-stream")
		} else {
			backendReq.Header.Set("Accept", "application/json")
		}

		resp, err := cfg.HTTPClient.Do(backendReq)
		if err != nil {
			writeOpenAIError(w, http.StatusBadGateway, fmt.Sprintf("backend request failed: %v", err))
			return
		}
		defer resp.Body.Close()

		// 状态码与响应体原样回写；SSE 逐块 flush，JSON 一次性拷贝
		if ct := resp.Header.Get("Content-Type"); ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		w.WriteHeader(resp.StatusCode)
		copyResponse(w, resp.Body)
	}
}

func copyResponse(w http.ResponseWriter, body io.Reader) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 4<<10)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			return
		}
	}
}
