package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/LubyRuffy/ghcp2o"
	"github.com/LubyRuffy/ghcp2o/openaiapi"
	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// HeaderSource 提供访问 Copilot backend 所需的请求头，
// 通常直接传 auth.Manager 的 Headers 方法。
type HeaderSource func(ctx context.Context, initiator string, vision bool) (http.Header, error)

type ChatModelConfig struct {
	Model string
	// ChatURL 为空时使用 ghcp2o.DefaultChatURL。
	ChatURL string
	// Headers 必填：注入鉴权与客户端标识请求头。
	Headers     HeaderSource
	HTTPClient  *http.Client
	Temperature *float32
	TopP        *float32
}

// ChatModel 是基于 Copilot chat/completions SSE 接口的 ToolCallingChatModel 实现。
// Copilot backend 的请求/响应本身就是 OpenAI 格式，这里只做消息与工具的转换。
type ChatModel struct {
	config ChatModelConfig
	tools  []*schema.ToolInfo
	defs   []ToolDefinition
}

func NewChatModel(config ChatModelConfig) (*ChatModel, error) {
	if strings.TrimSpace(config.Model) == "" {
		return nil, fmt.Errorf("model is required")
	}
	if config.Headers == nil {
		return nil, fmt.Errorf("headers source is required")
	}
	if strings.TrimSpace(config.ChatURL) == "" {
		config.ChatURL = ghcp2o.DefaultChatURL
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	return &ChatModel{config: config}, nil
}

func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...einoModel.Option) (*schema.Message, error) {
	resp, err := m.doRequest(ctx, input, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read backend response: %w", err)
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse backend response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("backend response has no choices")
	}

	choice := parsed.Choices[0].Message
	return schema.AssistantMessage(choice.Content, toSchemaToolCalls(choice.ToolCalls)), nil
}

func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, _ ...einoModel.Option) (*schema.StreamReader[*schema.Message], error) {
	resp, err := m.doRequest(ctx, input, true)
	if err != nil {
		return nil, err
	}

	sr, sw := schema.Pipe[*schema.Message](64)
	go func() {
		defer sw.Close()
		defer resp.Body.Close()
		if err := readChatSSE(ctx, resp.Body, func(msg *schema.Message) error {
			if sw.Send(msg, nil) {
				return errors.New("stream closed by reader")
			}
			return nil
		}); err != nil {
			sw.Send(nil, err)
		}
	}()
	return sr, nil
}

func (m *ChatModel) WithTools(tools []*schema.ToolInfo) (einoModel.ToolCallingChatModel, error) {
	cloned := *m
	cloned.tools = tools
	return &cloned, nil
}

// WithToolDefinitions 直接以 OpenAI function 格式声明工具（绕过 schema.ToolInfo 转换）。
func (m *ChatModel) WithToolDefinitions(defs []ToolDefinition) *ChatModel {
	cloned := *m
	cloned.defs = defs
	return &cloned
}

type chatRequestMessage struct {
	Role       string              `json:"role"`
	Content    string              `json:"content"`
	ToolCalls  []wireToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string              `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatRequestPayload struct {
	Model       string               `json:"model"`
	Messages    []chatRequestMessage `json:"messages"`
	Stream      bool                 `json:"stream"`
	Tools       []ToolDefinition     `json:"tools,omitempty"`
	Temperature *float32             `json:"temperature,omitempty"`
	TopP        *float32             `json:"top_p,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content   string         `json:"content"`
			ToolCalls []wireToolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

func (m *ChatModel) doRequest(ctx context.Context, input []*schema.Message, stream bool) (*http.Response, error) {
	messages, initiator := buildRequestMessages(input)
	if len(messages) == 0 {
		return nil, fmt.Errorf("no valid messages to send")
	}

	payload := chatRequestPayload{
		Model:       m.config.Model,
		Messages:    messages,
		Stream:      stream,
		Tools:       m.defs,
		Temperature: m.config.Temperature,
		TopP:        m.config.TopP,
	}
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode backend request: %w", err)
	}

	headers, err := m.config.Headers(ctx, initiator, false)
	if err != nil {
		return nil, fmt.Errorf("auth not available: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.config.ChatURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to build backend request: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	} else {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := m.config.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend request failed: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		resp.Body.Close()
		return nil, fmt.Errorf("backend request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

// buildRequestMessages 把 eino 消息转成 OpenAI 格式，
// 同时推断 X-Initiator（出现过 assistant/tool 消息即为 agent 会话）。
func buildRequestMessages(input []*schema.Message) ([]chatRequestMessage, string) {
	messages := make([]chatRequestMessage, 0, len(input))
	initiator := "user"
	for _, msg := range input {
		if msg == nil {
			continue
		}
		out := chatRequestMessage{
			Role:    string(msg.Role),
			Content: resolveMessageContent(msg),
		}
		switch msg.Role {
		case schema.Assistant, schema.Tool:
			initiator = "agent"
		}
		if msg.Role == schema.Tool {
			out.ToolCallID = msg.ToolCallID
		}
		for _, tc := range msg.ToolCalls {
			wire := wireToolCall{ID: tc.ID, Type: "function"}
			wire.Function.Name = tc.Function.Name
			wire.Function.Arguments = tc.Function.Arguments
			out.ToolCalls = append(out.ToolCalls, wire)
		}
		if out.Content == "" && len(out.ToolCalls) == 0 && out.ToolCallID == "" {
			continue
		}
		messages = append(messages, out)
	}
	return messages, initiator
}

func resolveMessageContent(msg *schema.Message) string {
	if msg.Content != "" {
		return msg.Content
	}
	if len(msg.UserInputMultiContent) > 0 {
		var builder strings.Builder
		for _, part := range msg.UserInputMultiContent {
			if part.Type == schema.ChatMessagePartTypeText {
				builder.WriteString(part.Text)
			}
		}
		return builder.String()
	}
	return ""
}

func toSchemaToolCalls(calls []wireToolCall) []schema.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]schema.ToolCall, 0, len(calls))
	for _, c := range calls {
		out = append(out, schema.ToolCall{
			ID:   c.ID,
			Type: "function",
			Function: schema.FunctionCall{
				Name:      c.Function.Name,
				Arguments: c.Function.Arguments,
			},
		})
	}
	return out
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// readChatSSE 逐行解析 OpenAI 格式的 SSE chunk：
// content delta 立即下发；tool_calls delta 按 index 聚合，流结束时一次性下发。
func readChatSSE(ctx context.Context, body io.Reader, emit func(*schema.Message) error) error {
	reader := bufio.NewReader(body)
	pending := map[int]*schema.ToolCall{}
	order := []int{}

	flushToolCalls := func() error {
		if len(pending) == 0 {
			return nil
		}
		calls := make([]schema.ToolCall, 0, len(pending))
		for _, idx := range order {
			call := *pending[idx]
			if call.ID == "" {
				call.ID = openaiapi.NewToolCallID()
			}
			calls = append(calls, call)
		}
		pending = map[int]*schema.ToolCall{}
		order = order[:0]
		return emit(schema.AssistantMessage("", calls))
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return flushToolCalls()
			}
			return err
		}

		line = strings.TrimRight(line, "\r\n")
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return flushToolCalls()
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// 未知 chunk 直接跳过，容忍协议漂移
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		if choice.Delta.Content != "" {
			if err := emit(&schema.Message{Role: schema.Assistant, Content: choice.Delta.Content}); err != nil {
				return nil
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			cur, ok := pending[tc.Index]
			if !ok {
				cur = &schema.ToolCall{Type: "function"}
				pending[tc.Index] = cur
				order = append(order, tc.Index)
			}
			if tc.ID != "" {
				cur.ID = tc.ID
			}
			if tc.Function.Name != "" {
				cur.Function.Name = tc.Function.Name
			}
			cur.Function.Arguments += tc.Function.Arguments
		}
	}
}
