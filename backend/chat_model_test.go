package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/LubyRuffy/ghcp2o/openaiapi"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"
)

func testHeaders(token string) HeaderSource {
	return func(ctx context.Context, initiator string, vision bool) (http.Header, error) {
		h := http.Header{}
		h.Set("Authorization", "Bearer "+token)
		h.Set("X-Initiator", initiator)
		return h, nil
	}
}

func TestNewChatModel_Validation(t *testing.T) {
	_, err := NewChatModel(ChatModelConfig{Headers: testHeaders("t")})
	require.Error(t, err)

	_, err = NewChatModel(ChatModelConfig{Model: "gpt-4o"})
	require.Error(t, err)

	m, err := NewChatModel(ChatModelConfig{Model: "gpt-4o", Headers: testHeaders("t")})
	require.NoError(t, err)
	require.NotNil(t, m)
}

func TestChatModel_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer t1", r.Header.Get("Authorization"))
		require.Equal(t, "user", r.Header.Get("X-Initiator"))
		require.Equal(t, "application/json", r.Header.Get("Accept"))

		var payload struct {
			Model    string `json:"model"`
			Stream   bool   `json:"stream"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Equal(t, "gpt-4o", payload.Model)
		require.False(t, payload.Stream)
		require.Len(t, payload.Messages, 1)
		require.Equal(t, "user", payload.Messages[0].Role)
		require.Equal(t, "hello", payload.Messages[0].Content)

		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"world"}}]}`)
	}))
	t.Cleanup(server.Close)

	m, err := NewChatModel(ChatModelConfig{
		Model:      "gpt-4o",
		ChatURL:    server.URL,
		Headers:    testHeaders("t1"),
		HTTPClient: server.Client(),
	})
	require.NoError(t, err)

	msg, err := m.Generate(context.Background(), []*schema.Message{
		{Role: schema.User, Content: "hello"},
	})
	require.NoError(t, err)
	require.Equal(t, schema.Assistant, msg.Role)
	require.Equal(t, "world", msg.Content)
}

func TestChatModel_Generate_AgentInitiator(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "agent", r.Header.Get("X-Initiator"))
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
	}))
	t.Cleanup(server.Close)

	m, err := NewChatModel(ChatModelConfig{
		Model:      "gpt-4o",
		ChatURL:    server.URL,
		Headers:    testHeaders("t1"),
		HTTPClient: server.Client(),
	})
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), []*schema.Message{
		{Role: schema.User, Content: "list files"},
		{Role: schema.Assistant, Content: "running ls"},
		{Role: schema.User, Content: "continue"},
	})
	require.NoError(t, err)
}

func TestChatModel_Generate_ToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"","tool_calls":[{"id":"call_1","type":"function","function":{"name":"get_weather","arguments":"{\"city\":\"beijing\"}"}}]}}]}`)
	}))
	t.Cleanup(server.Close)

	m, err := NewChatModel(ChatModelConfig{
		Model:      "gpt-4o",
		ChatURL:    server.URL,
		Headers:    testHeaders("t1"),
		HTTPClient: server.Client(),
	})
	require.NoError(t, err)

	msg, err := m.Generate(context.Background(), []*schema.Message{
		{Role: schema.User, Content: "weather in beijing"},
	})
	require.NoError(t, err)
	require.Len(t, msg.ToolCalls, 1)
	require.Equal(t, "call_1", msg.ToolCalls[0].ID)
	require.Equal(t, "get_weather", msg.ToolCalls[0].Function.Name)
	require.JSONEq(t, `{"city":"beijing"}`, msg.ToolCalls[0].Function.Arguments)
}

func TestChatModel_Generate_BackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"message":"access denied"}}`)
	}))
	t.Cleanup(server.Close)

	m, err := NewChatModel(ChatModelConfig{
		Model:      "gpt-4o",
		ChatURL:    server.URL,
		Headers:    testHeaders("t1"),
		HTTPClient: server.Client(),
	})
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), []*schema.Message{
		{Role: schema.User, Content: "hi"},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "403")
	require.Contains(t, err.Error(), "access denied")
}

func TestChatModel_Stream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		var payload struct {
			Stream bool `json:"stream"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.True(t, payload.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(server.Close)

	m, err := NewChatModel(ChatModelConfig{
		Model:      "gpt-4o",
		ChatURL:    server.URL,
		Headers:    testHeaders("t1"),
		HTTPClient: server.Client(),
	})
	require.NoError(t, err)

	sr, err := m.Stream(context.Background(), []*schema.Message{
		{Role: schema.User, Content: "hi"},
	})
	require.NoError(t, err)
	defer sr.Close()

	var builder strings.Builder
	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		builder.WriteString(msg.Content)
	}
	require.Equal(t, "hello", builder.String())
}

func TestReadChatSSE_DeltaAndDone(t *testing.T) {
	body := strings.NewReader("" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"hel\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
		"data: [DONE]\n\n")

	var deltas []string
	err := readChatSSE(context.Background(), body, func(msg *schema.Message) error {
		deltas = append(deltas, msg.Content)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"hel", "lo"}, deltas)
}

func TestReadChatSSE_ToolCallAggregation(t *testing.T) {
	body := strings.NewReader("" +
		"data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"id\":\"call_1\",\"function\":{\"name\":\"get_weather\",\"arguments\":\"{\\\"ci\"}}]}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"function\":{\"arguments\":\"ty\\\":\\\"beijing\\\"}\"}}]}}]}\n\n" +
		"data: [DONE]\n\n")

	var messages []*schema.Message
	err := readChatSSE(context.Background(), body, func(msg *schema.Message) error {
		messages = append(messages, msg)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Len(t, messages[0].ToolCalls, 1)
	require.Equal(t, "call_1", messages[0].ToolCalls[0].ID)
	require.Equal(t, "get_weather", messages[0].ToolCalls[0].Function.Name)
	require.JSONEq(t, `{"city":"beijing"}`, messages[0].ToolCalls[0].Function.Arguments)
}

func TestReadChatSSE_FillsMissingToolCallID(t *testing.T) {
	// 上游增量从头到尾没带 id，聚合结果必须补一个可配对的 id
	body := strings.NewReader("" +
		"data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"function\":{\"name\":\"get_weather\",\"arguments\":\"{}\"}}]}}]}\n\n" +
		"data: [DONE]\n\n")

	var messages []*schema.Message
	err := readChatSSE(context.Background(), body, func(msg *schema.Message) error {
		messages = append(messages, msg)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Len(t, messages[0].ToolCalls, 1)
	require.NotEmpty(t, messages[0].ToolCalls[0].ID)
	require.True(t, strings.HasPrefix(messages[0].ToolCalls[0].ID, "call_"))
}

func TestChatModel_WithToolDefinitions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Tools []struct {
				Type     string `json:"type"`
				Function struct {
					Name        string `json:"name"`
					Description string `json:"description"`
				} `json:"function"`
			} `json:"tools"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Len(t, payload.Tools, 1)
		require.Equal(t, "function", payload.Tools[0].Type)
		require.Equal(t, "get_weather", payload.Tools[0].Function.Name)

		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
	}))
	t.Cleanup(server.Close)

	m, err := NewChatModel(ChatModelConfig{
		Model:      "gpt-4o",
		ChatURL:    server.URL,
		Headers:    testHeaders("t1"),
		HTTPClient: server.Client(),
	})
	require.NoError(t, err)

	withTools := m.WithToolDefinitions(ToolsFromOpenAITools([]openaiapi.OpenAITool{
		{Type: "function", Function: openaiapi.OpenAIToolFunction{
			Name:        "get_weather",
			Description: "查询天气",
			Parameters:  map[string]interface{}{"type": "object"},
		}},
	}))

	_, err = withTools.Generate(context.Background(), []*schema.Message{
		{Role: schema.User, Content: "weather in beijing"},
	})
	require.NoError(t, err)

	// clone 语义：原模型不受影响，仍然不携带 tools
	require.Nil(t, m.defs)
}

func TestReadChatSSE_SkipsMalformedChunk(t *testing.T) {
	body := strings.NewReader("" +
		"data: not-json\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n" +
		"data: [DONE]\n\n")

	var deltas []string
	err := readChatSSE(context.Background(), body, func(msg *schema.Message) error {
		deltas = append(deltas, msg.Content)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"ok"}, deltas)
}

func TestBuildRequestMessages_SkipsEmpty(t *testing.T) {
	messages, initiator := buildRequestMessages([]*schema.Message{
		nil,
		{Role: schema.User, Content: ""},
		{Role: schema.User, Content: "hi"},
	})
	require.Len(t, messages, 1)
	require.Equal(t, "user", initiator)
}

func TestBuildRequestMessages_ToolMessage(t *testing.T) {
	messages, initiator := buildRequestMessages([]*schema.Message{
		{Role: schema.User, Content: "weather"},
		{Role: schema.Assistant, ToolCalls: []schema.ToolCall{
			{ID: "call_1", Type: "function", Function: schema.FunctionCall{Name: "get_weather", Arguments: "{}"}},
		}},
		{Role: schema.Tool, ToolCallID: "call_1", Content: "sunny"},
	})
	require.Equal(t, "agent", initiator)
	require.Len(t, messages, 3)
	require.Equal(t, "call_1", messages[1].ToolCalls[0].ID)
	require.Equal(t, "call_1", messages[2].ToolCallID)
}
