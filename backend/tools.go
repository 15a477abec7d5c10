package backend

import (
	"strings"

	"github.com/LubyRuffy/ghcp2o/openaiapi"
)

// FunctionSpec 是 tools 数组元素里的 function 子对象。
type FunctionSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// ToolDefinition 是 Copilot chat/completions 接口的 tools 数组元素，
// 与 OpenAI function calling 的声明格式一致。
type ToolDefinition struct {
	Type     string       `json:"type"`
	Function FunctionSpec `json:"function"`
}

// ToolsFromOpenAITools 把 OpenAI tools 映射为 backend 的 tool 定义（按名字去重，忽略非 function 类型）。
func ToolsFromOpenAITools(tools []openaiapi.OpenAITool) []ToolDefinition {
	if len(tools) == 0 {
		return nil
	}

	result := make([]ToolDefinition, 0, len(tools))
	nameSet := make(map[string]struct{})

	for _, tool := range tools {
		if strings.ToLower(strings.TrimSpace(tool.Type)) != "function" {
			continue
		}
		name := strings.TrimSpace(tool.Function.Name)
		if name == "" {
			continue
		}
		normalized := strings.ToLower(name)
		if _, exists := nameSet[normalized]; exists {
			continue
		}
		nameSet[normalized] = struct{}{}

		result = append(result, ToolDefinition{
			Type: "function",
			Function: FunctionSpec{
				Name:        name,
				Description: tool.Function.Description,
				Parameters:  tool.Function.Parameters,
			},
		})
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
