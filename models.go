package ghcp2o

import (
	"sort"
	"strings"
)

const (
	// DefaultDomain 是默认的 GitHub 域名；GHE 企业用户可以换成自己的域名。
	DefaultDomain = "github.com"
	// DefaultChatURL 是 Copilot chat/completions 接口的默认地址。
	DefaultChatURL = "https://api.githubcopilot.com/chat/completions"

	// DeviceCodeURLTemplate / AccessTokenURLTemplate / TokenExchangeURLTemplate
	// 以 {domain} 为占位符，按实际域名做替换后得到三个有效端点。
	DeviceCodeURLTemplate    = "https://{domain}/login/device/code"
	AccessTokenURLTemplate   = "https://{domain}/login/oauth/access_token"
	TokenExchangeURLTemplate = "https://api.{domain}/copilot_internal/v2/token"

	// OAuthClientID 是 GitHub Device Flow 使用的固定 client id（VS Code Copilot）。
	OAuthClientID = "Iv1.b507a08c87ecfe98"
	// OAuthScope 是 Device Flow 申请的最小 scope。
	OAuthScope = "read:user"

	// EditorVersion 等是 Copilot 后端要求的客户端标识请求头。
	EditorVersion        = "vscode/1.95.3"
	EditorPluginVersion  = "copilot-chat/0.22.4"
	CopilotIntegrationID = "vscode-chat"
	DefaultUserAgent     = "GitHubCopilotChat/0.22.4"

	// ModelNamespace 是对外暴露的主命名空间。
	ModelNamespace = "github/copilot/"
	// LegacyModelNamespace 用于兼容旧的命名空间输入（历史原因）。
	LegacyModelNamespace = "copilot/"

	// DefaultModelID 是未指定模型时使用的默认模型。
	DefaultModelID = "gpt-4o"
	// DefaultModelFullID 是带命名空间的默认模型 ID。
	DefaultModelFullID = ModelNamespace + DefaultModelID
)

// EndpointURL 将模板中的 {domain} 替换为实际域名。
func EndpointURL(template, domain string) string {
	d := strings.TrimSpace(domain)
	if d == "" {
		d = DefaultDomain
	}
	return strings.ReplaceAll(template, "{domain}", d)
}

var presetModelIDs = map[string]string{
	"gpt-4o":               "GPT-4o",
	"gpt-4o-mini":          "GPT-4o mini",
	"o3-mini":              "o3-mini",
	"claude-3.5-sonnet":    "Claude 3.5 Sonnet",
	"claude-3.7-sonnet":    "Claude 3.7 Sonnet",
	"gemini-2.0-flash-001": "Gemini 2.0 Flash",
	"gemini-2.5-pro":       "Gemini 2.5 Pro",
}

type PresetModel struct {
	ID   string
	Name string
}

// PresetModels 返回内置的模型列表（用于 /v1/models 输出）。
// 返回的 ID 使用 ModelNamespace，默认模型排在首位。
func PresetModels() []PresetModel {
	out := make([]PresetModel, 0, len(presetModelIDs))
	for id, name := range presetModelIDs {
		out = append(out, PresetModel{ID: ModelNamespace + id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID == DefaultModelFullID {
			return true
		}
		if out[j].ID == DefaultModelFullID {
			return false
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// NormalizeModelID 将带 namespace/prefix 的模型 ID 还原为后端需要的真实 ID。
// 该函数同时兼容 LegacyModelNamespace。
func NormalizeModelID(modelID string) string {
	trimmed := strings.TrimSpace(modelID)
	switch {
	case strings.HasPrefix(trimmed, ModelNamespace):
		return strings.TrimPrefix(trimmed, ModelNamespace)
	case strings.HasPrefix(trimmed, LegacyModelNamespace):
		return strings.TrimPrefix(trimmed, LegacyModelNamespace)
	case strings.HasPrefix(trimmed, "github/"):
		return strings.TrimPrefix(trimmed, "github/")
	default:
		return trimmed
	}
}

// IsSupportedModelID 判断是否为受支持的模型 ID（支持带 namespace/prefix 的写法）。
func IsSupportedModelID(modelID string) bool {
	trimmed := strings.TrimSpace(modelID)
	if trimmed == "" {
		return false
	}
	normalized := NormalizeModelID(trimmed)
	_, ok := presetModelIDs[normalized]
	return ok
}
