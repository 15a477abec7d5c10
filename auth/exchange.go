package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/LubyRuffy/ghcp2o"
)

// ExchangeClient 负责用长效 OAuth 凭证换取短效 Copilot API token。
type ExchangeClient struct {
	// URL 是 token 交换端点，为空时使用默认域名的端点。
	URL string
	// HTTPClient 可选，nil 时内部使用 &http.Client{}。
	HTTPClient *http.Client
	// UserAgent 可选，为空时使用 ghcp2o.DefaultUserAgent。
	UserAgent string
}

type exchangeResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"` // Unix 秒
	RefreshIn int64  `json:"refresh_in,omitempty"`
}

// Exchange 对 token 交换端点发起 GET 请求。
// 非 2xx 返回 *ExchangeError，携带状态码与原始响应体（只做诊断，不解析）。
func (c *ExchangeClient) Exchange(ctx context.Context, credential string) (*CachedToken, error) {
	url := strings.TrimSpace(c.URL)
	if url == "" {
		url = ghcp2o.EndpointURL(ghcp2o.TokenExchangeURLTemplate, "")
	}
	ua := strings.TrimSpace(c.UserAgent)
	if ua == "" {
		ua = ghcp2o.DefaultUserAgent
	}
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build token exchange request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Editor-Version", ghcp2o.EditorVersion)
	req.Header.Set("Editor-Plugin-Version", ghcp2o.EditorPluginVersion)
	req.Header.Set("Copilot-Integration-Id", ghcp2o.CopilotIntegrationID)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token exchange response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &ExchangeError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var parsed exchangeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse token exchange response: %w", err)
	}
	if parsed.Token == "" {
		return nil, fmt.Errorf("token exchange response missing token")
	}

	return &CachedToken{
		Token:     parsed.Token,
		ExpiresAt: time.Unix(parsed.ExpiresAt, 0),
	}, nil
}
