package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/LubyRuffy/ghcp2o"
)

// FlowStatus 是 Device Flow 的状态机状态：
// Idle → Requested → Polling → {Authorized | Denied | Error | Expired}，
// 三个（加过期共四个）终态之外不会停止轮询。
type FlowStatus string

const (
	StatusIdle       FlowStatus = "idle"
	StatusRequested  FlowStatus = "requested"
	StatusPolling    FlowStatus = "polling"
	StatusAuthorized FlowStatus = "authorized"
	StatusDenied     FlowStatus = "denied"
	StatusError      FlowStatus = "error"
	StatusExpired    FlowStatus = "expired"
)

// Flow 执行 GitHub Device Flow：申请 device code，然后轮询授权结果。
type Flow struct {
	// ClientID / Scope 为空时使用 VS Code Copilot 的固定值。
	ClientID string
	Scope    string
	// DeviceCodeURL / AccessTokenURL 为空时使用默认域名的端点。
	DeviceCodeURL  string
	AccessTokenURL string
	// HTTPClient 可选，nil 时内部使用 &http.Client{}。
	HTTPClient *http.Client
	// UserAgent 可选。
	UserAgent string
	// Now / Sleep 可注入，测试时用假时钟免真实等待。
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// DeviceAuthorization 是一次 Device Flow 的会话：
// Begin 返回后立刻把 UserCode/VerificationURI 交给调用方展示，
// 真正的网络轮询推迟到调用方执行 Poll 时才开始，
// 这样"给用户看验证码"和"等待授权完成"是解耦的。
// 会话只在一次调用内存活，不做持久化。
type DeviceAuthorization struct {
	UserCode        string
	VerificationURI string
	Interval        time.Duration
	ExpiresAt       time.Time
	Status          FlowStatus

	// Poll 阻塞轮询直到出现终态；授权成功返回长效凭证。
	// ctx 取消会立即停止轮询；device code 过期返回 ErrDeviceFlowExpired。
	Poll func(ctx context.Context) (string, error)
}

type deviceCodeRequest struct {
	ClientID string `json:"client_id"`
	Scope    string `json:"scope"`
}

type deviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

type accessTokenRequest struct {
	ClientID   string `json:"client_id"`
	DeviceCode string `json:"device_code"`
	GrantType  string `json:"grant_type"`
}

type accessTokenResponse struct {
	AccessToken      string `json:"access_token,omitempty"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

const (
	deviceCodeGrantType  = "urn:ietf:params:oauth:grant-type:device_code"
	authorizationPending = "authorization_pending"
)

func (f *Flow) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

func (f *Flow) sleep(ctx context.Context, d time.Duration) error {
	if f.Sleep != nil {
		return f.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (f *Flow) postJSON(ctx context.Context, url string, payload any) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(f.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	client := f.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

// Begin 申请 device code。非 2xx 直接失败，不会进入轮询阶段。
func (f *Flow) Begin(ctx context.Context) (*DeviceAuthorization, error) {
	clientID := f.ClientID
	if clientID == "" {
		clientID = ghcp2o.OAuthClientID
	}
	scope := f.Scope
	if scope == "" {
		scope = ghcp2o.OAuthScope
	}
	deviceCodeURL := strings.TrimSpace(f.DeviceCodeURL)
	if deviceCodeURL == "" {
		deviceCodeURL = ghcp2o.EndpointURL(ghcp2o.DeviceCodeURLTemplate, "")
	}
	accessTokenURL := strings.TrimSpace(f.AccessTokenURL)
	if accessTokenURL == "" {
		accessTokenURL = ghcp2o.EndpointURL(ghcp2o.AccessTokenURLTemplate, "")
	}

	status, body, err := f.postJSON(ctx, deviceCodeURL, deviceCodeRequest{ClientID: clientID, Scope: scope})
	if err != nil {
		return nil, fmt.Errorf("device code request failed: %w", err)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("device code request failed with status %d: %s", status, strings.TrimSpace(string(body)))
	}

	var dc deviceCodeResponse
	if err := json.Unmarshal(body, &dc); err != nil {
		return nil, fmt.Errorf("failed to parse device code response: %w", err)
	}
	if dc.DeviceCode == "" || dc.UserCode == "" {
		return nil, fmt.Errorf("device code response missing device_code/user_code")
	}

	interval := time.Duration(dc.Interval) * time.Second
	if interval < 5*time.Second {
		// RFC 8628 规定最小轮询间隔 5 秒
		interval = 5 * time.Second
	}

	session := &DeviceAuthorization{
		UserCode:        dc.UserCode,
		VerificationURI: dc.VerificationURI,
		Interval:        interval,
		Status:          StatusRequested,
	}
	if dc.ExpiresIn > 0 {
		session.ExpiresAt = f.now().Add(time.Duration(dc.ExpiresIn) * time.Second)
	}
	session.Poll = func(ctx context.Context) (string, error) {
		return f.poll(ctx, session, accessTokenURL, clientID, dc.DeviceCode)
	}
	return session, nil
}

// poll 每个周期先休眠 interval 再请求 access token 端点，对响应分类：
//   - 非 2xx：终态 Error
//   - 有 access_token：终态 Authorized
//   - error == authorization_pending：继续轮询（用户还没完成浏览器步骤的稳态）
//   - 其它 error 码：终态 Denied
//   - 既没有 token 也没有 error：当作协议漂移的未知状态，继续轮询
func (f *Flow) poll(ctx context.Context, session *DeviceAuthorization, url, clientID, deviceCode string) (string, error) {
	session.Status = StatusPolling
	for {
		if err := f.sleep(ctx, session.Interval); err != nil {
			session.Status = StatusError
			return "", err
		}
		if !session.ExpiresAt.IsZero() && f.now().After(session.ExpiresAt) {
			session.Status = StatusExpired
			return "", ErrDeviceFlowExpired
		}

		status, body, err := f.postJSON(ctx, url, accessTokenRequest{
			ClientID:   clientID,
			DeviceCode: deviceCode,
			GrantType:  deviceCodeGrantType,
		})
		if err != nil {
			session.Status = StatusError
			return "", fmt.Errorf("access token request failed: %w", err)
		}
		if status < http.StatusOK || status >= http.StatusMultipleChoices {
			session.Status = StatusError
			return "", fmt.Errorf("access token request failed with status %d: %s", status, strings.TrimSpace(string(body)))
		}

		var tok accessTokenResponse
		if err := json.Unmarshal(body, &tok); err != nil {
			session.Status = StatusError
			return "", fmt.Errorf("failed to parse access token response: %w", err)
		}

		switch {
		case tok.AccessToken != "":
			session.Status = StatusAuthorized
			return tok.AccessToken, nil
		case tok.Error == authorizationPending:
			continue
		case tok.Error != "":
			session.Status = StatusDenied
			return "", &DeniedError{Code: tok.Error, Description: tok.ErrorDescription}
		default:
			continue
		}
	}
}
