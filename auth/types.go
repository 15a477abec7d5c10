package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TokenKind 表示长效凭证的类别，由固定的 token 前缀约定推导。
type TokenKind string

const (
	// KindOAuth 对应 OAuth App 授权产生的 token（gho_ 前缀），解析时优先选择。
	KindOAuth TokenKind = "oauth"
	// KindUserDelegated 对应 GitHub App 用户授权产生的 token（ghu_ 前缀）。
	KindUserDelegated TokenKind = "user"
)

// KindOfToken 按前缀约定推导 token 类别，未知前缀按用户授权处理。
func KindOfToken(token string) TokenKind {
	if strings.HasPrefix(token, "gho_") {
		return KindOAuth
	}
	return KindUserDelegated
}

// StoredCredential 是从凭证文件中解析出来的长效凭证。
// 同一个 host 可能存在多条，Resolve 每次只选出一条。
type StoredCredential struct {
	Host  string
	Token string
	Kind  TokenKind
}

// CachedToken 是交换得到的短效 API token，由 Manager 独占持有，
// 每次交换成功后整体替换，不做局部修改。
type CachedToken struct {
	Token     string
	ExpiresAt time.Time
}

// Valid 判断缓存是否仍然可用：now + buffer 必须早于过期时间，
// 避免把一个马上过期的 token 交给一次可能跑很久的请求。
func (c *CachedToken) Valid(now time.Time, buffer time.Duration) bool {
	return c != nil && c.Token != "" && now.Add(buffer).Before(c.ExpiresAt)
}

// ErrCredentialNotFound 表示本地找不到任何长效凭证。
var ErrCredentialNotFound = errors.New("no GitHub credential found: run `ghcp2o-login` to authorize, or pass a token explicitly")

// ExchangeError 表示 token 交换接口返回了非 2xx；Body 保留原始响应体用于排查。
type ExchangeError struct {
	StatusCode int
	Body       string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("copilot token exchange failed with status %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// DeniedError 表示 Device Flow 轮询收到了 authorization_pending 之外的错误码，
// 属于用户侧可恢复的失败（重跑一次登录即可），不是编程错误。
type DeniedError struct {
	Code        string
	Description string
}

func (e *DeniedError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("device flow authorization denied: %s (%s)", e.Code, e.Description)
	}
	return fmt.Sprintf("device flow authorization denied: %s", e.Code)
}

// ErrDeviceFlowExpired 表示 device code 在用户完成授权前已过期。
var ErrDeviceFlowExpired = errors.New("device code expired before authorization completed, please retry login")
