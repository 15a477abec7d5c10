package auth

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/LubyRuffy/ghcp2o"
	"golang.org/x/sync/singleflight"
)

// RefreshBuffer 是短效 token 的刷新提前量：
// now + RefreshBuffer 晚于过期时间的缓存视为不可用，提前换新，
// 避免把一个请求跑到一半就过期的 token 交出去。
const RefreshBuffer = 5 * time.Minute

// Config 是 Manager 的一次性输入，构造后不再变化。
type Config struct {
	// Credential 显式指定长效凭证，优先于本地文件查找。
	Credential string
	// Domain 企业域名（GHE），为空时使用 github.com。
	Domain string
	// BaseURL chat 端点地址，为空时使用 ghcp2o.DefaultChatURL。
	// 只透传给上层协作方，不参与 token 交换。
	BaseURL string
	// ExtraHeaders 追加到 Headers 输出的自定义请求头。
	ExtraHeaders map[string]string
	// Debug 为 true 时输出调试日志。
	Debug bool

	// Store / Exchange / Flow / HTTPClient 可注入，nil 时使用默认实现；主要用于测试。
	Store      *Store
	Exchange   *ExchangeClient
	Flow       *Flow
	HTTPClient *http.Client
}

// Manager 编排凭证核心：构造时解析一次初始凭证（显式参数优先），
// Token 负责"缓存命中即返回、未命中走交换"，BeginDeviceFlow 负责登录。
//
// 两个可变字段（credential/cache）用互斥锁保护；缓存未命中时的交换
// 用 singleflight 收敛，并发调用方不会各自发起一次重复的交换请求。
type Manager struct {
	domain       string
	baseURL      string
	extraHeaders map[string]string
	debug        bool

	store    *Store
	exchange *ExchangeClient
	flow     *Flow

	mu         sync.Mutex
	credential string
	cache      *CachedToken
	sf         singleflight.Group
}

// NewManager 按 Config 构造 Manager。
// 本地凭证文件不可用（包括 home 目录无法解析）只会让初始凭证为空，
// 不会让构造失败；真正的失败推迟到 Token 时以 ErrCredentialNotFound 暴露。
func NewManager(cfg Config) *Manager {
	domain := strings.TrimSpace(cfg.Domain)
	if domain == "" {
		domain = ghcp2o.DefaultDomain
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = ghcp2o.DefaultChatURL
	}

	store := cfg.Store
	if store == nil {
		if s, err := DefaultStore(); err == nil {
			store = s
		} else if cfg.Debug {
			log.Printf("[auth] credential store unavailable: %v", err)
		}
	}

	exchange := cfg.Exchange
	if exchange == nil {
		exchange = &ExchangeClient{
			URL:        ghcp2o.EndpointURL(ghcp2o.TokenExchangeURLTemplate, domain),
			HTTPClient: cfg.HTTPClient,
		}
	}

	flow := cfg.Flow
	if flow == nil {
		flow = &Flow{
			DeviceCodeURL:  ghcp2o.EndpointURL(ghcp2o.DeviceCodeURLTemplate, domain),
			AccessTokenURL: ghcp2o.EndpointURL(ghcp2o.AccessTokenURLTemplate, domain),
			HTTPClient:     cfg.HTTPClient,
			UserAgent:      ghcp2o.DefaultUserAgent,
		}
	}

	m := &Manager{
		domain:       domain,
		baseURL:      baseURL,
		extraHeaders: cfg.ExtraHeaders,
		debug:        cfg.Debug,
		store:        store,
		exchange:     exchange,
		flow:         flow,
	}

	// 初始凭证只解析一次：显式参数 > 本地文件；之后只有 Device Flow 成功才会更新。
	if cred := strings.TrimSpace(cfg.Credential); cred != "" {
		m.credential = cred
	} else if store != nil {
		if sc, ok := store.Resolve(domain); ok {
			m.credential = sc.Token
			if cfg.Debug {
				log.Printf("[auth] resolved %s credential for %s from local config", sc.Kind, domain)
			}
		}
	}
	return m
}

// Domain 返回生效的域名。
func (m *Manager) Domain() string { return m.domain }

// ChatURL 返回生效的 chat 端点地址（供上层协作方使用）。
func (m *Manager) ChatURL() string { return m.baseURL }

// HasCredential 返回当前是否持有长效凭证。
func (m *Manager) HasCredential() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.credential != ""
}

// Token 返回一个可用的短效 API token：
// 缓存仍在刷新提前量之外直接返回；否则用长效凭证发起交换，
// 成功后整体替换缓存。没有长效凭证时返回 ErrCredentialNotFound。
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.cache.Valid(time.Now(), RefreshBuffer) {
		token := m.cache.Token
		m.mu.Unlock()
		return token, nil
	}
	credential := m.credential
	m.mu.Unlock()

	if credential == "" {
		return "", ErrCredentialNotFound
	}

	v, err, _ := m.sf.Do("exchange", func() (interface{}, error) {
		// singleflight 合并后重查一次缓存，避免排队的调用方重复交换
		m.mu.Lock()
		if m.cache.Valid(time.Now(), RefreshBuffer) {
			token := m.cache.Token
			m.mu.Unlock()
			return token, nil
		}
		m.mu.Unlock()

		cached, err := m.exchange.Exchange(ctx, credential)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.cache = cached
		m.mu.Unlock()
		if m.debug {
			log.Printf("[auth] exchanged api token, expires at %s", cached.ExpiresAt.Format(time.RFC3339))
		}
		return cached.Token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// BeginDeviceFlow 发起 Device Flow 登录。
// 返回的会话立刻携带 UserCode/VerificationURI 供展示；
// 调用方执行 Poll 成功后，新凭证会尽力落盘（失败只记日志不报错），
// 同时替换 Manager 的生效凭证并丢弃旧缓存。
func (m *Manager) BeginDeviceFlow(ctx context.Context) (*DeviceAuthorization, error) {
	session, err := m.flow.Begin(ctx)
	if err != nil {
		return nil, err
	}

	inner := session.Poll
	session.Poll = func(ctx context.Context) (string, error) {
		token, err := inner(ctx)
		if err != nil {
			return "", err
		}
		if m.store != nil {
			if err := m.store.Persist(token); err != nil && m.debug {
				log.Printf("[auth] persist credential failed (ignored): %v", err)
			}
		}
		m.mu.Lock()
		m.credential = token
		m.cache = nil
		m.mu.Unlock()
		return token, nil
	}
	return session, nil
}

// Headers 生成访问 Copilot API 所需的完整请求头：
// Bearer Authorization、Openai-Intent、X-Initiator、客户端标识头，
// 以及可选的 Copilot-Vision-Request（由请求层推断后传入）。
func (m *Manager) Headers(ctx context.Context, initiator string, vision bool) (http.Header, error) {
	token, err := m.Token(ctx)
	if err != nil {
		return nil, err
	}

	if initiator == "" {
		initiator = "user"
	}

	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	h.Set("Openai-Intent", "conversation-panel")
	h.Set("X-Initiator", initiator)
	h.Set("User-Agent", ghcp2o.DefaultUserAgent)
	h.Set("Editor-Version", ghcp2o.EditorVersion)
	h.Set("Editor-Plugin-Version", ghcp2o.EditorPluginVersion)
	h.Set("Copilot-Integration-Id", ghcp2o.CopilotIntegrationID)
	if vision {
		h.Set("Copilot-Vision-Request", "true")
	}
	for k, v := range m.extraHeaders {
		h.Set(k, v)
	}
	return h, nil
}
