package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Store 从本地凭证文件中解析长效凭证，并负责把新凭证落盘。
//
// 三个文档按固定优先级查找：apps.json > hosts.json > 本地登录文件，
// 命中即停。所有读取都是容错的：文件不存在、不可读、JSON 非法都按
// "没有凭证" 处理，绝不向上抛错（系统宁可退化成"找不到凭证"，
// 也不要因为一个损坏的配置文件崩溃）。
type Store struct {
	AppsPath  string
	HostsPath string
	LocalPath string
}

// DefaultStore 按平台默认路径构造 Store。
func DefaultStore() (*Store, error) {
	loc := Locator{}
	apps, err := loc.AppsPath()
	if err != nil {
		return nil, err
	}
	hosts, err := loc.HostsPath()
	if err != nil {
		return nil, err
	}
	local, err := loc.LocalAuthPath()
	if err != nil {
		return nil, err
	}
	return &Store{AppsPath: apps, HostsPath: hosts, LocalPath: local}, nil
}

// readDocument 容错读取一个 JSON 对象文档；任何失败都返回 (nil, false)。
func readDocument(path string) (map[string]json.RawMessage, bool) {
	if strings.TrimSpace(path) == "" {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false
	}
	return doc, true
}

// hostMatches 判断文档的 key 是否属于指定 host：
// 支持 "host" 与 "host:clientId"（或 "host:user"）两种写法。
func hostMatches(key, host string) bool {
	return key == host || strings.HasPrefix(key, host+":")
}

type appsEntry struct {
	OAuthToken string `json:"oauth_token"`
	User       string `json:"user,omitempty"`
}

// extractFromApps 从主文档（apps.json）提取凭证。
// 收集该 host 的全部匹配项，只要有一条是 OAuth 类（gho_）就优先返回它，
// 否则返回第一条匹配。
func extractFromApps(doc map[string]json.RawMessage, host string) (*StoredCredential, bool) {
	var matches []*StoredCredential
	for key, raw := range doc {
		if !hostMatches(key, host) {
			continue
		}
		var entry appsEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		token := strings.TrimSpace(entry.OAuthToken)
		if token == "" {
			continue
		}
		matches = append(matches, &StoredCredential{Host: host, Token: token, Kind: KindOfToken(token)})
	}
	if len(matches) == 0 {
		return nil, false
	}
	for _, m := range matches {
		if m.Kind == KindOAuth {
			return m, true
		}
	}
	return matches[0], true
}

// extractFromHosts 从次文档（hosts.json）提取凭证。
// 先查直接以 host 为 key 的嵌套形式 {"oauth_token": "..."}，
// 再兼容扁平形式 "host:user" -> token 字符串。
func extractFromHosts(doc map[string]json.RawMessage, host string) (*StoredCredential, bool) {
	if raw, ok := doc[host]; ok {
		var entry appsEntry
		if err := json.Unmarshal(raw, &entry); err == nil {
			if token := strings.TrimSpace(entry.OAuthToken); token != "" {
				return &StoredCredential{Host: host, Token: token, Kind: KindOfToken(token)}, true
			}
		}
	}
	for key, raw := range doc {
		if key == host || !hostMatches(key, host) {
			continue
		}
		var token string
		if err := json.Unmarshal(raw, &token); err != nil {
			continue
		}
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		return &StoredCredential{Host: host, Token: token, Kind: KindOfToken(token)}, true
	}
	return nil, false
}

// localDocument 是 Device Flow 登录结果的落盘格式。
type localDocument struct {
	OAuthToken string `json:"oauth_token"`
	UpdatedAt  string `json:"updated_at"`
}

func extractFromLocal(path string) (*StoredCredential, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var doc localDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false
	}
	token := strings.TrimSpace(doc.OAuthToken)
	if token == "" {
		return nil, false
	}
	return &StoredCredential{Token: token, Kind: KindOfToken(token)}, true
}

// Resolve 按固定优先级（apps.json > hosts.json > 本地登录文件）查找凭证，
// 命中即返回；全部未命中返回 (nil, false)，永远不报错。
func (s *Store) Resolve(host string) (*StoredCredential, bool) {
	if doc, ok := readDocument(s.AppsPath); ok {
		if cred, ok := extractFromApps(doc, host); ok {
			return cred, true
		}
	}
	if doc, ok := readDocument(s.HostsPath); ok {
		if cred, ok := extractFromHosts(doc, host); ok {
			return cred, true
		}
	}
	if cred, ok := extractFromLocal(s.LocalPath); ok {
		cred.Host = host
		return cred, true
	}
	return nil, false
}

// Persist 把 Device Flow 得到的新凭证写入本地登录文件（0600，目录 0700）。
// 调用方应把写入失败视为非致命：凭证已经在内存中生效，落盘只是
// 为了下次启动免登录。
func (s *Store) Persist(token string) error {
	if strings.TrimSpace(s.LocalPath) == "" {
		return fmt.Errorf("local auth path is not configured")
	}
	if err := os.MkdirAll(filepath.Dir(s.LocalPath), 0o700); err != nil {
		return fmt.Errorf("failed to create auth directory: %w", err)
	}
	data, err := json.MarshalIndent(localDocument{
		OAuthToken: token,
		UpdatedAt:  time.Now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal auth file: %w", err)
	}
	if err := os.WriteFile(s.LocalPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write auth file: %w", err)
	}
	return nil
}
