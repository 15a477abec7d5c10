package auth

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	return &Store{
		AppsPath:  filepath.Join(dir, "apps.json"),
		HostsPath: filepath.Join(dir, "hosts.json"),
		LocalPath: filepath.Join(dir, "auth.json"),
	}, dir
}

func TestResolve_PrefersOAuthClassToken(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, os.WriteFile(store.AppsPath, []byte(`{
  "github.com:Iv1.aaa": {"oauth_token": "ghu_user_token", "user": "alice"},
  "github.com:Iv1.bbb": {"oauth_token": "gho_oauth_token", "user": "alice"}
}`), 0o600))

	cred, ok := store.Resolve("github.com")
	require.True(t, ok)
	require.Equal(t, "gho_oauth_token", cred.Token)
	require.Equal(t, KindOAuth, cred.Kind)
	require.Equal(t, "github.com", cred.Host)
}

func TestResolve_Precedence_AppsBeforeHostsBeforeLocal(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, os.WriteFile(store.AppsPath, []byte(`{"github.com": {"oauth_token": "gho_from_apps"}}`), 0o600))
	require.NoError(t, os.WriteFile(store.HostsPath, []byte(`{"github.com": {"oauth_token": "gho_from_hosts"}}`), 0o600))
	require.NoError(t, os.WriteFile(store.LocalPath, []byte(`{"oauth_token": "gho_from_local", "updated_at": "2026-01-01T00:00:00Z"}`), 0o600))

	cred, ok := store.Resolve("github.com")
	require.True(t, ok)
	require.Equal(t, "gho_from_apps", cred.Token)

	// apps.json 缺席时退到 hosts.json
	require.NoError(t, os.Remove(store.AppsPath))
	cred, ok = store.Resolve("github.com")
	require.True(t, ok)
	require.Equal(t, "gho_from_hosts", cred.Token)

	// 再缺席时退到本地登录文件
	require.NoError(t, os.Remove(store.HostsPath))
	cred, ok = store.Resolve("github.com")
	require.True(t, ok)
	require.Equal(t, "gho_from_local", cred.Token)
}

func TestResolve_MalformedDocumentsNeverError(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, os.WriteFile(store.AppsPath, []byte(`{not json`), 0o600))
	require.NoError(t, os.WriteFile(store.HostsPath, []byte(`[1,2,3]`), 0o600))
	require.NoError(t, os.WriteFile(store.LocalPath, []byte(``), 0o600))

	cred, ok := store.Resolve("github.com")
	require.False(t, ok)
	require.Nil(t, cred)
}

func TestResolve_AllDocumentsMissing(t *testing.T) {
	store, _ := newTestStore(t)
	_, ok := store.Resolve("github.com")
	require.False(t, ok)
}

func TestExtractFromHosts_FlattenedForm(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, os.WriteFile(store.HostsPath, []byte(`{"github.com:alice": "gho_y"}`), 0o600))

	cred, ok := store.Resolve("github.com")
	require.True(t, ok)
	require.Equal(t, "gho_y", cred.Token)
}

func TestExtractFromHosts_NestedFormCheckedFirst(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, os.WriteFile(store.HostsPath, []byte(`{
  "github.com": {"oauth_token": "gho_nested"},
  "github.com:alice": "gho_flat"
}`), 0o600))

	cred, ok := store.Resolve("github.com")
	require.True(t, ok)
	require.Equal(t, "gho_nested", cred.Token)
}

func TestResolve_HostIsolation(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, os.WriteFile(store.AppsPath, []byte(`{"ghe.example.com": {"oauth_token": "gho_enterprise"}}`), 0o600))

	_, ok := store.Resolve("github.com")
	require.False(t, ok)

	cred, ok := store.Resolve("ghe.example.com")
	require.True(t, ok)
	require.Equal(t, "gho_enterprise", cred.Token)
}

func TestPersist_WritesOwnerOnlyFile(t *testing.T) {
	store, _ := newTestStore(t)
	// 目录不存在时也应自动创建
	store.LocalPath = filepath.Join(t.TempDir(), "nested", "auth.json")

	require.NoError(t, store.Persist("gho_persisted"))

	info, err := os.Stat(store.LocalPath)
	require.NoError(t, err)
	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	cred, ok := extractFromLocal(store.LocalPath)
	require.True(t, ok)
	require.Equal(t, "gho_persisted", cred.Token)
}

func TestKindOfToken(t *testing.T) {
	require.Equal(t, KindOAuth, KindOfToken("gho_abc"))
	require.Equal(t, KindUserDelegated, KindOfToken("ghu_abc"))
	require.Equal(t, KindUserDelegated, KindOfToken("ghp_abc"))
}
