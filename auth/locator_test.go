package auth

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocator_Overrides(t *testing.T) {
	loc := Locator{ConfigDir: "/tmp/cfg", HomeDir: "/tmp/home"}

	apps, err := loc.AppsPath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/tmp/cfg", "apps.json"), apps)

	hosts, err := loc.HostsPath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/tmp/cfg", "hosts.json"), hosts)

	local, err := loc.LocalAuthPath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/tmp/home", ".ghcp2o", "auth.json"), local)
}

func TestLocator_DefaultConfigDirUnderHome(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("windows resolves via LOCALAPPDATA")
	}
	loc := Locator{HomeDir: "/home/alice"}
	apps, err := loc.AppsPath()
	require.NoError(t, err)
	require.Equal(t, "/home/alice/.config/github-copilot/apps.json", apps)
}
