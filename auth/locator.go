package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Locator 负责计算各凭证文件的路径，本身不做任何文件 IO，
// 纯路径计算，方便在出错时打印诊断信息。
//
// 配置目录的解析规则：
//   - Windows: %LOCALAPPDATA%\github-copilot
//   - 其它平台: ~/.config/github-copilot
//
// 目录下有两个已知文件：apps.json（主文档）和 hosts.json（次文档）。
// 本地登录文件（Device Flow 落盘）固定放在 ~/.ghcp2o/auth.json。
type Locator struct {
	// ConfigDir 非空时直接使用，主要用于测试。
	ConfigDir string
	// HomeDir 非空时直接使用，主要用于测试。
	HomeDir string
}

func (l Locator) home() (string, error) {
	if l.HomeDir != "" {
		return l.HomeDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return home, nil
}

func (l Locator) configDir() (string, error) {
	if l.ConfigDir != "" {
		return l.ConfigDir, nil
	}
	if runtime.GOOS == "windows" {
		if v := os.Getenv("LOCALAPPDATA"); v != "" {
			return filepath.Join(v, "github-copilot"), nil
		}
	}
	home, err := l.home()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "github-copilot"), nil
}

// AppsPath 返回主文档 apps.json 的路径。
func (l Locator) AppsPath() (string, error) {
	dir, err := l.configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "apps.json"), nil
}

// HostsPath 返回次文档 hosts.json 的路径。
func (l Locator) HostsPath() (string, error) {
	dir, err := l.configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "hosts.json"), nil
}

// LocalAuthPath 返回 Device Flow 登录结果的落盘路径。
func (l Locator) LocalAuthPath() (string, error) {
	home, err := l.home()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ghcp2o", "auth.json"), nil
}
