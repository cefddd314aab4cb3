package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

var supportedOS = map[string]struct{}{
	"linux":   {},
	"darwin":  {},
	"windows": {},
}

// Pulumi 发布包使用 x64 而非 amd64。
var archNames = map[string]string{
	"amd64": "x64",
	"arm64": "arm64",
}

// Target 是 Pulumi 发布包命名使用的平台标识。
type Target struct {
	OS   string
	Arch string
}

// AssetName 返回指定版本在该平台上的发布包文件名。
func (t Target) AssetName(version string) string {
	return fmt.Sprintf("pulumi-v%s-%s-%s%s", version, t.OS, t.Arch, t.ArchiveExt())
}

// ArchiveExt 返回压缩包扩展名，windows 使用 zip。
func (t Target) ArchiveExt() string {
	if t.OS == "windows" {
		return ".zip"
	}
	return ".tar.gz"
}

// BinaryName 返回该平台上 pulumi 可执行文件的文件名。
func BinaryName(goos string) string {
	if goos == "windows" {
		return "pulumi.exe"
	}
	return "pulumi"
}

// Checker 校验当前系统是否满足 pvm 的运行要求。
type Checker struct {
	root   string
	goos   func() string
	goarch func() string
}

// NewChecker 创建平台检测器。
func NewChecker(root string) *Checker {
	return &Checker{
		root:   root,
		goos:   func() string { return runtime.GOOS },
		goarch: func() string { return runtime.GOARCH },
	}
}

// Target 返回当前平台对应的发布包标识。
func (c *Checker) Target() (Target, error) {
	goos := c.goos()
	if _, ok := supportedOS[goos]; !ok {
		return Target{}, fmt.Errorf("platform: unsupported operating system %s", goos)
	}
	arch, ok := archNames[c.goarch()]
	if !ok {
		return Target{}, fmt.Errorf("platform: unsupported architecture %s", c.goarch())
	}
	return Target{OS: goos, Arch: arch}, nil
}

// Validate 校验当前平台与安装目录权限。
func (c *Checker) Validate() error {
	if _, err := c.Target(); err != nil {
		return err
	}
	root := c.resolveRoot()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("platform: cannot access install directory %s: %w", root, err)
	}
	return nil
}

func (c *Checker) resolveRoot() string {
	if c.root != "" {
		return c.root
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".pvm")
	}
	return filepath.Join(os.TempDir(), "pvm")
}
