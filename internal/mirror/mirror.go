package mirror

import (
	"fmt"
	"strings"
)

// Config 描述远程 API 与下载地址基础配置。
type Config struct {
	Name         string
	APIBase      string
	DownloadBase string // 为空时直接使用发布记录里的下载地址
}

var (
	// GitHub 表示默认官方源。
	GitHub = Config{
		Name:    "github",
		APIBase: "https://api.github.com/repos/pulumi/pulumi/releases",
	}
	// Pulumi 从 get.pulumi.com 下载发布包，版本列表仍来自 GitHub。
	Pulumi = Config{
		Name:         "pulumi",
		APIBase:      "https://api.github.com/repos/pulumi/pulumi/releases",
		DownloadBase: "https://get.pulumi.com/releases/sdk/",
	}
)

// Select 根据名称返回镜像配置。
func Select(name string) (Config, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "github":
		return GitHub, nil
	case "pulumi":
		return Pulumi, nil
	default:
		return Config{}, fmt.Errorf("mirror: unknown mirror %q", name)
	}
}

// DownloadURL 返回发布包的实际下载地址。
func (c Config) DownloadURL(fileName, published string) string {
	if c.DownloadBase == "" {
		return published
	}
	return strings.TrimSuffix(c.DownloadBase, "/") + "/" + fileName
}
