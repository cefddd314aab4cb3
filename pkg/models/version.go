package models

import "time"

// InstalledVersion 描述本地已完整解压的 Pulumi 版本。
type InstalledVersion struct {
	Number      string    `json:"version"`      // 纯版本号，例如 3.10.1
	InstallPath string    `json:"path"`         // 本地安装路径
	Digest      string    `json:"digest"`       // 安装时校验过的摘要，形如 sha256:<hex>
	Source      string    `json:"source"`       // 下载来源 URL
	OS          string    `json:"os"`           // 操作系统标识
	Arch        string    `json:"arch"`         // 架构标识
	InstalledAt time.Time `json:"installed_at"` // 安装时间
	IsCurrent   bool      `json:"-"`            // 是否为当前激活版本，仅用于展示
}

// RegistryEntry 描述远程发布的版本，只在单次命令中有效（或带 TTL 缓存）。
type RegistryEntry struct {
	Number       string    `json:"version"`
	DownloadURL  string    `json:"url"`
	FileName     string    `json:"file"`
	Digest       string    `json:"digest,omitempty"`
	ChecksumsURL string    `json:"checksums_url,omitempty"`
	Prerelease   bool      `json:"prerelease,omitempty"`
	PublishedAt  time.Time `json:"published_at"`
	OS           string    `json:"os"`
	Arch         string    `json:"arch"`
}
