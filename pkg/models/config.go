package models

import "time"

// Config 保存 pvm 的全局配置，与用户主目录下的资源保持一致。
type Config struct {
	RootDir       string        `yaml:"root_dir"`       // pvm 根目录，默认 ~/.pvm
	VersionsDir   string        `yaml:"versions_dir"`   // 各版本安装目录，默认 ~/.pvm/versions
	Mirror        string        `yaml:"mirror"`         // 下载源：github 或 pulumi
	CacheTTL      time.Duration `yaml:"cache_ttl"`      // 远程版本列表缓存时间
	HTTPTimeout   time.Duration `yaml:"http_timeout"`   // 单次 HTTP 请求超时
	RetryAttempts int           `yaml:"retry_attempts"` // 网络请求最大尝试次数
	Concurrency   int           `yaml:"concurrency"`    // 批量安装并发上限
	GitHubToken   string        `yaml:"-"`              // 仅从环境变量读取
	LogLevel      string        `yaml:"log_level"`
}
