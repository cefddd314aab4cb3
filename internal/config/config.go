// Package config 负责组装 pvm 的运行配置：默认值、config.yaml 与环境变量。
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tomski747/pvm/pkg/models"
)

const (
	DirName        = ".pvm"
	VersionsDir    = "versions"
	FileName       = "config.yaml"
	DefaultMirror  = "github"
	DefaultTTL     = 24 * time.Hour
	DefaultTimeout = 60 * time.Second
	DefaultRetries = 3
	DefaultWorkers = 3
)

// Loader 读取配置，homeFn 与 envFn 便于测试替换。
type Loader struct {
	homeFn func() (string, error)
	envFn  func(string) string
}

// NewLoader 创建使用真实环境的 Loader。
func NewLoader() *Loader {
	return &Loader{homeFn: os.UserHomeDir, envFn: os.Getenv}
}

// Load 依次应用默认值、配置文件与环境变量。path 为空时读取 <root>/config.yaml。
func (l *Loader) Load(path string) (models.Config, error) {
	cfg, err := l.defaults()
	if err != nil {
		return models.Config{}, err
	}

	// PVM_HOME 先用于定位默认配置文件，applyEnv 中再次应用以覆盖文件里的 root_dir。
	l.applyHome(&cfg)

	explicit := path != ""
	if !explicit {
		path = filepath.Join(cfg.RootDir, FileName)
	}
	if err := mergeFile(&cfg, path); err != nil {
		if !errors.Is(err, os.ErrNotExist) || explicit {
			return models.Config{}, err
		}
	}

	l.applyEnv(&cfg)
	return cfg, validate(cfg)
}

func (l *Loader) defaults() (models.Config, error) {
	home, err := l.homeFn()
	if err != nil || home == "" {
		home = l.envFn("HOME")
	}
	if home == "" {
		return models.Config{}, errors.New("config: cannot determine home directory")
	}
	root := filepath.Join(home, DirName)
	return models.Config{
		RootDir:       root,
		VersionsDir:   filepath.Join(root, VersionsDir),
		Mirror:        DefaultMirror,
		CacheTTL:      DefaultTTL,
		HTTPTimeout:   DefaultTimeout,
		RetryAttempts: DefaultRetries,
		Concurrency:   DefaultWorkers,
		LogLevel:      "warn",
	}, nil
}

func mergeFile(cfg *models.Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var file models.Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	if file.RootDir != "" {
		cfg.RootDir = file.RootDir
		cfg.VersionsDir = filepath.Join(file.RootDir, VersionsDir)
	}
	if file.VersionsDir != "" {
		cfg.VersionsDir = file.VersionsDir
	}
	if file.Mirror != "" {
		cfg.Mirror = file.Mirror
	}
	if file.CacheTTL != 0 {
		cfg.CacheTTL = file.CacheTTL
	}
	if file.HTTPTimeout > 0 {
		cfg.HTTPTimeout = file.HTTPTimeout
	}
	if file.RetryAttempts > 0 {
		cfg.RetryAttempts = file.RetryAttempts
	}
	if file.Concurrency > 0 {
		cfg.Concurrency = file.Concurrency
	}
	if file.LogLevel != "" {
		cfg.LogLevel = file.LogLevel
	}
	return nil
}

func (l *Loader) applyHome(cfg *models.Config) {
	if home := strings.TrimSpace(l.envFn("PVM_HOME")); home != "" {
		cfg.RootDir = home
		cfg.VersionsDir = filepath.Join(home, VersionsDir)
	}
}

func (l *Loader) applyEnv(cfg *models.Config) {
	l.applyHome(cfg)
	if v := strings.TrimSpace(l.envFn("PVM_MIRROR")); v != "" {
		cfg.Mirror = v
	}
	if v := strings.TrimSpace(l.envFn("PVM_LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(l.envFn("GITHUB_TOKEN")); v != "" {
		cfg.GitHubToken = v
	}
}

func validate(cfg models.Config) error {
	switch cfg.Mirror {
	case "github", "pulumi":
	default:
		return fmt.Errorf("config: unknown mirror %q", cfg.Mirror)
	}
	if cfg.CacheTTL < 0 {
		return fmt.Errorf("config: cache_ttl must not be negative")
	}
	return nil
}
