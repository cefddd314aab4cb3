package env

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/tomski747/pvm/internal/apperr"
	"github.com/tomski747/pvm/internal/logging"
	"github.com/tomski747/pvm/internal/storage"
)

const (
	blockStart = "# >>> pvm initialize >>>"
	blockEnd   = "# <<< pvm initialize <<<"
)

// EnvManager 暴露 current 链接与 shell 配置能力。
type EnvManager interface {
	LinkCurrent(installPath string) error
	UnlinkCurrent() error
	ConfigureEnvironment() (string, error)
	DetectShell() (string, error)
	UpdateShellConfig(shellType string) (string, error)
}

// Manager 实现 EnvManager。
type Manager struct {
	storage storage.LocalStorage
	log     *logging.Logger

	homeFn func() (string, error)
	envFn  func(string) string
}

// NewManager 构造环境配置服务。
func NewManager(store storage.LocalStorage, log *logging.Logger) *Manager {
	return &Manager{
		storage: store,
		log:     logging.OrNop(log),
		homeFn:  os.UserHomeDir,
		envFn:   os.Getenv,
	}
}

// LinkCurrent 原子地将 current 链接指向 installPath：先建临时链接再 rename 覆盖。
func (m *Manager) LinkCurrent(installPath string) error {
	if m.storage == nil {
		return errors.New("env: storage is required")
	}
	if installPath == "" {
		return errors.New("env: install path is required")
	}
	link := m.storage.CurrentLinkPath()
	if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
		return apperr.New(apperr.DiskError, "env", "", fmt.Errorf("ensure root dir: %w", err))
	}

	tmp := link + ".tmp-" + uuid.NewString()
	if err := os.Symlink(installPath, tmp); err != nil {
		return apperr.New(apperr.DiskError, "env", "", fmt.Errorf("create link: %w", err))
	}
	if err := os.Rename(tmp, link); err != nil {
		_ = os.Remove(tmp)
		return apperr.New(apperr.DiskError, "env", "", fmt.Errorf("replace current link: %w", err))
	}
	m.log.Debug("current link updated", "link", link, "target", installPath)
	return nil
}

// UnlinkCurrent 删除 current 链接，链接不存在时视为成功。
func (m *Manager) UnlinkCurrent() error {
	if m.storage == nil {
		return errors.New("env: storage is required")
	}
	if err := os.Remove(m.storage.CurrentLinkPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperr.New(apperr.DiskError, "env", "", fmt.Errorf("remove current link: %w", err))
	}
	return nil
}

// ConfigureEnvironment 自动检测 shell 并写入配置，返回被修改的文件。
func (m *Manager) ConfigureEnvironment() (string, error) {
	shell, err := m.DetectShell()
	if err != nil {
		return "", err
	}
	return m.UpdateShellConfig(shell)
}

// DetectShell 根据 SHELL 环境变量推断当前 shell。
func (m *Manager) DetectShell() (string, error) {
	shellPath := m.envFn("SHELL")
	if shellPath == "" {
		shellPath = "bash"
	}
	shell := filepath.Base(shellPath)
	switch shell {
	case "bash", "zsh", "fish":
		return shell, nil
	default:
		return "", fmt.Errorf("env: unsupported shell %q", shell)
	}
}

// UpdateShellConfig 对指定 shell 写入 PATH 配置块，重复执行只保留一个块。
func (m *Manager) UpdateShellConfig(shellType string) (string, error) {
	if m.storage == nil {
		return "", errors.New("env: storage is required")
	}
	configPath, err := m.configFileForShell(shellType)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return "", fmt.Errorf("env: ensure config dir: %w", err)
	}

	var existing []byte
	perm := os.FileMode(0o644)
	if data, err := os.ReadFile(configPath); err == nil {
		existing = data
		if info, statErr := os.Stat(configPath); statErr == nil {
			perm = info.Mode().Perm()
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("env: read config: %w", err)
	}

	block := buildConfigBlock(shellType, m.storage.CurrentLinkPath())
	merged := mergeConfig(string(existing), block)

	if err := storage.WriteFileAtomic(configPath, []byte(merged), perm); err != nil {
		return "", fmt.Errorf("env: write config: %w", err)
	}
	return configPath, nil
}

func (m *Manager) configFileForShell(shellType string) (string, error) {
	home, err := m.homeFn()
	if err != nil {
		return "", fmt.Errorf("env: home dir: %w", err)
	}

	switch shellType {
	case "bash":
		path := filepath.Join(home, ".bashrc")
		if fileExists(path) {
			return path, nil
		}
		return filepath.Join(home, ".bash_profile"), nil
	case "zsh":
		return filepath.Join(home, ".zshrc"), nil
	case "fish":
		return filepath.Join(home, ".config", "fish", "config.fish"), nil
	default:
		return "", fmt.Errorf("env: unsupported shell %q", shellType)
	}
}

func buildConfigBlock(shellType, binDir string) string {
	var export string
	if shellType == "fish" {
		export = fmt.Sprintf("set -gx PATH \"%s\" $PATH", binDir)
	} else {
		export = fmt.Sprintf("export PATH=\"%s:$PATH\"", binDir)
	}
	return strings.Join([]string{blockStart, export, blockEnd}, "\n")
}

func mergeConfig(existing, block string) string {
	cleaned := removeExistingBlock(existing)
	cleaned = strings.TrimRight(cleaned, "\n")
	if strings.TrimSpace(cleaned) == "" {
		return block + "\n"
	}
	return cleaned + "\n\n" + block + "\n"
}

func removeExistingBlock(content string) string {
	var builder strings.Builder
	skipping := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == blockStart {
			skipping = true
			continue
		}
		if trimmed == blockEnd {
			skipping = false
			continue
		}
		if skipping {
			continue
		}
		if line == "" && builder.Len() == 0 {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteByte('\n')
		}
		builder.WriteString(line)
	}
	return strings.Trim(builder.String(), "\n")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
