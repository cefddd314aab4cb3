package version

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tomski747/pvm/internal/apperr"
	"github.com/tomski747/pvm/internal/env"
	"github.com/tomski747/pvm/internal/logging"
	"github.com/tomski747/pvm/internal/platform"
	"github.com/tomski747/pvm/internal/storage"
	"github.com/tomski747/pvm/pkg/models"
)

// Switcher 负责切换当前使用的 Pulumi 版本。
type Switcher struct {
	storage storage.LocalStorage
	env     env.EnvManager
	log     *logging.Logger
}

// NewSwitcher 创建 Switcher。
func NewSwitcher(store storage.LocalStorage, envManager env.EnvManager, log *logging.Logger) *Switcher {
	return &Switcher{storage: store, env: envManager, log: logging.OrNop(log)}
}

// UseVersion 将满足说明符的最高已安装版本设为全局当前版本。
// 版本未安装时返回 VersionNotInstalled，当前选择保持不变。
func (s *Switcher) UseVersion(spec Spec) (*models.InstalledVersion, error) {
	if s.storage == nil || s.env == nil {
		return nil, errors.New("switcher: missing dependencies")
	}
	target, err := resolveInstalled(s.storage, spec, apperr.VersionNotInstalled)
	if err != nil {
		return nil, err
	}
	if err := ensureExecutable(*target); err != nil {
		return nil, err
	}

	previous, err := s.storage.Selection()
	if err != nil {
		return nil, err
	}

	// 先切换链接再提交选择，任何一步失败都不留下半切换状态。
	if err := s.env.LinkCurrent(target.InstallPath); err != nil {
		return nil, fmt.Errorf("switcher: link current: %w", err)
	}
	if err := s.storage.Select(target.Number); err != nil {
		s.restoreLink(previous)
		return nil, err
	}
	s.log.Info("switched version", "version", target.Number)

	target.IsCurrent = true
	return target, nil
}

// UseLocal 在 dir 中写入 .pulumi-version，固定为满足说明符的已安装版本。
func (s *Switcher) UseLocal(dir string, spec Spec) (*models.InstalledVersion, string, error) {
	if s.storage == nil {
		return nil, "", errors.New("switcher: storage is required")
	}
	target, err := resolveInstalled(s.storage, spec, apperr.VersionNotInstalled)
	if err != nil {
		return nil, "", err
	}
	path, err := WriteProjectPin(dir, target.Number)
	if err != nil {
		return nil, "", err
	}
	s.log.Info("pinned project version", "version", target.Number, "path", path)
	return target, path, nil
}

func (s *Switcher) restoreLink(previous string) {
	var err error
	if previous == "" {
		err = s.env.UnlinkCurrent()
	} else {
		err = s.env.LinkCurrent(s.storage.InstallPath(previous))
	}
	if err != nil {
		s.log.Warn("failed to restore current link", "version", previous, "error", err)
	}
}

func ensureExecutable(v models.InstalledVersion) error {
	if v.InstallPath == "" {
		return apperr.Errorf(apperr.StateCorruption, "switcher", "version %s missing install path", v.Number)
	}
	bin := filepath.Join(v.InstallPath, platform.BinaryName(v.OS))
	info, err := os.Stat(bin)
	if err != nil {
		return apperr.New(apperr.StateCorruption, "switcher", v.Number, fmt.Errorf("pulumi binary missing: %w", err))
	}
	if info.IsDir() {
		return apperr.Errorf(apperr.StateCorruption, "switcher", "pulumi binary path is directory: %s", bin)
	}
	return nil
}
