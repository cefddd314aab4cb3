package version

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tomski747/pvm/internal/apperr"
	"github.com/tomski747/pvm/internal/env"
	"github.com/tomski747/pvm/internal/logging"
	"github.com/tomski747/pvm/internal/storage"
)

// Uninstaller 删除本地已安装的 Pulumi 版本。
type Uninstaller struct {
	storage storage.LocalStorage
	env     env.EnvManager
	log     *logging.Logger
}

// NewUninstaller 创建卸载器。
func NewUninstaller(store storage.LocalStorage, envManager env.EnvManager, log *logging.Logger) *Uninstaller {
	return &Uninstaller{storage: store, env: envManager, log: logging.OrNop(log)}
}

// Uninstall 删除指定的精确版本；若它是当前版本，则清除选择与 current 链接，返回 true。
func (u *Uninstaller) Uninstall(version string) (bool, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		return false, apperr.Errorf(apperr.InvalidSpec, "uninstaller", "version is required")
	}
	if u.storage == nil {
		return false, errors.New("uninstaller: storage is required")
	}
	spec, err := ParseSpec(version)
	if err != nil {
		return false, err
	}
	if spec.Kind != SpecExact {
		return false, apperr.Errorf(apperr.InvalidSpec, "uninstaller", "uninstall needs an exact version, got %q", version)
	}

	target, err := u.storage.Get(spec.Number())
	if err != nil {
		return false, err
	}
	if target == nil {
		return false, apperr.Errorf(apperr.VersionNotInstalled, "uninstaller", "version %s is not installed", spec.Number())
	}

	cleared, err := u.storage.Remove(target.Number)
	if err != nil {
		return false, err
	}
	if cleared && u.env != nil {
		if err := u.env.UnlinkCurrent(); err != nil {
			return cleared, err
		}
	}

	path := target.InstallPath
	if path == "" {
		path = u.storage.InstallPath(target.Number)
	}
	if err := os.RemoveAll(path); err != nil {
		return cleared, apperr.New(apperr.DiskError, "uninstaller", target.Number, fmt.Errorf("remove dir: %w", err))
	}
	u.log.Info("uninstalled", "version", target.Number, "cleared_selection", cleared)
	return cleared, nil
}
