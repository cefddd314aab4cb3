package version

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomski747/pvm/internal/apperr"
	"github.com/tomski747/pvm/internal/logging"
	"github.com/tomski747/pvm/internal/remote"
	"github.com/tomski747/pvm/internal/storage"
	"github.com/tomski747/pvm/pkg/models"
)

// Registry 将版本说明符解析为具体版本，来源可以是本地安装或远程发布列表。
type Registry struct {
	storage storage.LocalStorage
	remote  remote.RemoteClient
	log     *logging.Logger
}

// NewRegistry 创建 Registry。remoteClient 为 nil 时只能做本地解析。
func NewRegistry(store storage.LocalStorage, remoteClient remote.RemoteClient, log *logging.Logger) *Registry {
	return &Registry{storage: store, remote: remoteClient, log: logging.OrNop(log)}
}

// ResolveLocal 在已安装版本中查找满足说明符的最高版本。
func (r *Registry) ResolveLocal(spec Spec) (*models.InstalledVersion, error) {
	if r.storage == nil {
		return nil, errors.New("registry: storage is required")
	}
	return resolveInstalled(r.storage, spec, apperr.NotFound)
}

// ResolveRemote 在远程发布列表中查找满足说明符的最高版本。
func (r *Registry) ResolveRemote(ctx context.Context, spec Spec, refresh bool) (*models.RegistryEntry, error) {
	if r.remote == nil {
		return nil, errors.New("registry: remote client is required")
	}
	entries, err := r.remote.FetchVersions(ctx, refresh)
	if err != nil {
		return nil, err
	}

	numbers := make([]string, len(entries))
	flagged := make(map[string]bool)
	for i, e := range entries {
		numbers[i] = e.Number
		if e.Prerelease {
			flagged[e.Number] = true
		}
	}
	// 发布页标记的预发布版本即使版本号不带后缀也不参与 latest 与前缀解析。
	best, ok := spec.SelectFunc(numbers, func(n string) bool {
		return flagged[n] || isPrereleaseNumber(n)
	})
	if !ok {
		return nil, apperr.New(apperr.NotFound, "registry", spec.String(),
			fmt.Errorf("no published version matches %s%s", spec, suggest(spec.Raw, numbers)))
	}
	for i := range entries {
		if entries[i].Number == best {
			r.log.Debug("resolved remote version", "spec", spec.Raw, "version", best)
			return &entries[i], nil
		}
	}
	return nil, apperr.Errorf(apperr.NotFound, "registry", "version %s vanished from listing", best)
}

// resolveInstalled 供 Registry 与 Switcher 共用；missing 决定找不到时的错误类别。
func resolveInstalled(store storage.LocalStorage, spec Spec, missing apperr.Kind) (*models.InstalledVersion, error) {
	versions, err := store.List()
	if err != nil {
		return nil, err
	}
	numbers := make([]string, len(versions))
	for i, v := range versions {
		numbers[i] = v.Number
	}
	best, ok := spec.Select(numbers)
	if !ok {
		return nil, apperr.New(missing, "registry", spec.String(),
			fmt.Errorf("no installed version matches %s%s", spec, suggest(spec.Raw, numbers)))
	}
	for i := range versions {
		if versions[i].Number == best {
			return &versions[i], nil
		}
	}
	return nil, apperr.Errorf(missing, "registry", "version %s vanished from store", best)
}
