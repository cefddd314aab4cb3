package version

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/tomski747/pvm/internal/apperr"
	"github.com/tomski747/pvm/internal/remote"
	"github.com/tomski747/pvm/internal/storage"
	"github.com/tomski747/pvm/pkg/models"
)

// Scope 标识当前版本来自哪一层配置。
type Scope string

const (
	ScopeNone    Scope = ""
	ScopeProject Scope = "project"
	ScopeGlobal  Scope = "global"
)

// Selection 是 Current 的结果；Scope 为 ScopeNone 时表示尚未选择任何版本。
type Selection struct {
	Version *models.InstalledVersion
	Scope   Scope
	Source  string
}

// RemoteVersion 是带有本地安装状态的远程版本。
type RemoteVersion struct {
	Entry     models.RegistryEntry
	Installed bool
	Current   bool
}

// Lister 聚合远程与本地版本信息。
type Lister struct {
	remote  remote.RemoteClient
	storage storage.LocalStorage
}

// NewLister 创建版本列表服务。
func NewLister(remoteClient remote.RemoteClient, store storage.LocalStorage) *Lister {
	return &Lister{remote: remoteClient, storage: store}
}

// RemoteVersions 返回远程版本，降序，并标注已安装与当前版本。
func (l *Lister) RemoteVersions(ctx context.Context, refresh bool) ([]RemoteVersion, error) {
	if l.remote == nil {
		return nil, errors.New("lister: remote client is required")
	}
	entries, err := l.remote.FetchVersions(ctx, refresh)
	if err != nil {
		return nil, err
	}

	installed := map[string]bool{}
	current := ""
	if l.storage != nil {
		local, err := l.storage.List()
		if err != nil {
			return nil, err
		}
		for _, v := range local {
			installed[v.Number] = true
			if v.IsCurrent {
				current = v.Number
			}
		}
	}

	out := make([]RemoteVersion, len(entries))
	for i, e := range entries {
		out[i] = RemoteVersion{Entry: e, Installed: installed[e.Number], Current: e.Number == current}
	}
	return out, nil
}

// LocalVersions 返回本地安装版本，降序，标记全局当前版本。
func (l *Lister) LocalVersions() ([]models.InstalledVersion, error) {
	if l.storage == nil {
		return nil, errors.New("lister: storage is required")
	}
	versions, err := l.storage.List()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(versions, func(i, j int) bool {
		return Compare(versions[i].Number, versions[j].Number) > 0
	})
	return versions, nil
}

// Current 返回生效的版本：先查找 dir 及其上级目录中的 .pulumi-version，再看全局选择。
func (l *Lister) Current(dir string) (Selection, error) {
	if l.storage == nil {
		return Selection{}, errors.New("lister: storage is required")
	}

	pin, err := FindProjectPin(dir)
	if err != nil {
		return Selection{}, err
	}
	if pin != nil {
		v, err := resolveInstalled(l.storage, pin.Spec, apperr.VersionNotInstalled)
		if err != nil {
			return Selection{}, fmt.Errorf("lister: %s: %w", pin.Path, err)
		}
		return Selection{Version: v, Scope: ScopeProject, Source: pin.Path}, nil
	}

	number, err := l.storage.Selection()
	if err != nil {
		return Selection{}, err
	}
	if number == "" {
		return Selection{Scope: ScopeNone}, nil
	}
	v, err := l.storage.Get(number)
	if err != nil {
		return Selection{}, err
	}
	if v == nil {
		return Selection{}, apperr.Errorf(apperr.StateCorruption, "lister", "selected version %s is not recorded", number)
	}
	return Selection{Version: v, Scope: ScopeGlobal}, nil
}

// FormatRemoteVersion 格式化远程版本输出：* 表示已安装，→ 表示当前版本。
func FormatRemoteVersion(v RemoteVersion) string {
	marker := " "
	switch {
	case v.Current:
		marker = "→"
	case v.Installed:
		marker = "*"
	}
	line := fmt.Sprintf("%s %-16s", marker, v.Entry.Number)
	if !v.Entry.PublishedAt.IsZero() {
		line += " released " + humanize.Time(v.Entry.PublishedAt)
	}
	if v.Entry.Prerelease {
		line += " (pre-release)"
	}
	return line
}

// FormatLocalVersion 格式化本地版本输出，包含安装路径并标记当前版本。
func FormatLocalVersion(v models.InstalledVersion) string {
	marker := " "
	if v.IsCurrent {
		marker = "*"
	}
	pathInfo := v.InstallPath
	if pathInfo == "" {
		pathInfo = "(unknown path)"
	}
	line := fmt.Sprintf("%s %-16s %s", marker, v.Number, pathInfo)
	if !v.InstalledAt.IsZero() {
		line += " (installed " + humanize.Time(v.InstalledAt) + ")"
	}
	return line
}
