package version

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tomski747/pvm/internal/apperr"
	"github.com/tomski747/pvm/internal/env"
)

// brokenLinkEnv 模拟无法替换 current 链接的环境。
type brokenLinkEnv struct {
	*env.Manager
}

func (brokenLinkEnv) LinkCurrent(string) error {
	return errors.New("symlink: permission denied")
}

func TestUseThenCurrent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	installFixture(t, store, "3.9.0")
	installed := installFixture(t, store, "3.10.1")
	switcher := NewSwitcher(store, newTestEnv(store), nil)
	lister := NewLister(nil, store)

	v, err := switcher.UseVersion(MustParseSpec("3.10.1"))
	require.NoError(t, err)
	require.Equal(t, "3.10.1", v.Number)
	require.Equal(t, installed.InstallPath, linkTarget(t, store))

	sel, err := lister.Current(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, ScopeGlobal, sel.Scope)
	require.Equal(t, "3.10.1", sel.Version.Number)
}

func TestUseAbsentVersionKeepsSelection(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	installFixture(t, store, "3.9.0")
	switcher := NewSwitcher(store, newTestEnv(store), nil)

	_, err := switcher.UseVersion(MustParseSpec("3.9"))
	require.NoError(t, err)

	_, err = switcher.UseVersion(MustParseSpec("3.99.0"))
	require.Equal(t, apperr.VersionNotInstalled, apperr.KindOf(err))
	require.Equal(t, 6, apperr.ExitCode(err))

	current, err := store.Selection()
	require.NoError(t, err)
	require.Equal(t, "3.9.0", current)
}

func TestUseRejectsMissingBinary(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	v := installFixture(t, store, "3.9.0")
	require.NoError(t, os.Remove(filepath.Join(v.InstallPath, "pulumi")))

	_, err := NewSwitcher(store, newTestEnv(store), nil).UseVersion(MustParseSpec("3.9.0"))
	require.Equal(t, apperr.StateCorruption, apperr.KindOf(err))

	current, err := store.Selection()
	require.NoError(t, err)
	require.Empty(t, current)
}

func TestUseLocalPinsProjectAndOverridesGlobal(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	installFixture(t, store, "3.9.0")
	installFixture(t, store, "3.10.1")
	switcher := NewSwitcher(store, newTestEnv(store), nil)
	lister := NewLister(nil, store)

	_, err := switcher.UseVersion(MustParseSpec("latest"))
	require.NoError(t, err)

	project := t.TempDir()
	nested := filepath.Join(project, "infra", "stacks")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	v, path, err := switcher.UseLocal(project, MustParseSpec("3.9"))
	require.NoError(t, err)
	require.Equal(t, "3.9.0", v.Number)
	require.Equal(t, filepath.Join(project, ProjectFileName), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "3.9.0\n", string(data))

	sel, err := lister.Current(nested)
	require.NoError(t, err)
	require.Equal(t, ScopeProject, sel.Scope)
	require.Equal(t, "3.9.0", sel.Version.Number)
	require.Equal(t, path, sel.Source)

	// 全局选择不受项目文件影响。
	global, err := store.Selection()
	require.NoError(t, err)
	require.Equal(t, "3.10.1", global)
}

func TestProjectPinForUninstalledVersion(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectFileName), []byte("# pinned\nv3.12.0\n"), 0o644))

	_, err := NewLister(nil, store).Current(dir)
	require.Equal(t, apperr.VersionNotInstalled, apperr.KindOf(err))

	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectFileName), []byte("garbage\n"), 0o644))
	_, err = NewLister(nil, store).Current(dir)
	require.Equal(t, apperr.InvalidSpec, apperr.KindOf(err))
}

func TestCurrentWithNothingSelected(t *testing.T) {
	t.Parallel()

	sel, err := NewLister(nil, newTestStore(t)).Current(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, ScopeNone, sel.Scope)
	require.Nil(t, sel.Version)
}

func TestUseLinkFailureKeepsSelection(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	old := installFixture(t, store, "3.9.0")
	installFixture(t, store, "3.10.1")
	_, err := NewSwitcher(store, newTestEnv(store), nil).UseVersion(MustParseSpec("3.9.0"))
	require.NoError(t, err)

	broken := NewSwitcher(store, brokenLinkEnv{Manager: newTestEnv(store)}, nil)
	_, err = broken.UseVersion(MustParseSpec("3.10.1"))
	require.Error(t, err)

	current, err := store.Selection()
	require.NoError(t, err)
	require.Equal(t, "3.9.0", current)
	require.Equal(t, old.InstallPath, linkTarget(t, store))

	drift, err := store.Verify()
	require.NoError(t, err)
	require.Empty(t, drift)
}
