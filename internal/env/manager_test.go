package env

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tomski747/pvm/internal/storage"
	"github.com/tomski747/pvm/pkg/models"
)

func newTestManager(t *testing.T) (*Manager, *storage.FileStorage, string) {
	t.Helper()
	root := t.TempDir()
	home := t.TempDir()
	store := storage.NewFileStorage(models.Config{RootDir: root})
	mgr := NewManager(store, nil)
	mgr.homeFn = func() (string, error) { return home, nil }
	return mgr, store, home
}

func TestConfigFileSelection(t *testing.T) {
	t.Parallel()

	mgr, _, home := newTestManager(t)

	bashFile, err := mgr.configFileForShell("bash")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".bash_profile"), bashFile)

	require.NoError(t, os.WriteFile(filepath.Join(home, ".bashrc"), nil, 0o644))
	bashFile, err = mgr.configFileForShell("bash")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".bashrc"), bashFile)

	zshFile, err := mgr.configFileForShell("zsh")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(zshFile, ".zshrc"))

	fishFile, err := mgr.configFileForShell("fish")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".config", "fish", "config.fish"), fishFile)

	_, err = mgr.configFileForShell("tcsh")
	require.Error(t, err)
}

func TestUpdateShellConfigCreatesAndReplacesBlock(t *testing.T) {
	t.Parallel()

	mgr, store, home := newTestManager(t)
	configPath := filepath.Join(home, ".zshrc")
	require.NoError(t, os.WriteFile(configPath, []byte("alias ll='ls -l'\n"), 0o600))

	written, err := mgr.UpdateShellConfig("zsh")
	require.NoError(t, err)
	require.Equal(t, configPath, written)

	_, err = mgr.UpdateShellConfig("zsh")
	require.NoError(t, err)

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	content := string(data)
	require.Equal(t, 1, strings.Count(content, blockStart))
	require.Contains(t, content, "alias ll='ls -l'")
	require.Contains(t, content, `export PATH="`+store.CurrentLinkPath()+`:$PATH"`)

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFishConfigUsesSet(t *testing.T) {
	t.Parallel()

	mgr, store, _ := newTestManager(t)
	path, err := mgr.UpdateShellConfig("fish")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `set -gx PATH "`+store.CurrentLinkPath()+`" $PATH`)
}

func TestDetectShell(t *testing.T) {
	t.Parallel()

	mgr, _, _ := newTestManager(t)
	mgr.envFn = func(key string) string {
		if key == "SHELL" {
			return "/bin/zsh"
		}
		return ""
	}
	shell, err := mgr.DetectShell()
	require.NoError(t, err)
	require.Equal(t, "zsh", shell)

	mgr.envFn = func(string) string { return "/usr/bin/nu" }
	_, err = mgr.DetectShell()
	require.Error(t, err)
}

func TestLinkCurrentSwapsTarget(t *testing.T) {
	t.Parallel()

	mgr, store, _ := newTestManager(t)
	first := store.InstallPath("3.9.0")
	second := store.InstallPath("3.10.1")
	require.NoError(t, os.MkdirAll(first, 0o755))
	require.NoError(t, os.MkdirAll(second, 0o755))

	require.NoError(t, mgr.LinkCurrent(first))
	require.NoError(t, mgr.LinkCurrent(second))

	target, err := os.Readlink(store.CurrentLinkPath())
	require.NoError(t, err)
	require.Equal(t, second, target)

	entries, err := os.ReadDir(store.RootDir())
	require.NoError(t, err)
	for _, e := range entries {
		require.False(t, strings.Contains(e.Name(), ".tmp-"), "leftover temp link %s", e.Name())
	}

	require.NoError(t, mgr.UnlinkCurrent())
	require.NoError(t, mgr.UnlinkCurrent())
	_, err = os.Lstat(store.CurrentLinkPath())
	require.True(t, os.IsNotExist(err))
}
