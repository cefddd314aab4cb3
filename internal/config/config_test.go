package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testLoader(home string, env map[string]string) *Loader {
	return &Loader{
		homeFn: func() (string, error) { return home, nil },
		envFn:  func(k string) string { return env[k] },
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	cfg, err := testLoader(home, nil).Load("")
	require.NoError(t, err)

	require.Equal(t, filepath.Join(home, ".pvm"), cfg.RootDir)
	require.Equal(t, filepath.Join(home, ".pvm", "versions"), cfg.VersionsDir)
	require.Equal(t, "github", cfg.Mirror)
	require.Equal(t, 24*time.Hour, cfg.CacheTTL)
	require.Equal(t, 3, cfg.Concurrency)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	root := filepath.Join(home, "custom")
	require.NoError(t, os.MkdirAll(root, 0o755))
	yamlData := "mirror: pulumi\ncache_ttl: 2h\nconcurrency: 5\nlog_level: info\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte(yamlData), 0o644))

	cfg, err := testLoader(home, map[string]string{
		"PVM_HOME":      root,
		"PVM_LOG_LEVEL": "debug",
		"GITHUB_TOKEN":  "ghp_x",
	}).Load("")
	require.NoError(t, err)

	require.Equal(t, root, cfg.RootDir)
	require.Equal(t, "pulumi", cfg.Mirror)
	require.Equal(t, 2*time.Hour, cfg.CacheTTL)
	require.Equal(t, 5, cfg.Concurrency)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "ghp_x", cfg.GitHubToken)
}

func TestLoadEnvHomeOverridesFileRoot(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	envRoot := filepath.Join(home, "env-root")
	cfgPath := filepath.Join(home, "pvm.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("root_dir: "+filepath.Join(home, "file-root")+"\n"), 0o644))

	cfg, err := testLoader(home, map[string]string{"PVM_HOME": envRoot}).Load(cfgPath)
	require.NoError(t, err)
	require.Equal(t, envRoot, cfg.RootDir)
	require.Equal(t, filepath.Join(envRoot, "versions"), cfg.VersionsDir)

	cfg, err = testLoader(home, nil).Load(cfgPath)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "file-root"), cfg.RootDir)
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	_, err := testLoader(home, nil).Load(filepath.Join(home, "nope.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsUnknownMirror(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	_, err := testLoader(home, map[string]string{"PVM_MIRROR": "ftp"}).Load("")
	require.ErrorContains(t, err, "unknown mirror")
}
