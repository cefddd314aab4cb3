package platform

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestChecker(root, goos, goarch string) *Checker {
	c := NewChecker(root)
	c.goos = func() string { return goos }
	c.goarch = func() string { return goarch }
	return c
}

func TestTargetMapsArch(t *testing.T) {
	t.Parallel()

	target, err := newTestChecker(t.TempDir(), "linux", "amd64").Target()
	require.NoError(t, err)
	require.Equal(t, Target{OS: "linux", Arch: "x64"}, target)
	require.Equal(t, "pulumi-v3.10.1-linux-x64.tar.gz", target.AssetName("3.10.1"))
}

func TestWindowsUsesZip(t *testing.T) {
	t.Parallel()

	target, err := newTestChecker(t.TempDir(), "windows", "arm64").Target()
	require.NoError(t, err)
	require.Equal(t, "pulumi-v3.10.1-windows-arm64.zip", target.AssetName("3.10.1"))
	require.Equal(t, "pulumi.exe", BinaryName(target.OS))
	require.Equal(t, "pulumi", BinaryName("darwin"))
}

func TestValidateRejectsUnsupportedPlatform(t *testing.T) {
	t.Parallel()

	require.Error(t, newTestChecker(t.TempDir(), "plan9", "amd64").Validate())
	require.Error(t, newTestChecker(t.TempDir(), "linux", "386").Validate())
}

func TestValidateCreatesRoot(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "nested", ".pvm")
	require.NoError(t, newTestChecker(root, "darwin", "arm64").Validate())
	require.DirExists(t, root)
}
