package version

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tomski747/pvm/internal/env"
	"github.com/tomski747/pvm/internal/platform"
	"github.com/tomski747/pvm/internal/remote"
	"github.com/tomski747/pvm/internal/storage"
	"github.com/tomski747/pvm/pkg/models"
)

var testTarget = platform.Target{OS: "linux", Arch: "x64"}

// buildTarGz 生成带有 pulumi/ 顶层目录的发行包。
func buildTarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "pulumi/", Typeflag: tar.TypeDir, Mode: 0o755}))
	for _, name := range sortedKeys(files) {
		body := files[name]
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Typeflag: tar.TypeReg,
			Mode:     0o755,
			Size:     int64(len(body)),
		}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range sortedKeys(files) {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func pulumiArchive(t *testing.T, version string) []byte {
	t.Helper()
	return buildTarGz(t, map[string]string{
		"pulumi/pulumi":                 "#!/bin/sh\necho v" + version + "\n",
		"pulumi/pulumi-language-nodejs": "node",
	})
}

func digestOf(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

func testEntry(version string, payload []byte) models.RegistryEntry {
	name := testTarget.AssetName(version)
	return models.RegistryEntry{
		Number:      version,
		DownloadURL: "https://example.test/" + name,
		FileName:    name,
		Digest:      digestOf(payload),
		OS:          testTarget.OS,
		Arch:        testTarget.Arch,
	}
}

func newTestStore(t *testing.T) *storage.FileStorage {
	t.Helper()
	return storage.NewFileStorage(models.Config{RootDir: t.TempDir()})
}

// fakeDownloader 按 URL 返回预置内容，不做摘要校验。
type fakeDownloader struct {
	mu       sync.Mutex
	payloads map[string][]byte
	err      error
	calls    atomic.Int32
}

func newFakeDownloader() *fakeDownloader {
	return &fakeDownloader{payloads: map[string][]byte{}}
}

func (f *fakeDownloader) add(entry models.RegistryEntry, payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads[entry.DownloadURL] = payload
}

func (f *fakeDownloader) Download(_ context.Context, url, _, destPath string) error {
	f.calls.Add(1)
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	payload, ok := f.payloads[url]
	f.mu.Unlock()
	if !ok {
		return &remote.StatusError{URL: url, Code: 404}
	}
	return os.WriteFile(destPath, payload, 0o644)
}

// installFixture 直接安装一个版本，跳过网络。
func installFixture(t *testing.T, store storage.LocalStorage, version string) models.InstalledVersion {
	t.Helper()
	payload := pulumiArchive(t, version)
	entry := testEntry(version, payload)
	dl := newFakeDownloader()
	dl.add(entry, payload)
	res, err := NewInstaller(store, dl, nil, nil).Install(context.Background(), entry)
	require.NoError(t, err)
	return res.Version
}

func newTestEnv(store storage.LocalStorage) *env.Manager {
	return env.NewManager(store, nil)
}

func fastRetry() remote.RetryPolicy {
	return remote.RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func countEntries(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	return len(entries)
}

func linkTarget(t *testing.T, store storage.LocalStorage) string {
	t.Helper()
	target, err := os.Readlink(store.CurrentLinkPath())
	require.NoError(t, err)
	return filepath.Clean(target)
}
