package version

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/tomski747/pvm/internal/apperr"
	"github.com/tomski747/pvm/internal/logging"
	"github.com/tomski747/pvm/internal/platform"
	"github.com/tomski747/pvm/internal/storage"
	"github.com/tomski747/pvm/pkg/models"
)

// ArtifactDownloader 用于获取远程 Pulumi 发行版的压缩包。
type ArtifactDownloader interface {
	Download(ctx context.Context, url, digest, destPath string) error
}

// DigestResolver 在发布记录缺少摘要时补全摘要。
type DigestResolver interface {
	ResolveDigest(ctx context.Context, entry models.RegistryEntry) (string, error)
}

// InstallResult 描述一次安装的结果；Skipped 表示版本已存在，未发生下载。
type InstallResult struct {
	Version models.InstalledVersion
	Skipped bool
}

// Installer 负责将下载好的 Pulumi 版本安装到本地。
type Installer struct {
	storage    storage.LocalStorage
	downloader ArtifactDownloader
	digests    DigestResolver
	log        *logging.Logger
	now        func() time.Time
	newID      func() string
}

// NewInstaller 创建 Installer。digests 可以为 nil，此时要求条目自带摘要。
func NewInstaller(store storage.LocalStorage, downloader ArtifactDownloader, digests DigestResolver, log *logging.Logger) *Installer {
	return &Installer{
		storage:    store,
		downloader: downloader,
		digests:    digests,
		log:        logging.OrNop(log),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Install 下载、校验、解压并登记一个版本。任何一步失败都不会留下登记记录。
func (i *Installer) Install(ctx context.Context, entry models.RegistryEntry) (InstallResult, error) {
	if i.storage == nil || i.downloader == nil {
		return InstallResult{}, errors.New("installer: missing dependencies")
	}
	log := i.log.With("op", i.newID(), "version", entry.Number)

	existing, err := i.storage.Get(entry.Number)
	if err != nil {
		return InstallResult{}, err
	}
	if existing != nil {
		if dirExists(existing.InstallPath) {
			log.Debug("version already installed", "path", existing.InstallPath)
			return InstallResult{Version: *existing, Skipped: true}, nil
		}
		log.Warn("recorded version has no directory, reinstalling", "path", existing.InstallPath)
	}

	digest, err := i.resolveDigest(ctx, entry)
	if err != nil {
		return InstallResult{}, err
	}

	downloads := filepath.Join(i.storage.RootDir(), "downloads")
	if err := os.MkdirAll(downloads, 0o755); err != nil {
		return InstallResult{}, diskErr(entry.Number, "prepare downloads dir", err)
	}
	staging, err := os.CreateTemp(downloads, entry.FileName+"-*")
	if err != nil {
		return InstallResult{}, diskErr(entry.Number, "create staging file", err)
	}
	stagingPath := staging.Name()
	staging.Close()
	defer os.Remove(stagingPath)

	log.Info("downloading", "url", entry.DownloadURL)
	if err := i.downloader.Download(ctx, entry.DownloadURL, digest, stagingPath); err != nil {
		return InstallResult{}, err
	}

	installPath := i.storage.InstallPath(entry.Number)
	if err := os.MkdirAll(filepath.Dir(installPath), 0o755); err != nil {
		return InstallResult{}, diskErr(entry.Number, "prepare versions dir", err)
	}
	unpackDir, err := os.MkdirTemp(filepath.Dir(installPath), ".staging-*")
	if err != nil {
		return InstallResult{}, diskErr(entry.Number, "create unpack dir", err)
	}
	defer os.RemoveAll(unpackDir)

	if err := extractArchive(stagingPath, entry.FileName, unpackDir); err != nil {
		return InstallResult{}, apperr.New(apperr.DiskError, "installer", entry.Number, err)
	}
	binary := filepath.Join(unpackDir, platform.BinaryName(entry.OS))
	if _, err := os.Stat(binary); err != nil {
		return InstallResult{}, apperr.Errorf(apperr.DiskError, "installer", "archive %s has no %s binary", entry.FileName, platform.BinaryName(entry.OS))
	}

	if err := os.RemoveAll(installPath); err != nil {
		return InstallResult{}, diskErr(entry.Number, "cleanup previous install", err)
	}
	if err := os.Rename(unpackDir, installPath); err != nil {
		return InstallResult{}, diskErr(entry.Number, "move install directory", err)
	}

	installed := models.InstalledVersion{
		Number:      entry.Number,
		InstallPath: installPath,
		Digest:      digest,
		Source:      entry.DownloadURL,
		OS:          entry.OS,
		Arch:        entry.Arch,
		InstalledAt: i.now().UTC(),
	}
	if err := i.storage.Record(installed); err != nil {
		if rmErr := os.RemoveAll(installPath); rmErr != nil {
			log.Error("failed to remove unrecorded install", "path", installPath, "error", rmErr)
		}
		return InstallResult{}, err
	}

	log.Info("installed", "path", installPath)
	return InstallResult{Version: installed}, nil
}

func (i *Installer) resolveDigest(ctx context.Context, entry models.RegistryEntry) (string, error) {
	if entry.Digest != "" {
		return entry.Digest, nil
	}
	if i.digests == nil {
		return "", apperr.Errorf(apperr.NotFound, "installer", "no digest published for %s", entry.FileName)
	}
	return i.digests.ResolveDigest(ctx, entry)
}

func dirExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func diskErr(version, action string, err error) error {
	return apperr.New(apperr.DiskError, "installer", version, fmt.Errorf("%s: %w", action, err))
}
