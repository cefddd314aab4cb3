package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/mod/semver"

	"github.com/tomski747/pvm/internal/apperr"
	"github.com/tomski747/pvm/internal/logging"
	"github.com/tomski747/pvm/pkg/models"
)

const (
	manifestName  = "manifest.json"
	lockName      = "manifest.lock"
	currentLink   = "current"
	schemaVersion = 1

	lockRetryDelay = 50 * time.Millisecond
	readAttempts   = 3
)

// LocalStorage 定义已安装版本与当前选择的读写接口。
type LocalStorage interface {
	Record(version models.InstalledVersion) error
	List() ([]models.InstalledVersion, error)
	Get(version string) (*models.InstalledVersion, error)
	Remove(version string) (bool, error)
	Selection() (string, error)
	Select(version string) error
	InstallPath(version string) string
	VersionsDir() string
	RootDir() string
	CurrentLinkPath() string
	Verify() ([]Drift, error)
}

// Manifest 表示 manifest.json 的结构。
type Manifest struct {
	Schema   int                       `json:"schema"`
	Current  string                    `json:"current,omitempty"`
	Versions []models.InstalledVersion `json:"versions"`
}

// FileStorage 通过文件系统持久化版本信息，跨进程依赖 manifest.lock。
type FileStorage struct {
	root         string
	versionsDir  string
	manifestPath string
	lock         *flock.Flock
	lockTimeout  time.Duration
	log          *logging.Logger
	mu           sync.Mutex
}

// Option 配置 FileStorage。
type Option func(*FileStorage)

// WithLogger 指定日志器。
func WithLogger(l *logging.Logger) Option {
	return func(s *FileStorage) {
		s.log = logging.OrNop(l)
	}
}

// WithLockTimeout 指定等待其他 pvm 进程释放锁的最长时间。
func WithLockTimeout(d time.Duration) Option {
	return func(s *FileStorage) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// NewFileStorage 构造一个文件系统存储实例。
func NewFileStorage(cfg models.Config, opts ...Option) *FileStorage {
	root := cfg.RootDir
	if root == "" {
		if home, err := os.UserHomeDir(); err == nil {
			root = filepath.Join(home, ".pvm")
		}
	}
	versionsDir := cfg.VersionsDir
	if versionsDir == "" {
		versionsDir = filepath.Join(root, "versions")
	}
	s := &FileStorage{
		root:         root,
		versionsDir:  versionsDir,
		manifestPath: filepath.Join(root, manifestName),
		lock:         flock.New(filepath.Join(root, lockName)),
		lockTimeout:  10 * time.Second,
		log:          logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record 保存或更新一个已安装版本。
func (s *FileStorage) Record(version models.InstalledVersion) error {
	if strings.TrimSpace(version.Number) == "" {
		return errors.New("storage: version number is required")
	}
	version.IsCurrent = false
	return s.update(func(m *Manifest) error {
		for i := range m.Versions {
			if m.Versions[i].Number == version.Number {
				m.Versions[i] = version
				return nil
			}
		}
		m.Versions = append(m.Versions, version)
		return nil
	})
}

// List 返回所有已安装版本，按语义化版本升序。
func (s *FileStorage) List() ([]models.InstalledVersion, error) {
	m, err := s.read()
	if err != nil {
		return nil, err
	}
	versions := append([]models.InstalledVersion(nil), m.Versions...)
	for i := range versions {
		versions[i].IsCurrent = versions[i].Number == m.Current
	}
	SortAscending(versions)
	return versions, nil
}

// Get 返回指定版本，不存在时返回 nil。
func (s *FileStorage) Get(version string) (*models.InstalledVersion, error) {
	m, err := s.read()
	if err != nil {
		return nil, err
	}
	for _, v := range m.Versions {
		if v.Number == version {
			v.IsCurrent = v.Number == m.Current
			return &v, nil
		}
	}
	return nil, nil
}

// Remove 删除版本记录；若它是当前选择则一并清除，返回值表示是否清除了选择。
func (s *FileStorage) Remove(version string) (bool, error) {
	cleared := false
	err := s.update(func(m *Manifest) error {
		idx := -1
		for i := range m.Versions {
			if m.Versions[i].Number == version {
				idx = i
				break
			}
		}
		if idx < 0 {
			return apperr.Errorf(apperr.VersionNotInstalled, "storage", "version %s is not installed", version)
		}
		m.Versions = append(m.Versions[:idx], m.Versions[idx+1:]...)
		if m.Current == version {
			m.Current = ""
			cleared = true
		}
		return nil
	})
	return cleared, err
}

// Selection 返回全局当前选择，未选择时返回空字符串。
func (s *FileStorage) Selection() (string, error) {
	m, err := s.read()
	if err != nil {
		return "", err
	}
	return m.Current, nil
}

// Select 设置全局当前选择；版本必须已记录，否则选择保持不变。
func (s *FileStorage) Select(version string) error {
	return s.update(func(m *Manifest) error {
		if version == "" {
			m.Current = ""
			return nil
		}
		for _, v := range m.Versions {
			if v.Number == version {
				m.Current = version
				return nil
			}
		}
		return apperr.Errorf(apperr.VersionNotInstalled, "storage", "version %s is not installed", version)
	})
}

// InstallPath 返回指定版本的安装目录。
func (s *FileStorage) InstallPath(version string) string {
	return filepath.Join(s.versionsDir, version)
}

func (s *FileStorage) VersionsDir() string { return s.versionsDir }

func (s *FileStorage) RootDir() string { return s.root }

// CurrentLinkPath 返回指向当前版本目录的符号链接路径。
func (s *FileStorage) CurrentLinkPath() string {
	return filepath.Join(s.root, currentLink)
}

// SortAscending 按语义化版本升序排列。
func SortAscending(versions []models.InstalledVersion) {
	sort.SliceStable(versions, func(i, j int) bool {
		return semver.Compare("v"+versions[i].Number, "v"+versions[j].Number) < 0
	})
}

func (s *FileStorage) read() (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.manifestPath); errors.Is(err, os.ErrNotExist) {
		return &Manifest{Schema: schemaVersion}, nil
	}

	unlock, err := s.acquire(false)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var lastErr error
	for attempt := 0; attempt < readAttempts; attempt++ {
		m, err := s.readManifestLocked()
		if err == nil {
			return m, nil
		}
		if apperr.KindOf(err) != apperr.StateCorruption {
			return nil, err
		}
		lastErr = err
		time.Sleep(lockRetryDelay)
	}
	return nil, lastErr
}

func (s *FileStorage) update(mutate func(*Manifest) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureRoot(); err != nil {
		return err
	}
	unlock, err := s.acquire(true)
	if err != nil {
		return err
	}
	defer unlock()

	m, err := s.readManifestLocked()
	if err != nil {
		return err
	}
	if err := mutate(m); err != nil {
		return err
	}
	return s.writeManifestLocked(m)
}

func (s *FileStorage) acquire(exclusive bool) (func(), error) {
	if err := s.ensureRoot(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.lockTimeout)
	defer cancel()

	var (
		ok  bool
		err error
	)
	if exclusive {
		ok, err = s.lock.TryLockContext(ctx, lockRetryDelay)
	} else {
		ok, err = s.lock.TryRLockContext(ctx, lockRetryDelay)
	}
	if err != nil || !ok {
		if err == nil {
			err = errors.New("lock not acquired")
		}
		return nil, apperr.New(apperr.DiskError, "storage", "", fmt.Errorf("state directory %s is busy: %w", s.root, err))
	}
	return func() {
		if err := s.lock.Unlock(); err != nil {
			s.log.Warn("release state lock failed", "path", s.lock.Path(), "error", err)
		}
	}, nil
}

func (s *FileStorage) ensureRoot() error {
	if s.root == "" {
		return apperr.Errorf(apperr.DiskError, "storage", "root directory is not configured")
	}
	if err := os.MkdirAll(s.versionsDir, 0o755); err != nil {
		return apperr.New(apperr.DiskError, "storage", "", fmt.Errorf("create state dir: %w", err))
	}
	return nil
}

func (s *FileStorage) readManifestLocked() (*Manifest, error) {
	data, err := os.ReadFile(s.manifestPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Manifest{Schema: schemaVersion}, nil
		}
		return nil, apperr.New(apperr.DiskError, "storage", "", fmt.Errorf("read manifest: %w", err))
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return &Manifest{Schema: schemaVersion}, nil
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, apperr.New(apperr.StateCorruption, "storage", "", fmt.Errorf("parse manifest %s: %w", s.manifestPath, err))
	}
	if m.Schema == 0 {
		m.Schema = schemaVersion
	}
	if m.Versions == nil {
		m.Versions = []models.InstalledVersion{}
	}
	return &m, nil
}

func (s *FileStorage) writeManifestLocked(m *Manifest) error {
	m.Schema = schemaVersion
	SortAscending(m.Versions)

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode manifest: %w", err)
	}
	data = append(data, '\n')

	if err := WriteFileAtomic(s.manifestPath, data, 0o644); err != nil {
		return apperr.New(apperr.DiskError, "storage", "", err)
	}
	return nil
}

// WriteFileAtomic 先写入同目录临时文件再 rename，避免读者看到写了一半的内容。
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
