package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tomski747/pvm/internal/apperr"
)

// DriftKind 标识 manifest 与磁盘之间的一类不一致。
type DriftKind string

const (
	DriftMissingDirectory  DriftKind = "missing-directory"
	DriftUntrackedDir      DriftKind = "untracked-directory"
	DriftDanglingSelection DriftKind = "dangling-selection"
	DriftLinkMismatch      DriftKind = "link-mismatch"
	DriftStaleLink         DriftKind = "stale-link"
)

// Drift 描述一处不一致。Verify 只报告，不修复。
type Drift struct {
	Kind    DriftKind
	Version string
	Path    string
	Detail  string
}

func (d Drift) String() string {
	if d.Version == "" {
		return fmt.Sprintf("%s: %s", d.Kind, d.Detail)
	}
	return fmt.Sprintf("%s: %s (%s)", d.Kind, d.Version, d.Detail)
}

// Verify 比对 manifest、版本目录与 current 链接。
func (s *FileStorage) Verify() ([]Drift, error) {
	m, err := s.read()
	if err != nil {
		return nil, err
	}

	var drifts []Drift
	recorded := make(map[string]string, len(m.Versions))
	for _, v := range m.Versions {
		recorded[v.Number] = v.InstallPath
		path := v.InstallPath
		if path == "" {
			path = s.InstallPath(v.Number)
		}
		info, err := os.Stat(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			drifts = append(drifts, Drift{Kind: DriftMissingDirectory, Version: v.Number, Path: path, Detail: "recorded but directory is missing"})
		case err != nil:
			return nil, apperr.New(apperr.DiskError, "storage", v.Number, fmt.Errorf("stat %s: %w", path, err))
		case !info.IsDir():
			drifts = append(drifts, Drift{Kind: DriftMissingDirectory, Version: v.Number, Path: path, Detail: "install path is not a directory"})
		}
	}

	entries, err := os.ReadDir(s.versionsDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, apperr.New(apperr.DiskError, "storage", "", fmt.Errorf("read versions dir: %w", err))
	}
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if _, ok := recorded[name]; !ok {
			drifts = append(drifts, Drift{Kind: DriftUntrackedDir, Version: name, Path: filepath.Join(s.versionsDir, name), Detail: "directory present but not recorded"})
		}
	}

	if m.Current != "" {
		if _, ok := recorded[m.Current]; !ok {
			drifts = append(drifts, Drift{Kind: DriftDanglingSelection, Version: m.Current, Detail: "selection references a version that is not installed"})
		}
	}

	drifts = append(drifts, s.verifyLink(m.Current, recorded)...)
	return drifts, nil
}

func (s *FileStorage) verifyLink(current string, recorded map[string]string) []Drift {
	linkPath := s.CurrentLinkPath()
	target, err := os.Readlink(linkPath)
	if err != nil {
		if current != "" && errors.Is(err, os.ErrNotExist) {
			return []Drift{{Kind: DriftLinkMismatch, Version: current, Path: linkPath, Detail: "current link is missing"}}
		}
		return nil
	}
	if current == "" {
		return []Drift{{Kind: DriftStaleLink, Path: linkPath, Detail: "current link exists but nothing is selected"}}
	}
	want := recorded[current]
	if want == "" {
		want = s.InstallPath(current)
	}
	if filepath.Clean(target) != filepath.Clean(want) {
		return []Drift{{Kind: DriftLinkMismatch, Version: current, Path: linkPath, Detail: fmt.Sprintf("link points to %s", target)}}
	}
	return nil
}
