package version

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tomski747/pvm/internal/apperr"
	"github.com/tomski747/pvm/internal/storage"
)

// ProjectFileName 是项目级版本文件名。
const ProjectFileName = ".pulumi-version"

// ProjectPin 表示在目录树中找到的项目级版本声明。
type ProjectPin struct {
	Path string
	Spec Spec
}

// FindProjectPin 从 dir 开始逐级向上查找 .pulumi-version，找不到时返回 nil。
func FindProjectPin(dir string) (*ProjectPin, error) {
	if dir == "" {
		return nil, nil
	}
	current, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("project: resolve %s: %w", dir, err)
	}
	for {
		path := filepath.Join(current, ProjectFileName)
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			spec, err := parseProjectFile(data)
			if err != nil {
				return nil, apperr.New(apperr.InvalidSpec, "project", "", fmt.Errorf("%s: %w", path, err))
			}
			return &ProjectPin{Path: path, Spec: spec}, nil
		case !errors.Is(err, os.ErrNotExist):
			return nil, apperr.New(apperr.DiskError, "project", "", fmt.Errorf("read %s: %w", path, err))
		}

		parent := filepath.Dir(current)
		if parent == current {
			return nil, nil
		}
		current = parent
	}
}

// WriteProjectPin 原子地在 dir 中写入 .pulumi-version，返回文件路径。
func WriteProjectPin(dir, number string) (string, error) {
	path := filepath.Join(dir, ProjectFileName)
	if err := storage.WriteFileAtomic(path, []byte(number+"\n"), 0o644); err != nil {
		return "", apperr.New(apperr.DiskError, "project", number, err)
	}
	return path, nil
}

// parseProjectFile 取第一行非空、非注释内容作为版本说明符。
func parseProjectFile(data []byte) (Spec, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return ParseSpec(line)
	}
	return Spec{}, errors.New("file is empty")
}
