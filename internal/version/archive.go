package version

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// archiveRoot 是 Pulumi 发行包中的顶层目录，解压时剥离。
const archiveRoot = "pulumi"

// extractArchive 根据发布包文件名的扩展名选择解压方式，结果写入 dest。
func extractArchive(archivePath, fileName, dest string) error {
	if strings.HasSuffix(fileName, ".zip") {
		return extractZip(archivePath, dest)
	}
	return extractTarGz(archivePath, dest)
}

func extractTarGz(archivePath, dest string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("installer: open archive: %w", err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("installer: gzip reader: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("installer: read archive: %w", err)
		}

		relPath, skip := normalizeArchivePath(header.Name)
		if skip {
			continue
		}

		target := filepath.Join(dest, filepath.FromSlash(relPath))
		if err := ensureWithinRoot(dest, target); err != nil {
			return err
		}
		if err := ensureNoSymlinks(dest, target); err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("installer: mkdir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, os.FileMode(header.Mode).Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if filepath.IsAbs(header.Linkname) || path.IsAbs(header.Linkname) {
				return fmt.Errorf("installer: absolute symlink %s -> %s", header.Name, header.Linkname)
			}
			if err := ensureWithinRoot(dest, filepath.Join(filepath.Dir(target), header.Linkname)); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("installer: mkdir for link %s: %w", target, err)
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return fmt.Errorf("installer: symlink %s: %w", target, err)
			}
		default:
			return fmt.Errorf("installer: unsupported tar entry %q", header.Name)
		}
	}
	return nil
}

func extractZip(archivePath, dest string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("installer: open archive: %w", err)
	}
	defer reader.Close()

	for _, f := range reader.File {
		relPath, skip := normalizeArchivePath(f.Name)
		if skip {
			continue
		}
		target := filepath.Join(dest, filepath.FromSlash(relPath))
		if err := ensureWithinRoot(dest, target); err != nil {
			return err
		}
		if err := ensureNoSymlinks(dest, target); err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("installer: mkdir %s: %w", target, err)
			}
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("installer: open %s: %w", f.Name, err)
		}
		perm := f.Mode().Perm()
		if perm == 0 {
			perm = 0o644
		}
		err = writeFile(target, rc, perm)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func writeFile(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("installer: mkdir for file %s: %w", target, err)
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("installer: create file %s: %w", target, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("installer: copy file %s: %w", target, err)
	}
	return f.Close()
}

// normalizeArchivePath 剥离顶层 pulumi/ 目录；其余位置的条目被忽略。
func normalizeArchivePath(name string) (string, bool) {
	clean := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	clean = strings.TrimPrefix(clean, "./")
	if clean == archiveRoot || clean == "." || clean == "" {
		return "", true
	}
	if !strings.HasPrefix(clean, archiveRoot+"/") {
		return "", true
	}
	clean = strings.TrimPrefix(clean, archiveRoot+"/")
	if clean == "" {
		return "", true
	}
	return clean, false
}

func ensureWithinRoot(root, target string) error {
	root = filepath.Clean(root)
	target = filepath.Clean(target)
	if target == root {
		return nil
	}
	if !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return fmt.Errorf("installer: illegal path %s", target)
	}
	return nil
}

// ensureNoSymlinks 拒绝经由已解压的符号链接写入：从 root 到 target 的每一级路径都不能是链接。
func ensureNoSymlinks(root, target string) error {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(target))
	if err != nil {
		return fmt.Errorf("installer: illegal path %s: %w", target, err)
	}
	current := filepath.Clean(root)
	for _, part := range strings.Split(rel, string(os.PathSeparator)) {
		if part == "." || part == "" {
			continue
		}
		current = filepath.Join(current, part)
		info, err := os.Lstat(current)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("installer: stat %s: %w", current, err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("installer: path %s passes through symlink %s", target, current)
		}
	}
	return nil
}
