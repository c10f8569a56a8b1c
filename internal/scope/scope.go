// Package scope applies the entries of a backup volume to a state
// directory, deciding per file whether the archived or the existing copy
// wins.
package scope

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"restorable.io/restorable-home/internal/volume"
)

// Scope maps archive entries onto a target directory.
type Scope interface {
	// ExtractFiles applies every entry of ex below targetDir. Files listed
	// in restoreFromBackup replace an existing copy iff their value is
	// true; other existing files are replaced iff overwrite is set.
	ExtractFiles(targetDir string, ex volume.Extractor, overwrite bool, restoreFromBackup map[string]bool) error
}

// Logger is the subset of the zap sugared logger used by this package.
type Logger interface {
	Debugw(msg string, kv ...interface{})
}

// ErrUnsafePath is returned for entries that would land outside the
// target directory.
var ErrUnsafePath = errors.New("archive entry escapes target directory")

// Default is the Scope used for state directory restores.
type Default struct {
	excludes []string
	lg       Logger
}

// New creates a scope that skips entries matching any of excludes. A
// pattern matches either the full slash-separated entry name or its last
// element, using path.Match syntax.
func New(excludes []string, lg Logger) (*Default, error) {
	for _, p := range excludes {
		if _, err := path.Match(p, ""); err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
	}
	return &Default{excludes: excludes, lg: lg}, nil
}

var _ Scope = &Default{}

func (s *Default) ExtractFiles(
	targetDir string, ex volume.Extractor, overwrite bool, restoreFromBackup map[string]bool,
) error {
	var written, skipped int
	for {
		e, err := ex.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read volume entry: %w", err)
		}

		name, err := cleanName(e.Name)
		if err != nil {
			return err
		}
		if name == "" {
			continue
		}
		if s.excluded(name) {
			s.lg.Debugw("Skipped excluded entry.", "name", name)
			skipped++
			continue
		}

		dst := filepath.Join(targetDir, filepath.FromSlash(name))
		if err := checkParents(targetDir, name); err != nil {
			return err
		}
		switch e.Type {
		case volume.TypeDir:
			if err := os.MkdirAll(dst, dirMode(e.Mode)); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dst, err)
			}
			continue
		case volume.TypeSymlink:
			if err := checkLink(name, e.Linkname); err != nil {
				return err
			}
		}

		ok, err := s.shouldWrite(name, dst, overwrite, restoreFromBackup)
		if err != nil {
			return err
		}
		if !ok {
			s.lg.Debugw("Kept existing file.", "name", name)
			skipped++
			continue
		}

		if e.Type == volume.TypeSymlink {
			err = writeSymlink(dst, e.Linkname)
		} else {
			err = writeFile(dst, e, ex)
		}
		if err != nil {
			return err
		}
		written++
	}
	s.lg.Debugw("Applied volume.", "written", written, "skipped", skipped)
	return nil
}

func (s *Default) excluded(name string) bool {
	base := path.Base(name)
	for _, p := range s.excludes {
		if ok, _ := path.Match(p, name); ok {
			return true
		}
		if ok, _ := path.Match(p, base); ok {
			return true
		}
	}
	return false
}

func (s *Default) shouldWrite(name, dst string, overwrite bool, restoreFromBackup map[string]bool) (bool, error) {
	fi, err := os.Lstat(dst)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", dst, err)
	}
	if fi.IsDir() {
		return false, fmt.Errorf("cannot replace directory %s with a file", dst)
	}
	if fromBackup, tracked := restoreFromBackup[name]; tracked {
		return fromBackup, nil
	}
	return overwrite, nil
}

// cleanName converts an entry name to a clean slash-separated relative
// path. The archive root maps to "".
func cleanName(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	if path.IsAbs(name) || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	clean := path.Clean(name)
	if clean == "." {
		return "", nil
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return clean, nil
}

func checkLink(name, target string) error {
	if path.IsAbs(target) || filepath.IsAbs(target) {
		return fmt.Errorf("%w: symlink %s -> %s", ErrUnsafePath, name, target)
	}
	resolved := path.Join(path.Dir(name), target)
	if resolved == ".." || strings.HasPrefix(resolved, "../") {
		return fmt.Errorf("%w: symlink %s -> %s", ErrUnsafePath, name, target)
	}
	return nil
}

// checkParents rejects names whose parent directories below targetDir
// include a symlink, which an earlier entry may have created.
func checkParents(targetDir, name string) error {
	parts := strings.Split(name, "/")
	dir := targetDir
	for i, p := range parts[:len(parts)-1] {
		dir = filepath.Join(dir, p)
		fi, err := os.Lstat(dir)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", dir, err)
		}
		if fi.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("%w: %s traverses symlink %s", ErrUnsafePath, name, path.Join(parts[:i+1]...))
		}
	}
	return nil
}

func dirMode(m fs.FileMode) fs.FileMode {
	if m.Perm() == 0 {
		return 0755
	}
	return m.Perm() | 0700
}

func writeFile(dst string, e *volume.Entry, r io.Reader) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".restorable-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	defer os.Remove(tmp.Name()) // no-op after rename

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	mode := e.Mode.Perm()
	if mode == 0 {
		mode = 0644
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set mode of %s: %w", dst, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}
	if !e.ModTime.IsZero() {
		if err := os.Chtimes(tmp.Name(), e.ModTime, e.ModTime); err != nil {
			return fmt.Errorf("failed to set mtime of %s: %w", dst, err)
		}
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", dst, err)
	}
	return nil
}

func writeSymlink(dst, target string) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", dst, err)
	}
	if err := os.Symlink(target, dst); err != nil {
		return fmt.Errorf("failed to create symlink %s: %w", dst, err)
	}
	return nil
}
