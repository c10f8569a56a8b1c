package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"restorable.io/restorable-home/internal/version"
)

// LocalStorage implements Storage for a backup directory on a locally
// mounted filesystem.
type LocalStorage struct {
	Path string
}

// NewLocalStorage creates a storage reading from the directory at path.
func NewLocalStorage(path string) *LocalStorage {
	return &LocalStorage{Path: path}
}

var _ Storage = &LocalStorage{}

// openCatalog opens a catalog file. It returns nil without error if the
// file does not exist.
func (s *LocalStorage) openCatalog(name string) (*os.File, error) {
	f, err := os.Open(filepath.Join(s.Path, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s in %s: %w", name, s.Path, err)
	}
	return f, nil
}

func (s *LocalStorage) VersionInfo(ctx context.Context) (version.Version, error) {
	f, err := s.openCatalog(VersionKey)
	if err != nil || f == nil {
		return version.None, err
	}
	defer f.Close()
	return parseVersion(f)
}

func (s *LocalStorage) FindLatestBackup(ctx context.Context) ([]string, error) {
	return s.readCatalog(LatestBackupKey)
}

func (s *LocalStorage) ListMetadataForExistingFiles(ctx context.Context) ([]string, error) {
	return s.readCatalog(ExistingFilesKey)
}

func (s *LocalStorage) readCatalog(name string) ([]string, error) {
	f, err := s.openCatalog(name)
	if err != nil || f == nil {
		return nil, err
	}
	defer f.Close()

	entries, err := parseCatalog(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s in %s: %w", name, s.Path, err)
	}
	return entries, nil
}

// LoadFile copies the archive into destPath.
func (s *LocalStorage) LoadFile(ctx context.Context, archiveID, destPath string) error {
	if err := checkArchiveID(archiveID); err != nil {
		return err
	}
	srcPath := filepath.Join(s.Path, filepath.FromSlash(archiveID))
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open local backup file at %s: %w", srcPath, err)
	}
	defer src.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", destPath, err)
	}
	if _, err := io.Copy(dst, ctxReader{ctx: ctx, r: src}); err != nil {
		dst.Close()
		return fmt.Errorf("failed to copy %s: %w", srcPath, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", destPath, err)
	}
	return nil
}

// Identifier returns the local path for traceability.
func (s *LocalStorage) Identifier() string {
	return fmt.Sprintf("local:%s", s.Path)
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
