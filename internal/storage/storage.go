// Package storage provides access to the backup catalog and archive blobs.
//
// Every backend uses the same layout below its root:
//
//	version         version token of the state the backups were taken from
//	latest-backup   archive ids of the current backup chain, oldest first
//	existing-files  names of the files tracked by the backup metadata
//	<archive id>    archive blobs
//
// Catalog files hold one entry per line. Blank lines and lines starting
// with '#' are ignored. A missing catalog file reads as absent or empty.
package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"restorable.io/restorable-home/internal/config"
	"restorable.io/restorable-home/internal/crypto"
	"restorable.io/restorable-home/internal/version"
)

// Catalog file names.
const (
	VersionKey       = "version"
	LatestBackupKey  = "latest-backup"
	ExistingFilesKey = "existing-files"
)

// ErrUnknownType is returned by NewFromConfig for unsupported backends.
var ErrUnknownType = errors.New("unsupported storage type")

// ErrInvalidArchiveID is returned by LoadFile for ids that would resolve
// outside the storage root.
var ErrInvalidArchiveID = errors.New("invalid archive id")

// Storage is the remote backup catalog and blob store.
type Storage interface {
	// VersionInfo returns the version of the state the backups were
	// taken from, or version.None.
	VersionInfo(ctx context.Context) (version.Version, error)
	// FindLatestBackup returns the archive ids of the latest backup chain,
	// oldest first. An empty result means nothing was ever stored.
	FindLatestBackup(ctx context.Context) ([]string, error)
	// ListMetadataForExistingFiles returns the names of all files tracked
	// by the backup metadata.
	ListMetadataForExistingFiles(ctx context.Context) ([]string, error)
	// LoadFile transfers the archive archiveID into a new file at
	// destPath.
	LoadFile(ctx context.Context, archiveID, destPath string) error
	// Identifier returns a string identifying the storage for logs and
	// reports.
	Identifier() string
}

// Logger is the subset of the zap sugared logger used by this package.
type Logger interface {
	Warnw(msg string, kv ...interface{})
}

// NewFromConfig creates the storage described by cfg. It returns nil
// without error if no storage is configured. Archives are decrypted while
// loading if cfg configures encryption, and storage operations are retried
// if cfg configures a retry budget.
func NewFromConfig(cfg *config.Config, lg Logger) (Storage, error) {
	var (
		s   Storage
		err error
	)
	switch cfg.Storage.Type {
	case "", "none":
		return nil, nil

	case "local":
		if cfg.Storage.Local == nil || cfg.Storage.Local.Path == "" {
			return nil, fmt.Errorf("storage type is 'local' but path is not configured")
		}
		s = NewLocalStorage(cfg.Storage.Local.Path)

	case "s3":
		if cfg.Storage.S3 == nil {
			return nil, fmt.Errorf("storage type is 's3' but s3 configuration is missing")
		}
		s, err = NewS3Storage(cfg.Storage.S3)
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, cfg.Storage.Type)
	}

	if secs := cfg.Storage.Retry.MaxElapsedSeconds; secs > 0 {
		s = NewRetrying(s, time.Duration(secs)*time.Second, func(msg string, err error, d time.Duration) {
			lg.Warnw("Storage operation failed; retrying.",
				"op", msg,
				"retryIn", d,
				"err", err,
			)
		})
	}

	dec, err := crypto.NewDecryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("failed to create decryptor: %w", err)
	}
	if dec != nil {
		s = NewDecrypting(s, dec)
	}
	return s, nil
}

// parseCatalog reads catalog entries from r.
func parseCatalog(r io.Reader) ([]string, error) {
	var entries []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// parseVersion reads the version token from a version catalog file.
func parseVersion(r io.Reader) (version.Version, error) {
	entries, err := parseCatalog(r)
	if err != nil {
		return version.None, err
	}
	if len(entries) == 0 {
		return version.None, nil
	}
	return version.Of(entries[0]), nil
}

// checkArchiveID rejects ids that would resolve outside the storage root.
func checkArchiveID(id string) error {
	clean := path.Clean(strings.ReplaceAll(id, "\\", "/"))
	if id == "" || path.IsAbs(clean) || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%w %q", ErrInvalidArchiveID, id)
	}
	return nil
}
