// Package restore rebuilds a state directory from the latest chain of
// backup volumes, or initializes a new one if nothing was ever backed up.
//
// Volumes are fetched in parallel but applied strictly in chain order, so
// that a later volume always wins over an earlier one.
package restore

import (
	"time"
)

// Logger is the subset of the zap sugared logger used by this package.
type Logger interface {
	Debugw(msg string, kv ...interface{})
	Infow(msg string, kv ...interface{})
	Warnw(msg string, kv ...interface{})
}

// Result describes one PerformRestore run.
type Result struct {
	RunID string `json:"run_id"`
	// Fresh is set if a new environment was initialized instead of
	// restoring a backup.
	Fresh          bool          `json:"fresh"`
	StorageID      string        `json:"storage,omitempty"`
	DiskVersion    string        `json:"disk_version"`
	StorageVersion string        `json:"storage_version"`
	Upgrade        bool          `json:"upgrade"`
	TrackedFiles   int           `json:"tracked_files"`
	Archives       []string      `json:"archives,omitempty"`
	LastArchive    string        `json:"last_archive,omitempty"`
	Started        time.Time     `json:"started"`
	Duration       time.Duration `json:"duration_ns"`
}
