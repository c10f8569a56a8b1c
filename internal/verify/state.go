package verify

import (
	"context"
	"fmt"

	"restorable.io/restorable-home/internal/initiation"
	"restorable.io/restorable-home/internal/version"
)

// MarkerChecker verifies that the state marker matches the restore result.
type MarkerChecker struct{}

func NewMarkerChecker() *MarkerChecker {
	return &MarkerChecker{}
}

func (c *MarkerChecker) Check(ctx context.Context, st *State) CheckResult {
	result := CheckResult{
		Name:  "state_marker",
		Level: LevelCritical,
	}

	m, err := initiation.ReadMarker(st.TargetDir)
	switch {
	case err != nil:
		result.Message = err.Error()
	case m == nil:
		result.Message = "State marker is missing"
	case m.Fresh != st.Result.Fresh:
		result.Message = fmt.Sprintf("State marker fresh=%v, restore reported fresh=%v", m.Fresh, st.Result.Fresh)
	case m.LastArchive != st.Result.LastArchive:
		result.Message = fmt.Sprintf("State marker names archive %q, restore reported %q", m.LastArchive, st.Result.LastArchive)
	default:
		result.Passed = true
		if m.Fresh {
			result.Message = "New environment initialized"
		} else {
			result.Message = fmt.Sprintf("Restored up to archive %s", m.LastArchive)
		}
	}
	return result
}

// VersionFileChecker verifies that a restored state carries a version.
type VersionFileChecker struct{}

func NewVersionFileChecker() *VersionFileChecker {
	return &VersionFileChecker{}
}

func (c *VersionFileChecker) Check(ctx context.Context, st *State) CheckResult {
	result := CheckResult{
		Name:  "version_file",
		Level: LevelWarning,
	}

	v := version.ReadFileSystemVersion(st.TargetDir, st.VersionFile)
	if st.Result.Fresh {
		result.Passed = true
		result.Message = fmt.Sprintf("New environment, version %s", v)
		return result
	}
	if !v.IsPresent() {
		result.Message = fmt.Sprintf("No version found in %s after restore", st.VersionFile)
		return result
	}

	result.Passed = true
	result.Message = fmt.Sprintf("State version %s (backup version %s)", v, st.Result.StorageVersion)
	return result
}

// ArchiveCountChecker reports how many archives were applied.
type ArchiveCountChecker struct{}

func NewArchiveCountChecker() *ArchiveCountChecker {
	return &ArchiveCountChecker{}
}

func (c *ArchiveCountChecker) Check(ctx context.Context, st *State) CheckResult {
	result := CheckResult{
		Name:   "archive_count",
		Level:  LevelInfo,
		Passed: true,
	}

	n := len(st.Result.Archives)
	switch {
	case st.Result.Fresh:
		result.Message = "No archives restored"
	case n == 0:
		result.Passed = false
		result.Message = "Restore reported no archives"
	case n == 1:
		result.Message = fmt.Sprintf("Restored 1 archive: %s", st.Result.LastArchive)
	default:
		result.Message = fmt.Sprintf("Restored %d archives, %s to %s", n, st.Result.Archives[0], st.Result.LastArchive)
	}
	return result
}
