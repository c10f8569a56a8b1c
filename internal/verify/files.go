package verify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TrackedFilesChecker verifies that the files tracked by the backup
// metadata exist in the restored state.
type TrackedFilesChecker struct {
	// MaxListed limits how many missing files are named in the message.
	MaxListed int
}

func NewTrackedFilesChecker(maxListed int) *TrackedFilesChecker {
	return &TrackedFilesChecker{MaxListed: maxListed}
}

func (c *TrackedFilesChecker) Check(ctx context.Context, st *State) CheckResult {
	result := CheckResult{
		Name:  "tracked_files",
		Level: LevelWarning,
	}

	if st.Result.Fresh {
		result.Passed = true
		result.Message = "New environment, no tracked files expected"
		return result
	}
	if len(st.Tracked) == 0 {
		result.Passed = true
		result.Message = "Backup metadata tracks no files"
		return result
	}

	var missing []string
	for _, name := range st.Tracked {
		if err := ctx.Err(); err != nil {
			result.Message = err.Error()
			return result
		}
		_, err := os.Lstat(filepath.Join(st.TargetDir, filepath.FromSlash(name)))
		if err != nil {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		result.Message = fmt.Sprintf("Missing %d of %d tracked files: %s", len(missing), len(st.Tracked), c.list(missing))
	} else {
		result.Passed = true
		result.Message = fmt.Sprintf("All %d tracked files present", len(st.Tracked))
	}
	return result
}

func (c *TrackedFilesChecker) list(names []string) string {
	if c.MaxListed > 0 && len(names) > c.MaxListed {
		return fmt.Sprintf("%s, and %d more", strings.Join(names[:c.MaxListed], ", "), len(names)-c.MaxListed)
	}
	return strings.Join(names, ", ")
}
