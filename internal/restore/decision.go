package restore

import (
	"restorable.io/restorable-home/internal/version"
)

// DecisionMap maps each file tracked by the backup metadata to whether
// the backup copy should replace an existing copy on disk.
type DecisionMap map[string]bool

// BuildDecisionMap decides, for every tracked file, whether the backup
// wins. The state on disk is an upgrade only if its version is present and
// strictly newer than the version in storage. Unless it is an upgrade, the
// backup is trusted for every tracked file; after an upgrade the files on
// disk are kept.
func BuildDecisionMap(diskVersion, storageVersion version.Version, tracked []string) (DecisionMap, bool) {
	isUpgrade := version.Compare(diskVersion, storageVersion) > 0
	m := make(DecisionMap, len(tracked))
	for _, name := range tracked {
		m[name] = !isUpgrade
	}
	return m, isUpgrade
}
