package restore_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"restorable.io/restorable-home/internal/restore"
	"restorable.io/restorable-home/internal/version"
)

func TestBuildDecisionMap(t *testing.T) {
	tracked := []string{"config.xml", "jobs/a/config.xml", "secrets/master.key", ""}

	for _, c := range []struct {
		disk, storage version.Version
		upgrade       bool
	}{
		{version.None, version.None, false},
		{version.None, version.Of("3"), false},
		{version.Of("3"), version.None, true},
		{version.Of("2"), version.Of("3"), false},
		{version.Of("3"), version.Of("3"), false},
		{version.Of("5"), version.Of("3"), true},
		{version.Of("2.10"), version.Of("2.9"), true},
		{version.Of("  "), version.Of("1"), false},
	} {
		m, upgrade := restore.BuildDecisionMap(c.disk, c.storage, tracked)
		require.Equal(t, c.upgrade, upgrade, "disk %s, storage %s", c.disk, c.storage)
		require.Len(t, m, len(tracked))
		for _, name := range tracked {
			require.Equal(t, !c.upgrade, m[name], "file %q", name)
		}
	}
}

func TestBuildDecisionMapEmpty(t *testing.T) {
	m, upgrade := restore.BuildDecisionMap(version.Of("5"), version.Of("3"), nil)
	require.True(t, upgrade)
	require.Empty(t, m)
}
