package version_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"restorable.io/restorable-home/internal/version"
)

func sign(i int) int {
	switch {
	case i < 0:
		return -1
	case i > 0:
		return 1
	}
	return 0
}

func TestCompare(t *testing.T) {
	cases := []struct {
		a, b version.Version
		want int
	}{
		{version.None, version.None, 0},
		{version.None, version.Of("1"), -1},
		{version.Of("1"), version.None, 1},
		{version.Of(""), version.None, 0},
		{version.Of("  "), version.Of("0"), -1},
		{version.Of("2"), version.Of("3"), -1},
		{version.Of("5"), version.Of("3"), 1},
		{version.Of("3"), version.Of("3"), 0},
		{version.Of("10"), version.Of("9"), 1},
		{version.Of("1.2"), version.Of("1.2.1"), -1},
		{version.Of("1.10.0"), version.Of("1.9.9"), 1},
		{version.Of("2.0-rc"), version.Of("2.0-1"), 1},
		{version.Of("007"), version.Of("7"), 0},
		{version.Of("alpha"), version.Of("beta"), -1},
		{version.Of("123456789012345678901234"), version.Of("123456789012345678901233"), 1},
	}
	for _, c := range cases {
		require.Equal(t, c.want, sign(version.Compare(c.a, c.b)), "%s vs %s", c.a, c.b)
		require.Equal(t, -c.want, sign(version.Compare(c.b, c.a)), "%s vs %s", c.b, c.a)
	}
}

func TestCompareTransitive(t *testing.T) {
	vs := []version.Version{
		version.None,
		version.Of("1"),
		version.Of("1.0"),
		version.Of("1.2"),
		version.Of("1.2-beta"),
		version.Of("1.10"),
		version.Of("2"),
		version.Of("x"),
	}
	for _, a := range vs {
		for _, b := range vs {
			for _, c := range vs {
				if version.Compare(a, b) <= 0 && version.Compare(b, c) <= 0 {
					require.LessOrEqual(t, version.Compare(a, c), 0, "%s <= %s <= %s", a, b, c)
				}
			}
		}
	}
}

func TestReadFileSystemVersion(t *testing.T) {
	dir := t.TempDir()

	require.False(t, version.ReadFileSystemVersion(dir, version.DefaultFileName).IsPresent())
	require.False(t, version.ReadFileSystemVersion(filepath.Join(dir, "missing"), "x").IsPresent())
	require.False(t, version.ReadFileSystemVersion("", version.DefaultFileName).IsPresent())

	path := filepath.Join(dir, version.DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte("\n  3  \nignored\n"), 0644))
	v := version.ReadFileSystemVersion(dir, version.DefaultFileName)
	token, ok := v.Token()
	require.True(t, ok)
	require.Equal(t, "3", token)
}

func TestWriteFileSystemVersion(t *testing.T) {
	dir := t.TempDir()

	require.Error(t, version.WriteFileSystemVersion(dir, "v", version.None))
	require.NoError(t, version.WriteFileSystemVersion(dir, "v", version.Of("4.1")))
	require.Equal(t, 0, version.Compare(version.Of("4.1"), version.ReadFileSystemVersion(dir, "v")))
}
