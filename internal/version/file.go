package version

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultFileName is the file under the state directory that holds the
// version token of the on-disk state.
const DefaultFileName = "state.version"

// ReadFileSystemVersion reads the version token of the state in dir from
// the file name below it. The first non-empty line is the token. Any
// failure to resolve or read the file yields None.
func ReadFileSystemVersion(dir, name string) Version {
	if dir == "" || name == "" {
		return None
	}
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return None
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			return Of(line)
		}
	}
	return None
}

// WriteFileSystemVersion records v as the version of the state in dir.
func WriteFileSystemVersion(dir, name string, v Version) error {
	token, ok := v.Token()
	if !ok {
		return fmt.Errorf("refusing to write absent version to %s", name)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(token+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write version file %s: %w", path, err)
	}
	return nil
}
