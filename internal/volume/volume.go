// Package volume reads and writes the archive files a backup consists of.
package volume

import (
	"fmt"
	"io"
	"io/fs"
	"time"
)

// Supported archive formats.
const (
	FormatZip    = "zip"
	FormatTarZst = "tar.zst"
	FormatTarGz  = "tar.gz"
)

// EntryType distinguishes the kinds of archive entries.
type EntryType int

const (
	TypeFile EntryType = iota
	TypeDir
	TypeSymlink
)

func (t EntryType) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeDir:
		return "dir"
	case TypeSymlink:
		return "symlink"
	}
	return fmt.Sprintf("EntryType(%d)", int(t))
}

// Entry describes one member of an archive.
type Entry struct {
	// Name is the slash-separated path relative to the archive root.
	Name     string
	Type     EntryType
	Mode     fs.FileMode
	ModTime  time.Time
	Size     int64
	Linkname string
}

// Extractor iterates over the entries of an opened archive. Read returns
// the content of the entry most recently returned by Next.
type Extractor interface {
	// Next advances to the next entry. It returns io.EOF when there are
	// no more entries.
	Next() (*Entry, error)
	io.Reader
	io.Closer
}

// Creator appends entries to a new archive. Close must be called to flush
// the archive.
type Creator interface {
	// Add writes e. For TypeFile entries content is copied from r, which is
	// ignored for other types.
	Add(e *Entry, r io.Reader) error
	io.Closer
}

// Volume opens and creates archives of one format.
type Volume interface {
	Format() string
	// Extract opens the archive at path for reading.
	Extract(path string) (Extractor, error)
	// Create creates a new archive at path, truncating an existing file.
	Create(path string) (Creator, error)
}

// New returns the volume for format. An empty format selects zip.
func New(format string) (Volume, error) {
	switch format {
	case "", FormatZip:
		return ZipVolume{}, nil
	case FormatTarZst:
		return TarVolume{Compression: CompressionZstd}, nil
	case FormatTarGz:
		return TarVolume{Compression: CompressionGzip}, nil
	default:
		return nil, fmt.Errorf("unsupported volume format: %s", format)
	}
}
