package volume

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ZipVolume stores entries in a zip archive, deflate compressed.
type ZipVolume struct{}

func (ZipVolume) Format() string {
	return FormatZip
}

func (ZipVolume) Extract(path string) (Extractor, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip volume %s: %w", path, err)
	}
	return &zipExtractor{archive: r, next: 0}, nil
}

func (ZipVolume) Create(path string) (Creator, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create zip volume %s: %w", path, err)
	}
	return &zipCreator{file: f, w: zip.NewWriter(f)}, nil
}

type zipExtractor struct {
	archive *zip.ReadCloser
	next    int
	current io.ReadCloser
}

func (x *zipExtractor) Next() (*Entry, error) {
	if err := x.closeCurrent(); err != nil {
		return nil, err
	}
	if x.next >= len(x.archive.File) {
		return nil, io.EOF
	}
	f := x.archive.File[x.next]
	x.next++

	mode := f.Mode()
	e := &Entry{
		Name:    strings.TrimSuffix(f.Name, "/"),
		Mode:    mode.Perm(),
		ModTime: f.Modified,
		Size:    int64(f.UncompressedSize64),
	}
	switch {
	case mode.IsDir() || strings.HasSuffix(f.Name, "/"):
		e.Type = TypeDir
		e.Size = 0
		return e, nil
	case mode&fs.ModeSymlink != 0:
		e.Type = TypeSymlink
	default:
		e.Type = TypeFile
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open zip entry %s: %w", f.Name, err)
	}
	if e.Type == TypeSymlink {
		target, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read symlink entry %s: %w", f.Name, err)
		}
		e.Linkname = string(target)
		e.Size = 0
		return e, nil
	}
	x.current = rc
	return e, nil
}

func (x *zipExtractor) Read(p []byte) (int, error) {
	if x.current == nil {
		return 0, io.EOF
	}
	return x.current.Read(p)
}

func (x *zipExtractor) closeCurrent() error {
	if x.current == nil {
		return nil
	}
	err := x.current.Close()
	x.current = nil
	return err
}

func (x *zipExtractor) Close() error {
	errEntry := x.closeCurrent()
	if err := x.archive.Close(); err != nil {
		return err
	}
	return errEntry
}

type zipCreator struct {
	file *os.File
	w    *zip.Writer
}

func (c *zipCreator) Add(e *Entry, r io.Reader) error {
	hdr := &zip.FileHeader{
		Name:     e.Name,
		Method:   zip.Deflate,
		Modified: e.ModTime,
	}
	switch e.Type {
	case TypeDir:
		hdr.Name = strings.TrimSuffix(e.Name, "/") + "/"
		hdr.Method = zip.Store
		hdr.SetMode(fs.ModeDir | e.Mode.Perm())
	case TypeSymlink:
		hdr.SetMode(fs.ModeSymlink | 0777)
	default:
		hdr.SetMode(e.Mode.Perm())
	}

	w, err := c.w.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("failed to add zip entry %s: %w", e.Name, err)
	}
	switch e.Type {
	case TypeSymlink:
		_, err = io.WriteString(w, e.Linkname)
	case TypeFile:
		if r != nil {
			_, err = io.Copy(w, r)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to write zip entry %s: %w", e.Name, err)
	}
	return nil
}

func (c *zipCreator) Close() error {
	if err := c.w.Close(); err != nil {
		c.file.Close()
		return fmt.Errorf("failed to finish zip volume: %w", err)
	}
	return c.file.Close()
}
