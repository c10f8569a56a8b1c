package volume

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression selects the stream compression of a tar volume.
type Compression int

const (
	CompressionZstd Compression = iota
	CompressionGzip
)

// TarVolume stores entries in a compressed tar stream.
type TarVolume struct {
	Compression Compression
}

func (v TarVolume) Format() string {
	if v.Compression == CompressionGzip {
		return FormatTarGz
	}
	return FormatTarZst
}

func (v TarVolume) Extract(path string) (Extractor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s volume %s: %w", v.Format(), path, err)
	}

	var (
		rd         io.Reader
		closeCodec func() error
	)
	switch v.Compression {
	case CompressionGzip:
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to read gzip header of %s: %w", path, err)
		}
		rd, closeCodec = zr, zr.Close
	default:
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to read zstd stream of %s: %w", path, err)
		}
		rd = zr
		closeCodec = func() error {
			zr.Close()
			return nil
		}
	}

	return &tarExtractor{
		file:       f,
		closeCodec: closeCodec,
		tr:         tar.NewReader(rd),
	}, nil
}

func (v TarVolume) Create(path string) (Creator, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s volume %s: %w", v.Format(), path, err)
	}

	var wc io.WriteCloser
	switch v.Compression {
	case CompressionGzip:
		wc = gzip.NewWriter(f)
	default:
		zw, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		wc = zw
	}
	return &tarCreator{file: f, codec: wc, tw: tar.NewWriter(wc)}, nil
}

type tarExtractor struct {
	file       *os.File
	closeCodec func() error
	tr         *tar.Reader
}

func (x *tarExtractor) Next() (*Entry, error) {
	for {
		hdr, err := x.tr.Next()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar header: %w", err)
		}

		e := &Entry{
			Name:    strings.TrimSuffix(hdr.Name, "/"),
			Mode:    hdr.FileInfo().Mode().Perm(),
			ModTime: hdr.ModTime,
		}
		switch hdr.Typeflag {
		case tar.TypeReg:
			e.Type = TypeFile
			e.Size = hdr.Size
		case tar.TypeDir:
			e.Type = TypeDir
		case tar.TypeSymlink:
			e.Type = TypeSymlink
			e.Linkname = hdr.Linkname
		default:
			// Devices, fifos and hard links are not part of a state
			// directory backup.
			continue
		}
		return e, nil
	}
}

func (x *tarExtractor) Read(p []byte) (int, error) {
	return x.tr.Read(p)
}

func (x *tarExtractor) Close() error {
	errCodec := x.closeCodec()
	if err := x.file.Close(); err != nil {
		return err
	}
	return errCodec
}

type tarCreator struct {
	file  *os.File
	codec io.WriteCloser
	tw    *tar.Writer
}

func (c *tarCreator) Add(e *Entry, r io.Reader) error {
	hdr := &tar.Header{
		Name:    e.Name,
		Mode:    int64(e.Mode.Perm()),
		ModTime: e.ModTime,
		Format:  tar.FormatPAX,
	}
	switch e.Type {
	case TypeDir:
		hdr.Typeflag = tar.TypeDir
		hdr.Name = strings.TrimSuffix(e.Name, "/") + "/"
	case TypeSymlink:
		hdr.Typeflag = tar.TypeSymlink
		hdr.Linkname = e.Linkname
	default:
		hdr.Typeflag = tar.TypeReg
		hdr.Size = e.Size
	}

	if err := c.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to add tar entry %s: %w", e.Name, err)
	}
	if e.Type == TypeFile && r != nil {
		if _, err := io.CopyN(c.tw, r, e.Size); err != nil {
			return fmt.Errorf("failed to write tar entry %s: %w", e.Name, err)
		}
	}
	return nil
}

func (c *tarCreator) Close() error {
	if err := c.tw.Close(); err != nil {
		c.file.Close()
		return fmt.Errorf("failed to finish tar stream: %w", err)
	}
	if err := c.codec.Close(); err != nil {
		c.file.Close()
		return fmt.Errorf("failed to finish compressed stream: %w", err)
	}
	return c.file.Close()
}
