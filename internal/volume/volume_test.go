package volume_test

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"restorable.io/restorable-home/internal/volume"
)

func TestVolumeRoundTrip(t *testing.T) {
	mtime := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for _, format := range []string{volume.FormatZip, volume.FormatTarZst, volume.FormatTarGz} {
		t.Run(format, func(t *testing.T) {
			vol, err := volume.New(format)
			require.NoError(t, err)
			require.Equal(t, format, vol.Format())

			path := filepath.Join(t.TempDir(), "backup."+format)
			c, err := vol.Create(path)
			require.NoError(t, err)
			content := "<hudson/>\n"
			require.NoError(t, c.Add(&volume.Entry{Name: "jobs", Type: volume.TypeDir, Mode: 0755, ModTime: mtime}, nil))
			require.NoError(t, c.Add(&volume.Entry{
				Name: "jobs/config.xml", Type: volume.TypeFile, Mode: 0640,
				ModTime: mtime, Size: int64(len(content)),
			}, strings.NewReader(content)))
			require.NoError(t, c.Add(&volume.Entry{Name: "latest", Type: volume.TypeSymlink, Linkname: "jobs/config.xml"}, nil))
			require.NoError(t, c.Close())

			x, err := vol.Extract(path)
			require.NoError(t, err)
			defer x.Close()

			e, err := x.Next()
			require.NoError(t, err)
			require.Equal(t, "jobs", e.Name)
			require.Equal(t, volume.TypeDir, e.Type)

			e, err = x.Next()
			require.NoError(t, err)
			require.Equal(t, "jobs/config.xml", e.Name)
			require.Equal(t, volume.TypeFile, e.Type)
			require.Equal(t, os.FileMode(0640), e.Mode)
			data, err := io.ReadAll(x)
			require.NoError(t, err)
			require.Equal(t, content, string(data))

			e, err = x.Next()
			require.NoError(t, err)
			require.Equal(t, volume.TypeSymlink, e.Type)
			require.Equal(t, "jobs/config.xml", e.Linkname)

			_, err = x.Next()
			require.Equal(t, io.EOF, err)
		})
	}
}

func TestExtractCorruptVolume(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage")
	require.NoError(t, os.WriteFile(path, []byte("definitely not an archive"), 0644))

	for _, format := range []string{volume.FormatZip, volume.FormatTarGz} {
		vol, err := volume.New(format)
		require.NoError(t, err)
		_, err = vol.Extract(path)
		require.Error(t, err, format)
	}

	vol, err := volume.New(volume.FormatTarZst)
	require.NoError(t, err)
	x, err := vol.Extract(path)
	if err == nil {
		_, err = x.Next()
		x.Close()
	}
	require.Error(t, err)
}

func TestNewUnknownFormat(t *testing.T) {
	_, err := volume.New("rar")
	require.Error(t, err)

	vol, err := volume.New("")
	require.NoError(t, err)
	require.Equal(t, volume.FormatZip, vol.Format())
}
