package restore_test

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"restorable.io/restorable-home/internal/version"
	"restorable.io/restorable-home/internal/volume"
)

// memStorage serves volumes whose content is the archive id, unless a
// prepared file is registered in files.
type memStorage struct {
	version  version.Version
	archives []string
	tracked  []string
	files    map[string]string
	delays   map[string]time.Duration
	fail     map[string]error

	mu     sync.Mutex
	loaded []string
}

func (s *memStorage) VersionInfo(ctx context.Context) (version.Version, error) {
	return s.version, nil
}

func (s *memStorage) FindLatestBackup(ctx context.Context) ([]string, error) {
	return s.archives, nil
}

func (s *memStorage) ListMetadataForExistingFiles(ctx context.Context) ([]string, error) {
	return s.tracked, nil
}

func (s *memStorage) LoadFile(ctx context.Context, archiveID, destPath string) error {
	if d := s.delays[archiveID]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	s.loaded = append(s.loaded, archiveID)
	s.mu.Unlock()

	if err := s.fail[archiveID]; err != nil {
		return err
	}
	if src, ok := s.files[archiveID]; ok {
		data, err := os.ReadFile(src)
		if err != nil {
			return err
		}
		return os.WriteFile(destPath, data, 0600)
	}
	return os.WriteFile(destPath, []byte(archiveID), 0600)
}

func (s *memStorage) Identifier() string { return "mem" }

// idVolume opens volumes written by memStorage. Volumes whose id starts
// with "corrupt" fail to open.
type idVolume struct{}

func (idVolume) Format() string { return "id" }

func (idVolume) Extract(path string) (volume.Extractor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	id := string(data)
	if strings.HasPrefix(id, "corrupt") {
		return nil, errors.New("not a valid volume")
	}
	return &idExtractor{id: id}, nil
}

func (idVolume) Create(path string) (volume.Creator, error) {
	return nil, errors.New("not supported")
}

type idExtractor struct {
	id string
}

func (x *idExtractor) Next() (*volume.Entry, error) { return nil, io.EOF }
func (x *idExtractor) Read(p []byte) (int, error) { return 0, io.EOF }
func (x *idExtractor) Close() error { return nil }

// recordingScope records the order of extractions and notes whether two
// of them ever overlapped. An archive with id "panic" panics.
type recordingScope struct {
	hold time.Duration

	active     atomic.Int32
	overlapped atomic.Bool

	mu        sync.Mutex
	order     []string
	decisions []map[string]bool
}

func (s *recordingScope) ExtractFiles(targetDir string, ex volume.Extractor, overwrite bool, restoreFromBackup map[string]bool) error {
	if s.active.Add(1) > 1 {
		s.overlapped.Store(true)
	}
	defer s.active.Add(-1)

	id := ex.(*idExtractor).id
	if id == "panic" {
		panic("scope exploded")
	}
	if s.hold > 0 {
		time.Sleep(s.hold)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = append(s.order, id)
	s.decisions = append(s.decisions, restoreFromBackup)
	return nil
}

func (s *recordingScope) extracted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

type strategyCall struct {
	fresh       bool
	targetDir   string
	lastArchive string
}

type recordingStrategy struct {
	calls []strategyCall
}

func (s *recordingStrategy) InitializeNewEnvironment(ctx context.Context, targetDir string) error {
	s.calls = append(s.calls, strategyCall{fresh: true, targetDir: targetDir})
	return nil
}

func (s *recordingStrategy) InitializeRestoredEnvironment(ctx context.Context, targetDir, lastArchive string) error {
	s.calls = append(s.calls, strategyCall{targetDir: targetDir, lastArchive: lastArchive})
	return nil
}
