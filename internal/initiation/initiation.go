// Package initiation prepares a state directory for use after it has been
// restored from a backup or created from scratch.
package initiation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// MarkerFileName is the file below the state directory that records how
// the state was initialized.
const MarkerFileName = ".restorable-state.yaml"

// Strategy is invoked once a restore has decided the outcome.
type Strategy interface {
	// InitializeNewEnvironment sets up a state directory that has no
	// backup history.
	InitializeNewEnvironment(ctx context.Context, targetDir string) error
	// InitializeRestoredEnvironment finishes a state directory that was
	// restored up to lastArchive.
	InitializeRestoredEnvironment(ctx context.Context, targetDir, lastArchive string) error
}

// Marker is the content of the marker file.
type Marker struct {
	Fresh         bool      `yaml:"fresh"`
	LastArchive   string    `yaml:"last_archive,omitempty"`
	InitializedAt time.Time `yaml:"initialized_at"`
}

// Default creates the state directory and records the outcome in the
// marker file.
type Default struct {
	// Now returns the current time; nil selects time.Now.
	Now func() time.Time
}

var _ Strategy = Default{}

func (d Default) InitializeNewEnvironment(ctx context.Context, targetDir string) error {
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", targetDir, err)
	}
	return d.writeMarker(targetDir, Marker{Fresh: true})
}

func (d Default) InitializeRestoredEnvironment(ctx context.Context, targetDir, lastArchive string) error {
	return d.writeMarker(targetDir, Marker{LastArchive: lastArchive})
}

func (d Default) writeMarker(targetDir string, m Marker) error {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	m.InitializedAt = now().UTC()

	data, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("failed to marshal state marker: %w", err)
	}
	path := filepath.Join(targetDir, MarkerFileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write state marker %s: %w", path, err)
	}
	return nil
}

// ReadMarker loads the marker file from targetDir. It returns nil without
// error if there is none.
func ReadMarker(targetDir string) (*Marker, error) {
	data, err := os.ReadFile(filepath.Join(targetDir, MarkerFileName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state marker: %w", err)
	}
	var m Marker
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse state marker: %w", err)
	}
	return &m, nil
}
