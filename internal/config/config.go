package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
	"restorable.io/restorable-home/internal/version"
	"restorable.io/restorable-home/internal/volume"
)

// ErrNotFound is returned by Load when no configuration file exists.
var ErrNotFound = errors.New("config file not found")

// Config matches the structure of the config.yaml file.
type Config struct {
	Version    int         `yaml:"version"`
	MachineID  string      `yaml:"machine_id"`
	Restore    Restore     `yaml:"restore"`
	Storage    Storage     `yaml:"storage"`
	Encryption *Encryption `yaml:"encryption,omitempty"`
	Volume     Volume      `yaml:"volume"`
	Scope      Scope       `yaml:"scope"`
	Hooks      Hooks       `yaml:"hooks"`
	Report     Report      `yaml:"report"`
	Signing    Signing     `yaml:"signing"`
	Logging    Logging     `yaml:"logging"`
}

type Restore struct {
	TargetDir   string `yaml:"target_dir"`
	ScratchDir  string `yaml:"scratch_dir,omitempty"`
	Overwrite   bool   `yaml:"overwrite"`
	Workers     int    `yaml:"workers"`
	VersionFile string `yaml:"version_file"`
}

type Local struct {
	Path string `yaml:"path"`
}

type Storage struct {
	// Type is one of "none", "local" or "s3".
	Type  string `yaml:"type"`
	Local *Local `yaml:"local,omitempty"`
	S3    *S3    `yaml:"s3,omitempty"`
	Retry Retry  `yaml:"retry"`
}

type S3 struct {
	Endpoint     string `yaml:"endpoint"`
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	AccessKeyEnv string `yaml:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env"`
	Prefix       string `yaml:"prefix"`
}

type Retry struct {
	// MaxElapsedSeconds bounds the time spent retrying one storage
	// operation. Zero disables retries.
	MaxElapsedSeconds int `yaml:"max_elapsed_seconds"`
}

type Encryption struct {
	Method         string `yaml:"method"`
	PrivateKeyPath string `yaml:"private_key_path,omitempty"`
	PrivateKeyEnv  string `yaml:"private_key_env,omitempty"`
}

type Volume struct {
	Format string `yaml:"format"`
}

type Scope struct {
	Excludes []string `yaml:"excludes,omitempty"`
}

type Hooks struct {
	NewEnvironment      string `yaml:"new_environment,omitempty"`
	RestoredEnvironment string `yaml:"restored_environment,omitempty"`
	TimeoutMinutes      int    `yaml:"timeout_minutes"`
}

type Report struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type Signing struct {
	PrivateKeyPath string `yaml:"private_key_path,omitempty"`
}

type Logging struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DefaultDir returns the directory holding the default config file, keys
// and reports.
func DefaultDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".restorable-home"), nil
}

// DefaultPath returns the path of the default config file.
func DefaultPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads and parses the configuration file at path. An empty path
// selects DefaultPath. Defaults are applied and the result is validated.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w at %s. Please run 'restorable-home init'", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("could not read config file at %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes, defaults and validates a configuration document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills in unset optional fields.
func (c *Config) ApplyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "none"
	}
	if c.Restore.VersionFile == "" {
		c.Restore.VersionFile = version.DefaultFileName
	}
	if c.Volume.Format == "" {
		c.Volume.Format = volume.FormatZip
	}
	if c.Hooks.TimeoutMinutes == 0 {
		c.Hooks.TimeoutMinutes = 10
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks the configuration for missing or inconsistent values.
func (c *Config) Validate() error {
	if c.Restore.TargetDir == "" {
		return fmt.Errorf("restore.target_dir is not configured")
	}
	if c.Restore.Workers < 0 {
		return fmt.Errorf("restore.workers must not be negative, got %d", c.Restore.Workers)
	}

	switch c.Storage.Type {
	case "none":
	case "local":
		if c.Storage.Local == nil || c.Storage.Local.Path == "" {
			return fmt.Errorf("storage type is 'local' but path is not configured")
		}
	case "s3":
		if c.Storage.S3 == nil || c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage type is 's3' but s3 bucket is not configured")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	if _, err := volume.New(c.Volume.Format); err != nil {
		return err
	}

	if e := c.Encryption; e != nil {
		if e.Method != "age" {
			return fmt.Errorf("unsupported encryption method: %s", e.Method)
		}
		if e.PrivateKeyPath == "" && e.PrivateKeyEnv == "" {
			return fmt.Errorf("encryption requires private_key_path or private_key_env")
		}
	}

	if c.Report.Enabled && c.Report.Dir == "" {
		return fmt.Errorf("report.dir is required when reports are enabled")
	}
	return nil
}
