package crypto

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"restorable.io/restorable-home/internal/config"
)

// AgeDecryptor handles age-encrypted backup volumes.
type AgeDecryptor struct {
	identities []age.Identity
}

// NewAgeDecryptor creates a decryptor from a private key file path.
func NewAgeDecryptor(privateKeyPath string) (*AgeDecryptor, error) {
	keyData, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read age private key from %s: %w", privateKeyPath, err)
	}

	identities, err := age.ParseIdentities(bytes.NewReader(keyData))
	if err != nil {
		return nil, fmt.Errorf("failed to parse age identities: %w", err)
	}

	if len(identities) == 0 {
		return nil, fmt.Errorf("no age identities found in %s", privateKeyPath)
	}

	return &AgeDecryptor{identities: identities}, nil
}

// NewAgeDecryptorFromEnv creates a decryptor using a private key from an environment variable.
func NewAgeDecryptorFromEnv(envVar string) (*AgeDecryptor, error) {
	keyData := os.Getenv(envVar)
	if keyData == "" {
		return nil, fmt.Errorf("age private key environment variable %s is not set", envVar)
	}

	identities, err := age.ParseIdentities(strings.NewReader(keyData))
	if err != nil {
		return nil, fmt.Errorf("failed to parse age identities from env: %w", err)
	}

	if len(identities) == 0 {
		return nil, fmt.Errorf("no age identities found in environment variable %s", envVar)
	}

	return &AgeDecryptor{identities: identities}, nil
}

// NewDecryptorFromConfig returns the decryptor described by cfg, or nil if
// backups are not encrypted.
func NewDecryptorFromConfig(cfg *config.Encryption) (*AgeDecryptor, error) {
	if cfg == nil {
		return nil, nil
	}
	if cfg.Method != "age" {
		return nil, fmt.Errorf("unsupported encryption method: %s", cfg.Method)
	}
	if cfg.PrivateKeyPath != "" {
		return NewAgeDecryptor(cfg.PrivateKeyPath)
	}
	return NewAgeDecryptorFromEnv(cfg.PrivateKeyEnv)
}

// Decrypt wraps the reader with age decryption.
// The returned reader must be fully consumed.
func (d *AgeDecryptor) Decrypt(r io.Reader) (io.Reader, error) {
	decrypted, err := age.Decrypt(r, d.identities...)
	if err != nil {
		return nil, fmt.Errorf("age decryption failed: %w", err)
	}
	return decrypted, nil
}

// DecryptFile decrypts the file at src into a new file at dst. dst is
// removed again if decryption fails half-way.
func (d *AgeDecryptor) DecryptFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open encrypted volume %s: %w", src, err)
	}
	defer in.Close()

	plain, err := d.Decrypt(in)
	if err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create decrypted volume %s: %w", dst, err)
	}
	if _, err := io.Copy(out, plain); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("age decryption of %s failed: %w", src, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("failed to write decrypted volume %s: %w", dst, err)
	}
	return nil
}
