package report

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrUnsigned is returned by Verify for reports without a signature.
var ErrUnsigned = errors.New("report has no signature")

// GenerateKeyPair creates a new Ed25519 key pair for signing reports.
func GenerateKeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// PublicKeyPath returns where the public key belonging to the private key
// at privPath is stored.
func PublicKeyPath(privPath string) string {
	return strings.TrimSuffix(privPath, ".key") + ".pub"
}

// WriteKeyPair stores a key pair as raw key files. The private key is
// readable by the owner only.
func WriteKeyPair(privPath string, pub ed25519.PublicKey, priv ed25519.PrivateKey) error {
	if err := os.WriteFile(privPath, priv, 0600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	if err := os.WriteFile(PublicKeyPath(privPath), pub, 0644); err != nil {
		return fmt.Errorf("failed to write public key: %w", err)
	}
	return nil
}

// Sign signs the report and stores the base64 signature in the report.
// The signature covers the JSON encoding of the report without signature.
func Sign(report *Report, privateKey ed25519.PrivateKey) error {
	report.Signature = ""
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report for signing: %w", err)
	}
	report.Signature = base64.StdEncoding.EncodeToString(ed25519.Sign(privateKey, data))
	return nil
}

// Verify checks the report signature against publicKey.
func Verify(report *Report, publicKey ed25519.PublicKey) (bool, error) {
	if report.Signature == "" {
		return false, ErrUnsigned
	}
	signature, err := base64.StdEncoding.DecodeString(report.Signature)
	if err != nil {
		return false, fmt.Errorf("failed to decode signature: %w", err)
	}

	unsigned := *report
	unsigned.Signature = ""
	data, err := json.Marshal(&unsigned)
	if err != nil {
		return false, fmt.Errorf("failed to marshal report for verification: %w", err)
	}
	return ed25519.Verify(publicKey, data, signature), nil
}

// LoadPrivateKey loads a raw Ed25519 private key from a file.
func LoadPrivateKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	if len(data) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key size: expected %d bytes, got %d", ed25519.PrivateKeySize, len(data))
	}
	return ed25519.PrivateKey(data), nil
}

// LoadPublicKey loads a raw Ed25519 public key from a file.
func LoadPublicKey(path string) (ed25519.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}
	if len(data) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid public key size: expected %d bytes, got %d", ed25519.PublicKeySize, len(data))
	}
	return ed25519.PublicKey(data), nil
}
