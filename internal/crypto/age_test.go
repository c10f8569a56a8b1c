package crypto_test

import (
	"os"
	"path/filepath"
	"testing"

	"filippo.io/age"
	"github.com/stretchr/testify/require"
	"restorable.io/restorable-home/internal/config"
	"restorable.io/restorable-home/internal/crypto"
)

func encryptFile(t *testing.T, path string, plain []byte, recipient age.Recipient) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	w, err := age.Encrypt(f, recipient)
	require.NoError(t, err)
	_, err = w.Write(plain)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}

func TestDecryptFile(t *testing.T) {
	id, err := age.GenerateX25519Identity()
	require.NoError(t, err)

	dir := t.TempDir()
	keyPath := filepath.Join(dir, "backup.key")
	require.NoError(t, os.WriteFile(keyPath, []byte(id.String()+"\n"), 0600))

	src := filepath.Join(dir, "vol.age")
	dst := filepath.Join(dir, "vol")
	encryptFile(t, src, []byte("volume bytes"), id.Recipient())

	dec, err := crypto.NewDecryptorFromConfig(&config.Encryption{Method: "age", PrivateKeyPath: keyPath})
	require.NoError(t, err)
	require.NoError(t, dec.DecryptFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "volume bytes", string(data))
}

func TestDecryptFileWrongKey(t *testing.T) {
	id, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	other, err := age.GenerateX25519Identity()
	require.NoError(t, err)

	t.Setenv("TEST_AGE_KEY", other.String())
	dec, err := crypto.NewAgeDecryptorFromEnv("TEST_AGE_KEY")
	require.NoError(t, err)

	dir := t.TempDir()
	src := filepath.Join(dir, "vol.age")
	dst := filepath.Join(dir, "vol")
	encryptFile(t, src, []byte("secret"), id.Recipient())

	require.Error(t, dec.DecryptFile(src, dst))
	require.NoFileExists(t, dst)
}

func TestNewDecryptorFromConfig(t *testing.T) {
	dec, err := crypto.NewDecryptorFromConfig(nil)
	require.NoError(t, err)
	require.Nil(t, dec)

	_, err = crypto.NewDecryptorFromConfig(&config.Encryption{Method: "gpg"})
	require.Error(t, err)

	_, err = crypto.NewDecryptorFromConfig(&config.Encryption{Method: "age", PrivateKeyEnv: "UNSET_TEST_AGE_KEY"})
	require.Error(t, err)
}
