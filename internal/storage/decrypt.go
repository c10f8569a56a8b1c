package storage

import (
	"context"
	"os"

	"restorable.io/restorable-home/internal/crypto"
)

// Decrypting loads age-encrypted archives from the wrapped storage and
// decrypts them into the destination file. Catalog files are stored in
// the clear.
type Decrypting struct {
	Storage
	dec *crypto.AgeDecryptor
}

// NewDecrypting wraps s with decryption of loaded archives.
func NewDecrypting(s Storage, dec *crypto.AgeDecryptor) *Decrypting {
	return &Decrypting{Storage: s, dec: dec}
}

func (d *Decrypting) LoadFile(ctx context.Context, archiveID, destPath string) error {
	encrypted := destPath + ".age"
	defer os.Remove(encrypted)

	if err := d.Storage.LoadFile(ctx, archiveID, encrypted); err != nil {
		return err
	}
	return d.dec.DecryptFile(encrypted, destPath)
}
