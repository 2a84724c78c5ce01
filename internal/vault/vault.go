// Package vault seals and opens per-tenant payment provider secrets with
// AES-256-GCM. Ciphertext, IV and authentication tag are kept as separate
// values so they can live in separate database columns.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/IsakPetersson/Orient/internal/domain"
)

const (
	KeySize = 32
	ivSize  = 12
	tagSize = 16
)

var (
	ErrKeySize = errors.New("vault: encryption key must be 32 bytes")

	// ErrDecryptFailed means authentication failed: the ciphertext, IV or
	// tag was corrupted or tampered with. The vault never returns partial
	// or unauthenticated plaintext.
	ErrDecryptFailed = errors.New("vault: decryption failed, data corrupted or tampered")
)

type Vault struct {
	aead cipher.AEAD
}

// New builds a Vault from a 32-byte key.
func New(key []byte) (*Vault, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// EncryptBytes seals plaintext under a fresh random IV.
func (v *Vault) EncryptBytes(plaintext []byte) (domain.EncryptedBlob, error) {
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return domain.EncryptedBlob{}, fmt.Errorf("vault: iv generation: %w", err)
	}

	sealed := v.aead.Seal(nil, iv, plaintext, nil)
	// Seal appends the tag to the ciphertext; split them for storage.
	cut := len(sealed) - tagSize
	return domain.EncryptedBlob{
		Ciphertext: sealed[:cut],
		IV:         iv,
		Tag:        sealed[cut:],
	}, nil
}

// DecryptBytes opens a sealed blob. Any authentication failure fails closed
// with ErrDecryptFailed.
func (v *Vault) DecryptBytes(blob domain.EncryptedBlob) ([]byte, error) {
	if len(blob.IV) != ivSize {
		return nil, fmt.Errorf("vault: iv must be %d bytes", ivSize)
	}
	if len(blob.Tag) != tagSize {
		return nil, fmt.Errorf("vault: authentication tag must be %d bytes", tagSize)
	}

	sealed := make([]byte, 0, len(blob.Ciphertext)+len(blob.Tag))
	sealed = append(sealed, blob.Ciphertext...)
	sealed = append(sealed, blob.Tag...)

	plaintext, err := v.aead.Open(nil, blob.IV, sealed, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

// EncryptString seals a UTF-8 string.
func (v *Vault) EncryptString(plaintext string) (domain.EncryptedBlob, error) {
	return v.EncryptBytes([]byte(plaintext))
}

// DecryptString opens a sealed blob as a UTF-8 string.
func (v *Vault) DecryptString(blob domain.EncryptedBlob) (string, error) {
	b, err := v.DecryptBytes(blob)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
