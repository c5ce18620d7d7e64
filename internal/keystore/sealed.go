package keystore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const (
	sealedHeaderKey = "keystore:header"
	sealedCheck     = "sip-keystore-v1"

	// DefaultScryptN is the scrypt cost used outside of tests.
	DefaultScryptN = 1 << 15
)

// Sealed encrypts every value of an inner Store with a passphrase-derived
// AES-256-GCM key. Opening it is the authentication gate for key material:
// a wrong passphrase fails in NewSealed with ErrSealed.
type Sealed struct {
	inner Store
	aead  cipher.AEAD
}

// NewSealed derives the key for passphrase. On first use it writes a header
// holding the scrypt salt and an encrypted check value.
func NewSealed(ctx context.Context, inner Store, passphrase string, scryptN int) (*Sealed, error) {
	if scryptN <= 0 {
		scryptN = DefaultScryptN
	}

	header, err := inner.Get(ctx, sealedHeaderKey)
	if errors.Is(err, ErrNotFound) {
		return createSealed(ctx, inner, passphrase, scryptN)
	}
	if err != nil {
		return nil, err
	}

	parts := strings.Split(string(header), ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: invalid header format", ErrSealed)
	}
	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid salt", ErrSealed)
	}
	iv, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid nonce", ErrSealed)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid check value", ErrSealed)
	}

	aead, err := newAEAD(passphrase, salt, scryptN)
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil || string(plain) != sealedCheck {
		return nil, ErrSealed
	}
	return &Sealed{inner: inner, aead: aead}, nil
}

func createSealed(ctx context.Context, inner Store, passphrase string, scryptN int) (*Sealed, error) {
	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	aead, err := newAEAD(passphrase, salt, scryptN)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}
	ciphertext := aead.Seal(nil, iv, []byte(sealedCheck), nil)

	header := base64.StdEncoding.EncodeToString(salt) + ":" +
		base64.StdEncoding.EncodeToString(iv) + ":" +
		base64.StdEncoding.EncodeToString(ciphertext)
	if err := inner.Set(ctx, sealedHeaderKey, []byte(header)); err != nil {
		return nil, err
	}
	return &Sealed{inner: inner, aead: aead}, nil
}

func newAEAD(passphrase string, salt []byte, scryptN int) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, 8, 1, 32)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (s *Sealed) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	n := s.aead.NonceSize()
	if len(data) < n {
		return nil, fmt.Errorf("%w: %s", ErrSealed, key)
	}
	// The key is bound as additional data so blobs cannot be swapped.
	plain, err := s.aead.Open(nil, data[:n], data[n:], []byte(key))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSealed, key)
	}
	return plain, nil
}

func (s *Sealed) Set(ctx context.Context, key string, value []byte) error {
	iv := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return err
	}
	return s.inner.Set(ctx, key, s.aead.Seal(iv, iv, value, []byte(key)))
}

func (s *Sealed) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}
