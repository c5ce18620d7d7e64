// Package amount encrypts transferred amounts under a key derived from the
// stealth shared secret, so only the sender and the recipient can read them.
package amount

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const domainTag = "sip-amount-v1"

var (
	// ErrAuthenticationFailed means the ciphertext was not produced under
	// this key or was tampered with. It never means "zero".
	ErrAuthenticationFailed = errors.New("amount authentication failed")
	ErrMalformedCiphertext  = errors.New("malformed amount ciphertext")
)

// Key is a per-payment symmetric key.
type Key [chacha20poly1305.KeySize]byte

// DeriveKey hashes the shared secret into a symmetric key.
func DeriveKey(sharedSecret []byte) Key {
	h := sha256.New()
	h.Write([]byte(domainTag))
	h.Write(sharedSecret)
	var k Key
	copy(k[:], h.Sum(nil))
	return k
}

// Encrypt seals amount as nonce || ciphertext || tag.
func Encrypt(amount uint64, key Key) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+8+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	var plain [8]byte
	binary.BigEndian.PutUint64(plain[:], amount)
	return aead.Seal(nonce, nonce, plain[:], []byte(domainTag)), nil
}

// Decrypt opens a ciphertext produced by Encrypt.
func Decrypt(ciphertext []byte, key Key) (uint64, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return 0, fmt.Errorf("failed to create cipher: %w", err)
	}
	if len(ciphertext) != aead.NonceSize()+8+aead.Overhead() {
		return 0, fmt.Errorf("%w: got %d bytes", ErrMalformedCiphertext, len(ciphertext))
	}

	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, []byte(domainTag))
	if err != nil {
		return 0, ErrAuthenticationFailed
	}
	return binary.BigEndian.Uint64(plain), nil
}

// EncryptFor derives the key from sharedSecret and encrypts amount.
func EncryptFor(amount uint64, sharedSecret []byte) ([]byte, error) {
	return Encrypt(amount, DeriveKey(sharedSecret))
}

// DecryptWith derives the key from sharedSecret and decrypts ciphertext.
func DecryptWith(ciphertext, sharedSecret []byte) (uint64, error) {
	return Decrypt(ciphertext, DeriveKey(sharedSecret))
}
