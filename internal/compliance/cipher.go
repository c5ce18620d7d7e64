package compliance

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

const ledgerInfo = "sip-compliance-ledger-v1"

var errBadNonce = errors.New("bad nonce length")

// LedgerKey derives the AES-256 key that seals ledger entries from a viewing
// private key.
func LedgerKey(viewingPrivateKey []byte) ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, viewingPrivateKey, nil, []byte(ledgerInfo)), key); err != nil {
		return nil, err
	}
	return key, nil
}

// sealEntry serializes v to JSON and encrypts it with AES-GCM under a fresh
// 12-byte nonce.
func sealEntry(v any, key, ad []byte) (ciphertext, nonce []byte, err error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}
	return gcm.Seal(nil, nonce, plaintext, ad), nonce, nil
}

func openEntry(ciphertext, nonce, key, ad []byte, v any) error {
	gcm, err := newGCM(key)
	if err != nil {
		return err
	}
	if len(nonce) != gcm.NonceSize() {
		return errBadNonce
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, ad)
	if err != nil {
		return err
	}
	return json.Unmarshal(plaintext, v)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
