package vault

import (
	"time"

	"github.com/Maphikza/sip-privacy-wallet/lib/curve"
)

const (
	// StorageVersion is the current KeyVaultStorage format.
	StorageVersion = 2

	legacyStorageKey = "stealth_keys"
	storageKeyPrefix = "stealth_keys_v2:"
)

// StorageKey is the keystore key holding the vault for one curve.
func StorageKey(id curve.ID) string {
	return storageKeyPrefix + string(id)
}

// LegacyStorageKey holds the pre-versioned single-key blob.
func LegacyStorageKey() string {
	return legacyStorageKey
}

// KeyRecord is one spending/viewing key pair in the vault history.
type KeyRecord struct {
	ID              string        `json:"id"`
	Curve           curve.ID      `json:"curve"`
	SpendingKeyPair curve.KeyPair `json:"spendingKeyPair"`
	ViewingKeyPair  curve.KeyPair `json:"viewingKeyPair"`
	CreatedAt       time.Time     `json:"createdAt"`
	ArchivedAt      *time.Time    `json:"archivedAt,omitempty"`
	IsActive        bool          `json:"isActive"`
	Mnemonic        string        `json:"mnemonic,omitempty"`
}

// Storage is the whole persisted vault. It is always written in one piece.
type Storage struct {
	Version     int         `json:"version"`
	ActiveKeyID string      `json:"activeKeyId"`
	Records     []KeyRecord `json:"records"`
}

// LegacyBlob is the version 1 single-slot format. Keys are hex encoded.
type LegacyBlob struct {
	SpendingPrivateKey string    `json:"spendingPrivateKey"`
	SpendingPublicKey  string    `json:"spendingPublicKey"`
	ViewingPrivateKey  string    `json:"viewingPrivateKey"`
	ViewingPublicKey   string    `json:"viewingPublicKey"`
	CreatedAt          time.Time `json:"createdAt"`
}

func (s *Storage) active() (KeyRecord, bool) {
	for _, r := range s.Records {
		if r.ID == s.ActiveKeyID && r.IsActive {
			return r, true
		}
	}
	return KeyRecord{}, false
}
