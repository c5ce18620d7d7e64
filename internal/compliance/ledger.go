// Package compliance keeps the encrypted record of payments made through
// delegated privacy providers, and the list of parties a viewing key was
// disclosed to.
//
// Entries are sealed with a key derived from the viewing private key, so
// anyone holding that key (the wallet, or an auditor it was disclosed to)
// can read them and nobody else can.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Maphikza/sip-privacy-wallet/internal/keystore"
	"github.com/Maphikza/sip-privacy-wallet/internal/logger"
	"github.com/Maphikza/sip-privacy-wallet/internal/vault"
)

const (
	LedgerStorageKey      = "compliance:ledger"
	DisclosuresStorageKey = "compliance:disclosures"

	bundleVersion = 1
)

// ErrLedger wraps every ledger failure.
var ErrLedger = errors.New("compliance ledger error")

type RecordID string

// Record is the plaintext of one ledger entry.
type Record struct {
	Provider  string            `json:"provider"`
	TxHash    string            `json:"txHash"`
	Amount    uint64            `json:"amount"`
	Token     string            `json:"token,omitempty"`
	Recipient string            `json:"recipient"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// EncryptedRecord is one stored entry. Provider and Timestamp stay in the
// clear for filtering; both are bound into the authentication tag.
type EncryptedRecord struct {
	ID         RecordID  `json:"id"`
	Ciphertext []byte    `json:"ciphertext"`
	Nonce      []byte    `json:"nonce"`
	Timestamp  time.Time `json:"timestamp"`
	Provider   string    `json:"provider"`
}

func (e EncryptedRecord) additionalData() []byte {
	return []byte(string(e.ID) + "|" + e.Provider + "|" + e.Timestamp.UTC().Format(time.RFC3339Nano))
}

// DecryptedRecord pairs an entry's ID with its plaintext.
type DecryptedRecord struct {
	ID RecordID `json:"id"`
	Record
}

// Filter narrows listings. Zero fields match everything.
type Filter struct {
	Provider string
	Since    time.Time
	Until    time.Time
}

func (f Filter) match(e EncryptedRecord) bool {
	if f.Provider != "" && f.Provider != e.Provider {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	return true
}

// EncryptedBundle is what gets handed to an auditor.
type EncryptedBundle struct {
	Version    int               `json:"version"`
	ExportedAt time.Time         `json:"exportedAt"`
	Entries    []EncryptedRecord `json:"entries"`
}

type ledgerBlob struct {
	Version int               `json:"version"`
	Entries []EncryptedRecord `json:"entries"`
}

type Ledger struct {
	store  keystore.Store
	locker *keystore.Locker
	vault  *vault.Vault
	now    func() time.Time
}

// New returns a ledger whose keys come from v.
func New(store keystore.Store, locker *keystore.Locker, v *vault.Vault) *Ledger {
	if locker == nil {
		locker = keystore.NewLocker()
	}
	return &Ledger{store: store, locker: locker, vault: v, now: time.Now}
}

func (l *Ledger) load(ctx context.Context) (*ledgerBlob, error) {
	var b ledgerBlob
	if _, err := keystore.GetJSON(ctx, l.store, LedgerStorageKey, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedger, err)
	}
	b.Version = bundleVersion
	return &b, nil
}

// Append seals rec under the active viewing key and stores it.
func (l *Ledger) Append(ctx context.Context, rec Record) (RecordID, error) {
	active, err := l.vault.ActiveKey(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLedger, err)
	}
	key, err := LedgerKey(active.ViewingKeyPair.Private)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLedger, err)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.now()
	}

	entry := EncryptedRecord{
		ID:        RecordID(uuid.NewString()),
		Timestamp: rec.Timestamp,
		Provider:  rec.Provider,
	}
	entry.Ciphertext, entry.Nonce, err = sealEntry(rec, key, entry.additionalData())
	if err != nil {
		return "", fmt.Errorf("%w: seal: %v", ErrLedger, err)
	}

	unlock := l.locker.Lock(LedgerStorageKey)
	defer unlock()
	b, err := l.load(ctx)
	if err != nil {
		return "", err
	}
	b.Entries = append(b.Entries, entry)
	if err := keystore.SetJSON(ctx, l.store, LedgerStorageKey, b); err != nil {
		return "", fmt.Errorf("%w: %v", ErrLedger, err)
	}
	logger.Info("Compliance record appended", "id", entry.ID, "provider", rec.Provider)
	return entry.ID, nil
}

// ListDecrypted opens every matching entry with whichever known viewing key
// sealed it. Entries no key can open are skipped and logged.
func (l *Ledger) ListDecrypted(ctx context.Context, f Filter) ([]DecryptedRecord, error) {
	records, err := l.vault.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedger, err)
	}
	keys := make([][]byte, 0, len(records))
	for _, r := range records {
		k, err := LedgerKey(r.ViewingKeyPair.Private)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLedger, err)
		}
		keys = append(keys, k)
	}

	b, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	return openEntries(b.Entries, keys, f), nil
}

// Export returns the matching entries still encrypted.
func (l *Ledger) Export(ctx context.Context, f Filter) (EncryptedBundle, error) {
	b, err := l.load(ctx)
	if err != nil {
		return EncryptedBundle{}, err
	}
	bundle := EncryptedBundle{Version: bundleVersion, ExportedAt: l.now()}
	for _, e := range b.Entries {
		if f.match(e) {
			bundle.Entries = append(bundle.Entries, e)
		}
	}
	return bundle, nil
}

// DecryptBundle is the auditor side of Export.
func DecryptBundle(bundle EncryptedBundle, viewingPrivateKey []byte) ([]DecryptedRecord, error) {
	if bundle.Version != bundleVersion {
		return nil, fmt.Errorf("%w: unsupported bundle version %d", ErrLedger, bundle.Version)
	}
	key, err := LedgerKey(viewingPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedger, err)
	}
	return openEntries(bundle.Entries, [][]byte{key}, Filter{}), nil
}

// Clear drops the whole ledger. There is no undo.
func (l *Ledger) Clear(ctx context.Context) error {
	unlock := l.locker.Lock(LedgerStorageKey)
	defer unlock()
	if err := l.store.Delete(ctx, LedgerStorageKey); err != nil {
		return fmt.Errorf("%w: %v", ErrLedger, err)
	}
	logger.Warn("Compliance ledger cleared")
	return nil
}

func openEntries(entries []EncryptedRecord, keys [][]byte, f Filter) []DecryptedRecord {
	out := make([]DecryptedRecord, 0, len(entries))
	for _, e := range entries {
		if !f.match(e) {
			continue
		}
		var (
			rec    Record
			opened bool
		)
		for _, k := range keys {
			if err := openEntry(e.Ciphertext, e.Nonce, k, e.additionalData(), &rec); err == nil {
				opened = true
				break
			}
		}
		if !opened {
			logger.Warn("Compliance entry failed authentication, skipping", "id", e.ID)
			continue
		}
		out = append(out, DecryptedRecord{ID: e.ID, Record: rec})
	}
	return out
}
