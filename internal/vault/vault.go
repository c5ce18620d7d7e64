// Package vault owns the append-only history of stealth key records.
//
// Rotation archives the active record and appends a new one; records are
// never removed, so every one-time address ever derived from this wallet
// stays recognizable and claimable.
package vault

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/hkdf"

	"github.com/Maphikza/sip-privacy-wallet/internal/keystore"
	"github.com/Maphikza/sip-privacy-wallet/internal/logger"
	"github.com/Maphikza/sip-privacy-wallet/lib/address"
	"github.com/Maphikza/sip-privacy-wallet/lib/curve"
)

var (
	// ErrVault wraps every persistence failure.
	ErrVault          = errors.New("vault storage error")
	ErrNoActiveKey    = errors.New("no active stealth key")
	ErrInvalidPhrase  = errors.New("invalid recovery phrase")
	ErrCurveMismatch  = errors.New("chain uses a different curve than this vault")
	ErrCorruptedVault = errors.New("vault has no single active record")
	ErrKeyArchived    = errors.New("recovery phrase belongs to an archived record")
)

// Vault manages the key history of one curve.
type Vault struct {
	store  keystore.Store
	locker *keystore.Locker
	curve  curve.Curve

	now func() time.Time
}

// New returns a vault for c backed by store. Locks on the vault's storage
// key are taken from locker, which should be shared with any other writer.
func New(store keystore.Store, locker *keystore.Locker, c curve.Curve) *Vault {
	if locker == nil {
		locker = keystore.NewLocker()
	}
	return &Vault{
		store:  store,
		locker: locker,
		curve:  c,
		now:    time.Now,
	}
}

// Curve returns the group this vault's keys live in.
func (v *Vault) Curve() curve.Curve {
	return v.curve
}

func (v *Vault) key() string {
	return StorageKey(v.curve.ID())
}

func (v *Vault) load(ctx context.Context) (*Storage, error) {
	var s Storage
	found, err := keystore.GetJSON(ctx, v.store, v.key(), &s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVault, err)
	}
	if !found {
		return &Storage{Version: StorageVersion}, nil
	}
	return &s, nil
}

func (v *Vault) save(ctx context.Context, s *Storage) error {
	if err := keystore.SetJSON(ctx, v.store, v.key(), s); err != nil {
		return fmt.Errorf("%w: %v", ErrVault, err)
	}
	return nil
}

// ActiveKey returns the single active record.
func (v *Vault) ActiveKey(ctx context.Context) (KeyRecord, error) {
	s, err := v.load(ctx)
	if err != nil {
		return KeyRecord{}, err
	}
	if len(s.Records) == 0 {
		return KeyRecord{}, ErrNoActiveKey
	}
	r, ok := s.active()
	if !ok {
		return KeyRecord{}, ErrCorruptedVault
	}
	return r, nil
}

// RecordByID looks up a record, active or archived.
func (v *Vault) RecordByID(ctx context.Context, id string) (KeyRecord, bool, error) {
	s, err := v.load(ctx)
	if err != nil {
		return KeyRecord{}, false, err
	}
	for _, r := range s.Records {
		if r.ID == id {
			return r, true, nil
		}
	}
	return KeyRecord{}, false, nil
}

// Records returns the whole history with the active record first and the
// rest in creation order.
func (v *Vault) Records(ctx context.Context) ([]KeyRecord, error) {
	s, err := v.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]KeyRecord, 0, len(s.Records))
	if r, ok := s.active(); ok {
		out = append(out, r)
	}
	for _, r := range s.Records {
		if r.ID != s.ActiveKeyID {
			out = append(out, r)
		}
	}
	return out, nil
}

// HasKeys reports whether at least one record exists.
func (v *Vault) HasKeys(ctx context.Context) (bool, error) {
	s, err := v.load(ctx)
	if err != nil {
		return false, err
	}
	return len(s.Records) > 0, nil
}

// Rotate generates a fresh record from a new recovery phrase, archives the
// current active record and activates the new one. On an empty vault it
// creates the first record.
func (v *Vault) Rotate(ctx context.Context) (KeyRecord, error) {
	return v.generate(ctx, false)
}

// generate appends a record built from a new recovery phrase. With firstOnly
// set it leaves a non-empty vault alone and returns its active record.
func (v *Vault) generate(ctx context.Context, firstOnly bool) (KeyRecord, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return KeyRecord{}, fmt.Errorf("failed to generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return KeyRecord{}, fmt.Errorf("failed to generate mnemonic: %w", err)
	}
	rec, err := v.recordFromMnemonic(mnemonic)
	if err != nil {
		return KeyRecord{}, err
	}

	unlock := v.locker.Lock(v.key())
	defer unlock()

	s, err := v.load(ctx)
	if err != nil {
		return KeyRecord{}, err
	}
	if firstOnly && len(s.Records) > 0 {
		r, ok := s.active()
		if !ok {
			return KeyRecord{}, ErrCorruptedVault
		}
		return r, nil
	}
	v.appendActive(s, rec)
	if err := v.save(ctx, s); err != nil {
		return KeyRecord{}, err
	}
	logger.Info("Rotated stealth keys", "id", rec.ID, "records", len(s.Records))
	return rec, nil
}

// EnsureKey returns the active record, creating the first one if the vault
// is empty.
func (v *Vault) EnsureKey(ctx context.Context) (KeyRecord, error) {
	rec, err := v.ActiveKey(ctx)
	if errors.Is(err, ErrNoActiveKey) {
		return v.generate(ctx, true)
	}
	return rec, err
}

// Import restores the keys of a recovery phrase as the new active record.
// Importing the phrase of the active record is a no-op; the phrase of an
// archived record is refused because archived records stay archived.
func (v *Vault) Import(ctx context.Context, mnemonic string) (KeyRecord, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return KeyRecord{}, ErrInvalidPhrase
	}
	rec, err := v.recordFromMnemonic(mnemonic)
	if err != nil {
		return KeyRecord{}, err
	}

	unlock := v.locker.Lock(v.key())
	defer unlock()

	s, err := v.load(ctx)
	if err != nil {
		return KeyRecord{}, err
	}

	for _, existing := range s.Records {
		if !bytes.Equal(existing.SpendingKeyPair.Public, rec.SpendingKeyPair.Public) {
			continue
		}
		if existing.IsActive {
			return existing, nil
		}
		return KeyRecord{}, fmt.Errorf("%w: %s", ErrKeyArchived, existing.ID)
	}

	v.appendActive(s, rec)
	if err := v.save(ctx, s); err != nil {
		return KeyRecord{}, err
	}
	logger.Info("Imported stealth keys", "id", rec.ID)
	return rec, nil
}

// MetaAddress returns the shareable meta-address of the active record on
// chain. The chain's curve must match the vault's.
func (v *Vault) MetaAddress(ctx context.Context, chain string) (address.MetaAddress, error) {
	c, err := address.LookupChain(chain)
	if err != nil {
		return address.MetaAddress{}, err
	}
	if c.Curve != v.curve.ID() {
		return address.MetaAddress{}, fmt.Errorf("%w: %s needs %s", ErrCurveMismatch, chain, c.Curve)
	}
	rec, err := v.ActiveKey(ctx)
	if err != nil {
		return address.MetaAddress{}, err
	}
	return address.MetaAddress{
		Chain:             chain,
		SpendingPublicKey: rec.SpendingKeyPair.Public,
		ViewingPublicKey:  rec.ViewingKeyPair.Public,
	}, nil
}

// Wipe deletes the vault and any legacy blob. This is the only way records
// are ever removed.
func (v *Vault) Wipe(ctx context.Context) error {
	unlock := v.locker.Lock(v.key(), legacyStorageKey)
	defer unlock()

	if err := v.store.Delete(ctx, v.key()); err != nil {
		return fmt.Errorf("%w: %v", ErrVault, err)
	}
	if err := v.store.Delete(ctx, legacyStorageKey); err != nil {
		return fmt.Errorf("%w: %v", ErrVault, err)
	}
	logger.Warn("Stealth key vault wiped", "curve", v.curve.ID())
	return nil
}

// archiveActive stamps archivedAt on the active record. A record is archived
// exactly once.
func (v *Vault) archiveActive(s *Storage) {
	now := v.now().UTC()
	for i := range s.Records {
		if s.Records[i].IsActive {
			s.Records[i].IsActive = false
			if s.Records[i].ArchivedAt == nil {
				s.Records[i].ArchivedAt = &now
			}
		}
	}
	s.ActiveKeyID = ""
}

func (v *Vault) appendActive(s *Storage, rec KeyRecord) {
	v.archiveActive(s)
	rec.IsActive = true
	rec.ArchivedAt = nil
	s.Version = StorageVersion
	s.Records = append(s.Records, rec)
	s.ActiveKeyID = rec.ID
}

func (v *Vault) recordFromMnemonic(mnemonic string) (KeyRecord, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return KeyRecord{}, fmt.Errorf("%w: %v", ErrInvalidPhrase, err)
	}
	spend, err := v.deriveKeyPair(seed, "spend")
	if err != nil {
		return KeyRecord{}, err
	}
	view, err := v.deriveKeyPair(seed, "view")
	if err != nil {
		return KeyRecord{}, err
	}
	return KeyRecord{
		ID:              uuid.NewString(),
		Curve:           v.curve.ID(),
		SpendingKeyPair: spend,
		ViewingKeyPair:  view,
		CreatedAt:       v.now().UTC(),
		Mnemonic:        mnemonic,
	}, nil
}

// deriveKeyPair expands the bip39 seed into an independent 32-byte seed per
// role and curve.
func (v *Vault) deriveKeyPair(seed []byte, role string) (curve.KeyPair, error) {
	info := []byte("sip-stealth-" + role + "-" + string(v.curve.ID()))
	r := hkdf.New(sha256.New, seed, nil, info)
	sub := make([]byte, 32)
	if _, err := io.ReadFull(r, sub); err != nil {
		return curve.KeyPair{}, err
	}
	kp, err := curve.KeyPairFromSeed(v.curve, sub)
	if err != nil {
		return curve.KeyPair{}, fmt.Errorf("failed to derive %s key: %w", role, err)
	}
	return kp, nil
}
