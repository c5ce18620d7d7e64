package vault

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"github.com/Maphikza/sip-privacy-wallet/internal/keystore"
	"github.com/Maphikza/sip-privacy-wallet/internal/logger"
	"github.com/Maphikza/sip-privacy-wallet/lib/curve"
)

// MigrateLegacy converts a version 1 single-key blob into a vault record.
// It reports whether a record was added. Running it again, or on a wallet
// that never had a legacy blob, is a no-op.
//
// The legacy key becomes the active record when the vault is empty and an
// archived record otherwise. The legacy blob is deleted only after the new
// vault has been written.
func (v *Vault) MigrateLegacy(ctx context.Context) (bool, error) {
	unlock := v.locker.Lock(v.key(), legacyStorageKey)
	defer unlock()

	var legacy LegacyBlob
	found, err := keystore.GetJSON(ctx, v.store, legacyStorageKey, &legacy)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrVault, err)
	}
	if !found {
		return false, nil
	}

	rec, err := v.recordFromLegacy(legacy)
	if err != nil {
		return false, err
	}

	s, err := v.load(ctx)
	if err != nil {
		return false, err
	}

	added := true
	for _, existing := range s.Records {
		if bytes.Equal(existing.SpendingKeyPair.Public, rec.SpendingKeyPair.Public) {
			added = false
			break
		}
	}

	if added {
		if _, ok := s.active(); ok {
			archivedAt := v.now().UTC()
			rec.ArchivedAt = &archivedAt
			s.Records = append(s.Records, rec)
		} else {
			v.appendActive(s, rec)
		}
		s.Version = StorageVersion
		if err := v.save(ctx, s); err != nil {
			return false, err
		}
	}

	if err := v.store.Delete(ctx, legacyStorageKey); err != nil {
		return added, fmt.Errorf("%w: %v", ErrVault, err)
	}
	if added {
		logger.Info("Migrated legacy stealth keys", "id", rec.ID)
	}
	return added, nil
}

func (v *Vault) recordFromLegacy(legacy LegacyBlob) (KeyRecord, error) {
	spend, err := legacyKeyPair(v.curve, legacy.SpendingPrivateKey, legacy.SpendingPublicKey)
	if err != nil {
		return KeyRecord{}, fmt.Errorf("legacy spending key: %w", err)
	}
	view, err := legacyKeyPair(v.curve, legacy.ViewingPrivateKey, legacy.ViewingPublicKey)
	if err != nil {
		return KeyRecord{}, fmt.Errorf("legacy viewing key: %w", err)
	}
	createdAt := legacy.CreatedAt
	if createdAt.IsZero() {
		createdAt = v.now()
	}
	return KeyRecord{
		ID:              uuid.NewString(),
		Curve:           v.curve.ID(),
		SpendingKeyPair: spend,
		ViewingKeyPair:  view,
		CreatedAt:       createdAt.UTC(),
	}, nil
}

// legacyKeyPair decodes a hex key pair and checks the public half matches.
func legacyKeyPair(c curve.Curve, privHex, pubHex string) (curve.KeyPair, error) {
	priv, err := hex.DecodeString(privHex)
	if err != nil {
		return curve.KeyPair{}, fmt.Errorf("decode private key: %w", err)
	}
	pub, err := hex.DecodeString(pubHex)
	if err != nil {
		return curve.KeyPair{}, fmt.Errorf("decode public key: %w", err)
	}
	derived, err := c.ScalarBaseMult(priv)
	if err != nil {
		return curve.KeyPair{}, err
	}
	if !bytes.Equal(derived, pub) {
		return curve.KeyPair{}, fmt.Errorf("public key does not match private key")
	}
	return curve.KeyPair{Private: priv, Public: pub}, nil
}
