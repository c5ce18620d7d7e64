package vault

import (
	"context"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Maphikza/sip-privacy-wallet/internal/keystore"
	"github.com/Maphikza/sip-privacy-wallet/lib/address"
	"github.com/Maphikza/sip-privacy-wallet/lib/curve"
	"github.com/Maphikza/sip-privacy-wallet/lib/stealth"
)

func newVault(t *testing.T, id curve.ID) (*Vault, keystore.Store) {
	t.Helper()
	c, err := curve.ByID(id)
	require.NoError(t, err)
	store := keystore.NewMemory()
	return New(store, nil, c), store
}

func TestEmptyVault(t *testing.T) {
	v, _ := newVault(t, curve.Ed25519)
	ctx := context.Background()

	_, err := v.ActiveKey(ctx)
	assert.ErrorIs(t, err, ErrNoActiveKey)

	has, err := v.HasKeys(ctx)
	require.NoError(t, err)
	assert.False(t, has)

	rec, err := v.EnsureKey(ctx)
	require.NoError(t, err)
	assert.True(t, rec.IsActive)
	assert.Nil(t, rec.ArchivedAt)
	assert.NotEmpty(t, rec.Mnemonic)

	again, err := v.EnsureKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID)
}

func TestConcurrentEnsureKeyCreatesOneRecord(t *testing.T) {
	v, _ := newVault(t, curve.Ed25519)
	ctx := context.Background()

	const callers = 8
	ids := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := v.EnsureKey(ctx)
			ids[i], errs[i] = rec.ID, err
		}(i)
	}
	wg.Wait()

	for i := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	records, err := v.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].IsActive)
}

// brokenStore fails every read.
type brokenStore struct {
	keystore.Store
}

func (brokenStore) Get(context.Context, string) ([]byte, error) {
	return nil, assert.AnError
}

func TestReadFailureIsNotAnEmptyVault(t *testing.T) {
	c, err := curve.ByID(curve.Ed25519)
	require.NoError(t, err)
	v := New(brokenStore{Store: keystore.NewMemory()}, nil, c)
	ctx := context.Background()

	_, err = v.ActiveKey(ctx)
	assert.ErrorIs(t, err, ErrVault)
	assert.NotErrorIs(t, err, ErrNoActiveKey)

	_, err = v.EnsureKey(ctx)
	assert.ErrorIs(t, err, ErrVault)
}

func TestRotateKeepsHistory(t *testing.T) {
	v, _ := newVault(t, curve.Ed25519)
	ctx := context.Background()

	first, err := v.Rotate(ctx)
	require.NoError(t, err)

	const n = 4
	for i := 0; i < n; i++ {
		_, err := v.Rotate(ctx)
		require.NoError(t, err)
	}

	records, err := v.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, n+1)

	active := 0
	for _, r := range records {
		if r.IsActive {
			active++
			assert.Nil(t, r.ArchivedAt)
		} else {
			assert.NotNil(t, r.ArchivedAt)
		}
	}
	assert.Equal(t, 1, active)
	assert.True(t, records[0].IsActive, "active record is listed first")

	old, found, err := v.RecordByID(ctx, first.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, old.IsActive)
	assert.Equal(t, first.SpendingKeyPair, old.SpendingKeyPair)
}

func TestArchivedAtIsStampedOnce(t *testing.T) {
	v, _ := newVault(t, curve.Ed25519)
	ctx := context.Background()

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return clock }

	first, err := v.Rotate(ctx)
	require.NoError(t, err)

	clock = clock.Add(time.Hour)
	_, err = v.Rotate(ctx)
	require.NoError(t, err)

	clock = clock.Add(time.Hour)
	_, err = v.Rotate(ctx)
	require.NoError(t, err)

	rec, _, err := v.RecordByID(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, rec.ArchivedAt)
	assert.Equal(t, time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC), *rec.ArchivedAt)
}

func TestArchivedKeysStillRecognizePayments(t *testing.T) {
	for _, tc := range []struct {
		chain string
		curve curve.ID
	}{
		{address.Solana, curve.Ed25519},
		{address.Ethereum, curve.Secp256k1},
	} {
		t.Run(tc.chain, func(t *testing.T) {
			v, _ := newVault(t, tc.curve)
			ctx := context.Background()

			var payments []*stealth.OneTimeAddress
			var ids []string
			for i := 0; i < 3; i++ {
				rec, err := v.Rotate(ctx)
				require.NoError(t, err)
				meta, err := v.MetaAddress(ctx, tc.chain)
				require.NoError(t, err)
				ota, err := stealth.Generate(meta, nil)
				require.NoError(t, err)
				payments = append(payments, ota)
				ids = append(ids, rec.ID)
			}

			for i, ota := range payments {
				rec, found, err := v.RecordByID(ctx, ids[i])
				require.NoError(t, err)
				require.True(t, found)

				owned, err := stealth.Recognize(v.Curve(), rec.ViewingKeyPair.Private, rec.SpendingKeyPair.Public, ota.EphemeralPublicKey, ota.StealthPublicKey)
				require.NoError(t, err)
				assert.True(t, owned, "payment %d", i)
			}
		})
	}
}

func TestImport(t *testing.T) {
	v, _ := newVault(t, curve.Ed25519)
	ctx := context.Background()

	original, err := v.Rotate(ctx)
	require.NoError(t, err)

	// A second wallet restored from the same phrase has the same keys.
	restored, _ := newVault(t, curve.Ed25519)
	rec, err := restored.Import(ctx, original.Mnemonic)
	require.NoError(t, err)
	assert.Equal(t, original.SpendingKeyPair, rec.SpendingKeyPair)
	assert.Equal(t, original.ViewingKeyPair, rec.ViewingKeyPair)

	// Importing the active phrase again does not duplicate it.
	again, err := restored.Import(ctx, original.Mnemonic)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID)
	records, err := restored.Records(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	_, err = restored.Rotate(ctx)
	require.NoError(t, err)
	_, err = restored.Import(ctx, original.Mnemonic)
	assert.ErrorIs(t, err, ErrKeyArchived)

	_, err = restored.Import(ctx, "not a valid phrase")
	assert.ErrorIs(t, err, ErrInvalidPhrase)
}

func TestMetaAddressCurveMismatch(t *testing.T) {
	v, _ := newVault(t, curve.Ed25519)
	ctx := context.Background()
	_, err := v.Rotate(ctx)
	require.NoError(t, err)

	_, err = v.MetaAddress(ctx, address.Ethereum)
	assert.ErrorIs(t, err, ErrCurveMismatch)

	meta, err := v.MetaAddress(ctx, address.Near)
	require.NoError(t, err)
	parsed, err := address.ParseMetaAddress(meta.String())
	require.NoError(t, err)
	assert.Equal(t, meta, parsed)
}

func legacyBlob(t *testing.T, c curve.Curve) (LegacyBlob, curve.KeyPair) {
	t.Helper()
	seed := make([]byte, 32)
	seed[0] = 7
	spend, err := curve.KeyPairFromSeed(c, seed)
	require.NoError(t, err)
	seed[0] = 9
	view, err := curve.KeyPairFromSeed(c, seed)
	require.NoError(t, err)
	return LegacyBlob{
		SpendingPrivateKey: hex.EncodeToString(spend.Private),
		SpendingPublicKey:  hex.EncodeToString(spend.Public),
		ViewingPrivateKey:  hex.EncodeToString(view.Private),
		ViewingPublicKey:   hex.EncodeToString(view.Public),
		CreatedAt:          time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
	}, spend
}

func TestMigrateLegacyIsIdempotent(t *testing.T) {
	v, store := newVault(t, curve.Ed25519)
	ctx := context.Background()

	blob, spend := legacyBlob(t, v.Curve())
	require.NoError(t, keystore.SetJSON(ctx, store, LegacyStorageKey(), blob))

	added, err := v.MigrateLegacy(ctx)
	require.NoError(t, err)
	assert.True(t, added)

	rec, err := v.ActiveKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, spend, rec.SpendingKeyPair)
	assert.Equal(t, blob.CreatedAt, rec.CreatedAt)

	_, err = store.Get(ctx, LegacyStorageKey())
	assert.ErrorIs(t, err, keystore.ErrNotFound)

	added, err = v.MigrateLegacy(ctx)
	require.NoError(t, err)
	assert.False(t, added)

	// A legacy blob left behind by an interrupted run is not added twice.
	require.NoError(t, keystore.SetJSON(ctx, store, LegacyStorageKey(), blob))
	added, err = v.MigrateLegacy(ctx)
	require.NoError(t, err)
	assert.False(t, added)

	records, err := v.Records(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestMigrateLegacyIntoExistingVaultArchives(t *testing.T) {
	v, store := newVault(t, curve.Ed25519)
	ctx := context.Background()

	current, err := v.Rotate(ctx)
	require.NoError(t, err)

	blob, spend := legacyBlob(t, v.Curve())
	require.NoError(t, keystore.SetJSON(ctx, store, LegacyStorageKey(), blob))

	added, err := v.MigrateLegacy(ctx)
	require.NoError(t, err)
	assert.True(t, added)

	active, err := v.ActiveKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, current.ID, active.ID)

	records, err := v.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, spend, records[1].SpendingKeyPair)
	assert.NotNil(t, records[1].ArchivedAt)
}

func TestMigrateLegacyRejectsMismatchedKeys(t *testing.T) {
	v, store := newVault(t, curve.Ed25519)
	ctx := context.Background()

	blob, _ := legacyBlob(t, v.Curve())
	blob.SpendingPublicKey = blob.ViewingPublicKey
	require.NoError(t, keystore.SetJSON(ctx, store, LegacyStorageKey(), blob))

	_, err := v.MigrateLegacy(ctx)
	assert.Error(t, err)

	// The legacy blob is kept when migration fails.
	_, err = store.Get(ctx, LegacyStorageKey())
	assert.NoError(t, err)
}

func TestWipe(t *testing.T) {
	v, _ := newVault(t, curve.Ed25519)
	ctx := context.Background()
	_, err := v.Rotate(ctx)
	require.NoError(t, err)

	require.NoError(t, v.Wipe(ctx))
	_, err = v.ActiveKey(ctx)
	assert.ErrorIs(t, err, ErrNoActiveKey)
}
