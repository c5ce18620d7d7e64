package keystore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/deroproject/graviton"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testScryptN = 1 << 10

func backends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	sqliteStore, err := OpenSQLite(filepath.Join(dir, "wallet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	gravitonStore, err := OpenGraviton(filepath.Join(dir, "graviton"))
	require.NoError(t, err)

	envStore, err := OpenEnvFile(filepath.Join(dir, "keys", "wallet.env"))
	require.NoError(t, err)

	sealed, err := NewSealed(context.Background(), NewMemory(), "correct horse", testScryptN)
	require.NoError(t, err)

	return map[string]Store{
		"memory":   NewMemory(),
		"sqlite":   sqliteStore,
		"graviton": gravitonStore,
		"envfile":  envStore,
		"sealed":   sealed,
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, "stealth_keys_v2:ed25519")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Set(ctx, "stealth_keys_v2:ed25519", []byte(`{"version":2}`)))
			got, err := s.Get(ctx, "stealth_keys_v2:ed25519")
			require.NoError(t, err)
			assert.Equal(t, []byte(`{"version":2}`), got)

			// Overwrite replaces the whole value.
			require.NoError(t, s.Set(ctx, "stealth_keys_v2:ed25519", []byte{0x00, 0xff, '\n', '"'}))
			got, err = s.Get(ctx, "stealth_keys_v2:ed25519")
			require.NoError(t, err)
			assert.Equal(t, []byte{0x00, 0xff, '\n', '"'}, got)

			require.NoError(t, s.Set(ctx, "scanner:seen", []byte("other")))

			require.NoError(t, s.Delete(ctx, "stealth_keys_v2:ed25519"))
			_, err = s.Get(ctx, "stealth_keys_v2:ed25519")
			assert.ErrorIs(t, err, ErrNotFound)

			// Deleting twice is fine, and a deleted key can be set again.
			require.NoError(t, s.Delete(ctx, "stealth_keys_v2:ed25519"))
			require.NoError(t, s.Set(ctx, "stealth_keys_v2:ed25519", []byte("again")))
			got, err = s.Get(ctx, "stealth_keys_v2:ed25519")
			require.NoError(t, err)
			assert.Equal(t, []byte("again"), got)

			got, err = s.Get(ctx, "scanner:seen")
			require.NoError(t, err)
			assert.Equal(t, []byte("other"), got)
		})
	}
}

func TestGravitonLookupErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		notFound bool
	}{
		{"absent leaf", fmt.Errorf("%w: left dead end at 3", graviton.ErrNotFound), true},
		{"corruption", graviton.ErrCorruption, false},
		{"io", assert.AnError, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := lookupErr("vault", tc.err)
			if tc.notFound {
				assert.ErrorIs(t, err, ErrNotFound)
				return
			}
			assert.NotErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	type blob struct {
		Version int       `json:"version"`
		At      time.Time `json:"at"`
	}
	var out blob
	found, err := GetJSON(ctx, s, "blob", &out)
	require.NoError(t, err)
	assert.False(t, found)

	in := blob{Version: 2, At: time.Unix(1700000000, 0).UTC()}
	require.NoError(t, SetJSON(ctx, s, "blob", in))

	found, err = GetJSON(ctx, s, "blob", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, in, out)

	require.NoError(t, s.Set(ctx, "blob", []byte("{not json")))
	_, err = GetJSON(ctx, s, "blob", &out)
	assert.Error(t, err)
}

func TestSealedRejectsWrongPassphrase(t *testing.T) {
	ctx := context.Background()
	inner := NewMemory()

	s, err := NewSealed(ctx, inner, "correct horse", testScryptN)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "stealth_keys", []byte("secret")))

	raw, err := inner.Get(ctx, "stealth_keys")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")

	_, err = NewSealed(ctx, inner, "battery staple", testScryptN)
	assert.ErrorIs(t, err, ErrSealed)

	reopened, err := NewSealed(ctx, inner, "correct horse", testScryptN)
	require.NoError(t, err)
	got, err := reopened.Get(ctx, "stealth_keys")
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), got)
}

func TestSealedDetectsSwappedBlobs(t *testing.T) {
	ctx := context.Background()
	inner := NewMemory()
	s, err := NewSealed(ctx, inner, "pw", testScryptN)
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "a", []byte("alpha")))
	raw, err := inner.Get(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, inner.Set(ctx, "b", raw))

	_, err = s.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrSealed)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("leveldb", t.TempDir())
	assert.Error(t, err)

	s, err := Open(BackendMemory, "")
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestLockerSerializesSameKey(t *testing.T) {
	l := NewLocker()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("scanner:seen", "payments", "scanner:seen")
			defer unlock()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}
