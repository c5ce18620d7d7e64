package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedTransfer(t *testing.T, recipient byte) []byte {
	t.Helper()
	payload, err := json.Marshal(Transfer{
		Chain:            "solana",
		Token:            "SOL",
		From:             "sender",
		StealthRecipient: []byte{recipient},
		EphemeralPubkey:  []byte{0xee},
		EncryptedAmount:  []byte{0xaa},
	})
	require.NoError(t, err)
	raw, err := SignedTransaction{Payload: payload, Signer: "sender", Signature: []byte{1}}.Encode()
	require.NoError(t, err)
	return raw
}

func TestMemoryClientSubmitAndFetch(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryClient()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	m.Now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	h1, err := m.SubmitSignedTransaction(ctx, signedTransfer(t, 1))
	require.NoError(t, err)
	_, err = m.SubmitSignedTransaction(ctx, signedTransfer(t, 2))
	require.NoError(t, err)
	require.NoError(t, m.Confirm(ctx, h1))

	all, err := m.FetchTransferRecordsSince(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, h1, all[0].TxHash)
	assert.Equal(t, "SOL", all[0].Token)

	// since is inclusive
	later, err := m.FetchTransferRecordsSince(ctx, all[1].Timestamp)
	require.NoError(t, err)
	require.Len(t, later, 1)
	assert.Equal(t, []byte{2}, later[0].StealthRecipient)
}

func TestMemoryClientErrors(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryClient()

	err := m.Confirm(ctx, "nope")
	assert.ErrorIs(t, err, ErrChain)
	assert.ErrorIs(t, err, ErrTxNotFound)

	_, err = m.SubmitSignedTransaction(ctx, []byte("garbage"))
	assert.ErrorIs(t, err, ErrChain)

	m.FetchErr = assert.AnError
	_, err = m.FetchTransferRecordsSince(ctx, time.Time{})
	assert.ErrorIs(t, err, ErrChain)
}

func TestHTTPClientFallsBackToNextEndpoint(t *testing.T) {
	var badHits int32
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&badHits, 1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer bad.Close()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/transactions":
			var req submitRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			json.NewEncoder(w).Encode(submitResponse{TxHash: "abc"})
		case r.Method == http.MethodGet && r.URL.Path == "/transfers":
			assert.Equal(t, "1704067200000", r.URL.Query().Get("since"))
			json.NewEncoder(w).Encode([]TransferRecord{{StealthRecipient: []byte{9}, Timestamp: time.Unix(1704067300, 0)}})
		case strings.HasPrefix(r.URL.Path, "/transactions/"):
			json.NewEncoder(w).Encode(statusResponse{Status: "confirmed"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer good.Close()

	c, err := NewHTTPClient([]string{bad.URL, good.URL + "/"})
	require.NoError(t, err)
	ctx := context.Background()

	hash, err := c.SubmitSignedTransaction(ctx, signedTransfer(t, 1))
	require.NoError(t, err)
	assert.Equal(t, TxHash("abc"), hash)

	records, err := c.FetchTransferRecordsSince(ctx, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []byte{9}, records[0].StealthRecipient)

	require.NoError(t, c.Confirm(ctx, hash))
	assert.Equal(t, int32(3), atomic.LoadInt32(&badHits))
}

func TestHTTPClientAllEndpointsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewHTTPClient([]string{srv.URL})
	require.NoError(t, err)

	_, err = c.SubmitSignedTransaction(context.Background(), []byte("{}"))
	assert.ErrorIs(t, err, ErrChain)
}

func TestHTTPClientConfirmStatuses(t *testing.T) {
	var status atomic.Value
	status.Store("pending")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(statusResponse{Status: status.Load().(string), Error: "reverted"})
	}))
	defer srv.Close()

	c, err := NewHTTPClient([]string{srv.URL})
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, c.Confirm(ctx, "h"), ErrNotConfirmed)
	status.Store("failed")
	assert.ErrorIs(t, c.Confirm(ctx, "h"), ErrTxFailed)
	status.Store("finalized")
	assert.NoError(t, c.Confirm(ctx, "h"))
}

func TestNewHTTPClientNeedsEndpoints(t *testing.T) {
	_, err := NewHTTPClient(nil)
	assert.ErrorIs(t, err, ErrChain)
}
