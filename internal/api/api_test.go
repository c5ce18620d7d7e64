package api

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Maphikza/sip-privacy-wallet/internal/chain"
	"github.com/Maphikza/sip-privacy-wallet/internal/compliance"
	"github.com/Maphikza/sip-privacy-wallet/internal/keystore"
	"github.com/Maphikza/sip-privacy-wallet/internal/notify"
	"github.com/Maphikza/sip-privacy-wallet/internal/wallet"
	"github.com/Maphikza/sip-privacy-wallet/lib/address"
)

type fixture struct {
	server *Server
	store  keystore.Store
	ts     *httptest.Server
	sk     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := keystore.NewMemory()
	engine, err := wallet.New(wallet.Options{
		Store:     store,
		Chain:     chain.NewMemoryClient(),
		ChainName: address.Solana,
		Notifier:  &notify.Recorder{},
	})
	require.NoError(t, err)

	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)

	s, err := NewServer(engine, store, Config{AllowedOrigin: "http://localhost:3000", UserPubKey: pk})
	require.NoError(t, err)
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)
	return &fixture{server: s, store: store, ts: ts, sk: sk}
}

func (f *fixture) do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) challenge(t *testing.T) nostr.Event {
	t.Helper()
	resp := f.do(t, http.MethodGet, "/challenge", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ev nostr.Event
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ev))
	return ev
}

func (f *fixture) login(t *testing.T) string {
	t.Helper()
	ev := f.challenge(t)
	require.NoError(t, ev.Sign(f.sk))
	resp := f.do(t, http.MethodPost, "/verify", "", verifyPayload{Challenge: ev.Content, Event: ev})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out["token"])
	return out["token"]
}

func TestLoginFlow(t *testing.T) {
	f := newFixture(t)
	token := f.login(t)

	resp := f.do(t, http.MethodGet, "/meta-address", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var meta MetaAddressResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&meta))
	assert.Equal(t, address.Solana, meta.Chain)
	parsed, err := address.ParseMetaAddress(meta.MetaAddress)
	require.NoError(t, err)
	assert.Equal(t, address.Solana, parsed.Chain)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestChallengeCannotBeReused(t *testing.T) {
	f := newFixture(t)
	ev := f.challenge(t)
	require.NoError(t, ev.Sign(f.sk))
	payload := verifyPayload{Challenge: ev.Content, Event: ev}

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/verify", "", payload).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/verify", "", payload).StatusCode)

	found, err := keystore.GetJSON(context.Background(), f.store, challengeKeyPrefix+challengeHash(ev.Content), &Challenge{})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestConcurrentVerifyIssuesOneToken(t *testing.T) {
	f := newFixture(t)
	ev := f.challenge(t)
	require.NoError(t, ev.Sign(f.sk))
	body, err := json.Marshal(verifyPayload{Challenge: ev.Content, Event: ev})
	require.NoError(t, err)

	const attempts = 8
	codes := make(chan int, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Post(f.ts.URL+"/verify", "application/json", bytes.NewReader(body))
			if err != nil {
				codes <- 0
				return
			}
			resp.Body.Close()
			codes <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(codes)

	ok := 0
	for code := range codes {
		if code == http.StatusOK {
			ok++
		} else {
			assert.Equal(t, http.StatusUnauthorized, code)
		}
	}
	assert.Equal(t, 1, ok)
}

func TestStaleChallengesArePruned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale := &Server{
		store:  f.store,
		locker: f.server.locker,
		cfg:    f.server.cfg,
		now:    func() time.Time { return time.Now().Add(-time.Hour) },
	}
	rec := httptest.NewRecorder()
	stale.HandleChallenge(rec, httptest.NewRequest(http.MethodGet, "/challenge", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var old nostr.Event
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&old))
	oldKey := challengeKeyPrefix + challengeHash(old.Content)

	found, err := keystore.GetJSON(ctx, f.store, oldKey, &Challenge{})
	require.NoError(t, err)
	require.True(t, found)

	fresh := f.challenge(t)

	found, err = keystore.GetJSON(ctx, f.store, oldKey, &Challenge{})
	require.NoError(t, err)
	assert.False(t, found)
	found, err = keystore.GetJSON(ctx, f.store, challengeKeyPrefix+challengeHash(fresh.Content), &Challenge{})
	require.NoError(t, err)
	assert.True(t, found)
}

func TestVerifyRejects(t *testing.T) {
	f := newFixture(t)

	t.Run("wrong key", func(t *testing.T) {
		ev := f.challenge(t)
		require.NoError(t, ev.Sign(nostr.GeneratePrivateKey()))
		resp := f.do(t, http.MethodPost, "/verify", "", verifyPayload{Challenge: ev.Content, Event: ev})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("tampered content", func(t *testing.T) {
		ev := f.challenge(t)
		challenge := ev.Content
		require.NoError(t, ev.Sign(f.sk))
		ev.Content = challenge + "x"
		resp := f.do(t, http.MethodPost, "/verify", "", verifyPayload{Challenge: challenge, Event: ev})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unknown challenge", func(t *testing.T) {
		ev := f.challenge(t)
		require.NoError(t, ev.Sign(f.sk))
		resp := f.do(t, http.MethodPost, "/verify", "", verifyPayload{Challenge: "nope", Event: ev})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("expired challenge", func(t *testing.T) {
		old := time.Now().Add(-time.Hour)
		challenge, hash, err := generateChallenge(old)
		require.NoError(t, err)
		require.NoError(t, keystore.SetJSON(context.Background(), f.store, challengeKeyPrefix+hash, Challenge{
			Challenge: challenge, Hash: hash, Npub: f.server.cfg.UserPubKey, CreatedAt: old,
		}))
		ev := nostr.Event{PubKey: f.server.cfg.UserPubKey, CreatedAt: nostr.Timestamp(old.Unix()), Kind: 1, Tags: nostr.Tags{}, Content: challenge}
		require.NoError(t, ev.Sign(f.sk))
		resp := f.do(t, http.MethodPost, "/verify", "", verifyPayload{Challenge: challenge, Event: ev})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("bad json", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/verify", "", "not an object")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	f := newFixture(t)

	past := &Server{cfg: f.server.cfg, now: func() time.Time { return time.Now().Add(-time.Hour) }}
	expired, err := past.GenerateJWT("someone")
	require.NoError(t, err)

	other, err := NewServer(nil, nil, Config{})
	require.NoError(t, err)
	foreign, err := other.GenerateJWT("someone")
	require.NoError(t, err)

	for _, token := range []string{"", "garbage", expired, foreign} {
		resp := f.do(t, http.MethodGet, "/payments", token, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "token %q", token)
	}

	req, err := http.NewRequest(http.MethodGet, f.ts.URL+"/payments", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Token abc")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodOptions, "/payments", "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	token := f.login(t)
	resp := f.do(t, http.MethodDelete, "/payments", token, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestScanAndPayments(t *testing.T) {
	f := newFixture(t)
	token := f.login(t)

	resp := f.do(t, http.MethodPost, "/scan", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var scan ScanResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&scan))
	assert.Empty(t, scan.Found)

	resp = f.do(t, http.MethodGet, "/payments", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetaAddressOtherChain(t *testing.T) {
	f := newFixture(t)
	token := f.login(t)

	resp := f.do(t, http.MethodGet, "/meta-address?chain=near", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var meta MetaAddressResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&meta))
	assert.Equal(t, "near", meta.Chain)

	resp = f.do(t, http.MethodGet, "/meta-address?chain=ethereum", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = f.do(t, http.MethodGet, "/meta-address?chain=dogecoin", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDisclosures(t *testing.T) {
	f := newFixture(t)
	token := f.login(t)

	resp := f.do(t, http.MethodPost, "/disclosures", token, DisclosureRequest{Purpose: "audit"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/disclosures", token, DisclosureRequest{RecipientName: "Auditor", Purpose: "audit"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out DisclosureResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	key, err := hex.DecodeString(out.ViewingKey)
	require.NoError(t, err)
	assert.Len(t, key, 32)

	resp = f.do(t, http.MethodPost, "/disclosures/"+out.Disclosure.ID+"/revoke", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var revoked compliance.Disclosure
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&revoked))
	assert.True(t, revoked.Revoked)

	resp = f.do(t, http.MethodPost, "/disclosures/missing/revoke", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/disclosures", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []compliance.Disclosure
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list, 1)

	resp = f.do(t, http.MethodGet, "/compliance/export?since=2020-01-01T00:00:00Z", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = f.do(t, http.MethodGet, "/compliance/export?since=yesterday", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPaylinkParse(t *testing.T) {
	f := newFixture(t)
	token := f.login(t)

	resp := f.do(t, http.MethodGet, "/meta-address", token, nil)
	var meta MetaAddressResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&meta))

	amount := "1.5"
	link := address.FormatPaymentRequest(address.PaymentRequest{Address: meta.MetaAddress, Amount: &amount})
	resp = f.do(t, http.MethodPost, "/paylink/parse", token, PaylinkRequest{Link: link})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out PaylinkResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, string(address.KindStealth), out.Kind)
	require.NotNil(t, out.Amount)
	assert.Equal(t, "1.5", *out.Amount)
	assert.Nil(t, out.Token)

	resp = f.do(t, http.MethodPost, "/paylink/parse", token, PaylinkRequest{Link: "https://example.com"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
