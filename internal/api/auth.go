package api

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/golang-jwt/jwt/v4"
	"github.com/nbd-wtf/go-nostr"

	"github.com/Maphikza/sip-privacy-wallet/internal/keystore"
	"github.com/Maphikza/sip-privacy-wallet/internal/logger"
)

const (
	challengeKeyPrefix = "api:challenge:"
	challengeIndexKey  = "api:challenges"
	challengeTTL       = 2 * time.Minute
	tokenTTL           = 15 * time.Minute
)

// GenerateJWTKey returns a fresh 256-bit HMAC key.
func GenerateJWTKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate JWT key: %v", err)
	}
	return key, nil
}

func generateChallenge(now time.Time) (string, string, error) {
	letters := []byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
	challenge := make([]byte, 16)
	if _, err := rand.Read(challenge); err != nil {
		return "", "", err
	}
	for i := range challenge {
		challenge[i] = letters[challenge[i]%byte(len(letters))]
	}
	full := fmt.Sprintf("%s-%s", string(challenge), now.Format(time.RFC3339Nano))
	return full, challengeHash(full), nil
}

func challengeHash(challenge string) string {
	h := sha256.Sum256([]byte(challenge))
	return hex.EncodeToString(h[:])
}

// HandleChallenge issues a login challenge wrapped in an unsigned nostr
// event for the client to sign.
func (s *Server) HandleChallenge(w http.ResponseWriter, r *http.Request) {
	if s.cfg.UserPubKey == "" {
		http.Error(w, "Primary user public key not configured", http.StatusInternalServerError)
		return
	}

	now := s.now()
	challenge, hash, err := generateChallenge(now)
	if err != nil {
		http.Error(w, "Failed to generate challenge", http.StatusInternalServerError)
		return
	}
	c := Challenge{Challenge: challenge, Hash: hash, Npub: s.cfg.UserPubKey, CreatedAt: now}
	if err := keystore.SetJSON(r.Context(), s.store, challengeKeyPrefix+hash, c); err != nil {
		logger.Error("Failed to save challenge", "error", err)
		http.Error(w, "Failed to save challenge", http.StatusInternalServerError)
		return
	}
	if err := s.trackChallenge(r.Context(), hash, now); err != nil {
		logger.Warn("Failed to prune challenges", "error", err)
	}

	writeJSON(w, http.StatusOK, &nostr.Event{
		PubKey:    s.cfg.UserPubKey,
		CreatedAt: nostr.Timestamp(now.Unix()),
		Kind:      1,
		Tags:      nostr.Tags{},
		Content:   challenge,
	})
}

// trackChallenge records hash in the challenge index and deletes every
// indexed challenge older than challengeTTL.
func (s *Server) trackChallenge(ctx context.Context, hash string, now time.Time) error {
	unlock := s.locker.Lock(challengeIndexKey)
	defer unlock()

	index := map[string]time.Time{}
	if _, err := keystore.GetJSON(ctx, s.store, challengeIndexKey, &index); err != nil {
		return err
	}
	for h, created := range index {
		if now.Sub(created) <= challengeTTL {
			continue
		}
		if err := s.store.Delete(ctx, challengeKeyPrefix+h); err != nil {
			return err
		}
		delete(index, h)
	}
	index[hash] = now
	return keystore.SetJSON(ctx, s.store, challengeIndexKey, index)
}

type verifyPayload struct {
	Challenge string      `json:"challenge"`
	Event     nostr.Event `json:"event"`
}

// HandleVerify exchanges a signed challenge for a session token.
func (s *Server) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var p verifyPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "Cannot parse JSON", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	key := challengeKeyPrefix + challengeHash(p.Challenge)
	// One lock covers every challenge and the index.
	unlock := s.locker.Lock(challengeIndexKey)
	var c Challenge
	found, err := keystore.GetJSON(ctx, s.store, key, &c)
	if err == nil && found {
		// Every attempt burns the challenge.
		err = s.store.Delete(ctx, key)
	}
	unlock()
	if err != nil {
		logger.Error("Failed to consume challenge", "error", err)
		http.Error(w, "Failed to consume challenge", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "Invalid or expired challenge", http.StatusUnauthorized)
		return
	}

	if s.now().Sub(c.CreatedAt) > challengeTTL {
		http.Error(w, "Challenge expired", http.StatusUnauthorized)
		return
	}
	if p.Event.PubKey != c.Npub || p.Event.Content != c.Challenge {
		http.Error(w, "Public key or challenge mismatch", http.StatusUnauthorized)
		return
	}
	if !verifyEvent(&p.Event) {
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	token, err := s.GenerateJWT(c.Npub)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// verifyEvent checks that the event ID commits to its content and that the
// schnorr signature over it is valid for the event's key.
func verifyEvent(ev *nostr.Event) bool {
	h := sha256.Sum256(ev.Serialize())
	if hex.EncodeToString(h[:]) != ev.ID {
		return false
	}
	sigBytes, err := hex.DecodeString(ev.Sig)
	if err != nil {
		return false
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false
	}
	pubBytes, err := hex.DecodeString(ev.PubKey)
	if err != nil {
		return false
	}
	pub, err := schnorr.ParsePubKey(pubBytes)
	if err != nil {
		return false
	}
	return sig.Verify(h[:], pub)
}

// GenerateJWT issues a session token for userID.
func (s *Server) GenerateJWT(userID string) (string, error) {
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(s.now().Add(tokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.JWTKey)
}

func (s *Server) parseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.cfg.JWTKey, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
