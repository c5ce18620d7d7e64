package api

import (
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/Maphikza/sip-privacy-wallet/internal/compliance"
	"github.com/Maphikza/sip-privacy-wallet/internal/payments"
)

// Config is the operator-facing surface of the HTTP API.
type Config struct {
	Port          int
	AllowedOrigin string
	// UserPubKey is the hex nostr key allowed to log in.
	UserPubKey string
	// JWTKey signs session tokens. A random key is generated when empty.
	JWTKey []byte
}

// Claims are carried by session tokens.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Challenge is a one-shot login nonce. It is deleted by the first verify
// attempt.
type Challenge struct {
	Challenge string    `json:"challenge"`
	Hash      string    `json:"hash"`
	Npub      string    `json:"npub"`
	CreatedAt time.Time `json:"createdAt"`
}

type contextKey string

type MetaAddressResponse struct {
	MetaAddress       string `json:"metaAddress"`
	Chain             string `json:"chain"`
	SpendingPublicKey string `json:"spendingPublicKey"`
	ViewingPublicKey  string `json:"viewingPublicKey"`
}

type ScanResponse struct {
	Found    []payments.Record `json:"found"`
	Rejected int               `json:"rejected"`
	LastScan time.Time         `json:"lastScan"`
}

type DisclosureRequest struct {
	RecipientName string     `json:"recipientName"`
	Purpose       string     `json:"purpose"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

type DisclosureResponse struct {
	Disclosure compliance.Disclosure `json:"disclosure"`
	ViewingKey string                `json:"viewingKey"`
}

type PaylinkRequest struct {
	Link string `json:"link"`
}

type PaylinkResponse struct {
	Address string  `json:"address"`
	Kind    string  `json:"kind"`
	Amount  *string `json:"amount,omitempty"`
	Token   *string `json:"token,omitempty"`
	Memo    *string `json:"memo,omitempty"`
}
