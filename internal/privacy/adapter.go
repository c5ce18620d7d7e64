// Package privacy routes payments through interchangeable privacy back-ends.
//
// Every back-end implements Adapter. The native adapter sends a stealth
// transfer directly on chain; delegated adapters hand the payment to an
// external service and fall back to native when that service is down.
package privacy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Maphikza/sip-privacy-wallet/internal/chain"
	"github.com/Maphikza/sip-privacy-wallet/internal/payments"
	"github.com/Maphikza/sip-privacy-wallet/lib/address"
)

type Kind string

const (
	Native            Kind = "native"
	PoolMix           Kind = "pool-mix"
	TEE               Kind = "tee"
	MPC               Kind = "mpc"
	FHE               Kind = "fhe"
	ConfidentialToken Kind = "confidential-token"
)

type Feature string

const (
	FeatureSend        Feature = "send"
	FeatureSwap        Feature = "swap"
	FeatureViewingKeys Feature = "viewing-keys"
	FeatureCompliance  Feature = "compliance"
)

// Status is one step of a send or swap, reported through a StatusFunc.
type Status string

const (
	StatusValidating Status = "validating"
	StatusPreparing  Status = "preparing"
	StatusSigning    Status = "signing"
	StatusSubmitting Status = "submitting"
	StatusConfirmed  Status = "confirmed"
	StatusError      Status = "error"
)

type StatusFunc func(Status)

func (f StatusFunc) emit(s Status) {
	if f != nil {
		f(s)
	}
}

var (
	ErrFeatureUnsupported = errors.New("feature not supported by provider")
	ErrInvalidRecipient   = errors.New("invalid recipient")
	ErrNotReady           = errors.New("provider not initialized")
	ErrUnknownProvider    = errors.New("unknown privacy provider")
)

// InitError reports that a provider's back-end could not be reached.
type InitError struct {
	Kind Kind
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("%s provider unavailable: %v", e.Kind, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// Options identify the calling context. Network and WalletAddress form the
// registry cache key.
type Options struct {
	Network       string
	WalletAddress string
	RPCEndpoint   string
}

// Env is what adapters need from the wallet around them.
type Env struct {
	Chain     chain.Client
	ChainName string
	// Endpoints maps a delegated provider to its back-end base URL.
	Endpoints map[Kind]string
	// ConfirmInterval and ConfirmAttempts control confirmation polling.
	ConfirmInterval time.Duration
	ConfirmAttempts int
	HTTPClient      *http.Client
}

// Signer authorizes transactions on behalf of the sending wallet.
type Signer interface {
	// Address is the chain address funds are sent from.
	Address() string
	Sign(ctx context.Context, payload []byte) ([]byte, error)
}

type RecipientValidation struct {
	Valid bool
	Kind  address.Kind
	Err   error
}

type SendParams struct {
	Recipient string
	Amount    uint64
	Token     string
	Memo      string
}

type SendResult struct {
	TxHash chain.TxHash
	// Provider is the adapter that was asked; EffectiveProvider is the one
	// that actually moved the funds.
	Provider          Kind
	EffectiveProvider Kind
	Fallback          bool
	PrivacyLevel      payments.PrivacyLevel

	StealthAddress   string
	StealthPublicKey []byte
	EphemeralPubkey  []byte
}

type SwapParams struct {
	FromToken string
	ToToken   string
	Amount    uint64
	MinOut    uint64
	Recipient string
}

type SwapResult struct {
	TxHash    chain.TxHash
	Provider  Kind
	AmountOut uint64
}

// Adapter is the contract every privacy back-end implements.
type Adapter interface {
	Kind() Kind
	Initialize(ctx context.Context) error
	IsReady() bool
	SupportsFeature(f Feature) bool
	ValidateRecipient(addr string) RecipientValidation
	Send(ctx context.Context, p SendParams, signer Signer, onStatus StatusFunc) (*SendResult, error)
	Swap(ctx context.Context, p SwapParams, signer Signer, onStatus StatusFunc) (*SwapResult, error)
}

// Capabilities lists what each built-in provider can do.
var Capabilities = map[Kind][]Feature{
	Native:            {FeatureSend, FeatureViewingKeys},
	PoolMix:           {FeatureSend, FeatureViewingKeys, FeatureCompliance},
	TEE:               {FeatureSend, FeatureSwap, FeatureViewingKeys, FeatureCompliance},
	MPC:               {FeatureSend, FeatureSwap, FeatureCompliance},
	FHE:               {FeatureSend, FeatureViewingKeys, FeatureCompliance},
	ConfidentialToken: {FeatureSend, FeatureSwap, FeatureViewingKeys, FeatureCompliance},
}

func supports(kind Kind, f Feature) bool {
	for _, have := range Capabilities[kind] {
		if have == f {
			return true
		}
	}
	return false
}
