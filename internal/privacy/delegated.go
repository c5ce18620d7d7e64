package privacy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Maphikza/sip-privacy-wallet/internal/chain"
	"github.com/Maphikza/sip-privacy-wallet/internal/logger"
	"github.com/Maphikza/sip-privacy-wallet/internal/payments"
	"github.com/Maphikza/sip-privacy-wallet/lib/address"
	"github.com/Maphikza/sip-privacy-wallet/lib/amount"
	"github.com/Maphikza/sip-privacy-wallet/lib/stealth"
)

// PoolNotePrefix marks a pool-mix deposit note used as a recipient.
const PoolNotePrefix = "pool:"

// BackendSendRequest is what a delegated provider is asked to deliver.
// Stealth recipients arrive already resolved to a one-time key.
type BackendSendRequest struct {
	Provider         Kind   `json:"provider"`
	Network          string `json:"network"`
	Chain            string `json:"chain"`
	From             string `json:"from"`
	Recipient        string `json:"recipient,omitempty"`
	StealthRecipient []byte `json:"stealthRecipient,omitempty"`
	EphemeralPubkey  []byte `json:"ephemeralPubkey,omitempty"`
	EncryptedAmount  []byte `json:"encryptedAmount,omitempty"`
	Amount           uint64 `json:"amount"`
	Token            string `json:"token,omitempty"`
	Memo             string `json:"memo,omitempty"`
	Signature        []byte `json:"signature,omitempty"`
}

type BackendSwapRequest struct {
	Provider  Kind       `json:"provider"`
	Network   string     `json:"network"`
	From      string     `json:"from"`
	Params    SwapParams `json:"params"`
	Signature []byte     `json:"signature,omitempty"`
}

type BackendSwapResponse struct {
	TxHash    chain.TxHash `json:"txHash"`
	AmountOut uint64       `json:"amountOut"`
}

// Backend is the service a delegated adapter hands payments to.
type Backend interface {
	Initialize(ctx context.Context) error
	Send(ctx context.Context, req BackendSendRequest) (chain.TxHash, error)
	Swap(ctx context.Context, req BackendSwapRequest) (*BackendSwapResponse, error)
}

// DelegatedAdapter routes payments through a Backend. While the back-end is
// unreachable, sends go through native instead and are tagged as fallbacks.
type DelegatedAdapter struct {
	kind    Kind
	opts    Options
	env     Env
	backend Backend
	native  *NativeAdapter

	mu       sync.RWMutex
	ready    bool
	degraded error
}

func NewDelegatedAdapter(kind Kind, opts Options, env Env, backend Backend) *DelegatedAdapter {
	return &DelegatedAdapter{
		kind:    kind,
		opts:    opts,
		env:     env,
		backend: backend,
		native:  NewNativeAdapter(opts, env),
	}
}

func (a *DelegatedAdapter) Kind() Kind { return a.kind }

// Initialize reaches the back-end. On failure it readies the native
// fallback and returns an *InitError describing the degraded state.
func (a *DelegatedAdapter) Initialize(ctx context.Context) error {
	var err error
	if a.backend == nil {
		err = errors.New("no back-end endpoint configured")
	} else {
		err = a.backend.Initialize(ctx)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err == nil {
		a.ready = true
		a.degraded = nil
		return nil
	}

	initErr := &InitError{Kind: a.kind, Err: err}
	a.degraded = initErr
	logger.Warn("Privacy back-end unavailable, falling back to native", "provider", a.kind, "error", err)
	if nerr := a.native.Initialize(ctx); nerr != nil {
		return errors.Join(initErr, nerr)
	}
	a.ready = true
	return initErr
}

func (a *DelegatedAdapter) IsReady() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ready
}

func (a *DelegatedAdapter) state() (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ready, a.degraded
}

func (a *DelegatedAdapter) SupportsFeature(f Feature) bool { return supports(a.kind, f) }

func (a *DelegatedAdapter) ValidateRecipient(addr string) RecipientValidation {
	if strings.HasPrefix(addr, PoolNotePrefix) {
		if a.kind != PoolMix {
			return RecipientValidation{Kind: address.KindPool, Err: fmt.Errorf("%w: %s does not accept pool notes", ErrInvalidRecipient, a.kind)}
		}
		if len(addr) == len(PoolNotePrefix) {
			return RecipientValidation{Kind: address.KindInvalid, Err: fmt.Errorf("%w: empty pool note", ErrInvalidRecipient)}
		}
		return RecipientValidation{Valid: true, Kind: address.KindPool}
	}
	kind, err := address.Classify(a.env.ChainName, addr)
	if err != nil {
		return RecipientValidation{Kind: address.KindInvalid, Err: err}
	}
	return RecipientValidation{Valid: true, Kind: kind}
}

func (a *DelegatedAdapter) Send(ctx context.Context, p SendParams, signer Signer, onStatus StatusFunc) (*SendResult, error) {
	ready, degraded := a.state()
	if !ready {
		onStatus.emit(StatusError)
		return nil, ErrNotReady
	}
	if degraded != nil {
		res, err := a.native.Send(ctx, p, signer, onStatus)
		if err != nil {
			return nil, err
		}
		res.Provider = a.kind
		res.EffectiveProvider = Native
		res.Fallback = true
		return res, nil
	}

	res, err := a.send(ctx, p, signer, onStatus)
	if err != nil {
		onStatus.emit(StatusError)
		return nil, err
	}
	onStatus.emit(StatusConfirmed)
	return res, nil
}

func (a *DelegatedAdapter) send(ctx context.Context, p SendParams, signer Signer, onStatus StatusFunc) (*SendResult, error) {
	onStatus.emit(StatusValidating)
	if p.Amount == 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidRecipient)
	}
	v := a.ValidateRecipient(p.Recipient)
	if !v.Valid {
		return nil, v.Err
	}

	onStatus.emit(StatusPreparing)
	req := BackendSendRequest{
		Provider: a.kind,
		Network:  a.opts.Network,
		Chain:    a.env.ChainName,
		From:     signer.Address(),
		Amount:   p.Amount,
		Token:    p.Token,
		Memo:     p.Memo,
	}
	res := &SendResult{Provider: a.kind, EffectiveProvider: a.kind, PrivacyLevel: payments.Compliant}
	if v.Kind == address.KindStealth {
		meta, err := address.ParseMetaAddress(p.Recipient)
		if err != nil {
			return nil, err
		}
		ota, err := stealth.Generate(meta, nil)
		if err != nil {
			return nil, err
		}
		ct, err := amount.EncryptFor(p.Amount, ota.SharedSecret)
		if err != nil {
			return nil, err
		}
		req.StealthRecipient = ota.StealthPublicKey
		req.EphemeralPubkey = ota.EphemeralPublicKey
		req.EncryptedAmount = ct
		res.StealthAddress = ota.DerivedChainAddress
		res.StealthPublicKey = ota.StealthPublicKey
		res.EphemeralPubkey = ota.EphemeralPublicKey
	} else {
		req.Recipient = p.Recipient
	}

	onStatus.emit(StatusSigning)
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if req.Signature, err = signer.Sign(ctx, payload); err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	onStatus.emit(StatusSubmitting)
	hash, err := a.backend.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	logger.Info("Delegated transfer accepted", "provider", a.kind, "tx", hash)
	res.TxHash = hash
	return res, nil
}

// Swap has no native fallback: a degraded provider reports its InitError.
func (a *DelegatedAdapter) Swap(ctx context.Context, p SwapParams, signer Signer, onStatus StatusFunc) (*SwapResult, error) {
	res, err := a.swap(ctx, p, signer, onStatus)
	if err != nil {
		onStatus.emit(StatusError)
		return nil, err
	}
	onStatus.emit(StatusConfirmed)
	return res, nil
}

func (a *DelegatedAdapter) swap(ctx context.Context, p SwapParams, signer Signer, onStatus StatusFunc) (*SwapResult, error) {
	onStatus.emit(StatusValidating)
	if !a.SupportsFeature(FeatureSwap) {
		return nil, fmt.Errorf("%w: %s cannot swap", ErrFeatureUnsupported, a.kind)
	}
	ready, degraded := a.state()
	if !ready {
		return nil, ErrNotReady
	}
	if degraded != nil {
		return nil, degraded
	}
	if p.Amount == 0 || p.FromToken == "" || p.ToToken == "" {
		return nil, fmt.Errorf("%w: swap needs an amount and both tokens", ErrInvalidRecipient)
	}

	onStatus.emit(StatusPreparing)
	req := BackendSwapRequest{Provider: a.kind, Network: a.opts.Network, From: signer.Address(), Params: p}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	onStatus.emit(StatusSigning)
	if req.Signature, err = signer.Sign(ctx, payload); err != nil {
		return nil, fmt.Errorf("sign swap: %w", err)
	}

	onStatus.emit(StatusSubmitting)
	out, err := a.backend.Swap(ctx, req)
	if err != nil {
		return nil, err
	}
	return &SwapResult{TxHash: out.TxHash, Provider: a.kind, AmountOut: out.AmountOut}, nil
}
