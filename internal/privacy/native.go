package privacy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Maphikza/sip-privacy-wallet/internal/chain"
	"github.com/Maphikza/sip-privacy-wallet/internal/logger"
	"github.com/Maphikza/sip-privacy-wallet/internal/payments"
	"github.com/Maphikza/sip-privacy-wallet/lib/address"
	"github.com/Maphikza/sip-privacy-wallet/lib/amount"
	"github.com/Maphikza/sip-privacy-wallet/lib/stealth"
)

const (
	defaultConfirmInterval = 2 * time.Second
	defaultConfirmAttempts = 30
)

// NativeAdapter sends a stealth transfer straight to the chain.
type NativeAdapter struct {
	opts  Options
	env   Env
	ready atomic.Bool
}

func NewNativeAdapter(opts Options, env Env) *NativeAdapter {
	if env.ConfirmInterval <= 0 {
		env.ConfirmInterval = defaultConfirmInterval
	}
	if env.ConfirmAttempts <= 0 {
		env.ConfirmAttempts = defaultConfirmAttempts
	}
	return &NativeAdapter{opts: opts, env: env}
}

func (a *NativeAdapter) Kind() Kind { return Native }

func (a *NativeAdapter) Initialize(ctx context.Context) error {
	if a.env.Chain == nil {
		return &InitError{Kind: Native, Err: errors.New("no chain client")}
	}
	if _, err := address.LookupChain(a.env.ChainName); err != nil {
		return &InitError{Kind: Native, Err: err}
	}
	a.ready.Store(true)
	return nil
}

func (a *NativeAdapter) IsReady() bool { return a.ready.Load() }

func (a *NativeAdapter) SupportsFeature(f Feature) bool { return supports(Native, f) }

func (a *NativeAdapter) ValidateRecipient(addr string) RecipientValidation {
	kind, err := address.Classify(a.env.ChainName, addr)
	if err != nil {
		return RecipientValidation{Kind: address.KindInvalid, Err: err}
	}
	if kind != address.KindStealth {
		return RecipientValidation{Kind: kind, Err: fmt.Errorf("%w: native sends need a meta-address", ErrInvalidRecipient)}
	}
	return RecipientValidation{Valid: true, Kind: kind}
}

func (a *NativeAdapter) Send(ctx context.Context, p SendParams, signer Signer, onStatus StatusFunc) (*SendResult, error) {
	res, err := a.send(ctx, p, signer, onStatus)
	if err != nil {
		onStatus.emit(StatusError)
		return nil, err
	}
	onStatus.emit(StatusConfirmed)
	return res, nil
}

func (a *NativeAdapter) send(ctx context.Context, p SendParams, signer Signer, onStatus StatusFunc) (*SendResult, error) {
	onStatus.emit(StatusValidating)
	if !a.IsReady() {
		return nil, ErrNotReady
	}
	if p.Amount == 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidRecipient)
	}
	if v := a.ValidateRecipient(p.Recipient); !v.Valid {
		return nil, v.Err
	}
	meta, err := address.ParseMetaAddress(p.Recipient)
	if err != nil {
		return nil, err
	}

	onStatus.emit(StatusPreparing)
	ota, err := stealth.Generate(meta, nil)
	if err != nil {
		return nil, err
	}
	ct, err := amount.EncryptFor(p.Amount, ota.SharedSecret)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(chain.Transfer{
		Chain:            a.env.ChainName,
		Token:            p.Token,
		From:             signer.Address(),
		StealthRecipient: ota.StealthPublicKey,
		EphemeralPubkey:  ota.EphemeralPublicKey,
		EncryptedAmount:  ct,
		Memo:             p.Memo,
	})
	if err != nil {
		return nil, err
	}

	onStatus.emit(StatusSigning)
	sig, err := signer.Sign(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("sign transfer: %w", err)
	}
	raw, err := chain.SignedTransaction{Payload: payload, Signer: signer.Address(), Signature: sig}.Encode()
	if err != nil {
		return nil, err
	}

	onStatus.emit(StatusSubmitting)
	hash, err := a.env.Chain.SubmitSignedTransaction(ctx, raw)
	if err != nil {
		return nil, err
	}
	logger.Info("Stealth transfer submitted", "tx", hash, "network", a.opts.Network)
	if err := confirm(ctx, a.env, hash); err != nil {
		return nil, err
	}

	return &SendResult{
		TxHash:            hash,
		Provider:          Native,
		EffectiveProvider: Native,
		PrivacyLevel:      payments.Shielded,
		StealthAddress:    ota.DerivedChainAddress,
		StealthPublicKey:  ota.StealthPublicKey,
		EphemeralPubkey:   ota.EphemeralPublicKey,
	}, nil
}

// Swap is not offered on the native path.
func (a *NativeAdapter) Swap(ctx context.Context, p SwapParams, signer Signer, onStatus StatusFunc) (*SwapResult, error) {
	onStatus.emit(StatusError)
	return nil, fmt.Errorf("%w: %s cannot swap", ErrFeatureUnsupported, Native)
}

// confirm polls the chain until hash is final, the chain reports failure,
// or the attempts run out.
func confirm(ctx context.Context, env Env, hash chain.TxHash) error {
	interval := env.ConfirmInterval
	if interval <= 0 {
		interval = defaultConfirmInterval
	}
	attempts := env.ConfirmAttempts
	if attempts <= 0 {
		attempts = defaultConfirmAttempts
	}

	var err error
	for i := 0; i < attempts; i++ {
		err = env.Chain.Confirm(ctx, hash)
		if err == nil || !errors.Is(err, chain.ErrNotConfirmed) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return err
}
