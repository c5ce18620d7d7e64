package wallet

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/Maphikza/sip-privacy-wallet/internal/compliance"
	"github.com/Maphikza/sip-privacy-wallet/internal/logger"
	"github.com/Maphikza/sip-privacy-wallet/internal/payments"
	"github.com/Maphikza/sip-privacy-wallet/internal/privacy"
)

// SendOutcome is a completed send. PaymentErr and ComplianceErr report
// bookkeeping that failed after the transfer was broadcast.
type SendOutcome struct {
	Result        *privacy.SendResult
	Payment       payments.Record
	ComplianceID  compliance.RecordID
	PaymentErr    error
	ComplianceErr error
}

type SwapOutcome struct {
	Result        *privacy.SwapResult
	ComplianceID  compliance.RecordID
	ComplianceErr error
}

// Send pays p.Recipient through the provider kind. The context aborts the
// send; nothing is retried.
func (e *Engine) Send(ctx context.Context, kind privacy.Kind, p privacy.SendParams, signer privacy.Signer, onStatus privacy.StatusFunc) (*SendOutcome, error) {
	a, err := e.adapter(ctx, kind, signer)
	if err != nil {
		return nil, err
	}
	if !a.SupportsFeature(privacy.FeatureSend) {
		return nil, fmt.Errorf("%w: %s cannot send", privacy.ErrFeatureUnsupported, kind)
	}

	res, err := a.Send(ctx, p, signer, onStatus)
	if err != nil {
		return nil, err
	}

	value := p.Amount
	out := &SendOutcome{Result: res}
	out.Payment = payments.Record{
		ID:               uuid.NewString(),
		Direction:        payments.Send,
		Amount:           &value,
		Token:            p.Token,
		Status:           payments.StatusConfirmed,
		Timestamp:        e.now(),
		PrivacyLevel:     res.PrivacyLevel,
		TxHash:           string(res.TxHash),
		StealthAddress:   res.StealthAddress,
		StealthPublicKey: res.StealthPublicKey,
		EphemeralPubkey:  res.EphemeralPubkey,
		Recipient:        p.Recipient,
		Provider:         string(res.Provider),
		Fallback:         res.Fallback,
	}
	if err := e.payments.Add(ctx, out.Payment); err != nil {
		logger.Warn("Failed to record sent payment", "tx", res.TxHash, "error", err)
		out.PaymentErr = err
	}

	if res.Provider != privacy.Native {
		meta := map[string]string{"effectiveProvider": string(res.EffectiveProvider)}
		if res.Fallback {
			meta["fallback"] = strconv.FormatBool(true)
		}
		if p.Memo != "" {
			meta["memo"] = p.Memo
		}
		out.ComplianceID, out.ComplianceErr = e.complianceRecord(ctx, compliance.Record{
			Provider:  string(res.Provider),
			TxHash:    string(res.TxHash),
			Amount:    p.Amount,
			Token:     p.Token,
			Recipient: p.Recipient,
			Timestamp: out.Payment.Timestamp,
			Metadata:  meta,
		})
	}
	logger.Info("Payment sent", "provider", res.Provider, "effective", res.EffectiveProvider, "tx", res.TxHash)
	return out, nil
}

// Swap exchanges tokens through the provider kind. Swaps are only offered
// by delegated providers, so every swap is written to the ledger.
func (e *Engine) Swap(ctx context.Context, kind privacy.Kind, p privacy.SwapParams, signer privacy.Signer, onStatus privacy.StatusFunc) (*SwapOutcome, error) {
	a, err := e.adapter(ctx, kind, signer)
	if err != nil {
		return nil, err
	}
	if !a.SupportsFeature(privacy.FeatureSwap) {
		return nil, fmt.Errorf("%w: %s cannot swap", privacy.ErrFeatureUnsupported, kind)
	}

	res, err := a.Swap(ctx, p, signer, onStatus)
	if err != nil {
		return nil, err
	}
	out := &SwapOutcome{Result: res}
	out.ComplianceID, out.ComplianceErr = e.complianceRecord(ctx, compliance.Record{
		Provider:  string(res.Provider),
		TxHash:    string(res.TxHash),
		Amount:    p.Amount,
		Token:     p.FromToken,
		Recipient: p.Recipient,
		Timestamp: e.now(),
		Metadata: map[string]string{
			"kind":      "swap",
			"toToken":   p.ToToken,
			"amountOut": strconv.FormatUint(res.AmountOut, 10),
		},
	})
	return out, nil
}
