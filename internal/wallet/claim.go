package wallet

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/Maphikza/sip-privacy-wallet/internal/payments"
	"github.com/Maphikza/sip-privacy-wallet/lib/address"
	"github.com/Maphikza/sip-privacy-wallet/lib/stealth"
)

var (
	ErrNotClaimable   = errors.New("payment cannot be claimed")
	ErrAlreadyClaimed = errors.New("payment already claimed")
	ErrUnknownKey     = errors.New("payment was received on an unknown key")
)

// Claim is the spending authority for one received payment.
type Claim struct {
	Payment    payments.Record
	PrivateKey []byte
	Address    string
}

// ClaimPayment recovers the one-time private key of a received payment
// using the key record that recognized it, then marks the payment claimed.
func (e *Engine) ClaimPayment(ctx context.Context, id string) (*Claim, error) {
	rec, err := e.payments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Direction != payments.Receive || len(rec.EphemeralPubkey) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotClaimable, id)
	}
	if rec.Claimed {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyClaimed, id)
	}

	key, found, err := e.vault.RecordByID(ctx, rec.KeyID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, rec.KeyID)
	}

	c := e.vault.Curve()
	priv, err := stealth.StealthPrivateKey(c, key.SpendingKeyPair.Private, key.ViewingKeyPair.Private, rec.EphemeralPubkey)
	if err != nil {
		return nil, err
	}
	pub, err := c.ScalarBaseMult(priv)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(pub, rec.StealthPublicKey) {
		return nil, fmt.Errorf("%w: recovered key does not match %s", ErrNotClaimable, id)
	}

	claimed, err := e.payments.MarkClaimed(ctx, id)
	if err != nil {
		return nil, err
	}
	addr, err := address.ChainAddress(e.opts.ChainName, pub)
	if err != nil {
		return nil, err
	}
	return &Claim{Payment: claimed, PrivateKey: priv, Address: addr}, nil
}
