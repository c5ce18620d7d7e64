// Package stealth implements the dual-key stealth address protocol (DKSAP).
//
// A sender pays to spendingKey + H(e·viewingKey)·G for a fresh ephemeral
// scalar e and publishes e·G next to the payment. Only the holder of the
// viewing private key can recompute the shared secret and recognize the
// payment, and only the holder of the spending private key can claim it.
package stealth

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/Maphikza/sip-privacy-wallet/lib/address"
	"github.com/Maphikza/sip-privacy-wallet/lib/curve"
)

// ErrInvalidPoint is returned when a public key fails curve validation.
var ErrInvalidPoint = curve.ErrInvalidPoint

// OneTimeAddress is what a sender derives for a single payment.
type OneTimeAddress struct {
	EphemeralPublicKey  []byte `json:"ephemeralPublicKey"`
	StealthPublicKey    []byte `json:"stealthPublicKey"`
	DerivedChainAddress string `json:"derivedChainAddress"`

	// SharedSecret is kept by the sender to encrypt the amount.
	SharedSecret []byte `json:"-"`
}

// Generate derives a fresh one-time address for meta. Randomness is read from
// r, or crypto/rand when r is nil.
func Generate(meta address.MetaAddress, r io.Reader) (*OneTimeAddress, error) {
	chain, err := address.LookupChain(meta.Chain)
	if err != nil {
		return nil, err
	}
	c, err := curve.ByID(chain.Curve)
	if err != nil {
		return nil, err
	}
	if err := c.ValidatePoint(meta.SpendingPublicKey); err != nil {
		return nil, fmt.Errorf("spending key: %w", err)
	}
	if err := c.ValidatePoint(meta.ViewingPublicKey); err != nil {
		return nil, fmt.Errorf("viewing key: %w", err)
	}

	if r == nil {
		r = rand.Reader
	}
	seed := make([]byte, 32)
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, fmt.Errorf("failed to read ephemeral seed: %w", err)
	}
	ephemeral, err := curve.KeyPairFromSeed(c, seed)
	if err != nil {
		return nil, fmt.Errorf("failed to derive ephemeral key: %w", err)
	}

	shared, err := c.ScalarMult(ephemeral.Private, meta.ViewingPublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to compute shared secret: %w", err)
	}
	stealthPub, err := stealthPublicKey(c, meta.SpendingPublicKey, shared)
	if err != nil {
		return nil, err
	}

	chainAddr, err := chain.Address(stealthPub)
	if err != nil {
		return nil, err
	}

	return &OneTimeAddress{
		EphemeralPublicKey:  ephemeral.Public,
		StealthPublicKey:    stealthPub,
		DerivedChainAddress: chainAddr,
		SharedSecret:        shared,
	}, nil
}

// SharedSecret recomputes v·R on the recipient side.
func SharedSecret(c curve.Curve, viewingPrivateKey, ephemeralPublicKey []byte) ([]byte, error) {
	if err := c.ValidatePoint(ephemeralPublicKey); err != nil {
		return nil, fmt.Errorf("ephemeral key: %w", err)
	}
	return c.ScalarMult(viewingPrivateKey, ephemeralPublicKey)
}

// Recognize reports whether stealthRecipient was derived for the key holder
// owning viewingPrivateKey and spendingPublicKey. Invalid points are errors,
// never "not owned".
func Recognize(c curve.Curve, viewingPrivateKey, spendingPublicKey, ephemeralPublicKey, stealthRecipient []byte) (bool, error) {
	if err := c.ValidatePoint(stealthRecipient); err != nil {
		return false, fmt.Errorf("stealth recipient: %w", err)
	}
	if err := c.ValidatePoint(spendingPublicKey); err != nil {
		return false, fmt.Errorf("spending key: %w", err)
	}
	shared, err := SharedSecret(c, viewingPrivateKey, ephemeralPublicKey)
	if err != nil {
		return false, err
	}
	candidate, err := stealthPublicKey(c, spendingPublicKey, shared)
	if err != nil {
		return false, err
	}
	return bytes.Equal(candidate, stealthRecipient), nil
}

// StealthPrivateKey recovers k_spend + t, the private key controlling the
// one-time address announced with ephemeralPublicKey.
func StealthPrivateKey(c curve.Curve, spendingPrivateKey, viewingPrivateKey, ephemeralPublicKey []byte) ([]byte, error) {
	shared, err := SharedSecret(c, viewingPrivateKey, ephemeralPublicKey)
	if err != nil {
		return nil, err
	}
	t, err := c.HashToScalar(shared)
	if err != nil {
		return nil, err
	}
	return c.AddScalars(spendingPrivateKey, t)
}

func stealthPublicKey(c curve.Curve, spendingPublicKey, shared []byte) ([]byte, error) {
	t, err := c.HashToScalar(shared)
	if err != nil {
		return nil, err
	}
	tG, err := c.ScalarBaseMult(t)
	if err != nil {
		return nil, err
	}
	return c.AddPoints(spendingPublicKey, tG)
}
