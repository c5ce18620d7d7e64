package privacy

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/Maphikza/sip-privacy-wallet/lib/address"
	"github.com/Maphikza/sip-privacy-wallet/lib/curve"
)

// KeySigner signs with a raw wallet key held in memory.
type KeySigner struct {
	addr string
	sign func(payload []byte) []byte
	pub  []byte
}

// NewKeySigner builds a signer for chain from a private key: a 32-byte
// Ed25519 seed or a 32-byte secp256k1 scalar, depending on the chain.
func NewKeySigner(chainName string, priv []byte) (*KeySigner, error) {
	c, err := address.LookupChain(chainName)
	if err != nil {
		return nil, err
	}
	if len(priv) != 32 {
		return nil, fmt.Errorf("%w: signing key must be 32 bytes", curve.ErrInvalidScalar)
	}

	s := &KeySigner{}
	switch c.Curve {
	case curve.Ed25519:
		key := ed25519.NewKeyFromSeed(priv)
		s.pub = key.Public().(ed25519.PublicKey)
		s.sign = func(payload []byte) []byte { return ed25519.Sign(key, payload) }
	case curve.Secp256k1:
		key, pub := btcec.PrivKeyFromBytes(priv)
		s.pub = pub.SerializeCompressed()
		s.sign = func(payload []byte) []byte {
			digest := sha256.Sum256(payload)
			return ecdsa.Sign(key, digest[:]).Serialize()
		}
	default:
		return nil, fmt.Errorf("%w: %s", curve.ErrUnknownCurve, c.Curve)
	}
	if s.addr, err = c.Address(s.pub); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *KeySigner) Address() string { return s.addr }

func (s *KeySigner) PublicKey() []byte { return s.pub }

func (s *KeySigner) Sign(ctx context.Context, payload []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.sign(payload), nil
}
