// Package curve exposes the small set of prime-order group operations the
// stealth address protocol needs, over canonical byte encodings.
//
// Two groups are provided: Ed25519 (Solana, NEAR) and secp256k1 (Ethereum).
// Every operation that consumes a point validates it first, so callers never
// multiply an attacker-chosen point that lies outside the prime-order subgroup.
package curve

import (
	"errors"
	"fmt"
)

// ID names a supported group.
type ID string

const (
	Ed25519   ID = "ed25519"
	Secp256k1 ID = "secp256k1"
)

var (
	// ErrInvalidPoint is returned for malformed, small-order or off-subgroup points.
	ErrInvalidPoint = errors.New("invalid curve point")
	// ErrInvalidScalar is returned for malformed or zero scalars.
	ErrInvalidScalar = errors.New("invalid curve scalar")
	// ErrUnknownCurve is returned by ByID for unregistered groups.
	ErrUnknownCurve = errors.New("unknown curve")
)

// Curve is a prime-order group with a fixed generator G.
//
// Scalars and points are passed around in their canonical encodings so that
// records can be persisted and compared byte-for-byte.
type Curve interface {
	ID() ID
	ScalarSize() int
	PointSize() int

	// ScalarFromSeed turns 32 bytes of secret material into a private scalar
	// following the group's key convention.
	ScalarFromSeed(seed []byte) ([]byte, error)
	// HashToScalar maps arbitrary bytes to a scalar using a 512-bit hash.
	HashToScalar(data []byte) ([]byte, error)
	// AddScalars returns a + b mod the group order.
	AddScalars(a, b []byte) ([]byte, error)

	ScalarBaseMult(k []byte) ([]byte, error)
	ScalarMult(k, point []byte) ([]byte, error)
	AddPoints(p, q []byte) ([]byte, error)
	ValidatePoint(point []byte) error
}

var curves = map[ID]Curve{
	Ed25519:   ed25519Curve{},
	Secp256k1: secp256k1Curve{},
}

// ByID returns the registered group for id.
func ByID(id ID) (Curve, error) {
	c, ok := curves[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCurve, id)
	}
	return c, nil
}

// KeyPair is a private scalar and its public point.
type KeyPair struct {
	Private []byte `json:"private"`
	Public  []byte `json:"public"`
}

// KeyPairFromSeed derives a key pair from 32 bytes of secret material.
func KeyPairFromSeed(c Curve, seed []byte) (KeyPair, error) {
	priv, err := c.ScalarFromSeed(seed)
	if err != nil {
		return KeyPair{}, err
	}
	pub, err := c.ScalarBaseMult(priv)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{Private: priv, Public: pub}, nil
}
