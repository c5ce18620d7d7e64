package curve

import (
	"bytes"
	"crypto/sha512"
	"fmt"

	"filippo.io/edwards25519"
)

type ed25519Curve struct{}

func (ed25519Curve) ID() ID          { return Ed25519 }
func (ed25519Curve) ScalarSize() int { return 32 }
func (ed25519Curve) PointSize() int  { return 32 }

// ScalarFromSeed expands the seed the same way ed25519 signing keys are
// expanded, so the resulting public point equals the chain's public key.
func (ed25519Curve) ScalarFromSeed(seed []byte) ([]byte, error) {
	if len(seed) != 32 {
		return nil, fmt.Errorf("%w: seed must be 32 bytes, got %d", ErrInvalidScalar, len(seed))
	}
	h := sha512.Sum512(seed)
	s, err := edwards25519.NewScalar().SetBytesWithClamping(h[:32])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScalar, err)
	}
	return s.Bytes(), nil
}

// HashToScalar takes the first half of SHA-512(data), clamps it (clear the
// low 3 bits, clear the top bit, set the second-top bit) and reduces mod L.
func (ed25519Curve) HashToScalar(data []byte) ([]byte, error) {
	h := sha512.Sum512(data)
	s, err := edwards25519.NewScalar().SetBytesWithClamping(h[:32])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScalar, err)
	}
	return s.Bytes(), nil
}

func (ed25519Curve) AddScalars(a, b []byte) ([]byte, error) {
	x, err := edScalar(a)
	if err != nil {
		return nil, err
	}
	y, err := edScalar(b)
	if err != nil {
		return nil, err
	}
	return edwards25519.NewScalar().Add(x, y).Bytes(), nil
}

func (ed25519Curve) ScalarBaseMult(k []byte) ([]byte, error) {
	s, err := edScalar(k)
	if err != nil {
		return nil, err
	}
	return new(edwards25519.Point).ScalarBaseMult(s).Bytes(), nil
}

func (ed25519Curve) ScalarMult(k, point []byte) ([]byte, error) {
	s, err := edScalar(k)
	if err != nil {
		return nil, err
	}
	p, err := edPoint(point)
	if err != nil {
		return nil, err
	}
	return new(edwards25519.Point).ScalarMult(s, p).Bytes(), nil
}

func (ed25519Curve) AddPoints(a, b []byte) ([]byte, error) {
	p, err := edPoint(a)
	if err != nil {
		return nil, err
	}
	q, err := edPoint(b)
	if err != nil {
		return nil, err
	}
	return new(edwards25519.Point).Add(p, q).Bytes(), nil
}

func (ed25519Curve) ValidatePoint(point []byte) error {
	_, err := edPoint(point)
	return err
}

func edScalar(b []byte) (*edwards25519.Scalar, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("%w: scalar must be 32 bytes, got %d", ErrInvalidScalar, len(b))
	}
	s, err := edwards25519.NewScalar().SetCanonicalBytes(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScalar, err)
	}
	return s, nil
}

// lMinusOne is L-1, used for the prime-order subgroup check [L]P == O.
var lMinusOne = func() *edwards25519.Scalar {
	one := make([]byte, 32)
	one[0] = 1
	s, err := edwards25519.NewScalar().SetCanonicalBytes(one)
	if err != nil {
		panic(err)
	}
	return edwards25519.NewScalar().Negate(s)
}()

func edPoint(b []byte) (*edwards25519.Point, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("%w: point must be 32 bytes, got %d", ErrInvalidPoint, len(b))
	}
	p, err := new(edwards25519.Point).SetBytes(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPoint, err)
	}
	// SetBytes also takes y >= p and a negative zero x.
	if !bytes.Equal(p.Bytes(), b) {
		return nil, fmt.Errorf("%w: non-canonical encoding", ErrInvalidPoint)
	}
	identity := edwards25519.NewIdentityPoint()

	// Small-order points (including the identity) vanish under the cofactor.
	if new(edwards25519.Point).MultByCofactor(p).Equal(identity) == 1 {
		return nil, fmt.Errorf("%w: small order", ErrInvalidPoint)
	}

	// [L-1]P + P == [L]P must be the identity for points in the prime-order subgroup.
	lp := new(edwards25519.Point).ScalarMult(lMinusOne, p)
	lp.Add(lp, p)
	if lp.Equal(identity) != 1 {
		return nil, fmt.Errorf("%w: not in prime-order subgroup", ErrInvalidPoint)
	}
	return p, nil
}
