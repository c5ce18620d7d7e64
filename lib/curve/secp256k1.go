package curve

import (
	"crypto/sha512"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

type secp256k1Curve struct{}

func (secp256k1Curve) ID() ID          { return Secp256k1 }
func (secp256k1Curve) ScalarSize() int { return 32 }
func (secp256k1Curve) PointSize() int  { return btcec.PubKeyBytesLenCompressed }

func (secp256k1Curve) ScalarFromSeed(seed []byte) ([]byte, error) {
	if len(seed) != 32 {
		return nil, fmt.Errorf("%w: seed must be 32 bytes, got %d", ErrInvalidScalar, len(seed))
	}
	var k btcec.ModNScalar
	k.SetByteSlice(seed)
	if k.IsZero() {
		return nil, fmt.Errorf("%w: zero scalar", ErrInvalidScalar)
	}
	b := k.Bytes()
	return b[:], nil
}

// HashToScalar reduces the first half of SHA-512(data) mod N. Clamping is an
// Edwards-curve convention and does not apply here.
func (secp256k1Curve) HashToScalar(data []byte) ([]byte, error) {
	h := sha512.Sum512(data)
	var k btcec.ModNScalar
	k.SetByteSlice(h[:32])
	if k.IsZero() {
		return nil, fmt.Errorf("%w: zero scalar", ErrInvalidScalar)
	}
	b := k.Bytes()
	return b[:], nil
}

func (secp256k1Curve) AddScalars(a, b []byte) ([]byte, error) {
	x, err := secpScalar(a)
	if err != nil {
		return nil, err
	}
	y, err := secpScalar(b)
	if err != nil {
		return nil, err
	}
	x.Add(y)
	if x.IsZero() {
		return nil, fmt.Errorf("%w: zero scalar", ErrInvalidScalar)
	}
	out := x.Bytes()
	return out[:], nil
}

func (secp256k1Curve) ScalarBaseMult(k []byte) ([]byte, error) {
	s, err := secpScalar(k)
	if err != nil {
		return nil, err
	}
	var r btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(s, &r)
	return secpEncode(&r)
}

func (secp256k1Curve) ScalarMult(k, point []byte) ([]byte, error) {
	s, err := secpScalar(k)
	if err != nil {
		return nil, err
	}
	p, err := secpPoint(point)
	if err != nil {
		return nil, err
	}
	var r btcec.JacobianPoint
	btcec.ScalarMultNonConst(s, p, &r)
	return secpEncode(&r)
}

func (secp256k1Curve) AddPoints(a, b []byte) ([]byte, error) {
	p, err := secpPoint(a)
	if err != nil {
		return nil, err
	}
	q, err := secpPoint(b)
	if err != nil {
		return nil, err
	}
	var r btcec.JacobianPoint
	btcec.AddNonConst(p, q, &r)
	return secpEncode(&r)
}

func (secp256k1Curve) ValidatePoint(point []byte) error {
	_, err := secpPoint(point)
	return err
}

func secpScalar(b []byte) (*btcec.ModNScalar, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("%w: scalar must be 32 bytes, got %d", ErrInvalidScalar, len(b))
	}
	var k btcec.ModNScalar
	if overflow := k.SetByteSlice(b); overflow {
		return nil, fmt.Errorf("%w: scalar exceeds group order", ErrInvalidScalar)
	}
	if k.IsZero() {
		return nil, fmt.Errorf("%w: zero scalar", ErrInvalidScalar)
	}
	return &k, nil
}

// secpPoint accepts only 33-byte compressed encodings; ParsePubKey checks the
// point is on the curve. The cofactor is 1, so no subgroup check is needed.
func secpPoint(b []byte) (*btcec.JacobianPoint, error) {
	if len(b) != btcec.PubKeyBytesLenCompressed {
		return nil, fmt.Errorf("%w: point must be %d bytes, got %d", ErrInvalidPoint, btcec.PubKeyBytesLenCompressed, len(b))
	}
	pub, err := btcec.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPoint, err)
	}
	var p btcec.JacobianPoint
	pub.AsJacobian(&p)
	return &p, nil
}

func secpEncode(p *btcec.JacobianPoint) ([]byte, error) {
	if (p.X.IsZero() && p.Y.IsZero()) || p.Z.IsZero() {
		return nil, fmt.Errorf("%w: point at infinity", ErrInvalidPoint)
	}
	p.ToAffine()
	return btcec.NewPublicKey(&p.X, &p.Y).SerializeCompressed(), nil
}
