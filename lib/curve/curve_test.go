package curve

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"filippo.io/edwards25519"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomSeed(t *testing.T) []byte {
	t.Helper()
	seed := make([]byte, 32)
	_, err := rand.Read(seed)
	require.NoError(t, err)
	return seed
}

// orderEight encodes a point of order 8.
var orderEight = []byte{
	0xc7, 0x17, 0x6a, 0x70, 0x3d, 0x4d, 0xd8, 0x4f, 0xba, 0x3c, 0x0b, 0x76, 0x0d, 0x10, 0x67, 0x0f,
	0x2a, 0x20, 0x53, 0xfa, 0x2c, 0x39, 0xcc, 0xc6, 0x4e, 0xc7, 0xfd, 0x77, 0x92, 0xac, 0x03, 0x7a,
}

func TestByID(t *testing.T) {
	for _, id := range []ID{Ed25519, Secp256k1} {
		c, err := ByID(id)
		require.NoError(t, err)
		assert.Equal(t, id, c.ID())
	}

	_, err := ByID("bls12-381")
	assert.ErrorIs(t, err, ErrUnknownCurve)
}

func TestEd25519SeedMatchesStdlibPublicKey(t *testing.T) {
	c, _ := ByID(Ed25519)
	seed := randomSeed(t)

	kp, err := KeyPairFromSeed(c, seed)
	require.NoError(t, err)

	want := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	assert.Equal(t, []byte(want), kp.Public)
}

func TestDiffieHellmanSymmetry(t *testing.T) {
	for _, id := range []ID{Ed25519, Secp256k1} {
		t.Run(string(id), func(t *testing.T) {
			c, _ := ByID(id)
			a, err := KeyPairFromSeed(c, randomSeed(t))
			require.NoError(t, err)
			b, err := KeyPairFromSeed(c, randomSeed(t))
			require.NoError(t, err)

			ab, err := c.ScalarMult(a.Private, b.Public)
			require.NoError(t, err)
			ba, err := c.ScalarMult(b.Private, a.Public)
			require.NoError(t, err)
			assert.Equal(t, ab, ba)
		})
	}
}

func TestScalarAdditionIsHomomorphic(t *testing.T) {
	for _, id := range []ID{Ed25519, Secp256k1} {
		t.Run(string(id), func(t *testing.T) {
			c, _ := ByID(id)
			a, err := KeyPairFromSeed(c, randomSeed(t))
			require.NoError(t, err)
			h, err := c.HashToScalar([]byte("shared secret"))
			require.NoError(t, err)

			sum, err := c.AddScalars(a.Private, h)
			require.NoError(t, err)
			left, err := c.ScalarBaseMult(sum)
			require.NoError(t, err)

			hG, err := c.ScalarBaseMult(h)
			require.NoError(t, err)
			right, err := c.AddPoints(a.Public, hG)
			require.NoError(t, err)

			assert.Equal(t, left, right)
		})
	}
}

func TestHashToScalarIsDeterministic(t *testing.T) {
	for _, id := range []ID{Ed25519, Secp256k1} {
		c, _ := ByID(id)
		x, err := c.HashToScalar([]byte("abc"))
		require.NoError(t, err)
		y, err := c.HashToScalar([]byte("abc"))
		require.NoError(t, err)
		z, err := c.HashToScalar([]byte("abd"))
		require.NoError(t, err)
		assert.Equal(t, x, y)
		assert.NotEqual(t, x, z)
	}
}

func TestEd25519RejectsBadPoints(t *testing.T) {
	c, _ := ByID(Ed25519)

	identity := make([]byte, 32)
	identity[0] = 1

	tests := []struct {
		name  string
		point []byte
	}{
		{"short", []byte{1, 2, 3}},
		{"identity", identity},
		{"small order", orderEight},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, c.ValidatePoint(tc.point), ErrInvalidPoint)
		})
	}
}

func TestEd25519RejectsNonCanonicalEncodings(t *testing.T) {
	c, _ := ByID(Ed25519)

	// y = p + 1, which reduces to the identity's y.
	yAboveP := make([]byte, 32)
	for i := range yAboveP {
		yAboveP[i] = 0xff
	}
	yAboveP[0] = 0xee
	yAboveP[31] = 0x7f

	// y = 1 with the sign bit of x = 0 set.
	negativeZero := make([]byte, 32)
	negativeZero[0] = 1
	negativeZero[31] = 0x80

	for name, enc := range map[string][]byte{"y above p": yAboveP, "negative zero": negativeZero} {
		t.Run(name, func(t *testing.T) {
			_, err := new(edwards25519.Point).SetBytes(enc)
			require.NoError(t, err)
			err = c.ValidatePoint(enc)
			assert.ErrorIs(t, err, ErrInvalidPoint)
			assert.ErrorContains(t, err, "non-canonical")
		})
	}
}

func TestEd25519RejectsMixedOrderPoint(t *testing.T) {
	c, _ := ByID(Ed25519)
	kp, err := KeyPairFromSeed(c, randomSeed(t))
	require.NoError(t, err)
	require.NoError(t, c.ValidatePoint(kp.Public))

	p, err := new(edwards25519.Point).SetBytes(kp.Public)
	require.NoError(t, err)
	torsion, err := new(edwards25519.Point).SetBytes(orderEight)
	require.NoError(t, err)
	mixed := new(edwards25519.Point).Add(p, torsion).Bytes()

	assert.ErrorIs(t, c.ValidatePoint(mixed), ErrInvalidPoint)
}

func TestSecp256k1RejectsBadPoints(t *testing.T) {
	c, _ := ByID(Secp256k1)

	// x larger than the field prime
	offCurve := make([]byte, 33)
	offCurve[0] = 0x02
	for i := 1; i < 33; i++ {
		offCurve[i] = 0xff
	}

	assert.ErrorIs(t, c.ValidatePoint([]byte{0x02, 0x01}), ErrInvalidPoint)
	assert.ErrorIs(t, c.ValidatePoint(make([]byte, 65)), ErrInvalidPoint)
	assert.ErrorIs(t, c.ValidatePoint(offCurve), ErrInvalidPoint)
}

func TestScalarFromSeedRejectsWrongLength(t *testing.T) {
	for _, id := range []ID{Ed25519, Secp256k1} {
		c, _ := ByID(id)
		_, err := c.ScalarFromSeed([]byte("short"))
		assert.ErrorIs(t, err, ErrInvalidScalar)
	}
}
