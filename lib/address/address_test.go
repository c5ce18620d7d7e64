package address

import (
	"crypto/rand"
	"strings"
	"testing"

	"github.com/Maphikza/sip-privacy-wallet/lib/curve"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keyPair(t *testing.T, id curve.ID) curve.KeyPair {
	t.Helper()
	c, err := curve.ByID(id)
	require.NoError(t, err)
	seed := make([]byte, 32)
	_, err = rand.Read(seed)
	require.NoError(t, err)
	kp, err := curve.KeyPairFromSeed(c, seed)
	require.NoError(t, err)
	return kp
}

func TestMetaAddressRoundTrip(t *testing.T) {
	tests := []struct {
		chain string
		curve curve.ID
	}{
		{Solana, curve.Ed25519},
		{Near, curve.Ed25519},
		{Ethereum, curve.Secp256k1},
	}
	for _, tc := range tests {
		t.Run(tc.chain, func(t *testing.T) {
			m := MetaAddress{
				Chain:             tc.chain,
				SpendingPublicKey: keyPair(t, tc.curve).Public,
				ViewingPublicKey:  keyPair(t, tc.curve).Public,
			}
			s := FormatMetaAddress(m)
			assert.True(t, strings.HasPrefix(s, "sip:"+tc.chain+":"))

			parsed, err := ParseMetaAddress(s)
			require.NoError(t, err)
			assert.Equal(t, m, parsed)
			assert.Equal(t, s, parsed.String())
		})
	}
}

func TestEthereumKeysAreHex(t *testing.T) {
	m := MetaAddress{
		Chain:             Ethereum,
		SpendingPublicKey: keyPair(t, curve.Secp256k1).Public,
		ViewingPublicKey:  keyPair(t, curve.Secp256k1).Public,
	}
	parts := strings.Split(FormatMetaAddress(m), ":")
	require.Len(t, parts, 4)
	assert.True(t, strings.HasPrefix(parts[2], "0x"))
	assert.Len(t, parts[2], 2+66)
}

func TestParseMetaAddressErrors(t *testing.T) {
	spend := keyPair(t, curve.Ed25519).Public
	view := keyPair(t, curve.Ed25519).Public
	valid := FormatMetaAddress(MetaAddress{Chain: Solana, SpendingPublicKey: spend, ViewingPublicKey: view})
	parts := strings.Split(valid, ":")

	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"empty", "", ErrMalformedScheme},
		{"wrong scheme", "st:" + strings.Join(parts[1:], ":"), ErrMalformedScheme},
		{"too few parts", "sip:solana:" + parts[2], ErrMalformedScheme},
		{"too many parts", valid + ":extra", ErrMalformedScheme},
		{"unknown chain", "sip:dogecoin:" + parts[2] + ":" + parts[3], ErrUnsupportedChain},
		{"bad base58", "sip:solana:0OIl:" + parts[3], ErrInvalidKeyEncoding},
		{"secp key on ed25519 chain", "sip:ethereum:" + parts[2] + ":" + parts[3], ErrInvalidKeyEncoding},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseMetaAddress(tc.input)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestInvalidPointIsReportedAsCurveError(t *testing.T) {
	identity := make([]byte, 32)
	identity[0] = 1
	s := FormatMetaAddress(MetaAddress{
		Chain:             Solana,
		SpendingPublicKey: identity,
		ViewingPublicKey:  keyPair(t, curve.Ed25519).Public,
	})

	_, err := ParseMetaAddress(s)
	assert.ErrorIs(t, err, ErrInvalidKeyEncoding)
	assert.ErrorIs(t, err, curve.ErrInvalidPoint)
}

func TestChainAddress(t *testing.T) {
	ed := keyPair(t, curve.Ed25519).Public

	sol, err := ChainAddress(Solana, ed)
	require.NoError(t, err)
	solChain, _ := LookupChain(Solana)
	assert.True(t, solChain.IsAddress(sol))

	near, err := ChainAddress(Near, ed)
	require.NoError(t, err)
	assert.Len(t, near, 64)

	_, err = ChainAddress("dogecoin", ed)
	assert.ErrorIs(t, err, ErrUnsupportedChain)
}

func TestEthereumAddressChecksum(t *testing.T) {
	// Public key of private key 1 (the generator).
	gen := []byte{
		0x02, 0x79, 0xbe, 0x66, 0x7e, 0xf9, 0xdc, 0xbb, 0xac, 0x55, 0xa0, 0x62, 0x95, 0xce, 0x87, 0x0b,
		0x07, 0x02, 0x9b, 0xfc, 0xdb, 0x2d, 0xce, 0x28, 0xd9, 0x59, 0xf2, 0x81, 0x5b, 0x16, 0xf8, 0x17, 0x98,
	}
	addr, err := ChainAddress(Ethereum, gen)
	require.NoError(t, err)
	assert.Equal(t, "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf", addr)
}

func TestClassify(t *testing.T) {
	ed := keyPair(t, curve.Ed25519).Public
	meta := FormatMetaAddress(MetaAddress{Chain: Solana, SpendingPublicKey: ed, ViewingPublicKey: keyPair(t, curve.Ed25519).Public})
	sol, _ := ChainAddress(Solana, ed)

	tests := []struct {
		name  string
		chain string
		input string
		want  Kind
	}{
		{"stealth", Solana, meta, KindStealth},
		{"stealth for other chain", Near, meta, KindInvalid},
		{"regular solana", Solana, sol, KindRegular},
		{"regular eth", Ethereum, "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf", KindRegular},
		{"named near", Near, "alice.near", KindRegular},
		{"garbage", Solana, "not an address", KindInvalid},
		{"broken meta", Solana, "sip:solana:abc", KindInvalid},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			kind, err := Classify(tc.chain, tc.input)
			assert.Equal(t, tc.want, kind)
			if tc.want == KindInvalid {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPaymentRequestRoundTrip(t *testing.T) {
	amount := "1.5"
	memo := "coffee & cake"
	req := PaymentRequest{
		Address: "sip:solana:abc:def",
		Amount:  &amount,
		Memo:    &memo,
	}

	link := FormatPaymentRequest(req)
	assert.True(t, strings.HasPrefix(link, "sipprotocol://pay?"))

	parsed, err := ParsePaymentRequest(link)
	require.NoError(t, err)
	assert.Equal(t, req.Address, parsed.Address)
	require.NotNil(t, parsed.Amount)
	assert.Equal(t, amount, *parsed.Amount)
	require.NotNil(t, parsed.Memo)
	assert.Equal(t, memo, *parsed.Memo)
	assert.Nil(t, parsed.Token)
}

func TestParsePaymentRequestErrors(t *testing.T) {
	tests := []struct {
		name string
		link string
	}{
		{"wrong scheme", "https://pay?address=x"},
		{"wrong host", "sipprotocol://receive?address=x"},
		{"missing address", "sipprotocol://pay?amount=1"},
		{"negative amount", "sipprotocol://pay?address=x&amount=-1"},
		{"non-numeric amount", "sipprotocol://pay?address=x&amount=lots"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParsePaymentRequest(tc.link)
			assert.ErrorIs(t, err, ErrMalformedPaymentLink)
		})
	}
}

func TestEmptyOptionalIsUnspecified(t *testing.T) {
	req, err := ParsePaymentRequest("sipprotocol://pay?address=x&amount=&token=")
	require.NoError(t, err)
	assert.Nil(t, req.Amount)
	assert.Nil(t, req.Token)
}
