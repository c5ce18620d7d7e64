// Package address formats and parses stealth meta-addresses, chain-native
// display addresses and payment-request deep links. Everything here is pure.
package address

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/Maphikza/sip-privacy-wallet/lib/curve"
)

// Scheme prefixes every meta-address.
const Scheme = "sip"

var (
	ErrMalformedScheme    = errors.New("malformed meta-address scheme")
	ErrUnsupportedChain   = errors.New("unsupported chain")
	ErrInvalidKeyEncoding = errors.New("invalid key encoding")
)

// MetaAddress is the reusable address a holder publishes.
type MetaAddress struct {
	Chain             string
	SpendingPublicKey []byte
	ViewingPublicKey  []byte
}

// String implements fmt.Stringer.
func (m MetaAddress) String() string {
	return FormatMetaAddress(m)
}

// FormatMetaAddress renders m as sip:<chain>:<spendingKey>:<viewingKey>.
// Keys of chains that are not registered fall back to 0x-hex.
func FormatMetaAddress(m MetaAddress) string {
	encode := func(b []byte) string { return "0x" + hex.EncodeToString(b) }
	if c, err := LookupChain(m.Chain); err == nil {
		encode = c.EncodeKey
	}
	return strings.Join([]string{
		Scheme,
		m.Chain,
		encode(m.SpendingPublicKey),
		encode(m.ViewingPublicKey),
	}, ":")
}

// ParseMetaAddress parses and validates a meta-address. Both keys must be
// valid points of the chain's curve.
func ParseMetaAddress(s string) (MetaAddress, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 4 || parts[0] != Scheme {
		return MetaAddress{}, fmt.Errorf("%w: expected %s:<chain>:<spendingKey>:<viewingKey>", ErrMalformedScheme, Scheme)
	}

	c, err := LookupChain(parts[1])
	if err != nil {
		return MetaAddress{}, err
	}
	group, err := curve.ByID(c.Curve)
	if err != nil {
		return MetaAddress{}, fmt.Errorf("%w: %v", ErrUnsupportedChain, err)
	}

	spend, err := decodePoint(c, group, parts[2])
	if err != nil {
		return MetaAddress{}, fmt.Errorf("spending key: %w", err)
	}
	view, err := decodePoint(c, group, parts[3])
	if err != nil {
		return MetaAddress{}, fmt.Errorf("viewing key: %w", err)
	}

	return MetaAddress{
		Chain:             c.Name,
		SpendingPublicKey: spend,
		ViewingPublicKey:  view,
	}, nil
}

func decodePoint(c Chain, group curve.Curve, s string) ([]byte, error) {
	b, err := c.DecodeKey(s)
	if err != nil {
		if errors.Is(err, ErrInvalidKeyEncoding) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyEncoding, err)
	}
	if err := group.ValidatePoint(b); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyEncoding, err)
	}
	return b, nil
}

// Kind classifies a recipient string.
type Kind string

const (
	KindStealth Kind = "stealth"
	KindPool    Kind = "pool"
	KindRegular Kind = "regular"
	KindInvalid Kind = "invalid"
)

// Classify reports whether s is a stealth meta-address or a regular address
// of chain. Pool notes are provider-specific and never recognized here.
func Classify(chain, s string) (Kind, error) {
	if strings.HasPrefix(s, Scheme+":") {
		m, err := ParseMetaAddress(s)
		if err != nil {
			return KindInvalid, err
		}
		if chain != "" && m.Chain != chain {
			return KindInvalid, fmt.Errorf("%w: meta-address is for %s, not %s", ErrUnsupportedChain, m.Chain, chain)
		}
		return KindStealth, nil
	}

	c, err := LookupChain(chain)
	if err != nil {
		return KindInvalid, err
	}
	if !c.IsAddress(s) {
		return KindInvalid, fmt.Errorf("not a valid %s address", chain)
	}
	return KindRegular, nil
}
