package address

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/Maphikza/sip-privacy-wallet/lib/curve"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/base58"
	"golang.org/x/crypto/sha3"
)

const (
	Solana   = "solana"
	Ethereum = "ethereum"
	Near     = "near"
)

// Chain describes how one chain encodes public keys and native addresses.
type Chain struct {
	Name  string
	Curve curve.ID

	// EncodeKey and DecodeKey convert public keys to and from the chain's
	// native public-key text encoding.
	EncodeKey func(pub []byte) string
	DecodeKey func(s string) ([]byte, error)

	// Address derives the chain-native display address of a public key.
	Address func(pub []byte) (string, error)
	// IsAddress reports whether s is a well-formed regular address.
	IsAddress func(s string) bool
}

var (
	chainsMu sync.RWMutex
	chains   = map[string]Chain{}
)

func init() {
	RegisterChain(solanaChain())
	RegisterChain(nearChain())
	RegisterChain(ethereumChain())
}

// RegisterChain adds or replaces a supported chain.
func RegisterChain(c Chain) {
	chainsMu.Lock()
	defer chainsMu.Unlock()
	chains[c.Name] = c
}

// LookupChain returns the registered chain with the given name.
func LookupChain(name string) (Chain, error) {
	chainsMu.RLock()
	defer chainsMu.RUnlock()
	c, ok := chains[name]
	if !ok {
		return Chain{}, fmt.Errorf("%w: %q", ErrUnsupportedChain, name)
	}
	return c, nil
}

// Chains lists the names of all registered chains.
func Chains() []string {
	chainsMu.RLock()
	defer chainsMu.RUnlock()
	names := make([]string, 0, len(chains))
	for name := range chains {
		names = append(names, name)
	}
	return names
}

// ChainAddress derives the chain-native display address for a public key,
// for regular (non-stealth) use or for a derived one-time key.
func ChainAddress(chain string, pub []byte) (string, error) {
	c, err := LookupChain(chain)
	if err != nil {
		return "", err
	}
	return c.Address(pub)
}

func decodeBase58Key(s string) ([]byte, error) {
	b := base58.Decode(s)
	if len(b) != 32 {
		return nil, fmt.Errorf("%w: expected 32-byte base58 key", ErrInvalidKeyEncoding)
	}
	return b, nil
}

func solanaChain() Chain {
	return Chain{
		Name:      Solana,
		Curve:     curve.Ed25519,
		EncodeKey: base58.Encode,
		DecodeKey: decodeBase58Key,
		Address: func(pub []byte) (string, error) {
			if len(pub) != 32 {
				return "", fmt.Errorf("%w: expected 32-byte key", ErrInvalidKeyEncoding)
			}
			return base58.Encode(pub), nil
		},
		IsAddress: func(s string) bool {
			return len(base58.Decode(s)) == 32
		},
	}
}

var nearAccountRe = regexp.MustCompile(`^([a-z0-9]+[-_])*[a-z0-9]+(\.([a-z0-9]+[-_])*[a-z0-9]+)*$`)

func nearChain() Chain {
	return Chain{
		Name:      Near,
		Curve:     curve.Ed25519,
		EncodeKey: base58.Encode,
		DecodeKey: decodeBase58Key,
		// Implicit accounts are the lowercase hex of the ed25519 key.
		Address: func(pub []byte) (string, error) {
			if len(pub) != 32 {
				return "", fmt.Errorf("%w: expected 32-byte key", ErrInvalidKeyEncoding)
			}
			return hex.EncodeToString(pub), nil
		},
		IsAddress: func(s string) bool {
			if len(s) == 64 {
				if _, err := hex.DecodeString(s); err == nil {
					return true
				}
			}
			return len(s) >= 2 && len(s) <= 64 && nearAccountRe.MatchString(s) &&
				(strings.HasSuffix(s, ".near") || strings.HasSuffix(s, ".testnet"))
		},
	}
}

func ethereumChain() Chain {
	return Chain{
		Name:  Ethereum,
		Curve: curve.Secp256k1,
		EncodeKey: func(pub []byte) string {
			return "0x" + hex.EncodeToString(pub)
		},
		DecodeKey: func(s string) ([]byte, error) {
			if !strings.HasPrefix(s, "0x") {
				return nil, fmt.Errorf("%w: missing 0x prefix", ErrInvalidKeyEncoding)
			}
			b, err := hex.DecodeString(s[2:])
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidKeyEncoding, err)
			}
			if len(b) != btcec.PubKeyBytesLenCompressed {
				return nil, fmt.Errorf("%w: expected 33-byte compressed key", ErrInvalidKeyEncoding)
			}
			return b, nil
		},
		Address: ethereumAddress,
		IsAddress: func(s string) bool {
			if len(s) != 42 || !strings.HasPrefix(s, "0x") {
				return false
			}
			_, err := hex.DecodeString(s[2:])
			return err == nil
		},
	}
}

// ethereumAddress is the EIP-55 checksummed Keccak-256 address of a
// compressed secp256k1 key.
func ethereumAddress(pub []byte) (string, error) {
	key, err := btcec.ParsePubKey(pub)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKeyEncoding, err)
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(key.SerializeUncompressed()[1:])
	addr := h.Sum(nil)[12:]
	return checksumHex(addr), nil
}

func checksumHex(addr []byte) string {
	lower := hex.EncodeToString(addr)
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	digest := h.Sum(nil)

	out := []byte(lower)
	for i, c := range out {
		if c < 'a' {
			continue
		}
		nibble := digest[i/2]
		if i%2 == 0 {
			nibble >>= 4
		}
		if nibble&0x0f >= 8 {
			out[i] = c - 32
		}
	}
	return "0x" + string(out)
}
