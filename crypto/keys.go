package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the human-readable part of a bech32-encoded account address.
const AddressPrefix = "job"

// Address represents a 20-byte account address.
type Address struct {
	bytes []byte
}

// NewAddress wraps a raw 20-byte account identifier.
func NewAddress(b []byte) (Address, error) {
	if len(b) != 20 {
		return Address{}, fmt.Errorf("address must be 20 bytes long, got %d", len(b))
	}
	buf := make([]byte, 20)
	copy(buf, b)
	return Address{bytes: buf}, nil
}

// MustNewAddress is NewAddress for callers with a known-good length, e.g. test
// fixtures and addresses derived from public keys.
func MustNewAddress(b []byte) Address {
	addr, err := NewAddress(b)
	if err != nil {
		panic(err)
	}
	return addr
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(AddressPrefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	return a.bytes
}

// Array returns the fixed-size form used as a state key component.
func (a Address) Array() [20]byte {
	var out [20]byte
	copy(out[:], a.bytes)
	return out
}

// DecodeAddress parses a bech32 account address with the expected prefix.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if prefix != AddressPrefix {
		return Address{}, fmt.Errorf("unexpected address prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	return NewAddress(conv)
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

func (p *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&p.PublicKey}
}

// Address derives the account address from the public key using the trailing
// 20 bytes of the keccak hash, matching the on-disk account key format.
func (p *PublicKey) Address() Address {
	hashed := crypto.Keccak256(crypto.FromECDSAPub(p.PublicKey))
	return MustNewAddress(hashed[len(hashed)-20:])
}
