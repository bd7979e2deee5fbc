package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()
	encoded := addr.String()
	if !strings.HasPrefix(encoded, AddressPrefix+"1") {
		t.Fatalf("expected %q prefix, got %q", AddressPrefix, encoded)
	}
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(decoded.Bytes(), addr.Bytes()) {
		t.Fatalf("round trip mismatch: %x != %x", decoded.Bytes(), addr.Bytes())
	}
}

func TestDecodeAddressRejectsForeignPrefix(t *testing.T) {
	if _, err := DecodeAddress("nhb1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqsmc6c8"); err == nil {
		t.Fatal("expected prefix rejection")
	}
}

func TestNewAddressLength(t *testing.T) {
	if _, err := NewAddress(make([]byte, 19)); err == nil {
		t.Fatal("expected length error")
	}
}
