package crypto

import (
	"bytes"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := make([]byte, 20)
	raw[0] = 0xAB
	raw[19] = 0x01
	addr := NewAddress(AccountPrefix, raw)

	decoded, err := DecodeAddress(addr.String())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Prefix() != AccountPrefix {
		t.Fatalf("unexpected prefix %q", decoded.Prefix())
	}
	if !bytes.Equal(decoded.Bytes(), raw) {
		t.Fatalf("payload mismatch: %x != %x", decoded.Bytes(), raw)
	}
}

func TestAddressTextMarshalling(t *testing.T) {
	raw := make([]byte, 20)
	raw[5] = 0x42
	addr := NewAddress(TokenPrefix, raw)

	text, err := addr.MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Address
	if err := decoded.UnmarshalText(text); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.String() != addr.String() {
		t.Fatalf("round trip mismatch: %s != %s", decoded.String(), addr.String())
	}

	var zero Address
	if err := zero.UnmarshalText(nil); err != nil {
		t.Fatalf("empty unmarshal: %v", err)
	}
	if !zero.IsZero() {
		t.Fatalf("expected zero address")
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	if _, err := DecodeAddress("not-bech32"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestIsZero(t *testing.T) {
	var unset Address
	if !unset.IsZero() {
		t.Fatalf("unset address must be zero")
	}
	if !NewAddress(AccountPrefix, make([]byte, 20)).IsZero() {
		t.Fatalf("all-zero payload must be zero")
	}
	raw := make([]byte, 20)
	raw[0] = 1
	if NewAddress(AccountPrefix, raw).IsZero() {
		t.Fatalf("non-zero payload reported zero")
	}
}

func TestKeyGeneration(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.PubKey().Address().String() != key.PubKey().Address().String() {
		t.Fatalf("restored key derives a different address")
	}
	if key.PubKey().Address().Prefix() != AccountPrefix {
		t.Fatalf("unexpected prefix %q", key.PubKey().Address().Prefix())
	}
}
