package sui

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"golang.org/x/crypto/blake2b"
)

func TestAddressFromPublicKey(t *testing.T) {
	seed := bytes.Repeat([]byte{0x11}, ed25519.SeedSize)
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)

	addr, err := AddressFromPublicKey(pub)
	if err != nil {
		t.Fatalf("AddressFromPublicKey: %v", err)
	}
	want := blake2b.Sum256(append([]byte{0x00}, pub...))
	if !bytes.Equal(addr[:], want[:]) {
		t.Errorf("address = %x, want %x", addr[:], want[:])
	}

	if _, err := AddressFromPublicKey(pub[:31]); err == nil {
		t.Error("expected error for short key")
	}
}

func TestParsePrivateKey(t *testing.T) {
	seed := bytes.Repeat([]byte{0x22}, ed25519.SeedSize)

	fromHex, err := ParsePrivateKey("0x" + hex.EncodeToString(seed))
	if err != nil {
		t.Fatalf("hex: %v", err)
	}
	fromB64, err := ParsePrivateKey(base64.StdEncoding.EncodeToString(append([]byte{FlagEd25519}, seed...)))
	if err != nil {
		t.Fatalf("base64: %v", err)
	}
	if fromHex.Address() != fromB64.Address() {
		t.Errorf("addresses differ: %s vs %s", fromHex.Address(), fromB64.Address())
	}

	if _, err := ParsePrivateKey("not a key"); err == nil {
		t.Error("expected error for garbage")
	}
	if _, err := ParsePrivateKey(base64.StdEncoding.EncodeToString(append([]byte{0x01}, seed...))); err == nil {
		t.Error("expected error for non-ed25519 flag")
	}
}

func TestKeypair_SignTransaction(t *testing.T) {
	kp, err := NewKeypairFromSeed(bytes.Repeat([]byte{0x33}, ed25519.SeedSize))
	if err != nil {
		t.Fatalf("NewKeypairFromSeed: %v", err)
	}
	txBytes := []byte("transaction bytes")

	raw, err := base64.StdEncoding.DecodeString(kp.SignTransaction(txBytes))
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	if len(raw) != 1+ed25519.SignatureSize+ed25519.PublicKeySize {
		t.Fatalf("signature length %d", len(raw))
	}
	if raw[0] != FlagEd25519 {
		t.Errorf("flag = %d", raw[0])
	}
	sig := raw[1 : 1+ed25519.SignatureSize]
	pub := raw[1+ed25519.SignatureSize:]
	if !bytes.Equal(pub, kp.PublicKey()) {
		t.Error("embedded public key mismatch")
	}

	digest := blake2b.Sum256(append([]byte{0, 0, 0}, txBytes...))
	if !ed25519.Verify(pub, digest[:], sig) {
		t.Error("signature does not verify over the intent digest")
	}
}
