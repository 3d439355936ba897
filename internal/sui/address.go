package sui

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/blake2b"

	"imaigine-lab/internal/ptb"
)

// Signature scheme flags prefixed to public keys and signatures.
const (
	FlagEd25519 byte = 0x00
)

// intentTransaction is IntentScope::TransactionData, IntentVersion::V0, AppId::Sui.
var intentTransaction = []byte{0, 0, 0}

// AddressFromPublicKey derives the Sui address of an Ed25519 public key:
// blake2b-256(flag || pubkey).
func AddressFromPublicKey(pub []byte) (ptb.Address, error) {
	var addr ptb.Address
	if len(pub) != ed25519.PublicKeySize {
		return addr, fmt.Errorf("public key: expected %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	if _, err := new(edwards25519.Point).SetBytes(pub); err != nil {
		return addr, fmt.Errorf("public key is not a curve point: %w", err)
	}
	h, _ := blake2b.New256(nil)
	h.Write([]byte{FlagEd25519})
	h.Write(pub)
	copy(addr[:], h.Sum(nil))
	return addr, nil
}

// Keypair is an Ed25519 signing key.
type Keypair struct {
	priv ed25519.PrivateKey
	addr ptb.Address
}

// NewKeypairFromSeed builds a keypair from a 32-byte seed.
func NewKeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed: expected %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	addr, err := AddressFromPublicKey(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	return &Keypair{priv: priv, addr: addr}, nil
}

// ParsePrivateKey accepts a hex seed or the base64 keystore form (flag || seed).
func ParsePrivateKey(s string) (*Keypair, error) {
	s = strings.TrimSpace(s)
	if raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x")); err == nil && len(raw) == ed25519.SeedSize {
		return NewKeypairFromSeed(raw)
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("private key is neither hex nor base64")
	}
	if len(raw) != ed25519.SeedSize+1 || raw[0] != FlagEd25519 {
		return nil, fmt.Errorf("private key: unsupported keystore entry")
	}
	return NewKeypairFromSeed(raw[1:])
}

// Address returns the account address of the key.
func (k *Keypair) Address() ptb.Address {
	return k.addr
}

// PublicKey returns the raw Ed25519 public key.
func (k *Keypair) PublicKey() ed25519.PublicKey {
	return k.priv.Public().(ed25519.PublicKey)
}

// SignTransaction signs BCS TransactionData bytes and returns the serialized
// signature (flag || sig || pubkey) in base64.
func (k *Keypair) SignTransaction(txBytes []byte) string {
	h, _ := blake2b.New256(nil)
	h.Write(intentTransaction)
	h.Write(txBytes)
	sig := ed25519.Sign(k.priv, h.Sum(nil))

	out := make([]byte, 0, 1+ed25519.SignatureSize+ed25519.PublicKeySize)
	out = append(out, FlagEd25519)
	out = append(out, sig...)
	out = append(out, k.PublicKey()...)
	return base64.StdEncoding.EncodeToString(out)
}
