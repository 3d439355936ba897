package ptb

import (
	"encoding/hex"
	"fmt"
	"strings"

	"imaigine-lab/internal/domain"
)

// AddressLength is the byte length of Sui addresses and object ids.
const AddressLength = 32

// Address is a Sui account address or object id.
type Address [AddressLength]byte

// ParseAddress parses a hex address with or without the 0x prefix.
// Short forms such as "0x2" are left-padded with zeros.
func ParseAddress(s string) (Address, error) {
	var a Address
	h := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if h == "" {
		return a, fmt.Errorf("%w: empty address", domain.ErrInvalidInput)
	}
	if len(h) > AddressLength*2 {
		return a, fmt.Errorf("%w: address %q longer than %d bytes", domain.ErrInvalidInput, s, AddressLength)
	}
	if len(h)%2 == 1 {
		h = "0" + h
	}
	raw, err := hex.DecodeString(h)
	if err != nil {
		return a, fmt.Errorf("%w: address %q is not hex", domain.ErrInvalidInput, s)
	}
	copy(a[AddressLength-len(raw):], raw)
	return a, nil
}

// MustParseAddress is ParseAddress for constants. It panics on malformed input.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// NormalizeAddress returns the canonical 0x-prefixed 64 hex digit form.
func NormalizeAddress(s string) (string, error) {
	a, err := ParseAddress(s)
	if err != nil {
		return "", err
	}
	return a.String(), nil
}

// String returns the canonical 0x-prefixed form.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// IsZero reports whether the address is 0x0.
func (a Address) IsZero() bool {
	return a == Address{}
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
