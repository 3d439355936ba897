package ptb

import (
	"encoding/binary"
)

// Encoder writes Binary Canonical Serialization (BCS).
type Encoder struct {
	buf []byte
}

// Bytes returns the encoded bytes.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// ULEB128 writes an unsigned LEB128 integer, used for lengths and enum tags.
func (e *Encoder) ULEB128(v uint64) {
	for v >= 0x80 {
		e.buf = append(e.buf, byte(v)|0x80)
		v >>= 7
	}
	e.buf = append(e.buf, byte(v))
}

func (e *Encoder) U16(v uint16) {
	e.buf = binary.LittleEndian.AppendUint16(e.buf, v)
}

func (e *Encoder) U64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

func (e *Encoder) Bool(v bool) {
	if v {
		e.buf = append(e.buf, 1)
		return
	}
	e.buf = append(e.buf, 0)
}

// Fixed writes raw bytes without a length prefix.
func (e *Encoder) Fixed(b []byte) {
	e.buf = append(e.buf, b...)
}

// VecBytes writes a length-prefixed byte vector.
func (e *Encoder) VecBytes(b []byte) {
	e.ULEB128(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

// String writes a length-prefixed UTF-8 string.
func (e *Encoder) String(s string) {
	e.VecBytes([]byte(s))
}

func (e *Encoder) Address(a Address) {
	e.Fixed(a[:])
}

// Pure value encoders. The result is the payload of CallArg::Pure.

// EncodeU64 encodes a Move u64.
func EncodeU64(v uint64) []byte {
	var e Encoder
	e.U64(v)
	return e.Bytes()
}

// EncodeString encodes a Move std::string::String.
func EncodeString(s string) []byte {
	var e Encoder
	e.String(s)
	return e.Bytes()
}

// EncodeAddress encodes a Move address.
func EncodeAddress(a Address) []byte {
	var e Encoder
	e.Address(a)
	return e.Bytes()
}

// EncodeVectorString encodes a Move vector<String>.
func EncodeVectorString(v []string) []byte {
	var e Encoder
	e.ULEB128(uint64(len(v)))
	for _, s := range v {
		e.String(s)
	}
	return e.Bytes()
}

// EncodeVectorVectorString encodes a Move vector<vector<String>>.
func EncodeVectorVectorString(v [][]string) []byte {
	var e Encoder
	e.ULEB128(uint64(len(v)))
	for _, inner := range v {
		e.ULEB128(uint64(len(inner)))
		for _, s := range inner {
			e.String(s)
		}
	}
	return e.Bytes()
}
