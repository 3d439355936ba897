package sui

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ObjectFilter narrows suix_getOwnedObjects.
type ObjectFilter struct {
	StructType string
	MoveModule *MoveModule
	Package    string
}

func (f *ObjectFilter) toJSON() map[string]any {
	if f == nil {
		return nil
	}
	switch {
	case f.StructType != "":
		return map[string]any{"StructType": f.StructType}
	case f.MoveModule != nil:
		return map[string]any{"MoveModule": f.MoveModule}
	case f.Package != "":
		return map[string]any{"Package": f.Package}
	}
	return nil
}

// ObjectPage is one page of owned objects.
type ObjectPage struct {
	Data        []*Object
	NextCursor  string
	HasNextPage bool
}

// MoveModule identifies a module within a package.
type MoveModule struct {
	Package string `json:"package"`
	Module  string `json:"module"`
}

// EventFilter selects events. Exactly one field should be set.
type EventFilter struct {
	MoveEventType   string
	MoveEventModule *MoveModule
	Sender          string
}

// MarshalJSON encodes the filter as the tagged union the node expects.
func (f EventFilter) MarshalJSON() ([]byte, error) {
	switch {
	case f.MoveEventType != "":
		return json.Marshal(map[string]string{"MoveEventType": f.MoveEventType})
	case f.MoveEventModule != nil:
		return json.Marshal(map[string]*MoveModule{"MoveEventModule": f.MoveEventModule})
	case f.Sender != "":
		return json.Marshal(map[string]string{"Sender": f.Sender})
	}
	return nil, fmt.Errorf("empty event filter")
}

// EventID is the cursor of an event.
type EventID struct {
	TxDigest string `json:"txDigest"`
	EventSeq string `json:"eventSeq"`
}

// Event is an emitted Move event.
type Event struct {
	ID                EventID         `json:"id"`
	PackageID         string          `json:"packageId"`
	TransactionModule string          `json:"transactionModule"`
	Sender            string          `json:"sender"`
	Type              string          `json:"type"`
	ParsedJSON        json.RawMessage `json:"parsedJson"`
	TimestampMs       U64             `json:"timestampMs"`
}

// EventPage is one page of events.
type EventPage struct {
	Data        []Event
	NextCursor  *EventID
	HasNextPage bool
}

// DynamicFieldName is the key of a dynamic field.
type DynamicFieldName struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// Coin is a coin object with its balance.
type Coin struct {
	CoinType     string `json:"coinType"`
	CoinObjectID string `json:"coinObjectId"`
	Version      U64    `json:"version"`
	Digest       string `json:"digest"`
	Balance      U64    `json:"balance"`
}

// CoinPage is one page of coins.
type CoinPage struct {
	Data        []Coin  `json:"data"`
	NextCursor  *string `json:"nextCursor"`
	HasNextPage bool    `json:"hasNextPage"`
}

// SuiCoinType is the native coin type.
const SuiCoinType = "0x2::sui::SUI"

// U64 is a Move u64. The node quotes u64 values in JSON; both quoted and
// bare integers are accepted.
type U64 uint64

func (u *U64) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*u = 0
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("parse u64 %q: %w", s, err)
	}
	*u = U64(v)
	return nil
}

func (u U64) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(strconv.FormatUint(uint64(u), 10))), nil
}

// hasTypeSuffix matches a Move type by its module::Struct tail, ignoring
// the package address and generic parameters.
func hasTypeSuffix(typ, suffix string) bool {
	if suffix == "" {
		return true
	}
	if i := strings.IndexByte(typ, '<'); i >= 0 {
		typ = typ[:i]
	}
	return strings.HasSuffix(typ, suffix)
}

// TypeMatches reports whether a full Move type is module::Struct of pkg.
func TypeMatches(typ, pkg, moduleStruct string) bool {
	if i := strings.IndexByte(typ, '<'); i >= 0 {
		typ = typ[:i]
	}
	parts := strings.SplitN(typ, "::", 2)
	if len(parts) != 2 {
		return false
	}
	return sameAddress(parts[0], pkg) && parts[1] == moduleStruct
}

func sameAddress(a, b string) bool {
	return normalizeHex(a) == normalizeHex(b)
}

func normalizeHex(s string) string {
	s = strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
	return strings.TrimLeft(s, "0")
}
