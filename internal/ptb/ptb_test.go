package ptb

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"

	"imaigine-lab/internal/domain"
)

func TestULEB128(t *testing.T) {
	tests := []struct {
		in   uint64
		want []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{300, []byte{0xac, 0x02}},
		{16384, []byte{0x80, 0x80, 0x01}},
	}
	for _, tt := range tests {
		var e Encoder
		e.ULEB128(tt.in)
		if !bytes.Equal(e.Bytes(), tt.want) {
			t.Errorf("ULEB128(%d) = %x, want %x", tt.in, e.Bytes(), tt.want)
		}
	}
}

func TestPureEncoders(t *testing.T) {
	if got := EncodeU64(1); !bytes.Equal(got, []byte{1, 0, 0, 0, 0, 0, 0, 0}) {
		t.Errorf("EncodeU64(1) = %x", got)
	}
	if got := EncodeString("abc"); !bytes.Equal(got, []byte{3, 'a', 'b', 'c'}) {
		t.Errorf("EncodeString = %x", got)
	}
	if got := EncodeVectorString([]string{"a", ""}); !bytes.Equal(got, []byte{2, 1, 'a', 0}) {
		t.Errorf("EncodeVectorString = %x", got)
	}
	if got := EncodeVectorVectorString([][]string{{"x"}}); !bytes.Equal(got, []byte{1, 1, 1, 'x'}) {
		t.Errorf("EncodeVectorVectorString = %x", got)
	}
	if got := EncodeVectorVectorString([][]string{{}}); !bytes.Equal(got, []byte{1, 0}) {
		t.Errorf("EncodeVectorVectorString(empty inner) = %x", got)
	}
}

func TestParseAddress(t *testing.T) {
	a, err := ParseAddress("0x2")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	want := "0x0000000000000000000000000000000000000000000000000000000000000002"
	if a.String() != want {
		t.Errorf("got %s, want %s", a, want)
	}

	for _, bad := range []string{"", "0x", "0xzz", "0x" + string(bytes.Repeat([]byte("a"), 65))} {
		if _, err := ParseAddress(bad); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("ParseAddress(%q) err = %v, want ErrInvalidInput", bad, err)
		}
	}
}

func buildSplitTransfer(t *testing.T) *Transaction {
	t.Helper()
	b := NewBuilder()
	amount := b.PureU64(100)
	recipient := b.PureAddress("0x1")
	coins := b.SplitCoins(b.Gas(), amount)
	b.TransferObjects([]Argument{coins[0]}, recipient)
	tx, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return tx
}

func TestKindBytes(t *testing.T) {
	tx := buildSplitTransfer(t)

	// ProgrammableTransaction, two inputs: Pure u64 then Pure address.
	want := []byte{0x00, 0x02, 0x00, 0x08, 100}
	want = append(want, make([]byte, 7)...)
	want = append(want, 0x00, 0x20)
	want = append(want, make([]byte, 31)...)
	want = append(want, 0x01)
	// Two commands: SplitCoins(Gas, [Input(0)]) and
	// TransferObjects([NestedResult(0, 0)], Input(1)).
	want = append(want, 0x02)
	want = append(want, 0x02, 0x00, 0x01, 0x01, 0, 0)
	want = append(want, 0x01, 0x01, 0x03, 0, 0, 0, 0, 0x01, 0x01, 0x00)

	got, err := tx.KindBytes()
	if err != nil {
		t.Fatalf("KindBytes: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("KindBytes =\n%x\nwant\n%x", got, want)
	}
}

func TestBuilder_StickyError(t *testing.T) {
	b := NewBuilder()
	b.PureAddress("not-an-address")
	b.MoveCall("0x2::coin::value", nil, b.Gas())
	if _, err := b.Build(); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("Build err = %v, want ErrInvalidInput", err)
	}
}

func TestBuilder_MalformedTarget(t *testing.T) {
	for _, target := range []string{"0x2::coin", "0x2::1coin::value", "nothex::a::b", "0x2::coin::"} {
		b := NewBuilder()
		b.MoveCall(target, nil)
		if _, err := b.Build(); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("MoveCall(%q): err = %v, want ErrInvalidInput", target, err)
		}
	}
}

func TestBuilder_EmptyTransaction(t *testing.T) {
	if _, err := NewBuilder().Build(); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestBuilder_ObjectDedupAndResolve(t *testing.T) {
	b := NewBuilder()
	first := b.Object("0xabc")
	second := b.Object("0x0abc")
	if first != second {
		t.Fatalf("same object produced two inputs: %+v %+v", first, second)
	}
	res := b.MoveCall("0x2::example::touch", nil, first)
	if res.Kind != ArgResult || res.Index != 0 {
		t.Fatalf("unexpected result argument %+v", res)
	}
	tx, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if _, err := tx.KindBytes(); !errors.Is(err, ErrUnresolvedObject) {
		t.Fatalf("KindBytes err = %v, want ErrUnresolvedObject", err)
	}
	unresolved := tx.UnresolvedObjects()
	if len(unresolved) != 1 || unresolved[0] != MustParseAddress("0xabc") {
		t.Fatalf("UnresolvedObjects = %v", unresolved)
	}

	digest := base58.Encode(bytes.Repeat([]byte{7}, 32))
	tx.Resolve(unresolved[0], ObjectArg{
		Kind: ObjectImmOrOwned,
		Ref:  ObjectRef{ObjectID: unresolved[0], Version: 9, Digest: digest},
	})
	if _, err := tx.KindBytes(); err != nil {
		t.Fatalf("KindBytes after resolve: %v", err)
	}
}

func TestBuilder_SharedObjectEncoding(t *testing.T) {
	b := NewBuilder()
	obj := b.SharedObject("0x6", 1, false)
	b.MoveCall("0x2::clock::timestamp_ms", nil, obj)
	tx, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got, err := tx.KindBytes()
	if err != nil {
		t.Fatalf("KindBytes: %v", err)
	}
	// kind, input count, Object, Shared, id
	prefix := []byte{0x00, 0x01, 0x01, 0x01}
	if !bytes.HasPrefix(got, prefix) {
		t.Fatalf("unexpected prefix %x", got[:4])
	}
	rest := got[len(prefix)+AddressLength:]
	if !bytes.HasPrefix(rest, []byte{1, 0, 0, 0, 0, 0, 0, 0, 0}) {
		t.Errorf("shared version/mutable encoded as %x", rest[:9])
	}
}

func TestNested(t *testing.T) {
	res := Argument{Kind: ArgResult, Index: 4}
	n := res.Nested(1)
	if n.Kind != ArgNestedResult || n.Index != 4 || n.Sub != 1 {
		t.Errorf("Nested = %+v", n)
	}
	gas := Argument{Kind: ArgGasCoin}
	if gas.Nested(1) != gas {
		t.Error("Nested on gas coin should be identity")
	}
}

func TestTransactionData_Digest(t *testing.T) {
	tx := buildSplitTransfer(t)
	sender := MustParseAddress("0x5")
	data := &TransactionData{
		Kind:   tx,
		Sender: sender,
		Gas: GasData{
			Payment: []ObjectRef{{
				ObjectID: MustParseAddress("0x7"),
				Version:  3,
				Digest:   base58.Encode(bytes.Repeat([]byte{1}, 32)),
			}},
			Owner:  sender,
			Price:  1000,
			Budget: 10_000_000,
		},
	}

	raw, err := data.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if raw[0] != 0x00 {
		t.Errorf("version tag = %d, want 0", raw[0])
	}
	if raw[len(raw)-1] != 0x00 {
		t.Errorf("expiration tag = %d, want None", raw[len(raw)-1])
	}

	sum := blake2b.Sum256(append([]byte("TransactionData::"), raw...))
	want := base58.Encode(sum[:])
	got, err := data.Digest()
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if got != want {
		t.Errorf("Digest = %s, want %s", got, want)
	}

	epoch := uint64(42)
	data.ExpirationEpoch = &epoch
	other, err := data.Digest()
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if other == got {
		t.Error("expiration did not change the digest")
	}
}

func TestTransactionData_BadGasDigest(t *testing.T) {
	data := &TransactionData{
		Kind: buildSplitTransfer(t),
		Gas:  GasData{Payment: []ObjectRef{{Digest: "0OIl"}}},
	}
	if _, err := data.Bytes(); err == nil {
		t.Fatal("expected error for invalid base58 digest")
	}
}

func TestTransaction_JSON(t *testing.T) {
	tx := buildSplitTransfer(t)
	raw, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back Transaction
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.CountTransfers() != 1 || back.CountCommands(CmdSplitCoins) != 1 {
		t.Errorf("round trip lost commands: %+v", back.Commands)
	}
}
