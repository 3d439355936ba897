package ptb

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// ErrUnresolvedObject is returned when an object input has no version or
// digest yet and the transaction cannot be serialized.
var ErrUnresolvedObject = errors.New("unresolved object input")

// ArgumentKind enumerates the Argument variants, in BCS tag order.
type ArgumentKind uint8

const (
	ArgGasCoin ArgumentKind = iota
	ArgInput
	ArgResult
	ArgNestedResult
)

// Argument refers to the gas coin, an input, or the output of an earlier command.
type Argument struct {
	Kind  ArgumentKind `json:"kind"`
	Index uint16       `json:"index,omitempty"`
	Sub   uint16       `json:"sub,omitempty"`
}

// Nested returns the i-th value of a command result.
func (a Argument) Nested(i uint16) Argument {
	if a.Kind == ArgResult || a.Kind == ArgNestedResult {
		return Argument{Kind: ArgNestedResult, Index: a.Index, Sub: i}
	}
	return a
}

func (a Argument) encode(e *Encoder) {
	e.ULEB128(uint64(a.Kind))
	switch a.Kind {
	case ArgInput, ArgResult:
		e.U16(a.Index)
	case ArgNestedResult:
		e.U16(a.Index)
		e.U16(a.Sub)
	}
}

// ObjectRef pins an owned object at a version. Digest is base58.
type ObjectRef struct {
	ObjectID Address `json:"objectId"`
	Version  uint64  `json:"version"`
	Digest   string  `json:"digest"`
}

func (r ObjectRef) encode(e *Encoder) error {
	e.Address(r.ObjectID)
	e.U64(r.Version)
	d, err := base58.Decode(r.Digest)
	if err != nil {
		return fmt.Errorf("object %s digest: %w", r.ObjectID, err)
	}
	if len(d) != 32 {
		return fmt.Errorf("object %s digest: expected 32 bytes, got %d", r.ObjectID, len(d))
	}
	e.VecBytes(d)
	return nil
}

// ObjectArgKind enumerates how an object is passed to a transaction.
type ObjectArgKind uint8

const (
	ObjectImmOrOwned ObjectArgKind = iota
	ObjectShared
	ObjectReceiving
)

// ObjectArg is a resolved object input.
type ObjectArg struct {
	Kind                 ObjectArgKind `json:"kind"`
	Ref                  ObjectRef     `json:"ref"`
	InitialSharedVersion uint64        `json:"initialSharedVersion,omitempty"`
	Mutable              bool          `json:"mutable,omitempty"`
}

// InputKind distinguishes pure values from objects.
type InputKind uint8

const (
	InputPure InputKind = iota
	InputObject
)

// Input is a transaction input. Object inputs start unresolved (ObjectArg nil)
// unless built with SharedObject or OwnedObject.
type Input struct {
	Kind     InputKind  `json:"kind"`
	Pure     []byte     `json:"pure,omitempty"`
	ObjectID Address    `json:"objectId,omitempty"`
	Object   *ObjectArg `json:"object,omitempty"`
}

func (in Input) encode(e *Encoder) error {
	e.ULEB128(uint64(in.Kind))
	if in.Kind == InputPure {
		e.VecBytes(in.Pure)
		return nil
	}
	if in.Object == nil {
		return fmt.Errorf("%w: %s", ErrUnresolvedObject, in.ObjectID)
	}
	o := in.Object
	e.ULEB128(uint64(o.Kind))
	switch o.Kind {
	case ObjectShared:
		e.Address(o.Ref.ObjectID)
		e.U64(o.InitialSharedVersion)
		e.Bool(o.Mutable)
		return nil
	default:
		return o.Ref.encode(e)
	}
}

// CommandKind enumerates the commands this package emits, in BCS tag order.
type CommandKind uint8

const (
	CmdMoveCall CommandKind = iota
	CmdTransferObjects
	CmdSplitCoins
	CmdMergeCoins
)

func (k CommandKind) String() string {
	switch k {
	case CmdMoveCall:
		return "MoveCall"
	case CmdTransferObjects:
		return "TransferObjects"
	case CmdSplitCoins:
		return "SplitCoins"
	case CmdMergeCoins:
		return "MergeCoins"
	default:
		return fmt.Sprintf("Command(%d)", uint8(k))
	}
}

// Command is one step of a programmable transaction. Which fields are
// meaningful depends on Kind.
type Command struct {
	Kind CommandKind `json:"kind"`

	// MoveCall
	Package       Address    `json:"package,omitempty"`
	Module        string     `json:"module,omitempty"`
	Function      string     `json:"function,omitempty"`
	TypeArguments []string   `json:"typeArguments,omitempty"`
	Arguments     []Argument `json:"arguments,omitempty"`

	// TransferObjects: Objects -> Address
	// SplitCoins: Coin split into Amounts
	// MergeCoins: Sources merged into Coin
	Objects []Argument `json:"objects,omitempty"`
	Address Argument   `json:"address,omitempty"`
	Coin    Argument   `json:"coin,omitempty"`
	Amounts []Argument `json:"amounts,omitempty"`
	Sources []Argument `json:"sources,omitempty"`
}

// Target returns pkg::module::function for move calls.
func (c Command) Target() string {
	return fmt.Sprintf("%s::%s::%s", c.Package, c.Module, c.Function)
}

func encodeArgs(e *Encoder, args []Argument) {
	e.ULEB128(uint64(len(args)))
	for _, a := range args {
		a.encode(e)
	}
}

func (c Command) encode(e *Encoder) error {
	e.ULEB128(uint64(c.Kind))
	switch c.Kind {
	case CmdMoveCall:
		if len(c.TypeArguments) > 0 {
			return fmt.Errorf("move call %s: type arguments are not supported", c.Target())
		}
		e.Address(c.Package)
		e.String(c.Module)
		e.String(c.Function)
		e.ULEB128(0)
		encodeArgs(e, c.Arguments)
	case CmdTransferObjects:
		encodeArgs(e, c.Objects)
		c.Address.encode(e)
	case CmdSplitCoins:
		c.Coin.encode(e)
		encodeArgs(e, c.Amounts)
	case CmdMergeCoins:
		c.Coin.encode(e)
		encodeArgs(e, c.Sources)
	default:
		return fmt.Errorf("unsupported command %s", c.Kind)
	}
	return nil
}

// Transaction is a programmable transaction block: inputs plus ordered commands.
type Transaction struct {
	Inputs   []Input   `json:"inputs"`
	Commands []Command `json:"commands"`
}

// CountCommands returns the number of commands of the given kind.
func (t *Transaction) CountCommands(kind CommandKind) int {
	n := 0
	for _, c := range t.Commands {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

// CountTransfers returns the number of TransferObjects commands.
func (t *Transaction) CountTransfers() int {
	return t.CountCommands(CmdTransferObjects)
}

// MoveCalls returns the move call commands in order.
func (t *Transaction) MoveCalls() []Command {
	var out []Command
	for _, c := range t.Commands {
		if c.Kind == CmdMoveCall {
			out = append(out, c)
		}
	}
	return out
}

// PureInput returns the pure bytes behind an Input argument.
func (t *Transaction) PureInput(a Argument) ([]byte, bool) {
	if a.Kind != ArgInput || int(a.Index) >= len(t.Inputs) {
		return nil, false
	}
	in := t.Inputs[a.Index]
	if in.Kind != InputPure {
		return nil, false
	}
	return in.Pure, true
}

// UnresolvedObjects lists object inputs that still need a version and digest.
func (t *Transaction) UnresolvedObjects() []Address {
	var out []Address
	for _, in := range t.Inputs {
		if in.Kind == InputObject && in.Object == nil {
			out = append(out, in.ObjectID)
		}
	}
	return out
}

// Resolve fills in the object argument for every input referencing id.
func (t *Transaction) Resolve(id Address, arg ObjectArg) {
	for i := range t.Inputs {
		if t.Inputs[i].Kind == InputObject && t.Inputs[i].ObjectID == id {
			a := arg
			t.Inputs[i].Object = &a
		}
	}
}

// KindBytes BCS-encodes TransactionKind::ProgrammableTransaction.
func (t *Transaction) KindBytes() ([]byte, error) {
	var e Encoder
	if err := t.encodeKind(&e); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

func (t *Transaction) encodeKind(e *Encoder) error {
	e.ULEB128(0)
	e.ULEB128(uint64(len(t.Inputs)))
	for _, in := range t.Inputs {
		if err := in.encode(e); err != nil {
			return err
		}
	}
	e.ULEB128(uint64(len(t.Commands)))
	for i, c := range t.Commands {
		if err := c.encode(e); err != nil {
			return fmt.Errorf("command %d: %w", i, err)
		}
	}
	return nil
}

// GasData selects the coins and budget paying for execution.
type GasData struct {
	Payment []ObjectRef `json:"payment"`
	Owner   Address     `json:"owner"`
	Price   uint64      `json:"price"`
	Budget  uint64      `json:"budget"`
}

// TransactionData is the signable V1 envelope around a transaction.
type TransactionData struct {
	Kind    *Transaction `json:"kind"`
	Sender  Address      `json:"sender"`
	Gas     GasData      `json:"gasData"`
	// ExpirationEpoch is nil for no expiration.
	ExpirationEpoch *uint64 `json:"expiration,omitempty"`
}

// Bytes returns the BCS encoding of the transaction data.
func (d *TransactionData) Bytes() ([]byte, error) {
	if d.Kind == nil {
		return nil, errors.New("transaction data has no kind")
	}
	var e Encoder
	e.ULEB128(0) // V1
	if err := d.Kind.encodeKind(&e); err != nil {
		return nil, err
	}
	e.Address(d.Sender)
	e.ULEB128(uint64(len(d.Gas.Payment)))
	for _, ref := range d.Gas.Payment {
		if err := ref.encode(&e); err != nil {
			return nil, fmt.Errorf("gas payment: %w", err)
		}
	}
	e.Address(d.Gas.Owner)
	e.U64(d.Gas.Price)
	e.U64(d.Gas.Budget)
	if d.ExpirationEpoch == nil {
		e.ULEB128(0)
	} else {
		e.ULEB128(1)
		e.U64(*d.ExpirationEpoch)
	}
	return e.Bytes(), nil
}

const transactionDataIntent = "TransactionData::"

// Digest returns the base58 transaction digest.
func (d *TransactionData) Digest() (string, error) {
	b, err := d.Bytes()
	if err != nil {
		return "", err
	}
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	h.Write([]byte(transactionDataIntent))
	h.Write(b)
	return base58.Encode(h.Sum(nil)), nil
}
