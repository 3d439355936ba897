// Package ptb builds Sui programmable transaction blocks and serializes them
// with BCS for signing.
package ptb

import (
	"fmt"
	"math"
	"strings"

	"imaigine-lab/internal/domain"
)

// Builder accumulates inputs and commands. The first error is sticky and
// returned by Build; later calls become no-ops that still return valid
// placeholder arguments so call chains stay simple.
type Builder struct {
	inputs   []Input
	commands []Command
	objects  map[Address]uint16
	err      error
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{objects: make(map[Address]uint16)}
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Err returns the first error recorded by the builder.
func (b *Builder) Err() error {
	return b.err
}

// Gas returns the gas coin argument.
func (b *Builder) Gas() Argument {
	return Argument{Kind: ArgGasCoin}
}

func (b *Builder) addInput(in Input) Argument {
	if len(b.inputs) >= math.MaxUint16 {
		b.fail(fmt.Errorf("%w: too many inputs", domain.ErrInvalidInput))
		return Argument{Kind: ArgInput}
	}
	b.inputs = append(b.inputs, in)
	return Argument{Kind: ArgInput, Index: uint16(len(b.inputs) - 1)}
}

// Pure adds a pre-encoded BCS value as an input.
func (b *Builder) Pure(bcs []byte) Argument {
	cp := make([]byte, len(bcs))
	copy(cp, bcs)
	return b.addInput(Input{Kind: InputPure, Pure: cp})
}

func (b *Builder) PureU64(v uint64) Argument {
	return b.Pure(EncodeU64(v))
}

func (b *Builder) PureString(s string) Argument {
	return b.Pure(EncodeString(s))
}

// PureAddress adds an address input. A malformed address poisons the builder.
func (b *Builder) PureAddress(addr string) Argument {
	a, err := ParseAddress(addr)
	if err != nil {
		b.fail(fmt.Errorf("pure address: %w", err))
	}
	return b.Pure(EncodeAddress(a))
}

func (b *Builder) PureVectorVectorString(v [][]string) Argument {
	return b.Pure(EncodeVectorVectorString(v))
}

// Object adds an object input by id, to be resolved before serialization.
// Repeated ids share one input.
func (b *Builder) Object(id string) Argument {
	a, err := ParseAddress(id)
	if err != nil {
		b.fail(fmt.Errorf("object id: %w", err))
		return Argument{Kind: ArgInput}
	}
	if idx, ok := b.objects[a]; ok {
		return Argument{Kind: ArgInput, Index: idx}
	}
	arg := b.addInput(Input{Kind: InputObject, ObjectID: a})
	b.objects[a] = arg.Index
	return arg
}

// SharedObject adds an already-resolved shared object input.
func (b *Builder) SharedObject(id string, initialSharedVersion uint64, mutable bool) Argument {
	arg := b.Object(id)
	if b.err != nil {
		return arg
	}
	in := &b.inputs[arg.Index]
	if in.Object == nil {
		in.Object = &ObjectArg{
			Kind:                 ObjectShared,
			Ref:                  ObjectRef{ObjectID: in.ObjectID},
			InitialSharedVersion: initialSharedVersion,
			Mutable:              mutable,
		}
	}
	return arg
}

func (b *Builder) addCommand(c Command) Argument {
	if len(b.commands) >= math.MaxUint16 {
		b.fail(fmt.Errorf("%w: too many commands", domain.ErrInvalidInput))
		return Argument{Kind: ArgResult}
	}
	b.commands = append(b.commands, c)
	return Argument{Kind: ArgResult, Index: uint16(len(b.commands) - 1)}
}

// SplitCoins splits coin into one new coin per amount.
func (b *Builder) SplitCoins(coin Argument, amounts ...Argument) []Argument {
	if len(amounts) == 0 {
		b.fail(fmt.Errorf("%w: split coins needs at least one amount", domain.ErrInvalidInput))
	}
	res := b.addCommand(Command{Kind: CmdSplitCoins, Coin: coin, Amounts: amounts})
	out := make([]Argument, len(amounts))
	for i := range amounts {
		out[i] = res.Nested(uint16(i))
	}
	return out
}

// MergeCoins merges sources into coin.
func (b *Builder) MergeCoins(coin Argument, sources ...Argument) {
	b.addCommand(Command{Kind: CmdMergeCoins, Coin: coin, Sources: sources})
}

// TransferObjects sends objs to recipient.
func (b *Builder) TransferObjects(objs []Argument, recipient Argument) {
	if len(objs) == 0 {
		b.fail(fmt.Errorf("%w: transfer needs at least one object", domain.ErrInvalidInput))
	}
	b.addCommand(Command{Kind: CmdTransferObjects, Objects: objs, Address: recipient})
}

// MoveCall calls target ("0xpkg::module::function"). The returned argument is
// the whole result; use Nested for multi-value returns.
func (b *Builder) MoveCall(target string, typeArgs []string, args ...Argument) Argument {
	pkg, module, function, err := ParseTarget(target)
	if err != nil {
		b.fail(err)
		return Argument{Kind: ArgResult}
	}
	return b.addCommand(Command{
		Kind:          CmdMoveCall,
		Package:       pkg,
		Module:        module,
		Function:      function,
		TypeArguments: typeArgs,
		Arguments:     args,
	})
}

// Build returns the transaction, or the first recorded error.
func (b *Builder) Build() (*Transaction, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.commands) == 0 {
		return nil, fmt.Errorf("%w: transaction has no commands", domain.ErrInvalidInput)
	}
	tx := &Transaction{
		Inputs:   make([]Input, len(b.inputs)),
		Commands: make([]Command, len(b.commands)),
	}
	copy(tx.Inputs, b.inputs)
	copy(tx.Commands, b.commands)
	return tx, nil
}

// ParseTarget splits "0xpkg::module::function".
func ParseTarget(target string) (Address, string, string, error) {
	parts := strings.Split(target, "::")
	if len(parts) != 3 {
		return Address{}, "", "", fmt.Errorf("%w: malformed move target %q", domain.ErrInvalidInput, target)
	}
	pkg, err := ParseAddress(parts[0])
	if err != nil {
		return Address{}, "", "", fmt.Errorf("move target %q: %w", target, err)
	}
	for _, ident := range parts[1:] {
		if !isIdentifier(ident) {
			return Address{}, "", "", fmt.Errorf("%w: malformed move identifier %q", domain.ErrInvalidInput, ident)
		}
	}
	return pkg, parts[1], parts[2], nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
