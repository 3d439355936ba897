package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imaigine-lab/internal/contracts"
	"imaigine-lab/internal/domain"
	"imaigine-lab/internal/ptb"
)

const (
	owner   = "0xa11ce"
	buyer   = "0xb0b"
	modelID = "0x3ode1"
)

func pureArg(t *testing.T, tx *ptb.Transaction, a ptb.Argument) []byte {
	t.Helper()
	b, ok := tx.PureInput(a)
	require.True(t, ok, "argument %+v is not a pure input", a)
	return b
}

func objectInputs(tx *ptb.Transaction) []ptb.Address {
	var out []ptb.Address
	for _, in := range tx.Inputs {
		if in.Kind == ptb.InputObject {
			out = append(out, in.ObjectID)
		}
	}
	return out
}

func functions(tx *ptb.Transaction) []string {
	var out []string
	for _, c := range tx.MoveCalls() {
		out = append(out, c.Module+"::"+c.Function)
	}
	return out
}

func TestBuildPublishTx_NewKiosk(t *testing.T) {
	tx, err := NewBuilder(contracts.Testnet()).BuildPublishTx(owner, "0xd0de1", 2_000_000_000, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"imaigine::new_kiosk",
		"model::publish_model",
		"imaigine::publish_model",
	}, functions(tx))
	assert.Equal(t, 1, tx.CountTransfers(), "kiosk and cap go to the owner")

	list := tx.MoveCalls()[2]
	require.Len(t, list.Arguments, 4)
	assert.Equal(t, ptb.EncodeU64(2_000_000_000), pureArg(t, tx, list.Arguments[1]))
	assert.Equal(t, ptb.ArgNestedResult, list.Arguments[2].Kind)
	assert.Equal(t, ptb.ArgNestedResult, list.Arguments[3].Kind)

	transfer := tx.Commands[len(tx.Commands)-1]
	require.Equal(t, ptb.CmdTransferObjects, transfer.Kind)
	assert.Len(t, transfer.Objects, 2)
	assert.Equal(t, ptb.EncodeAddress(ptb.MustParseAddress(owner)), pureArg(t, tx, transfer.Address))
}

func TestBuildPublishTx_ExistingKiosk(t *testing.T) {
	kc := &domain.KioskCap{ID: "0xca9", KioskID: "0x4105c"}
	tx, err := NewBuilder(contracts.Testnet()).BuildPublishTx(owner, "0xd0de1", 10, kc)
	require.NoError(t, err)

	assert.Equal(t, []string{"model::publish_model", "imaigine::publish_model"}, functions(tx))
	assert.Zero(t, tx.CountTransfers())
	assert.ElementsMatch(t, []ptb.Address{
		ptb.MustParseAddress("0xd0de1"),
		ptb.MustParseAddress("0x4105c"),
		ptb.MustParseAddress("0xca9"),
	}, objectInputs(tx))
}

func TestBuildPublishTx_Invalid(t *testing.T) {
	b := NewBuilder(contracts.Testnet())

	_, err := b.BuildPublishTx(owner, "0xd0de1", 0, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = b.BuildPublishTx("bad-owner", "0xd0de1", 1, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = b.BuildPublishTx(owner, modelID, 1, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "model id with a non-hex digit")

	_, err = b.BuildPublishTx(owner, "0xd0de1", 1, &domain.KioskCap{ID: "0x1", KioskID: ""})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestBuildBuyTx(t *testing.T) {
	pkg := contracts.Testnet()
	listing := &domain.Listing{KioskID: "0x4105c", Price: 1_500_000_000}

	tx, err := NewBuilder(pkg).BuildBuyTx(buyer, listing, "0xd0de1")
	require.NoError(t, err)

	require.Len(t, tx.Commands, 4)
	split := tx.Commands[0]
	assert.Equal(t, ptb.CmdSplitCoins, split.Kind)
	assert.Equal(t, ptb.ArgGasCoin, split.Coin.Kind)
	assert.Equal(t, ptb.EncodeU64(1_500_000_000), pureArg(t, tx, split.Amounts[0]))

	assert.Equal(t, []string{"imaigine::buy_model", "model::set_owner"}, functions(tx))
	buy := tx.MoveCalls()[0]
	require.Len(t, buy.Arguments, 4)
	assert.Equal(t, ptb.EncodeAddress(ptb.MustParseAddress("0xd0de1")), pureArg(t, tx, buy.Arguments[0]))
	assert.Equal(t, ptb.ArgNestedResult, buy.Arguments[2].Kind, "payment is the split coin")

	setOwner := tx.MoveCalls()[1]
	assert.Equal(t, ptb.ArgResult, setOwner.Arguments[0].Kind, "set_owner takes the bought model")
	assert.Equal(t, ptb.EncodeAddress(ptb.MustParseAddress(buyer)), pureArg(t, tx, setOwner.Arguments[1]))

	transfer := tx.Commands[3]
	assert.Equal(t, ptb.CmdTransferObjects, transfer.Kind)
	assert.Equal(t, []ptb.Argument{setOwner.Arguments[0]}, transfer.Objects)

	assert.ElementsMatch(t, []ptb.Address{
		ptb.MustParseAddress("0x4105c"),
		ptb.MustParseAddress(pkg.TransferPolicy),
	}, objectInputs(tx))
}

func TestBuildBuyTx_Invalid(t *testing.T) {
	b := NewBuilder(contracts.Testnet())

	_, err := b.BuildBuyTx(buyer, nil, "0xd0de1")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = b.BuildBuyTx(buyer, &domain.Listing{KioskID: "0x4105c"}, "0xd0de1")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = b.BuildBuyTx(buyer, &domain.Listing{KioskID: "kiosk", Price: 1}, "0xd0de1")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
