package contracts

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imaigine-lab/internal/domain"
	"imaigine-lab/internal/ptb"
)

func pureArg(t *testing.T, tx *ptb.Transaction, a ptb.Argument) []byte {
	t.Helper()
	b, ok := tx.PureInput(a)
	require.True(t, ok, "argument %+v is not a pure input", a)
	return b
}

func TestTestnet_Validates(t *testing.T) {
	require.NoError(t, Testnet().Validate())
	assert.Error(t, Package{Address: "0x1", Platform: "bad", TransferPolicy: "0x2"}.Validate())
}

func TestCreateModel_ABI(t *testing.T) {
	pkg := Testnet()
	b := ptb.NewBuilder()
	pkg.CreateModel(b, "https://weights", "ABCDE", []string{"https://img"})
	tx, err := b.Build()
	require.NoError(t, err)

	calls := tx.MoveCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "model", calls[0].Module)
	assert.Equal(t, "create", calls[0].Function)
	assert.Equal(t, ptb.MustParseAddress(pkg.Address), calls[0].Package)
	require.Len(t, calls[0].Arguments, 3)

	assert.Equal(t, ptb.EncodeString("https://weights"), pureArg(t, tx, calls[0].Arguments[0]))
	assert.Equal(t, ptb.EncodeString("ABCDE"), pureArg(t, tx, calls[0].Arguments[1]))
	assert.Equal(t, ptb.EncodeVectorVectorString([][]string{{"https://img"}}), pureArg(t, tx, calls[0].Arguments[2]))
}

func TestCreateModel_NoExampleImage(t *testing.T) {
	b := ptb.NewBuilder()
	Testnet().CreateModel(b, "w", "ABCDE", nil)
	tx, err := b.Build()
	require.NoError(t, err)

	images := pureArg(t, tx, tx.MoveCalls()[0].Arguments[2])
	assert.True(t, bytes.Equal([]byte{1, 0}, images), "expected [[]], got %x", images)
}

func TestCreateImage_ABI(t *testing.T) {
	b := ptb.NewBuilder()
	Testnet().CreateImage(b, "a cat", "https://img", "0xd0de1")
	tx, err := b.Build()
	require.NoError(t, err)

	call := tx.MoveCalls()[0]
	assert.Equal(t, "image", call.Module)
	assert.Equal(t, "create", call.Function)
	assert.Equal(t, ptb.EncodeString("a cat"), pureArg(t, tx, call.Arguments[0]))
	assert.Equal(t, ptb.EncodeAddress(ptb.MustParseAddress("0xd0de1")), pureArg(t, tx, call.Arguments[2]))
}

func TestCreateImage_BadModelID(t *testing.T) {
	b := ptb.NewBuilder()
	Testnet().CreateImage(b, "p", "u", "not-an-id")
	_, err := b.Build()
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNewKiosk_ReturnsBothValues(t *testing.T) {
	b := ptb.NewBuilder()
	kiosk, ownerCap := Testnet().NewKiosk(b)
	assert.Equal(t, ptb.ArgNestedResult, kiosk.Kind)
	assert.Equal(t, uint16(0), kiosk.Sub)
	assert.Equal(t, uint16(1), ownerCap.Sub)
	assert.Equal(t, kiosk.Index, ownerCap.Index)
}

func TestTypes(t *testing.T) {
	pkg := Package{Address: "0x30"}
	assert.Equal(t, "0x30::model::Model", pkg.ModelType())
	assert.Equal(t, "0x30::image::Image", pkg.ImageType())
	assert.Equal(t, "0x2::kiosk::ItemListed<0x30::model::Model>", pkg.ItemListedEventType())
	assert.Equal(t, pkg.ImageType(), pkg.RecordType(domain.AssetKindImage))
}
