package sui_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/mr-tron/base58"

	"imaigine-lab/internal/ptb"
	"imaigine-lab/internal/sui"
	"imaigine-lab/internal/sui/stub"
)

func digest(b byte) string {
	return base58.Encode(bytes.Repeat([]byte{b}, 32))
}

func newWallet(t *testing.T, rpc *stub.RPCClient, coins ...uint64) *sui.LocalWallet {
	t.Helper()
	kp, err := sui.NewKeypairFromSeed(bytes.Repeat([]byte{0x44}, ed25519.SeedSize))
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}
	for i, bal := range coins {
		rpc.AddCoin(kp.Address().String(), sui.Coin{
			CoinType:     sui.SuiCoinType,
			CoinObjectID: ptb.Address{31: byte(0x90 + i)}.String(),
			Version:      1,
			Digest:       digest(byte(i + 1)),
			Balance:      sui.U64(bal),
		})
	}
	return sui.NewLocalWallet(rpc, kp, 1_000_000)
}

func paymentTx(t *testing.T, amount uint64) *ptb.Transaction {
	t.Helper()
	b := ptb.NewBuilder()
	coins := b.SplitCoins(b.Gas(), b.PureU64(amount))
	b.TransferObjects([]ptb.Argument{coins[0]}, b.PureAddress("0x99"))
	tx, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return tx
}

func TestLocalWallet_SignAndExecute(t *testing.T) {
	rpc := stub.NewRPCClient()
	w := newWallet(t, rpc, 5_000_000, 2_000_000)

	res, err := w.SignAndExecute(context.Background(), paymentTx(t, 3_000_000))
	if err != nil {
		t.Fatalf("SignAndExecute: %v", err)
	}
	if !res.Succeeded() {
		t.Errorf("expected success, got %+v", res)
	}
	if n := len(rpc.Executed()); n != 1 {
		t.Errorf("expected 1 execution, got %d", n)
	}
}

func TestLocalWallet_InsufficientGas(t *testing.T) {
	rpc := stub.NewRPCClient()
	w := newWallet(t, rpc, 1_500_000)

	_, err := w.SignAndExecute(context.Background(), paymentTx(t, 1_000_000))
	if !errors.Is(err, sui.ErrInsufficientGas) {
		t.Fatalf("expected ErrInsufficientGas, got %v", err)
	}
	if n := len(rpc.Executed()); n != 0 {
		t.Errorf("nothing should be executed, got %d", n)
	}
}

func TestLocalWallet_ResolvesObjects(t *testing.T) {
	rpc := stub.NewRPCClient()
	w := newWallet(t, rpc, 10_000_000)

	rpc.PutObject(&sui.Object{
		ObjectID: "0xa1", Version: 4, Digest: digest(9),
		Owner: sui.Owner{Kind: sui.OwnerAddress, Address: w.Address()},
	})
	rpc.PutObject(&sui.Object{
		ObjectID: "0xa2",
		Owner:    sui.Owner{Kind: sui.OwnerShared, InitialSharedVersion: 2},
	})

	b := ptb.NewBuilder()
	b.MoveCall("0x30::model::publish_model", nil, b.Object("0xa1"), b.Object("0xa2"))
	tx, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if _, err := w.SignAndExecute(context.Background(), tx); err != nil {
		t.Fatalf("SignAndExecute: %v", err)
	}
	if left := tx.UnresolvedObjects(); len(left) != 0 {
		t.Errorf("unresolved objects remain: %v", left)
	}
	if tx.Inputs[1].Object.Kind != ptb.ObjectShared || !tx.Inputs[1].Object.Mutable {
		t.Errorf("shared object resolved as %+v", tx.Inputs[1].Object)
	}
}

func TestResolveObjects_Missing(t *testing.T) {
	rpc := stub.NewRPCClient()
	b := ptb.NewBuilder()
	b.MoveCall("0x30::model::publish_model", nil, b.Object("0xdead"))
	tx, _ := b.Build()

	if err := sui.ResolveObjects(context.Background(), rpc, tx); !errors.Is(err, sui.ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}
