package sui

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"imaigine-lab/internal/ptb"
)

// DefaultGasBudget is the gas budget in MIST used when none is configured.
const DefaultGasBudget = 50_000_000

const maxGasObjects = 256

// ErrInsufficientGas is returned when the sender's SUI coins cannot cover
// the gas budget plus the amounts split from the gas coin.
var ErrInsufficientGas = errors.New("insufficient SUI balance for gas")

// LocalWallet signs with an in-process key and executes through an RPC node.
// It is meant for CLIs and integration environments; browser wallets live
// behind the same SignAndExecute contract.
type LocalWallet struct {
	rpc       RPCClient
	key       *Keypair
	gasBudget uint64
}

// NewLocalWallet creates a wallet. A zero budget selects DefaultGasBudget.
func NewLocalWallet(rpc RPCClient, key *Keypair, gasBudget uint64) *LocalWallet {
	if gasBudget == 0 {
		gasBudget = DefaultGasBudget
	}
	return &LocalWallet{rpc: rpc, key: key, gasBudget: gasBudget}
}

// Address returns the signer address.
func (w *LocalWallet) Address() string {
	return w.key.Address().String()
}

// SignAndExecute resolves, signs and submits tx once.
func (w *LocalWallet) SignAndExecute(ctx context.Context, tx *ptb.Transaction) (*ExecuteResult, error) {
	if err := ResolveObjects(ctx, w.rpc, tx); err != nil {
		return nil, err
	}
	price, err := w.rpc.GetReferenceGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}

	needed := w.gasBudget + gasSpend(tx)
	payment, err := w.selectGas(ctx, tx, needed)
	if err != nil {
		return nil, err
	}

	sender := w.key.Address()
	data := &ptb.TransactionData{
		Kind:   tx,
		Sender: sender,
		Gas: ptb.GasData{
			Payment: payment,
			Owner:   sender,
			Price:   price,
			Budget:  w.gasBudget,
		},
	}
	raw, err := data.Bytes()
	if err != nil {
		return nil, fmt.Errorf("serialize transaction: %w", err)
	}
	return w.rpc.ExecuteTransactionBlock(ctx, raw, []string{w.key.SignTransaction(raw)})
}

// gasSpend sums the pure u64 amounts split directly from the gas coin.
func gasSpend(tx *ptb.Transaction) uint64 {
	var total uint64
	for _, c := range tx.Commands {
		if c.Kind != ptb.CmdSplitCoins || c.Coin.Kind != ptb.ArgGasCoin {
			continue
		}
		for _, amt := range c.Amounts {
			if b, ok := tx.PureInput(amt); ok && len(b) == 8 {
				total += binary.LittleEndian.Uint64(b)
			}
		}
	}
	return total
}

func (w *LocalWallet) selectGas(ctx context.Context, tx *ptb.Transaction, needed uint64) ([]ptb.ObjectRef, error) {
	inUse := make(map[ptb.Address]bool)
	for _, in := range tx.Inputs {
		if in.Kind == ptb.InputObject {
			inUse[in.ObjectID] = true
		}
	}

	var coins []Coin
	cursor := ""
	for {
		page, err := w.rpc.GetCoins(ctx, w.Address(), SuiCoinType, cursor, 50)
		if err != nil {
			return nil, fmt.Errorf("list gas coins: %w", err)
		}
		coins = append(coins, page.Data...)
		if !page.HasNextPage || page.NextCursor == nil || len(coins) >= maxGasObjects {
			break
		}
		cursor = *page.NextCursor
	}
	sort.Slice(coins, func(i, j int) bool { return coins[i].Balance > coins[j].Balance })

	var refs []ptb.ObjectRef
	var sum uint64
	for _, c := range coins {
		id, err := ptb.ParseAddress(c.CoinObjectID)
		if err != nil {
			return nil, fmt.Errorf("gas coin id: %w", err)
		}
		if inUse[id] {
			continue
		}
		refs = append(refs, ptb.ObjectRef{ObjectID: id, Version: uint64(c.Version), Digest: c.Digest})
		sum += uint64(c.Balance)
		if sum >= needed || len(refs) == maxGasObjects {
			break
		}
	}
	if sum < needed {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientGas, sum, needed)
	}
	return refs, nil
}
