// Package payment builds the single atomic transaction that settles a
// payment between the platform vault and an optional beneficiary.
package payment

import (
	"fmt"

	"imaigine-lab/internal/domain"
	"imaigine-lab/internal/ptb"
)

// BuildPaymentTx consumes intent and returns the unsigned payment
// transaction. On any validation error nothing is built and the intent
// stays unconsumed.
//
// With a beneficiary the transaction is:
//
//	coin    = SplitCoins(gas, [total])
//	feeCoin = SplitCoins(coin, [fee])
//	TransferObjects([feeCoin], vault)
//	TransferObjects([coin], beneficiary)
//
// Without one the whole amount goes to the vault in a single transfer.
func BuildPaymentTx(intent *domain.PaymentIntent) (*ptb.Transaction, error) {
	if intent == nil {
		return nil, fmt.Errorf("%w: nil payment intent", domain.ErrInvalidInput)
	}
	if intent.Consumed() {
		return nil, fmt.Errorf("%w: payment intent already consumed", domain.ErrInvalidInput)
	}
	tx, err := Build(intent.Payer, intent.Fee, intent.Vault, intent.Beneficiary)
	if err != nil {
		return nil, err
	}
	if err := intent.Consume(); err != nil {
		return nil, err
	}
	return tx, nil
}

// Build is BuildPaymentTx without an intent. beneficiary may be empty.
func Build(payer string, fee domain.FeeBreakdown, vault, beneficiary string) (*ptb.Transaction, error) {
	if err := fee.Validate(); err != nil {
		return nil, err
	}
	if fee.TotalAmount == 0 {
		return nil, fmt.Errorf("%w: zero payment", domain.ErrInvalidInput)
	}
	if _, err := ptb.ParseAddress(payer); err != nil {
		return nil, fmt.Errorf("payer: %w", err)
	}
	vaultAddr, err := ptb.ParseAddress(vault)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}

	b := ptb.NewBuilder()
	coin := b.SplitCoins(b.Gas(), b.PureU64(fee.TotalAmount))[0]

	if beneficiary == "" {
		b.TransferObjects([]ptb.Argument{coin}, b.PureAddress(vault))
		return b.Build()
	}

	benAddr, err := ptb.ParseAddress(beneficiary)
	if err != nil {
		return nil, fmt.Errorf("beneficiary: %w", err)
	}
	if benAddr == vaultAddr {
		return nil, fmt.Errorf("%w: beneficiary is the vault", domain.ErrInvalidInput)
	}

	feeCoin := b.SplitCoins(coin, b.PureU64(fee.FeeAmount))[0]
	b.TransferObjects([]ptb.Argument{feeCoin}, b.PureAddress(vault))
	b.TransferObjects([]ptb.Argument{coin}, b.PureAddress(beneficiary))
	return b.Build()
}
