package domain

import "fmt"

// MistPerSui is the number of MIST (smallest unit) in one SUI.
const MistPerSui = 1_000_000_000

// FeeBreakdown splits a payment into the platform fee and the beneficiary share.
// All amounts are in MIST.
type FeeBreakdown struct {
	TotalAmount     uint64
	FeeAmount       uint64
	RecipientAmount uint64
}

// Validate checks RecipientAmount + FeeAmount == TotalAmount.
func (f FeeBreakdown) Validate() error {
	if f.FeeAmount > f.TotalAmount {
		return fmt.Errorf("%w: fee %d exceeds total %d", ErrInvalidInput, f.FeeAmount, f.TotalAmount)
	}
	if f.RecipientAmount+f.FeeAmount != f.TotalAmount {
		return fmt.Errorf("%w: recipient %d + fee %d != total %d",
			ErrInvalidInput, f.RecipientAmount, f.FeeAmount, f.TotalAmount)
	}
	return nil
}

// PaymentIntent is created per user action and consumed exactly once by the
// payment transaction builder.
type PaymentIntent struct {
	Payer       string
	Fee         FeeBreakdown
	Vault       string
	Beneficiary string // empty when there is no model owner to pay

	consumed bool
}

// NewPaymentIntent creates an unconsumed intent.
func NewPaymentIntent(payer string, fee FeeBreakdown, vault, beneficiary string) *PaymentIntent {
	return &PaymentIntent{
		Payer:       payer,
		Fee:         fee,
		Vault:       vault,
		Beneficiary: beneficiary,
	}
}

// HasBeneficiary reports whether the payment is split between vault and beneficiary.
func (p *PaymentIntent) HasBeneficiary() bool {
	return p.Beneficiary != ""
}

// Consume marks the intent as used. A second call fails.
func (p *PaymentIntent) Consume() error {
	if p.consumed {
		return fmt.Errorf("%w: payment intent already consumed", ErrInvalidInput)
	}
	p.consumed = true
	return nil
}

// Consumed reports whether the intent was already turned into a transaction.
func (p *PaymentIntent) Consumed() bool {
	return p.consumed
}
