// Package pricing computes payment amounts in MIST from USD prices and a live SUI/USD rate.
package pricing

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"imaigine-lab/internal/domain"
)

// Default calculator parameters.
const (
	DefaultSurcharge uint64 = 100_000 // MIST added to every payment
)

var (
	hundred   = decimal.NewFromInt(100)
	maxUint64 = decimal.RequireFromString("18446744073709551615")
)

// Calculator converts USD prices into MIST payments.
type Calculator struct {
	// UnitScale is the number of smallest units per whole coin.
	UnitScale decimal.Decimal
	// Surcharge is a fixed amount in smallest units added to every total.
	Surcharge uint64
}

// NewCalculator creates a Calculator for SUI with the given surcharge.
func NewCalculator(surcharge uint64) *Calculator {
	return &Calculator{
		UnitScale: decimal.NewFromInt(domain.MistPerSui),
		Surcharge: surcharge,
	}
}

var defaultCalculator = NewCalculator(DefaultSurcharge)

// ComputeFee computes a FeeBreakdown using the default SUI calculator.
func ComputeFee(baseUSD, units, feePercent, rate decimal.Decimal) (domain.FeeBreakdown, error) {
	return defaultCalculator.ComputeFee(baseUSD, units, feePercent, rate)
}

// ComputeFee computes the total payment and its fee split.
//
//	total = floor(baseUSD * units / rate * UnitScale) + Surcharge
//	fee   = floor(total * feePercent / 100)
//
// The sub-unit remainder of total is never charged. The remainder of the fee floor
// stays with the recipient, since recipient = total - fee.
func (c *Calculator) ComputeFee(baseUSD, units, feePercent, rate decimal.Decimal) (domain.FeeBreakdown, error) {
	if rate.Sign() <= 0 {
		return domain.FeeBreakdown{}, fmt.Errorf("%w: rate must be positive, got %s", domain.ErrInvalidInput, rate)
	}
	if units.Sign() <= 0 {
		return domain.FeeBreakdown{}, fmt.Errorf("%w: units must be positive, got %s", domain.ErrInvalidInput, units)
	}
	if baseUSD.Sign() < 0 {
		return domain.FeeBreakdown{}, fmt.Errorf("%w: base price must not be negative, got %s", domain.ErrInvalidInput, baseUSD)
	}
	if feePercent.Sign() < 0 || feePercent.GreaterThan(hundred) {
		return domain.FeeBreakdown{}, fmt.Errorf("%w: fee percent must be within [0, 100], got %s", domain.ErrInvalidInput, feePercent)
	}

	total := baseUSD.Mul(units).Mul(c.UnitScale).Div(rate).Floor()
	total = total.Add(fromUint64(c.Surcharge))
	if total.GreaterThan(maxUint64) {
		return domain.FeeBreakdown{}, fmt.Errorf("%w: total %s overflows uint64", domain.ErrInvalidInput, total)
	}

	fee := total.Mul(feePercent).Div(hundred).Floor()

	totalAmount := total.BigInt().Uint64()
	feeAmount := fee.BigInt().Uint64()

	return domain.FeeBreakdown{
		TotalAmount:     totalAmount,
		FeeAmount:       feeAmount,
		RecipientAmount: totalAmount - feeAmount,
	}, nil
}

func fromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}
