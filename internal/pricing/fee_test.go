package pricing

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imaigine-lab/internal/domain"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeFee_FineTuneScenario(t *testing.T) {
	fee, err := ComputeFee(d("5"), d("1"), d("5"), d("2.0"))
	require.NoError(t, err)

	// 5 USD / 2 USD-per-SUI = 2.5 SUI, plus the fixed surcharge.
	assert.Equal(t, uint64(2_500_100_000), fee.TotalAmount)
	assert.Equal(t, uint64(125_005_000), fee.FeeAmount)
	assert.Equal(t, uint64(2_375_095_000), fee.RecipientAmount)
	assert.NoError(t, fee.Validate())
}

func TestComputeFee_TruncatesFractions(t *testing.T) {
	calc := NewCalculator(0)

	// 1/3 SUI = 333333333.33 MIST -> 333333333
	fee, err := calc.ComputeFee(d("1"), d("1"), d("5"), d("3"))
	require.NoError(t, err)
	assert.Equal(t, uint64(333_333_333), fee.TotalAmount)
	// 5% of 333333333 = 16666666.65 -> 16666666
	assert.Equal(t, uint64(16_666_666), fee.FeeAmount)
	assert.Equal(t, uint64(316_666_667), fee.RecipientAmount)
}

func TestComputeFee_InvalidInput(t *testing.T) {
	tests := []struct {
		name                         string
		base, units, feePercent, rate string
	}{
		{"zero rate", "5", "1", "5", "0"},
		{"negative rate", "5", "1", "5", "-1"},
		{"zero units", "5", "0", "5", "2"},
		{"negative units", "5", "-1", "5", "2"},
		{"negative base", "-1", "1", "5", "2"},
		{"fee over 100", "5", "1", "101", "2"},
		{"negative fee", "5", "1", "-1", "2"},
		{"overflow", "100000000000000", "1000", "5", "0.0001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeFee(d(tt.base), d(tt.units), d(tt.feePercent), d(tt.rate))
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestComputeFee_ZeroBaseChargesSurchargeOnly(t *testing.T) {
	fee, err := ComputeFee(d("0"), d("1"), d("5"), d("1.5"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSurcharge, fee.TotalAmount)
	assert.Equal(t, uint64(5_000), fee.FeeAmount)
}

func TestComputeFee_SplitInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		base := decimal.New(rng.Int63n(100_000), -2)      // 0.00 .. 999.99 USD
		units := decimal.New(rng.Int63n(5_000)+1, -3)     // 0.001 .. 5.000
		feePercent := decimal.New(rng.Int63n(10_001), -2) // 0.00 .. 100.00
		rate := decimal.New(rng.Int63n(1_000_000)+1, -4)  // 0.0001 .. 100.0000

		fee, err := ComputeFee(base, units, feePercent, rate)
		require.NoError(t, err, "base=%s units=%s fee=%s rate=%s", base, units, feePercent, rate)

		assert.Equal(t, fee.TotalAmount, fee.FeeAmount+fee.RecipientAmount)
		assert.LessOrEqual(t, fee.FeeAmount, fee.TotalAmount)
	}
}

func TestComputeFee_Deterministic(t *testing.T) {
	first, err := ComputeFee(d("0.045"), d("1.048576"), d("5"), d("3.1415"))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := ComputeFee(d("0.045"), d("1.048576"), d("5"), d("3.1415"))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCalculator_FullFeeRoutesEverythingToVault(t *testing.T) {
	fee, err := ComputeFee(d("5"), d("1"), d("100"), d("2"))
	require.NoError(t, err)
	assert.Equal(t, fee.TotalAmount, fee.FeeAmount)
	assert.Zero(t, fee.RecipientAmount)
}
