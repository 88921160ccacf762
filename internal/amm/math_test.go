package amm

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstantProductOut_Scenario(t *testing.T) {
	out, err := ConstantProductOut(10_000, 1_000_000, 500_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(4950), out)
}

func TestConstantProductOut_ZeroCases(t *testing.T) {
	tests := []struct {
		name       string
		amountIn   uint64
		reserveIn  uint64
		reserveOut uint64
	}{
		{"zero input", 0, 1_000, 1_000},
		{"empty output reserve", 100, 1_000, 0},
		{"empty input reserve", 100, 0, 1_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ConstantProductOut(tt.amountIn, tt.reserveIn, tt.reserveOut)
			require.NoError(t, err)
			assert.Zero(t, out)
		})
	}
}

func TestConstantProductOut_LargeValuesUse128Bits(t *testing.T) {
	// amountIn*reserveOut overflows 64 bits; the result must still be exact
	out, err := ConstantProductOut(1<<40, 1<<40, math.MaxUint64)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64/2), out)
}

func TestConstantProductOut_Overflow(t *testing.T) {
	_, err := ConstantProductOut(10, math.MaxUint64-5, 1_000)
	assert.ErrorIs(t, err, ErrPricingOverflow)
}

func TestConstantProductOut_MonotoneAndBounded(t *testing.T) {
	const reserveIn, reserveOut = 1_000_000, 500_000

	var prev uint64
	for _, in := range []uint64{1, 10, 100, 1_000, 10_000, 100_000, 1_000_000, 1_000_000_000} {
		out, err := ConstantProductOut(in, reserveIn, reserveOut)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, out, prev, "output must not decrease for input %d", in)
		assert.Less(t, out, uint64(reserveOut), "output must stay below the reserve for input %d", in)
		prev = out
	}
}

func TestMinAmountOut(t *testing.T) {
	min, err := MinAmountOut(1000, decimal.RequireFromString("0.98"))
	require.NoError(t, err)
	assert.Equal(t, uint64(980), min)

	min, err = MinAmountOut(4950, decimal.RequireFromString("0.98"))
	require.NoError(t, err)
	assert.Equal(t, uint64(4851), min)

	min, err = MinAmountOut(999, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(999), min)

	_, err = MinAmountOut(1000, decimal.Zero)
	assert.Error(t, err)
	_, err = MinAmountOut(1000, decimal.RequireFromString("1.5"))
	assert.Error(t, err)
}

func TestUIAmount(t *testing.T) {
	assert.Equal(t, "1.5", UIAmount(1_500_000, 6).String())
	assert.Equal(t, "0.000000001", UIAmount(1, 9).String())
	assert.Equal(t, "42", UIAmount(42, 0).String())
}

func TestPriceImpact(t *testing.T) {
	assert.Zero(t, PriceImpact(0, 0, 1, 1))
	impact := PriceImpact(10_000, 4950, 1_000_000, 500_000)
	assert.InDelta(t, 0.01, impact, 0.0002)
}
