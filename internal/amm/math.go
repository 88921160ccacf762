package amm

import (
	"fmt"
	"math"
	"math/big"
	"math/bits"

	"github.com/shopspring/decimal"
	"lukechampine.com/uint128"
)

// ConstantProductOut computes floor(amountIn*reserveOut / (reserveIn+amountIn)).
// No fee is applied, so the result is an upper bound on what the program pays.
// The product is taken in 128 bits; the denominator must fit in 64.
func ConstantProductOut(amountIn, reserveIn, reserveOut uint64) (uint64, error) {
	if amountIn == 0 || reserveIn == 0 || reserveOut == 0 {
		return 0, nil
	}

	denominator, carry := bits.Add64(reserveIn, amountIn, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: reserve %d + input %d exceeds 64 bits", ErrPricingOverflow, reserveIn, amountIn)
	}

	numerator := uint128.From64(amountIn).Mul64(reserveOut)
	out := numerator.Div64(denominator)

	// amountIn/(reserveIn+amountIn) < 1, so out < reserveOut
	return out.Lo, nil
}

// MinAmountOut applies a slippage tolerance in (0, 1]: floor(amountOut * tolerance).
func MinAmountOut(amountOut uint64, tolerance decimal.Decimal) (uint64, error) {
	if !tolerance.IsPositive() || tolerance.GreaterThan(decimal.NewFromInt(1)) {
		return 0, fmt.Errorf("slippage tolerance must be in (0, 1], got %s", tolerance)
	}

	out := decimal.NewFromBigInt(new(big.Int).SetUint64(amountOut), 0).Mul(tolerance).Floor()
	return out.BigInt().Uint64(), nil
}

// UIAmount converts a raw integer amount to display units.
func UIAmount(raw uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(raw), -int32(decimals))
}

// PriceImpact is the fraction by which the execution rate falls short of the
// pool's spot rate. Display only.
func PriceImpact(amountIn, amountOut, reserveIn, reserveOut uint64) float64 {
	if amountIn == 0 || reserveIn == 0 || reserveOut == 0 {
		return 0
	}
	idealRate := float64(reserveOut) / float64(reserveIn)
	executionRate := float64(amountOut) / float64(amountIn)
	return math.Max(0, 1-(executionRate/idealRate))
}
