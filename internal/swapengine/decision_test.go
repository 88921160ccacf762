package swapengine

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestValidateIntent(t *testing.T) {
	a, b := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()

	assert.NoError(t, ValidateIntent(SwapIntent{FromMint: a, ToMint: b, AmountIn: 1}))

	bad := []SwapIntent{
		{ToMint: b, AmountIn: 1},
		{FromMint: a, AmountIn: 1},
		{FromMint: a, ToMint: a, AmountIn: 1},
		{FromMint: a, ToMint: b},
	}
	for _, in := range bad {
		assert.ErrorIs(t, ValidateIntent(in), ErrInvalidIntent)
	}
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in       string
		decimals uint8
		want     uint64
	}{
		{"1.5", 9, 1_500_000_000},
		{"0.000001", 6, 1},
		{" 42 ", 0, 42},
		{"18446744073709551615", 0, 18446744073709551615},
	}
	for _, c := range cases {
		got, err := ParseAmount(c.in, c.decimals)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}

	for _, in := range []string{"", "abc", "0", "-1", "0.0000001", "18446744073709551616000000"} {
		_, err := ParseAmount(in, 6)
		assert.ErrorIs(t, err, ErrInvalidIntent, in)
	}
}

func TestIntentKey(t *testing.T) {
	holder := solana.NewWallet().PublicKey()
	a, b := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()

	k1 := intentKey(holder, SwapIntent{FromMint: a, ToMint: b, AmountIn: 5})
	assert.Equal(t, k1, intentKey(holder, SwapIntent{FromMint: a, ToMint: b, AmountIn: 5}))
	assert.NotEqual(t, k1, intentKey(holder, SwapIntent{FromMint: b, ToMint: a, AmountIn: 5}))
	assert.NotEqual(t, k1, intentKey(holder, SwapIntent{FromMint: a, ToMint: b, AmountIn: 6}))
}
