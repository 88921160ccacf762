package swapengine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// ValidateIntent checks an intent before anything touches the network.
func ValidateIntent(intent SwapIntent) error {
	if intent.FromMint.IsZero() {
		return fmt.Errorf("%w: from mint is required", ErrInvalidIntent)
	}
	if intent.ToMint.IsZero() {
		return fmt.Errorf("%w: to mint is required", ErrInvalidIntent)
	}
	if intent.FromMint.Equals(intent.ToMint) {
		return fmt.Errorf("%w: cannot swap %s for itself", ErrInvalidIntent, intent.FromMint)
	}
	if intent.AmountIn == 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidIntent)
	}
	return nil
}

// ParseAmount converts a display amount such as "1.5" into raw units.
// Precision beyond decimals is rejected rather than rounded.
func ParseAmount(s string, decimals uint8) (uint64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q: %v", ErrInvalidIntent, s, err)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("%w: amount must be positive", ErrInvalidIntent)
	}
	raw := d.Shift(int32(decimals))
	if !raw.IsInteger() {
		return 0, fmt.Errorf("%w: amount %s has more than %d decimals", ErrInvalidIntent, s, decimals)
	}
	n, err := strconv.ParseUint(raw.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: amount %s out of range", ErrInvalidIntent, s)
	}
	return n, nil
}

// intentKey identifies duplicate submissions of the same swap.
func intentKey(holder solana.PublicKey, intent SwapIntent) string {
	return strings.Join([]string{
		holder.String(),
		intent.FromMint.String(),
		intent.ToMint.String(),
		strconv.FormatUint(intent.AmountIn, 10),
	}, ":")
}
