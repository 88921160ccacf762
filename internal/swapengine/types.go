package swapengine

import (
	"errors"
	"time"

	"github.com/aman-zulfiqar/solana-amm-client/internal/ledger"
	"github.com/aman-zulfiqar/solana-amm-client/internal/quote"
	"github.com/gagliardetto/solana-go"
)

var (
	ErrInvalidIntent          = errors.New("invalid swap intent")
	ErrInsufficientBalance    = errors.New("insufficient token balance")
	ErrInsufficientFeeReserve = errors.New("insufficient native balance for fees")
	ErrSwapRejected           = errors.New("swap rejected by signer")
	ErrSubmissionFailed       = errors.New("swap submission failed")
	ErrConfirmationUnknown    = errors.New("swap confirmation unknown")
	ErrTradingHalted          = errors.New("trading is halted")
)

// SwapIntent is a holder's request to sell AmountIn raw units of FromMint for ToMint.
type SwapIntent struct {
	FromMint solana.PublicKey
	ToMint   solana.PublicKey
	AmountIn uint64
}

// Pair is the directed quote pair of the intent.
func (i SwapIntent) Pair() quote.Pair {
	return quote.Pair{From: i.FromMint, To: i.ToMint}
}

// UnsignedSwap is a fully built transaction waiting for the holder's signature.
type UnsignedSwap struct {
	IdempotencyKey string
	Tx             *solana.Transaction
	Intent         SwapIntent
	Quote          quote.Quote
	MinAmountOut   uint64

	// CreatesDestination is set when the transaction opens the holder's
	// token account for the output mint.
	CreatesDestination bool
	BuiltAt            time.Time
}

// SwapOutcome is the observed result of a submitted swap.
type SwapOutcome struct {
	ExecutionID  string
	Signature    solana.Signature
	Status       ledger.Status
	Reason       string
	Slot         uint64
	Pool         solana.PublicKey
	MinAmountOut uint64
	Duration     time.Duration
}

// PreflightResult is the holder state read before submission.
type PreflightResult struct {
	TokenBalance uint64
	Lamports     uint64
}
