package server

import (
	"time"

	"github.com/aman-zulfiqar/solana-amm-client/internal/flags"
)

// ErrorResponse represents a standardized error response format
type ErrorResponse struct {
	Error   string `json:"error"`             // Human-readable error message
	Code    int    `json:"code"`              // HTTP status code
	Details any    `json:"details,omitempty"` // Additional error details (dev mode only)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	OK     bool `json:"ok"`
	Halted bool `json:"halted"`
}

type TokenResponse struct {
	Name     string `json:"name"`
	Mint     string `json:"mint"`
	Decimals uint8  `json:"decimals"`
	Base     bool   `json:"base,omitempty"`
}

type PoolResponse struct {
	Address   string `json:"address"`
	Amm       string `json:"amm"`
	MintA     string `json:"mint_a"`
	MintB     string `json:"mint_b"`
	Authority string `json:"authority"`
	ReserveA  string `json:"reserve_a"`
	ReserveB  string `json:"reserve_b"`
}

// QuoteResponse carries raw amounts and, for configured tokens, display amounts.
type QuoteResponse struct {
	Pool         string    `json:"pool,omitempty"`
	FromMint     string    `json:"from_mint"`
	ToMint       string    `json:"to_mint"`
	AmountIn     uint64    `json:"amount_in"`
	AmountOut    uint64    `json:"amount_out"`
	AmountInUI   string    `json:"amount_in_ui,omitempty"`
	AmountOutUI  string    `json:"amount_out_ui,omitempty"`
	Price        string    `json:"price,omitempty"`
	PriceImpact  float64   `json:"price_impact"`
	MinAmountOut uint64    `json:"min_amount_out,omitempty"`
	ReserveIn    uint64    `json:"reserve_in"`
	ReserveOut   uint64    `json:"reserve_out"`
	QuotedAt     time.Time `json:"quoted_at"`
}

// SwapRequest names a swap. Amount is in display units of the source token;
// AmountRaw is in base units and wins when both are set.
type SwapRequest struct {
	Holder    string `json:"holder"`
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
	AmountRaw uint64 `json:"amount_raw"`
}

type BuildSwapResponse struct {
	IdempotencyKey     string        `json:"idempotency_key"`
	Transaction        string        `json:"transaction"` // base64 wire message
	CreatesDestination bool          `json:"creates_destination"`
	Quote              QuoteResponse `json:"quote"`
}

type SubmitSwapRequest struct {
	SwapRequest
	Transaction string `json:"transaction"` // base64, signed by holder
}

type SwapOutcomeResponse struct {
	ExecutionID  string `json:"execution_id"`
	Signature    string `json:"signature"`
	Status       string `json:"status"`
	Reason       string `json:"reason,omitempty"`
	Slot         uint64 `json:"slot,omitempty"`
	Pool         string `json:"pool"`
	MinAmountOut uint64 `json:"min_amount_out"`
	TookMs       int64  `json:"took_ms"`
}

type BalanceResponse struct {
	Name      string `json:"name"`
	Mint      string `json:"mint"`
	RawAmount uint64 `json:"raw_amount"`
	Amount    string `json:"amount"`
	Decimals  uint8  `json:"decimals"`
}

type BalancesResponse struct {
	Holder    string            `json:"holder"`
	Balances  []BalanceResponse `json:"balances"`
	UpdatedAt time.Time         `json:"updated_at,omitzero"`
}

type HaltRequest struct {
	Reason string `json:"reason"`
}

type HaltResponse struct {
	Halted bool   `json:"halted"`
	Reason string `json:"reason,omitempty"`
}

type FlagsResponse struct {
	Flags []*flags.Flag `json:"flags"`
}
