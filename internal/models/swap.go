package models

import "time"

// SwapRecord is one submitted swap as written to the journal.
type SwapRecord struct {
	ExecutionID  string    `json:"execution_id"`
	Signature    string    `json:"signature"`
	Timestamp    time.Time `json:"timestamp"`
	Holder       string    `json:"holder"`
	Pool         string    `json:"pool"`
	FromMint     string    `json:"from_mint"`
	ToMint       string    `json:"to_mint"`
	AmountIn     uint64    `json:"amount_in"`
	MinAmountOut uint64    `json:"min_amount_out"`
	Status       string    `json:"status"` // success, failed, unknown
	Reason       string    `json:"reason,omitempty"`
	Slot         uint64    `json:"slot,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
}
