package storage

import (
	"context"
	"io"

	"github.com/aman-zulfiqar/solana-amm-client/internal/models"
)

// SwapJournal defines the interface for persistent swap outcome storage
type SwapJournal interface {
	// RecordSwap appends one swap outcome
	RecordSwap(ctx context.Context, rec *models.SwapRecord) error

	// RecentSwaps returns the newest records for holder, newest first
	RecentSwaps(ctx context.Context, holder string, limit int) ([]*models.SwapRecord, error)

	// Ping checks if the store is reachable
	Ping(ctx context.Context) error

	// Close closes the store connection
	io.Closer
}

// TradingGate reports whether swap submission is currently halted
type TradingGate interface {
	Halted(ctx context.Context) (halted bool, reason string, err error)
}
