package cache

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/aman-zulfiqar/solana-amm-client/internal/models"
	"github.com/aman-zulfiqar/solana-amm-client/internal/storage"
	"github.com/sirupsen/logrus"
)

const swapOutcomesDDL = `
	CREATE TABLE IF NOT EXISTS swap_outcomes (
		execution_id   String,
		signature      String,
		timestamp      DateTime64(3, 'UTC'),
		holder         String,
		pool           String,
		from_mint      String,
		to_mint        String,
		amount_in      UInt64,
		min_amount_out UInt64,
		status         LowCardinality(String),
		reason         String,
		slot           UInt64,
		duration_ms    Int64
	) ENGINE = MergeTree
	ORDER BY (holder, timestamp)
`

// ClickHouseConfig holds connection settings for the swap journal
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

// SwapJournal records swap outcomes in ClickHouse.
type SwapJournal struct {
	conn   driver.Conn
	logger *logrus.Logger
}

var _ storage.SwapJournal = (*SwapJournal)(nil)

func NewSwapJournal(ctx context.Context, cfg ClickHouseConfig, logger *logrus.Logger) (*SwapJournal, error) {
	if logger == nil {
		logger = logrus.New()
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	j := &SwapJournal{conn: conn, logger: logger}
	if err := j.EnsureSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"addr":     cfg.Addr,
		"database": cfg.Database,
	}).Info("connected to ClickHouse swap journal")
	return j, nil
}

func (j *SwapJournal) EnsureSchema(ctx context.Context) error {
	if err := j.conn.Exec(ctx, swapOutcomesDDL); err != nil {
		return fmt.Errorf("create swap_outcomes: %w", err)
	}
	return nil
}

func (j *SwapJournal) RecordSwap(ctx context.Context, rec *models.SwapRecord) error {
	query := `
		INSERT INTO swap_outcomes (
			execution_id, signature, timestamp, holder, pool, from_mint, to_mint,
			amount_in, min_amount_out, status, reason, slot, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := j.conn.Exec(ctx, query,
		rec.ExecutionID,
		rec.Signature,
		rec.Timestamp,
		rec.Holder,
		rec.Pool,
		rec.FromMint,
		rec.ToMint,
		rec.AmountIn,
		rec.MinAmountOut,
		rec.Status,
		rec.Reason,
		rec.Slot,
		rec.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("failed to insert swap: %w", err)
	}
	return nil
}

func (j *SwapJournal) RecentSwaps(ctx context.Context, holder string, limit int) ([]*models.SwapRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	rows, err := j.conn.Query(ctx, `
		SELECT execution_id, signature, timestamp, holder, pool, from_mint, to_mint,
		       amount_in, min_amount_out, status, reason, slot, duration_ms
		FROM swap_outcomes
		WHERE holder = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, holder, limit)
	if err != nil {
		return nil, fmt.Errorf("query swaps: %w", err)
	}
	defer rows.Close()

	var out []*models.SwapRecord
	for rows.Next() {
		var r models.SwapRecord
		if err := rows.Scan(
			&r.ExecutionID, &r.Signature, &r.Timestamp, &r.Holder, &r.Pool, &r.FromMint, &r.ToMint,
			&r.AmountIn, &r.MinAmountOut, &r.Status, &r.Reason, &r.Slot, &r.DurationMS,
		); err != nil {
			return nil, fmt.Errorf("scan swap: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (j *SwapJournal) Ping(ctx context.Context) error {
	return j.conn.Ping(ctx)
}

func (j *SwapJournal) Close() error {
	return j.conn.Close()
}
