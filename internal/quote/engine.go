package quote

import (
	"context"
	"fmt"
	"time"

	"github.com/aman-zulfiqar/solana-amm-client/internal/amm"
	"github.com/aman-zulfiqar/solana-amm-client/internal/ledger"
	"github.com/aman-zulfiqar/solana-amm-client/internal/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Pair is a directed swap: From is sold, To is bought.
type Pair struct {
	From solana.PublicKey
	To   solana.PublicKey
}

// Quote is an estimate computed from reserves read just before it was made.
type Quote struct {
	Pair       Pair
	Pool       amm.Pool
	AToB       bool
	AmountIn   uint64
	AmountOut  uint64
	ReserveIn  uint64
	ReserveOut uint64
	QuotedAt   time.Time
}

// IsZero reports whether the quote carries no output.
func (q Quote) IsZero() bool { return q.AmountOut == 0 }

// EffectivePrice is output per unit of input in display units.
func (q Quote) EffectivePrice(decimalsIn, decimalsOut uint8) decimal.Decimal {
	if q.AmountIn == 0 {
		return decimal.Zero
	}
	in := amm.UIAmount(q.AmountIn, decimalsIn)
	out := amm.UIAmount(q.AmountOut, decimalsOut)
	return out.Div(in)
}

// PriceImpact is the shortfall of the execution rate against the spot rate.
func (q Quote) PriceImpact() float64 {
	return amm.PriceImpact(q.AmountIn, q.AmountOut, q.ReserveIn, q.ReserveOut)
}

// PoolResolver finds the pool for a pair; *amm.Registry implements it.
type PoolResolver interface {
	Resolve(ctx context.Context, x, y solana.PublicKey) (amm.Pool, error)
}

// Engine prices swaps against live reserves.
type Engine struct {
	pools   PoolResolver
	gw      ledger.Gateway
	logger  *logrus.Logger
	metrics *metrics.Metrics
}

func NewEngine(pools PoolResolver, gw ledger.Gateway, logger *logrus.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{pools: pools, gw: gw, logger: logger, metrics: m}
}

// Quote computes the constant-product output for amountIn of pair.From.
// A zero amount returns an empty quote without touching the network.
func (e *Engine) Quote(ctx context.Context, pair Pair, amountIn uint64) (q Quote, err error) {
	if amountIn == 0 {
		return Quote{Pair: pair, QuotedAt: time.Now()}, nil
	}

	start := time.Now()
	defer func() { e.metrics.ObserveQuote(err, time.Since(start)) }()

	pool, err := e.pools.Resolve(ctx, pair.From, pair.To)
	if err != nil {
		return Quote{}, err
	}

	aToB, err := pool.Direction(pair.From)
	if err != nil {
		return Quote{}, err
	}

	reserves, err := amm.ReadReserves(ctx, e.gw, pool)
	if err != nil {
		return Quote{}, err
	}
	reserveIn, reserveOut := reserves[0].InOut(aToB)

	amountOut, err := amm.ConstantProductOut(amountIn, reserveIn, reserveOut)
	if err != nil {
		return Quote{}, fmt.Errorf("quote %s -> %s: %w", pair.From, pair.To, err)
	}

	e.logger.WithFields(logrus.Fields{
		"pool":       pool.Address.String(),
		"amount_in":  amountIn,
		"amount_out": amountOut,
		"a_to_b":     aToB,
	}).Debug("quote computed")

	return Quote{
		Pair:       pair,
		Pool:       pool,
		AToB:       aToB,
		AmountIn:   amountIn,
		AmountOut:  amountOut,
		ReserveIn:  reserveIn,
		ReserveOut: reserveOut,
		QuotedAt:   reserves[0].ReadAt,
	}, nil
}
