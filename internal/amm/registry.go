package amm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aman-zulfiqar/solana-amm-client/internal/constants"
	"github.com/aman-zulfiqar/solana-amm-client/internal/ledger"
	"github.com/aman-zulfiqar/solana-amm-client/internal/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
	"lukechampine.com/uint128"
)

// TieBreak picks one pool among several that trade the same pair.
// candidates is never empty and is in discovery order.
type TieBreak interface {
	Choose(ctx context.Context, candidates []Pool) (Pool, error)
}

// FirstFound picks the first discovered pool.
type FirstFound struct{}

func (FirstFound) Choose(_ context.Context, candidates []Pool) (Pool, error) {
	return candidates[0], nil
}

// HighestLiquidity picks the pool with the largest reserve product, read live.
// Ties keep discovery order.
type HighestLiquidity struct {
	Gateway ledger.Gateway
}

func (h HighestLiquidity) Choose(ctx context.Context, candidates []Pool) (Pool, error) {
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	reserves, err := ReadReserves(ctx, h.Gateway, candidates...)
	if err != nil {
		return Pool{}, err
	}

	best := 0
	bestK := uint128.Zero
	for i, r := range reserves {
		k := uint128.From64(r.ReserveA).Mul64(r.ReserveB)
		if k.Cmp(bestK) > 0 {
			best, bestK = i, k
		}
	}
	return candidates[best], nil
}

// NewTieBreak resolves a strategy name from configuration.
func NewTieBreak(name string, gw ledger.Gateway) (TieBreak, error) {
	switch name {
	case "", constants.TieBreakFirstFound:
		return FirstFound{}, nil
	case constants.TieBreakHighestLiquidity:
		return HighestLiquidity{Gateway: gw}, nil
	default:
		return nil, fmt.Errorf("unknown pool tie-break strategy %q", name)
	}
}

// FindPool returns the first pool trading x against y, in either order.
func FindPool(pools []Pool, x, y solana.PublicKey) (Pool, bool) {
	for _, p := range pools {
		if p.Matches(x, y) {
			return p, true
		}
	}
	return Pool{}, false
}

// MatchingPools returns every pool trading x against y, in discovery order.
func MatchingPools(pools []Pool, x, y solana.PublicKey) []Pool {
	var out []Pool
	for _, p := range pools {
		if p.Matches(x, y) {
			out = append(out, p)
		}
	}
	return out
}

// FindPoolsByBaseToken returns pools with base as one of their mints.
func FindPoolsByBaseToken(pools []Pool, base solana.PublicKey) []Pool {
	var out []Pool
	for _, p := range pools {
		if p.Has(base) {
			out = append(out, p)
		}
	}
	return out
}

// RegistryConfig holds configuration for the pool registry
type RegistryConfig struct {
	ProgramID solana.PublicKey
	TieBreak  TieBreak
	Logger    *logrus.Logger
	Metrics   *metrics.Metrics
}

// Registry discovers pools and keeps the latest scan.
type Registry struct {
	gw        ledger.Gateway
	programID solana.PublicKey
	tieBreak  TieBreak
	logger    *logrus.Logger
	metrics   *metrics.Metrics

	mu        sync.RWMutex
	pools     []Pool
	scannedAt time.Time
}

func NewRegistry(gw ledger.Gateway, cfg RegistryConfig) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.TieBreak == nil {
		cfg.TieBreak = FirstFound{}
	}
	return &Registry{
		gw:        gw,
		programID: cfg.ProgramID,
		tieBreak:  cfg.TieBreak,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
}

// Discover scans the program for pool accounts. Accounts that fail to decode
// are logged and skipped; only a failed scan is an error.
func (r *Registry) Discover(ctx context.Context) ([]Pool, error) {
	accounts, err := r.gw.GetProgramAccounts(ctx, r.programID, constants.PoolAccountSize)
	if err != nil {
		return nil, fmt.Errorf("discover pools: %w", err)
	}

	pools := make([]Pool, 0, len(accounts))
	skipped := 0
	for _, acct := range accounts {
		pool, err := DecodePool(r.programID, acct.Address, acct.Data)
		if err != nil {
			skipped++
			r.logger.WithError(err).WithField("account", acct.Address.String()).Warn("skipping undecodable pool account")
			continue
		}
		pools = append(pools, pool)
	}

	r.metrics.ObserveDiscovery(len(pools), skipped)
	r.logger.WithFields(logrus.Fields{
		"pools":   len(pools),
		"skipped": skipped,
	}).Info("pool discovery complete")

	r.mu.Lock()
	r.pools = pools
	r.scannedAt = time.Now()
	r.mu.Unlock()

	return pools, nil
}

// Pools returns the latest scan, discovering first if none has run.
func (r *Registry) Pools(ctx context.Context) ([]Pool, error) {
	r.mu.RLock()
	pools, scanned := r.pools, !r.scannedAt.IsZero()
	r.mu.RUnlock()

	if scanned {
		return pools, nil
	}
	return r.Discover(ctx)
}

// ScannedAt is the time of the latest successful scan.
func (r *Registry) ScannedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scannedAt
}

// Resolve finds the pool for a pair using the configured tie-break.
func (r *Registry) Resolve(ctx context.Context, x, y solana.PublicKey) (Pool, error) {
	pools, err := r.Pools(ctx)
	if err != nil {
		return Pool{}, err
	}

	candidates := MatchingPools(pools, x, y)
	if len(candidates) == 0 {
		return Pool{}, fmt.Errorf("%w: %s / %s", ErrPoolNotFound, x, y)
	}
	return r.tieBreak.Choose(ctx, candidates)
}

// Tradable returns the pools that trade against base.
func (r *Registry) Tradable(ctx context.Context, base solana.PublicKey) ([]Pool, error) {
	pools, err := r.Pools(ctx)
	if err != nil {
		return nil, err
	}
	return FindPoolsByBaseToken(pools, base), nil
}
