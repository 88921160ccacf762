package quote

import (
	"context"
	"sync"
	"time"

	"github.com/aman-zulfiqar/solana-amm-client/internal/constants"
	"github.com/aman-zulfiqar/solana-amm-client/internal/metrics"
	"github.com/sirupsen/logrus"
)

// Quoter computes a single quote; *Engine implements it.
type Quoter interface {
	Quote(ctx context.Context, pair Pair, amountIn uint64) (Quote, error)
}

// Result is a debounced quote delivered to the callback.
type Result struct {
	Generation uint64
	Pair       Pair
	AmountIn   uint64
	Quote      Quote
	Err        error
}

// Debouncer coalesces bursts of quote requests. Each request bumps a
// generation counter and restarts the window timer; only the request that is
// still the latest when its timer fires reaches the network, and its result
// is delivered only if no newer request arrived while it was in flight.
type Debouncer struct {
	quoter  Quoter
	window  time.Duration
	deliver func(Result)
	logger  *logrus.Logger
	metrics *metrics.Metrics

	// deliverMu serializes delivery; it is taken before mu.
	deliverMu sync.Mutex

	mu      sync.Mutex
	gen     uint64
	timer   *time.Timer
	latest  Result
	hasLast bool
}

// DebouncerConfig holds configuration for the debouncer
type DebouncerConfig struct {
	Window time.Duration
	// Deliver is called one result at a time. It must not call Stop.
	Deliver func(Result)
	Logger  *logrus.Logger
	Metrics *metrics.Metrics
}

func NewDebouncer(q Quoter, cfg DebouncerConfig) *Debouncer {
	if cfg.Window <= 0 {
		cfg.Window = constants.DefaultQuoteDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Deliver == nil {
		cfg.Deliver = func(Result) {}
	}
	return &Debouncer{
		quoter:  q,
		window:  cfg.Window,
		deliver: cfg.Deliver,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Request schedules a quote and supersedes any earlier one. It returns the
// generation assigned to this request.
func (d *Debouncer) Request(ctx context.Context, pair Pair, amountIn uint64) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, func() {
		d.fire(ctx, gen, pair, amountIn)
	})
	return gen
}

func (d *Debouncer) current(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gen == d.gen
}

func (d *Debouncer) fire(ctx context.Context, gen uint64, pair Pair, amountIn uint64) {
	// Stop can lose the race with an expiring timer
	if !d.current(gen) {
		return
	}

	q, err := d.quoter.Quote(ctx, pair, amountIn)

	res := Result{Generation: gen, Pair: pair, AmountIn: amountIn, Quote: q, Err: err}

	// the generation is rechecked under deliverMu so a result superseded
	// while an earlier one was being delivered is dropped
	d.deliverMu.Lock()
	defer d.deliverMu.Unlock()

	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		d.metrics.QuoteSuperseded()
		d.logger.WithFields(logrus.Fields{
			"generation": gen,
			"amount_in":  amountIn,
		}).Debug("discarding superseded quote")
		return
	}
	d.latest, d.hasLast = res, true
	d.mu.Unlock()

	d.deliver(res)
}

// Latest returns the most recently delivered result.
func (d *Debouncer) Latest() (Result, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.latest, d.hasLast
}

// Stop cancels any pending request and discards any in-flight result. It
// waits for a delivery already in progress, so nothing is delivered after it
// returns.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	d.deliverMu.Lock()
	d.deliverMu.Unlock()
}
