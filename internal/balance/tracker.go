package balance

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/aman-zulfiqar/solana-amm-client/internal/amm"
	"github.com/aman-zulfiqar/solana-amm-client/internal/bus"
	"github.com/aman-zulfiqar/solana-amm-client/internal/constants"
	"github.com/aman-zulfiqar/solana-amm-client/internal/ledger"
	"github.com/aman-zulfiqar/solana-amm-client/internal/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ErrRefreshInFlight is returned when a refresh for the same holder is already running.
var ErrRefreshInFlight = errors.New("balance refresh already in flight")

// Token is a mint the tracker reports on.
type Token struct {
	Name     string
	Mint     solana.PublicKey
	Decimals uint8
}

// Entry is one token balance in raw units.
type Entry struct {
	Name      string
	Mint      solana.PublicKey
	RawAmount uint64
	Decimals  uint8
}

// UIAmount is the balance in display units.
func (e Entry) UIAmount() decimal.Decimal {
	return amm.UIAmount(e.RawAmount, e.Decimals)
}

// Balances maps token name to entry. A Balances value handed out by the
// tracker is never mutated afterwards.
type Balances map[string]Entry

type session struct {
	tokens    []Token
	balances  Balances
	updatedAt time.Time
	// done is non-nil while a refresh runs and is closed when it ends.
	done chan struct{}
}

// TrackerConfig holds configuration for the balance tracker
type TrackerConfig struct {
	// BaseToken is always included in every refresh.
	BaseToken    Token
	PollInterval time.Duration
	Logger       *logrus.Logger
	Metrics      *metrics.Metrics
}

// Tracker keeps a per-holder snapshot of token balances.
type Tracker struct {
	gw      ledger.Gateway
	bus     *bus.Bus
	base    Token
	every   time.Duration
	logger  *logrus.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	sessions map[solana.PublicKey]*session
	running  bool
}

func NewTracker(gw ledger.Gateway, b *bus.Bus, cfg TrackerConfig) *Tracker {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = constants.DefaultBalancePollInterval
	}
	return &Tracker{
		gw:       gw,
		bus:      b,
		base:     cfg.BaseToken,
		every:    cfg.PollInterval,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		sessions: make(map[solana.PublicKey]*session),
	}
}

// Track sets the tokens followed for holder. The base token is added implicitly.
func (t *Tracker) Track(holder solana.PublicKey, tokens []Token) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[holder]
	if !ok {
		s = &session{}
		t.sessions[holder] = s
	}
	s.tokens = t.withBase(tokens)
}

// Untrack forgets holder and its snapshot.
func (t *Tracker) Untrack(holder solana.PublicKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, holder)
}

// Holders lists tracked holders.
func (t *Tracker) Holders() []solana.PublicKey {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]solana.PublicKey, 0, len(t.sessions))
	for h := range t.sessions {
		out = append(out, h)
	}
	return out
}

// withBase prepends the base token and drops duplicate mints.
func (t *Tracker) withBase(tokens []Token) []Token {
	out := make([]Token, 0, len(tokens)+1)
	seen := make(map[solana.PublicKey]bool, len(tokens)+1)
	for _, tok := range append([]Token{t.base}, tokens...) {
		if tok.Mint.IsZero() || seen[tok.Mint] {
			continue
		}
		seen[tok.Mint] = true
		out = append(out, tok)
	}
	return out
}

// Balances returns the latest snapshot for holder, if one exists.
func (t *Tracker) Balances(holder solana.PublicKey) (Balances, time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[holder]
	if !ok || s.balances == nil {
		return nil, time.Time{}, false
	}
	return s.balances, s.updatedAt, true
}

// GetBalances tracks tokens for holder and returns a fresh snapshot. If a
// refresh for holder is already running it waits for that one instead of
// starting another.
func (t *Tracker) GetBalances(ctx context.Context, holder solana.PublicKey, tokens []Token) (Balances, error) {
	t.Track(holder, tokens)
	for {
		bals, err := t.Refresh(ctx, holder)
		if !errors.Is(err, ErrRefreshInFlight) {
			return bals, err
		}

		wait := t.inFlight(holder)
		if wait != nil {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-wait:
			}
		}
		// the awaited refresh may have failed; then try our own
		if b, _, ok := t.Balances(holder); ok {
			return b, nil
		}
	}
}

// inFlight returns a channel closed when holder's running refresh ends, or
// nil when none is running.
func (t *Tracker) inFlight(holder solana.PublicKey) <-chan struct{} {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.sessions[holder]; ok && s.done != nil {
		return s.done
	}
	return nil
}

// Refresh reads every tracked token account of holder in one batch and
// replaces the snapshot. If a refresh for holder is already running this
// returns the current snapshot, possibly nil, and ErrRefreshInFlight without
// touching the network.
func (t *Tracker) Refresh(ctx context.Context, holder solana.PublicKey) (Balances, error) {
	t.mu.Lock()
	s, ok := t.sessions[holder]
	if !ok {
		t.mu.Unlock()
		return nil, fmt.Errorf("holder %s is not tracked", holder)
	}
	if s.done != nil {
		current := s.balances
		t.mu.Unlock()
		t.metrics.ObserveRefresh("skipped")
		t.logger.WithField("holder", holder.String()).Debug("refresh already in flight, skipping")
		return current, ErrRefreshInFlight
	}
	tokens := s.tokens
	done := make(chan struct{})
	s.done = done
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		s.done = nil
		t.mu.Unlock()
		close(done)
	}()

	next, err := t.read(ctx, holder, tokens)
	if err != nil {
		t.metrics.ObserveRefresh("error")
		return nil, err
	}

	t.mu.Lock()
	s.balances = next
	s.updatedAt = time.Now()
	t.mu.Unlock()

	t.metrics.ObserveRefresh("ok")
	return next, nil
}

func (t *Tracker) read(ctx context.Context, holder solana.PublicKey, tokens []Token) (Balances, error) {
	addrs := make([]solana.PublicKey, len(tokens))
	for i, tok := range tokens {
		ata, _, err := amm.FindAssociatedTokenAddress(holder, tok.Mint)
		if err != nil {
			return nil, fmt.Errorf("derive token account for %s: %w", tok.Name, err)
		}
		addrs[i] = ata
	}

	datas, err := t.gw.GetAccountsBatch(ctx, addrs)
	if err != nil {
		return nil, fmt.Errorf("read balances: %w", err)
	}
	if len(datas) != len(addrs) {
		return nil, fmt.Errorf("read balances: expected %d accounts, got %d", len(addrs), len(datas))
	}

	next := make(Balances, len(tokens))
	for i, tok := range tokens {
		amount, err := amm.TokenAmount(datas[i])
		if err != nil {
			return nil, fmt.Errorf("token account %s (%s): %w", addrs[i], tok.Name, err)
		}
		next[tok.Name] = Entry{
			Name:      tok.Name,
			Mint:      tok.Mint,
			RawAmount: amount,
			Decimals:  tok.Decimals,
		}
	}
	return next, nil
}

// RefreshAll refreshes every tracked holder, skipping those already in flight.
func (t *Tracker) RefreshAll(ctx context.Context) {
	for _, holder := range t.Holders() {
		if _, err := t.Refresh(ctx, holder); err != nil && !errors.Is(err, ErrRefreshInFlight) {
			t.logger.WithError(err).WithField("holder", holder.String()).Warn("balance refresh failed")
		}
	}
}

// handle reacts to a bus event. It never blocks the publisher.
func (t *Tracker) handle(ctx context.Context, ev bus.Event) {
	go func() {
		if ev.Holder.IsZero() {
			t.RefreshAll(ctx)
			return
		}
		t.mu.RLock()
		_, tracked := t.sessions[ev.Holder]
		t.mu.RUnlock()
		if !tracked {
			return
		}
		if _, err := t.Refresh(ctx, ev.Holder); err != nil && !errors.Is(err, ErrRefreshInFlight) {
			t.logger.WithError(err).WithFields(logrus.Fields{
				"holder": ev.Holder.String(),
				"source": ev.Source,
			}).Warn("event-triggered refresh failed")
		}
	}()
}

// Subscribe attaches the tracker to its bus until the returned function is called.
func (t *Tracker) Subscribe(ctx context.Context) func() {
	if t.bus == nil {
		return func() {}
	}
	return t.bus.Subscribe(func(ev bus.Event) { t.handle(ctx, ev) })
}

// Run polls on a fixed interval and refreshes on bus events until ctx is done.
func (t *Tracker) Run(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return fmt.Errorf("tracker already running")
	}
	t.running = true
	t.mu.Unlock()

	unsubscribe := t.Subscribe(ctx)
	defer unsubscribe()

	ticker := time.NewTicker(t.every)
	defer ticker.Stop()

	t.logger.WithField("interval", t.every).Info("starting balance tracker")

	for {
		select {
		case <-ctx.Done():
			t.mu.Lock()
			t.running = false
			t.mu.Unlock()
			return ctx.Err()

		case <-ticker.C:
			t.RefreshAll(ctx)
		}
	}
}

// Clone returns a copy the caller may modify.
func (b Balances) Clone() Balances {
	return maps.Clone(b)
}
