package swapengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aman-zulfiqar/solana-amm-client/internal/amm"
	"github.com/aman-zulfiqar/solana-amm-client/internal/balance"
	"github.com/aman-zulfiqar/solana-amm-client/internal/bus"
	"github.com/aman-zulfiqar/solana-amm-client/internal/cache"
	"github.com/aman-zulfiqar/solana-amm-client/internal/config"
	"github.com/aman-zulfiqar/solana-amm-client/internal/flags"
	"github.com/aman-zulfiqar/solana-amm-client/internal/ledger"
	"github.com/aman-zulfiqar/solana-amm-client/internal/metrics"
	"github.com/aman-zulfiqar/solana-amm-client/internal/models"
	"github.com/aman-zulfiqar/solana-amm-client/internal/quote"
	"github.com/aman-zulfiqar/solana-amm-client/internal/rpc"
	"github.com/aman-zulfiqar/solana-amm-client/internal/storage"
	"github.com/aman-zulfiqar/solana-amm-client/internal/stream"
	"github.com/gagliardetto/solana-go"
	solrpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrNotConfigured is returned by optional features whose backend is not set up.
var ErrNotConfigured = errors.New("not configured")

// EngineConfig holds the wiring of the holder-facing engine
type EngineConfig struct {
	ProgramID solana.PublicKey
	BaseToken balance.Token
	// Tokens are tracked for every holder in addition to the base token.
	Tokens   []balance.Token
	TieBreak string

	SlippageTolerance     decimal.Decimal
	MinFeeReserveLamports uint64
	Commitment            solrpc.CommitmentType
	FallbackDelay         time.Duration
	BalancePollInterval   time.Duration
	QuoteDebounce         time.Duration

	// Optional backends
	Flags   *flags.Store
	Journal storage.SwapJournal
	Watcher *stream.AccountWatcher

	Logger  *logrus.Logger
	Metrics *metrics.Metrics
}

type closer struct {
	name string
	fn   func() error
}

// Engine is the main orchestrator for pool, quote, swap and balance operations
type Engine struct {
	gw       ledger.Gateway
	bus      *bus.Bus
	registry *amm.Registry
	quotes   *quote.Engine
	executor *Executor
	tracker  *balance.Tracker
	watcher  *stream.AccountWatcher
	flags    *flags.Store
	journal  storage.SwapJournal

	base     balance.Token
	tokens   []balance.Token
	debounce time.Duration
	logger   *logrus.Logger
	metrics  *metrics.Metrics

	runners []func(context.Context) error
	closers []closer
}

// NewEngine wires the core components around an existing gateway and bus.
func NewEngine(gw ledger.Gateway, b *bus.Bus, cfg EngineConfig) (*Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.ProgramID.IsZero() {
		return nil, fmt.Errorf("engine: program id is required")
	}
	if cfg.BaseToken.Mint.IsZero() {
		return nil, fmt.Errorf("engine: base token is required")
	}
	if b == nil {
		b = bus.New(cfg.Logger, cfg.Metrics)
	}

	tieBreak, err := amm.NewTieBreak(cfg.TieBreak, gw)
	if err != nil {
		return nil, err
	}
	registry := amm.NewRegistry(gw, amm.RegistryConfig{
		ProgramID: cfg.ProgramID,
		TieBreak:  tieBreak,
		Logger:    cfg.Logger,
		Metrics:   cfg.Metrics,
	})

	execCfg := ExecutorConfig{
		SlippageTolerance:     cfg.SlippageTolerance,
		Commitment:            cfg.Commitment,
		FallbackDelay:         cfg.FallbackDelay,
		MinFeeReserveLamports: cfg.MinFeeReserveLamports,
		ProgramID:             cfg.ProgramID,
		Journal:               cfg.Journal,
		Logger:                cfg.Logger,
		Metrics:               cfg.Metrics,
	}
	if cfg.Flags != nil {
		execCfg.Gate = cfg.Flags
	}
	executor, err := NewExecutor(gw, b, execCfg)
	if err != nil {
		return nil, err
	}

	return &Engine{
		gw:       gw,
		bus:      b,
		registry: registry,
		quotes:   quote.NewEngine(registry, gw, cfg.Logger, cfg.Metrics),
		executor: executor,
		tracker: balance.NewTracker(gw, b, balance.TrackerConfig{
			BaseToken:    cfg.BaseToken,
			PollInterval: cfg.BalancePollInterval,
			Logger:       cfg.Logger,
			Metrics:      cfg.Metrics,
		}),
		watcher:  cfg.Watcher,
		flags:    cfg.Flags,
		journal:  cfg.Journal,
		base:     cfg.BaseToken,
		tokens:   cfg.Tokens,
		debounce: cfg.QuoteDebounce,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}, nil
}

// NewEngineFromConfig builds the RPC gateway and every optional backend
// named in cfg, then the engine around them.
func NewEngineFromConfig(ctx context.Context, cfg *config.Config, logger *logrus.Logger, m *metrics.Metrics) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}

	programID, err := solana.PublicKeyFromBase58(cfg.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("invalid AMM_PROGRAM_ID: %w", err)
	}
	base, err := tokenFromSpec(cfg.BaseToken)
	if err != nil {
		return nil, fmt.Errorf("invalid base token: %w", err)
	}
	tokens := make([]balance.Token, 0, len(cfg.TrackedTokens))
	for _, spec := range cfg.TrackedTokens {
		tok, err := tokenFromSpec(spec)
		if err != nil {
			return nil, fmt.Errorf("invalid tracked token %s: %w", spec.Symbol, err)
		}
		tokens = append(tokens, tok)
	}

	commitment := solrpc.CommitmentType(cfg.Commitment)
	client := rpc.NewClient(rpc.ClientConfig{
		BaseURL:      cfg.RPCUrl,
		Timeout:      cfg.HTTPTimeout,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		RateLimit:    cfg.RPCRateLimit,
		Burst:        cfg.RPCBurst,
		Logger:       logger,
		Metrics:      m,
	})
	gw := ledger.NewRPCGateway(client, ledger.RPCGatewayConfig{
		Commitment:      commitment,
		ConfirmTimeout:  cfg.ConfirmTimeout,
		ConfirmMaxPolls: cfg.ConfirmMaxPolls,
		Logger:          logger,
	})
	b := bus.New(logger, m)

	engCfg := EngineConfig{
		ProgramID:             programID,
		BaseToken:             base,
		Tokens:                tokens,
		TieBreak:              cfg.PoolTieBreak,
		SlippageTolerance:     cfg.SlippageTolerance,
		MinFeeReserveLamports: cfg.MinFeeReserveLamports,
		Commitment:            commitment,
		FallbackDelay:         cfg.ConfirmFallbackDelay,
		BalancePollInterval:   cfg.BalancePollInterval,
		QuoteDebounce:         cfg.QuoteDebounce,
		Logger:                logger,
		Metrics:               m,
	}

	var runners []func(context.Context) error
	var closers []closer

	if cfg.RedisAddr != "" {
		rdb, err := cache.NewRedisClient(ctx, cache.RedisConfig{Addr: cfg.RedisAddr})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		closers = append(closers, closer{"redis", rdb.Close})

		if engCfg.Flags, err = flags.NewStore(rdb); err != nil {
			closeAll(closers)
			return nil, err
		}
		relay := cache.NewRefreshRelay(rdb, b, cfg.RefreshChannel, logger)
		runners = append(runners, func(ctx context.Context) error {
			defer relay.Forward(ctx)()
			return relay.Run(ctx)
		})
	}

	if cfg.ClickHouseAddr != "" {
		journal, err := cache.NewSwapJournal(ctx, cache.ClickHouseConfig{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
		}, logger)
		if err != nil {
			closeAll(closers)
			return nil, err
		}
		engCfg.Journal = journal
		closers = append(closers, closer{"clickhouse", journal.Close})
	}

	if cfg.WSUrl != "" {
		engCfg.Watcher = stream.NewAccountWatcher(stream.WatcherConfig{
			URL:        cfg.WSUrl,
			Commitment: cfg.Commitment,
			Logger:     logger,
		}, b)
	}

	e, err := NewEngine(gw, b, engCfg)
	if err != nil {
		closeAll(closers)
		return nil, err
	}
	e.runners = runners
	e.closers = closers
	return e, nil
}

func tokenFromSpec(spec config.TokenSpec) (balance.Token, error) {
	mint, err := solana.PublicKeyFromBase58(spec.Mint)
	if err != nil {
		return balance.Token{}, err
	}
	return balance.Token{Name: spec.Symbol, Mint: mint, Decimals: spec.Decimals}, nil
}

// Bus returns the refresh bus shared by every component.
func (e *Engine) Bus() *bus.Bus { return e.bus }

// BaseToken is the token every holder is tracked for.
func (e *Engine) BaseToken() balance.Token { return e.base }

// Tokens lists the base token followed by the tracked tokens.
func (e *Engine) Tokens() []balance.Token {
	return append([]balance.Token{e.base}, e.tokens...)
}

// Token looks up a configured token by mint.
func (e *Engine) Token(mint solana.PublicKey) (balance.Token, bool) {
	for _, t := range e.Tokens() {
		if t.Mint.Equals(mint) {
			return t, true
		}
	}
	return balance.Token{}, false
}

// TokenBySymbol looks up a configured token by its name.
func (e *Engine) TokenBySymbol(symbol string) (balance.Token, bool) {
	for _, t := range e.Tokens() {
		if t.Name == symbol {
			return t, true
		}
	}
	return balance.Token{}, false
}

func (e *Engine) Pools(ctx context.Context) ([]amm.Pool, error) {
	return e.registry.Pools(ctx)
}

// TradablePools lists pools that trade against the base token.
func (e *Engine) TradablePools(ctx context.Context) ([]amm.Pool, error) {
	return e.registry.Tradable(ctx, e.base.Mint)
}

func (e *Engine) RescanPools(ctx context.Context) ([]amm.Pool, error) {
	return e.registry.Discover(ctx)
}

// GetQuote prices intent against live reserves. A zero amount yields a zero quote.
func (e *Engine) GetQuote(ctx context.Context, intent SwapIntent) (quote.Quote, error) {
	if intent.AmountIn > 0 {
		if err := ValidateIntent(intent); err != nil {
			return quote.Quote{}, err
		}
	}
	return e.quotes.Quote(ctx, intent.Pair(), intent.AmountIn)
}

// NewQuoteDebouncer returns a debouncer over this engine's quotes. Each
// caller (for example one per UI session) should own its own.
func (e *Engine) NewQuoteDebouncer(deliver func(quote.Result)) *quote.Debouncer {
	return quote.NewDebouncer(e.quotes, quote.DebouncerConfig{
		Window:  e.debounce,
		Deliver: deliver,
		Logger:  e.logger,
		Metrics: e.metrics,
	})
}

// BuildSwap quotes intent and returns the unsigned transaction for holder.
func (e *Engine) BuildSwap(ctx context.Context, holder solana.PublicKey, intent SwapIntent) (*UnsignedSwap, error) {
	if err := ValidateIntent(intent); err != nil {
		return nil, err
	}
	q, err := e.quotes.Quote(ctx, intent.Pair(), intent.AmountIn)
	if err != nil {
		return nil, err
	}
	return e.executor.BuildSwap(ctx, holder, intent, q)
}

func (e *Engine) SubmitSwap(ctx context.Context, holder solana.PublicKey, intent SwapIntent, signed *solana.Transaction) (*SwapOutcome, error) {
	return e.executor.Submit(ctx, holder, intent, signed)
}

// ExecuteSwap quotes, builds, signs and submits intent with signer.
func (e *Engine) ExecuteSwap(ctx context.Context, signer Signer, intent SwapIntent) (*SwapOutcome, error) {
	if err := ValidateIntent(intent); err != nil {
		return nil, err
	}
	q, err := e.quotes.Quote(ctx, intent.Pair(), intent.AmountIn)
	if err != nil {
		return nil, err
	}
	return e.executor.Execute(ctx, signer, intent, q)
}

// GetBalances starts tracking holder and returns a fresh snapshot. With no
// tokens the configured tracked tokens are used; the base token is always
// included.
func (e *Engine) GetBalances(ctx context.Context, holder solana.PublicKey, tokens ...balance.Token) (balance.Balances, error) {
	if len(tokens) == 0 {
		tokens = e.tokens
	}
	bals, err := e.tracker.GetBalances(ctx, holder, tokens)
	if err != nil {
		return nil, err
	}
	e.watch(holder, tokens)
	return bals, nil
}

// RefreshBalances re-reads holder's balances. If a refresh is already
// running the current snapshot is returned.
func (e *Engine) RefreshBalances(ctx context.Context, holder solana.PublicKey) (balance.Balances, error) {
	if _, _, ok := e.tracker.Balances(holder); !ok {
		return e.GetBalances(ctx, holder)
	}
	bals, err := e.tracker.Refresh(ctx, holder)
	if errors.Is(err, balance.ErrRefreshInFlight) && bals != nil {
		return bals, nil
	}
	return bals, err
}

// CachedBalances returns the last snapshot without touching the network.
func (e *Engine) CachedBalances(holder solana.PublicKey) (balance.Balances, time.Time, bool) {
	return e.tracker.Balances(holder)
}

func (e *Engine) watch(holder solana.PublicKey, tokens []balance.Token) {
	if e.watcher == nil {
		return
	}
	all := append([]balance.Token{e.base}, tokens...)
	accounts := make([]solana.PublicKey, 0, len(all))
	for _, t := range all {
		ata, _, err := amm.FindAssociatedTokenAddress(holder, t.Mint)
		if err != nil {
			continue
		}
		accounts = append(accounts, ata)
	}
	e.watcher.Watch(holder, accounts...)
}

// RecentSwaps returns journaled swaps for holder, newest first.
func (e *Engine) RecentSwaps(ctx context.Context, holder solana.PublicKey, limit int) ([]*models.SwapRecord, error) {
	if e.journal == nil {
		return nil, fmt.Errorf("swap journal: %w", ErrNotConfigured)
	}
	return e.journal.RecentSwaps(ctx, holder.String(), limit)
}

func (e *Engine) HaltTrading(ctx context.Context, reason string) (*flags.Flag, error) {
	if e.flags == nil {
		return nil, fmt.Errorf("trading halt switch: %w", ErrNotConfigured)
	}
	return e.flags.Halt(ctx, reason)
}

func (e *Engine) ResumeTrading(ctx context.Context) (*flags.Flag, error) {
	if e.flags == nil {
		return nil, fmt.Errorf("trading halt switch: %w", ErrNotConfigured)
	}
	return e.flags.Resume(ctx)
}

// Flags lists every operator flag, the halt switch included.
func (e *Engine) Flags(ctx context.Context) ([]*flags.Flag, error) {
	if e.flags == nil {
		return nil, fmt.Errorf("operator flags: %w", ErrNotConfigured)
	}
	return e.flags.List(ctx)
}

// DeleteFlag removes an operator flag. Deleting the halt switch reopens trading.
func (e *Engine) DeleteFlag(ctx context.Context, key string) error {
	if e.flags == nil {
		return fmt.Errorf("operator flags: %w", ErrNotConfigured)
	}
	return e.flags.Delete(ctx, key)
}

// TradingHalted reports the halt switch; without one, trading is always open.
func (e *Engine) TradingHalted(ctx context.Context) (bool, string, error) {
	if e.flags == nil {
		return false, "", nil
	}
	return e.flags.Halted(ctx)
}

// Run drives the balance tracker, the account watcher and the refresh relay
// until ctx is done or one of them fails.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.tracker.Run(ctx) })
	if e.watcher != nil {
		g.Go(func() error { return e.watcher.Run(ctx) })
	}
	for _, run := range e.runners {
		g.Go(func() error { return run(ctx) })
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases every backend connection.
func (e *Engine) Close() error {
	return closeAll(e.closers)
}

func closeAll(closers []closer) error {
	var errs []error
	for _, c := range closers {
		if err := c.fn(); err != nil {
			errs = append(errs, fmt.Errorf("%s close: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}
