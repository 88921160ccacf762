package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aman-zulfiqar/solana-amm-client/internal/constants"
	"github.com/shopspring/decimal"
)

// TokenSpec is a tracked token as configured: SYMBOL:MINT:DECIMALS.
type TokenSpec struct {
	Symbol   string
	Mint     string
	Decimals uint8
}

type Config struct {
	// RPC settings
	RPCUrl       string
	WSUrl        string
	Commitment   string
	HTTPTimeout  time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	RPCRateLimit float64
	RPCBurst     int

	// AMM settings
	ProgramID    string
	PoolTieBreak string

	// Tokens
	BaseToken     TokenSpec
	TrackedTokens []TokenSpec
	// malformed TRACKED_TOKENS entries, reported by Validate
	badTokens []string

	// Swap settings
	SlippageTolerance     decimal.Decimal
	MinFeeReserveLamports uint64
	ConfirmTimeout        time.Duration
	ConfirmMaxPolls       int
	ConfirmFallbackDelay  time.Duration

	// Balance / quote timing
	BalancePollInterval time.Duration
	QuoteDebounce       time.Duration

	// Redis settings
	RedisAddr      string
	RefreshChannel string

	// ClickHouse settings
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string

	// API settings
	APIAddr        string
	APIKey         string
	DevMode        bool
	QuoteRateLimit float64

	LogLevel string
}

func Load() *Config {
	tracked, badTokens := parseTokens(getEnv("TRACKED_TOKENS", ""))
	tolerance, err := decimal.NewFromString(getEnv("SLIPPAGE_TOLERANCE", constants.DefaultSlippageTolerance))
	if err != nil {
		tolerance = decimal.RequireFromString(constants.DefaultSlippageTolerance)
	}

	return &Config{
		// RPC
		RPCUrl:       getEnv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
		WSUrl:        getEnv("SOLANA_WS_URL", "wss://api.mainnet-beta.solana.com"),
		Commitment:   getEnv("COMMITMENT", "confirmed"),
		HTTPTimeout:  getDurationEnv("HTTP_TIMEOUT", 30*time.Second),
		MaxRetries:   getIntEnv("MAX_RETRIES", 5),
		RetryBackoff: getDurationEnv("RETRY_BACKOFF", 500*time.Millisecond),
		RPCRateLimit: getFloatEnv("RPC_RATE_LIMIT", 10),
		RPCBurst:     getIntEnv("RPC_BURST", 5),

		// AMM
		ProgramID:    getEnv("AMM_PROGRAM_ID", ""),
		PoolTieBreak: getEnv("POOL_TIE_BREAK", constants.TieBreakFirstFound),

		// Tokens
		BaseToken: TokenSpec{
			Symbol:   getEnv("BASE_TOKEN_SYMBOL", "BASE"),
			Mint:     getEnv("BASE_TOKEN_MINT", ""),
			Decimals: uint8(getIntEnv("BASE_TOKEN_DECIMALS", 9)),
		},
		TrackedTokens: tracked,
		badTokens:     badTokens,

		// Swap
		SlippageTolerance:     tolerance,
		MinFeeReserveLamports: uint64(getIntEnv("MIN_FEE_RESERVE_LAMPORTS", constants.DefaultMinFeeReserve)),
		ConfirmTimeout:        getDurationEnv("CONFIRM_TIMEOUT", constants.DefaultConfirmTimeout),
		ConfirmMaxPolls:       getIntEnv("CONFIRM_MAX_POLLS", constants.DefaultConfirmMaxPolls),
		ConfirmFallbackDelay:  getDurationEnv("CONFIRM_FALLBACK_DELAY", constants.DefaultConfirmFallbackDelay),

		// Timing
		BalancePollInterval: getDurationEnv("BALANCE_POLL_INTERVAL", constants.DefaultBalancePollInterval),
		QuoteDebounce:       getDurationEnv("QUOTE_DEBOUNCE", constants.DefaultQuoteDebounce),

		// Redis
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RefreshChannel: getEnv("REFRESH_CHANNEL", constants.PubSubChannelRefresh),

		// ClickHouse
		ClickHouseAddr:     getEnv("CLICKHOUSE_ADDR", ""),
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "solana"),
		ClickHouseUsername: getEnv("CLICKHOUSE_USERNAME", "default"),
		ClickHousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),

		// API
		APIAddr:        getEnv("API_ADDR", ":8080"),
		APIKey:         getEnv("API_KEY", ""),
		DevMode:        getBoolEnv("DEV_MODE", false),
		QuoteRateLimit: getFloatEnv("QUOTE_RATE_LIMIT", 20),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate checks the settings every component depends on.
func (c *Config) Validate() error {
	if c.RPCUrl == "" {
		return fmt.Errorf("SOLANA_RPC_URL is required")
	}
	if c.ProgramID == "" {
		return fmt.Errorf("AMM_PROGRAM_ID is required")
	}
	if c.BaseToken.Mint == "" {
		return fmt.Errorf("BASE_TOKEN_MINT is required")
	}
	if !c.SlippageTolerance.IsPositive() || c.SlippageTolerance.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("SLIPPAGE_TOLERANCE must be in (0, 1], got %s", c.SlippageTolerance)
	}
	switch c.PoolTieBreak {
	case constants.TieBreakFirstFound, constants.TieBreakHighestLiquidity:
	default:
		return fmt.Errorf("unknown POOL_TIE_BREAK %q", c.PoolTieBreak)
	}
	if c.ConfirmMaxPolls <= 0 {
		return fmt.Errorf("CONFIRM_MAX_POLLS must be positive")
	}
	return c.validateTokens()
}

func (c *Config) validateTokens() error {
	if len(c.badTokens) > 0 {
		return fmt.Errorf("malformed TRACKED_TOKENS entries %q, want SYMBOL:MINT:DECIMALS", c.badTokens)
	}
	symbols := make(map[string]bool, len(c.TrackedTokens)+1)
	mints := make(map[string]bool, len(c.TrackedTokens)+1)
	for _, t := range append([]TokenSpec{c.BaseToken}, c.TrackedTokens...) {
		sym := strings.ToUpper(t.Symbol)
		if symbols[sym] {
			return fmt.Errorf("token symbol %q is configured more than once", t.Symbol)
		}
		if mints[t.Mint] {
			return fmt.Errorf("token mint %s is configured more than once", t.Mint)
		}
		symbols[sym], mints[t.Mint] = true, true
	}
	return nil
}

// parseTokens reads "SYM:MINT:DECIMALS,SYM:MINT:DECIMALS" and returns the
// well-formed specs along with the entries it could not read.
func parseTokens(raw string) ([]TokenSpec, []string) {
	var (
		out []TokenSpec
		bad []string
	)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ":")
		if len(fields) != 3 {
			bad = append(bad, part)
			continue
		}
		sym, mint := strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1])
		dec, err := strconv.ParseUint(strings.TrimSpace(fields[2]), 10, 8)
		if err != nil || sym == "" || mint == "" {
			bad = append(bad, part)
			continue
		}
		out = append(out, TokenSpec{Symbol: sym, Mint: mint, Decimals: uint8(dec)})
	}
	return out, bad
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloatEnv(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
