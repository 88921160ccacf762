package constants

import "time"

// Pool account layout
const (
	PoolDiscriminatorSize = 8
	PoolAmmOffset         = 8
	PoolMintAOffset       = 40
	PoolMintBOffset       = 72
	PoolAccountSize       = 104
)

// SPL token account layout
const (
	TokenAccountMintOffset   = 0
	TokenAccountOwnerOffset  = 32
	TokenAccountAmountOffset = 64
	TokenAccountMinSize      = 72
)

// PDA seeds
const (
	SeedAuthority = "authority"
)

// Instruction names hashed into Anchor discriminators.
const (
	IxSwap = "swap"
)

// Program addresses
const (
	AssociatedTokenProgram = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
	TokenProgram           = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	SystemProgram          = "11111111111111111111111111111111"
)

// Redis keys and channels
const (
	RedisFlagPrefix       = "amm:flags:"
	RedisFlagIndex        = "amm:flags:index"
	FlagTradingHalt       = "trading.halt"
	PubSubChannelRefresh  = "amm:balances:refresh"
	MaxAccountsPerRequest = 100
)

// Defaults
const (
	DefaultQuoteDebounce        = 500 * time.Millisecond
	DefaultBalancePollInterval  = 15 * time.Second
	DefaultConfirmTimeout       = 30 * time.Second
	DefaultConfirmMaxPolls      = 12
	DefaultConfirmFallbackDelay = 2 * time.Second
	DefaultSlippageTolerance    = "0.98"
	DefaultMinFeeReserve        = 5_000_000 // 0.005 SOL
	LamportsPerSOL              = 1_000_000_000
)

// Bus event sources
const (
	SourceSwap          = "swap"
	SourceAccountWatch  = "account-watch"
	SourceRelay         = "relay"
	SourceManualRefresh = "manual"
)

// Well-known mints to symbols, used for display when a tracked token has no configured name.
var TokenSymbols = map[string]string{
	"So11111111111111111111111111111111111111112":  "SOL",
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": "USDC",
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB": "USDT",
	"mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So":  "mSOL",
	"DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263": "BONK",
	"JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN":  "JUP",
}

// Pool tie-break strategies
const (
	TieBreakFirstFound       = "first-found"
	TieBreakHighestLiquidity = "highest-liquidity"
)
