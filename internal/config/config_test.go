package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AMM_PROGRAM_ID", "")
	t.Setenv("SLIPPAGE_TOLERANCE", "")

	cfg := Load()
	assert.Equal(t, "first-found", cfg.PoolTieBreak)
	assert.True(t, cfg.SlippageTolerance.Equal(decimal.RequireFromString("0.98")))
	assert.Equal(t, 500*time.Millisecond, cfg.QuoteDebounce)
	assert.Equal(t, "confirmed", cfg.Commitment)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("AMM_PROGRAM_ID", "Prog111")
	t.Setenv("BASE_TOKEN_MINT", "Base111")
	t.Setenv("SLIPPAGE_TOLERANCE", "0.95")
	t.Setenv("TRACKED_TOKENS", "FIRE:Mint111:6, WATER:Mint222:9")
	t.Setenv("BALANCE_POLL_INTERVAL", "3s")

	cfg := Load()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.SlippageTolerance.Equal(decimal.RequireFromString("0.95")))
	assert.Equal(t, 3*time.Second, cfg.BalancePollInterval)
	require.Len(t, cfg.TrackedTokens, 2)
	assert.Equal(t, TokenSpec{Symbol: "FIRE", Mint: "Mint111", Decimals: 6}, cfg.TrackedTokens[0])
	assert.Equal(t, TokenSpec{Symbol: "WATER", Mint: "Mint222", Decimals: 9}, cfg.TrackedTokens[1])
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			RPCUrl:            "http://localhost:8899",
			ProgramID:         "Prog111",
			BaseToken:         TokenSpec{Mint: "Base111"},
			SlippageTolerance: decimal.RequireFromString("0.98"),
			PoolTieBreak:      "first-found",
			ConfirmMaxPolls:   3,
		}
	}

	require.NoError(t, base().Validate())

	c := base()
	c.ProgramID = ""
	assert.Error(t, c.Validate())

	c = base()
	c.SlippageTolerance = decimal.RequireFromString("1.01")
	assert.Error(t, c.Validate())

	c = base()
	c.SlippageTolerance = decimal.Zero
	assert.Error(t, c.Validate())

	c = base()
	c.PoolTieBreak = "random"
	assert.Error(t, c.Validate())

	c = base()
	c.TrackedTokens = []TokenSpec{{Symbol: "FIRE", Mint: "Mint111"}, {Symbol: "fire", Mint: "Mint222"}}
	assert.ErrorContains(t, c.Validate(), "symbol")

	c = base()
	c.BaseToken.Symbol = "BASE"
	c.TrackedTokens = []TokenSpec{{Symbol: "BASE", Mint: "Mint111"}}
	assert.ErrorContains(t, c.Validate(), "symbol")

	c = base()
	c.BaseToken.Symbol = "BASE"
	c.TrackedTokens = []TokenSpec{{Symbol: "FIRE", Mint: "Base111"}}
	assert.ErrorContains(t, c.Validate(), "mint")
}

func TestParseTokens(t *testing.T) {
	specs, bad := parseTokens(" FIRE:Mint111:6,,WATER : Mint222 : 9 ")
	assert.Empty(t, bad)
	assert.Equal(t, []TokenSpec{
		{Symbol: "FIRE", Mint: "Mint111", Decimals: 6},
		{Symbol: "WATER", Mint: "Mint222", Decimals: 9},
	}, specs)

	specs, bad = parseTokens("FIRE:Mint111:6,broken,BAD:Mint333:x,:Mint444:6,BIG:Mint555:300")
	assert.Len(t, specs, 1)
	assert.Equal(t, []string{"broken", "BAD:Mint333:x", ":Mint444:6", "BIG:Mint555:300"}, bad)

	specs, bad = parseTokens("")
	assert.Empty(t, specs)
	assert.Empty(t, bad)
}

func TestLoad_RejectsMalformedTrackedTokens(t *testing.T) {
	t.Setenv("AMM_PROGRAM_ID", "Prog111")
	t.Setenv("BASE_TOKEN_MINT", "Base111")
	t.Setenv("SLIPPAGE_TOLERANCE", "")
	t.Setenv("TRACKED_TOKENS", "FIRE:Mint111:6,broken")

	cfg := Load()
	assert.Len(t, cfg.TrackedTokens, 1)
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}
