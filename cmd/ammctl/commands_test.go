package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/aman-zulfiqar/solana-amm-client/internal/balance"
	"github.com/aman-zulfiqar/solana-amm-client/internal/flags"
	"github.com/aman-zulfiqar/solana-amm-client/internal/swapengine"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens []balance.Token

func (s staticTokens) Token(mint solana.PublicKey) (balance.Token, bool) {
	for _, t := range s {
		if t.Mint.Equals(mint) {
			return t, true
		}
	}
	return balance.Token{}, false
}

func (s staticTokens) TokenBySymbol(symbol string) (balance.Token, bool) {
	for _, t := range s {
		if t.Name == symbol {
			return t, true
		}
	}
	return balance.Token{}, false
}

func TestParseIntent(t *testing.T) {
	sol := balance.Token{Name: "SOL", Mint: solana.NewWallet().PublicKey(), Decimals: 9}
	fire := balance.Token{Name: "FIRE", Mint: solana.NewWallet().PublicKey(), Decimals: 6}
	toks := staticTokens{sol, fire}

	intent, src, dst, err := parseIntent(toks, "sol", fire.Mint.String(), "0.25", false)
	require.NoError(t, err)
	assert.Equal(t, uint64(250_000_000), intent.AmountIn)
	assert.Equal(t, "SOL", src.Name)
	assert.Equal(t, "FIRE", dst.Name)

	intent, _, _, err = parseIntent(toks, "FIRE", "SOL", "1500000", true)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000), intent.AmountIn)

	stranger := solana.NewWallet().PublicKey()
	_, src, _, err = parseIntent(toks, stranger.String(), "SOL", "7", true)
	require.NoError(t, err)
	assert.Equal(t, stranger, src.Mint)
	assert.Zero(t, src.Decimals)

	_, _, _, err = parseIntent(toks, "SOL", "SOL", "1", false)
	assert.ErrorIs(t, err, swapengine.ErrInvalidIntent)
	_, _, _, err = parseIntent(toks, "SOL", "FIRE", "0.0000000001", false)
	assert.ErrorIs(t, err, swapengine.ErrInvalidIntent)
	_, _, _, err = parseIntent(toks, "SOL", "FIRE", "1.5", true)
	assert.Error(t, err)
	_, _, _, err = parseIntent(toks, "WATER", "FIRE", "1", false)
	assert.Error(t, err)
}

func TestConfirm(t *testing.T) {
	var out bytes.Buffer
	assert.True(t, confirm(strings.NewReader("y\n"), &out))
	assert.True(t, confirm(strings.NewReader("YES\n"), &out))
	assert.False(t, confirm(strings.NewReader("\n"), &out))
	assert.False(t, confirm(strings.NewReader(""), &out))
	assert.Contains(t, out.String(), "proceed?")
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"pools", "quote", "balances", "swap", "recent", "halt", "resume", "flags"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
	cmd, _, err := root.Find([]string{"flags", "delete"})
	require.NoError(t, err)
	assert.Equal(t, "delete", cmd.Name())
}

func TestPrintFlags(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var out bytes.Buffer
	printFlags(&out, []*flags.Flag{
		{Key: "trading.halt", Value: true, Reason: "migration", UpdatedAt: at},
		{Key: "beta.quotes", UpdatedAt: at},
	})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "KEY"))
	assert.True(t, strings.HasPrefix(lines[1], "beta.quotes"))
	assert.Contains(t, lines[2], "true")
	assert.Contains(t, lines[2], "2026-03-01T12:00:00Z")
	assert.Contains(t, lines[2], "migration")
}

func TestBalanceOrder(t *testing.T) {
	configured := []balance.Token{{Name: "SOL"}, {Name: "FIRE"}, {Name: "WATER"}}
	bals := balance.Balances{
		"zeta": {Name: "zeta"},
		"FIRE": {Name: "FIRE"},
		"SOL":  {Name: "SOL"},
		"AIR":  {Name: "AIR"},
	}
	assert.Equal(t, []string{"SOL", "FIRE", "AIR", "zeta"}, balanceOrder(configured, bals))
	assert.Empty(t, balanceOrder(configured, nil))
}
