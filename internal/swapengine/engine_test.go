package swapengine

import (
	"context"
	"testing"
	"time"

	"github.com/aman-zulfiqar/solana-amm-client/internal/amm"
	"github.com/aman-zulfiqar/solana-amm-client/internal/balance"
	"github.com/aman-zulfiqar/solana-amm-client/internal/constants"
	"github.com/aman-zulfiqar/solana-amm-client/internal/ledger/ledgertest"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	gw     *ledgertest.Gateway
	engine *Engine
	base   balance.Token
	quote  balance.Token
	signer testSigner
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	gw := ledgertest.New()
	program := solana.NewWallet().PublicKey()
	base := balance.Token{Name: "BASE", Mint: solana.NewWallet().PublicKey(), Decimals: 9}
	fire := balance.Token{Name: "FIRE", Mint: solana.NewWallet().PublicKey(), Decimals: 6}

	addr := solana.NewWallet().PublicKey()
	data := amm.EncodePool(solana.NewWallet().PublicKey(), base.Mint, fire.Mint)
	gw.SetAccount(addr, program, data)
	pool, err := amm.DecodePool(program, addr, data)
	require.NoError(t, err)
	gw.SetAccount(pool.ReserveA, amm.TokenProgramID, amm.EncodeTokenAccount(base.Mint, pool.Authority, 1_000_000))
	gw.SetAccount(pool.ReserveB, amm.TokenProgramID, amm.EncodeTokenAccount(fire.Mint, pool.Authority, 500_000))

	e, err := NewEngine(gw, nil, EngineConfig{
		ProgramID:           program,
		BaseToken:           base,
		Tokens:              []balance.Token{fire},
		FallbackDelay:       time.Millisecond,
		BalancePollInterval: time.Hour,
		Logger:              quietLogger(),
	})
	require.NoError(t, err)

	f := &engineFixture{gw: gw, engine: e, base: base, quote: fire, signer: testSigner{w: solana.NewWallet()}}
	f.fund(t, base.Mint, 20_000)
	gw.SetLamports(f.signer.PublicKey(), constants.LamportsPerSOL)
	return f
}

func (f *engineFixture) fund(t *testing.T, mint solana.PublicKey, amount uint64) {
	t.Helper()
	holder := f.signer.PublicKey()
	ata, _, err := amm.FindAssociatedTokenAddress(holder, mint)
	require.NoError(t, err)
	f.gw.SetAccount(ata, amm.TokenProgramID, amm.EncodeTokenAccount(mint, holder, amount))
}

func TestEngine_QuoteAndPools(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	q, err := f.engine.GetQuote(ctx, SwapIntent{FromMint: f.base.Mint, ToMint: f.quote.Mint, AmountIn: 10_000})
	require.NoError(t, err)
	assert.Equal(t, uint64(4950), q.AmountOut)

	zero, err := f.engine.GetQuote(ctx, SwapIntent{FromMint: f.base.Mint, ToMint: f.quote.Mint})
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	pools, err := f.engine.TradablePools(ctx)
	require.NoError(t, err)
	assert.Len(t, pools, 1)

	tok, ok := f.engine.Token(f.quote.Mint)
	require.True(t, ok)
	assert.Equal(t, "FIRE", tok.Name)
	_, ok = f.engine.TokenBySymbol("BASE")
	assert.True(t, ok)
}

func TestEngine_SwapTriggersBalanceRefresh(t *testing.T) {
	f := newEngineFixture(t)
	holder := f.signer.PublicKey()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.engine.Run(ctx) }()

	bals, err := f.engine.GetBalances(ctx, holder)
	require.NoError(t, err)
	assert.Equal(t, uint64(20_000), bals["BASE"].RawAmount)
	assert.Zero(t, bals["FIRE"].RawAmount)

	// the ledger settles the swap as it is submitted
	f.gw.SubmitFn = func([]byte) (solana.Signature, error) {
		f.fund(t, f.base.Mint, 10_000)
		f.fund(t, f.quote.Mint, 4_950)
		return solana.Signature{9}, nil
	}

	out, err := f.engine.ExecuteSwap(ctx, f.signer, SwapIntent{FromMint: f.base.Mint, ToMint: f.quote.Mint, AmountIn: 10_000})
	require.NoError(t, err)
	assert.Equal(t, solana.Signature{9}, out.Signature)

	require.Eventually(t, func() bool {
		b, _, ok := f.engine.CachedBalances(holder)
		return ok && b["FIRE"].RawAmount == 4_950 && b["BASE"].RawAmount == 10_000
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestEngine_BuildSwapForExternalSigner(t *testing.T) {
	f := newEngineFixture(t)
	holder := f.signer.PublicKey()
	intent := SwapIntent{FromMint: f.base.Mint, ToMint: f.quote.Mint, AmountIn: 10_000}

	us, err := f.engine.BuildSwap(context.Background(), holder, intent)
	require.NoError(t, err)
	require.NoError(t, f.signer.SignTransaction(context.Background(), us.Tx))

	out, err := f.engine.SubmitSwap(context.Background(), holder, intent, us.Tx)
	require.NoError(t, err)
	assert.Equal(t, us.MinAmountOut, out.MinAmountOut)
}

func TestEngine_OptionalBackends(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	_, err := f.engine.RecentSwaps(ctx, f.signer.PublicKey(), 10)
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = f.engine.HaltTrading(ctx, "x")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = f.engine.Flags(ctx)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, f.engine.DeleteFlag(ctx, "x"), ErrNotConfigured)

	halted, _, err := f.engine.TradingHalted(ctx)
	require.NoError(t, err)
	assert.False(t, halted)
	assert.NoError(t, f.engine.Close())
}

func TestNewEngine_RequiresIdentity(t *testing.T) {
	gw := ledgertest.New()
	_, err := NewEngine(gw, nil, EngineConfig{BaseToken: balance.Token{Mint: solana.NewWallet().PublicKey()}})
	assert.Error(t, err)
	_, err = NewEngine(gw, nil, EngineConfig{ProgramID: solana.NewWallet().PublicKey()})
	assert.Error(t, err)
	_, err = NewEngine(gw, nil, EngineConfig{
		ProgramID: solana.NewWallet().PublicKey(),
		BaseToken: balance.Token{Mint: solana.NewWallet().PublicKey()},
		TieBreak:  "random",
	})
	assert.Error(t, err)
}

func TestEngine_GetBalancesDuringFirstRefreshReturnsSnapshot(t *testing.T) {
	f := newEngineFixture(t)
	holder := f.signer.PublicKey()
	batches := f.gw.BatchCalls.Load()
	release := make(chan struct{})
	entered := make(chan struct{}, 4)
	f.gw.BeforeBatch = func() {
		entered <- struct{}{}
		<-release
	}

	type result struct {
		bals balance.Balances
		err  error
	}
	results := make(chan result, 2)
	call := func() {
		bals, err := f.engine.GetBalances(context.Background(), holder)
		results <- result{bals, err}
	}
	go call()
	<-entered
	go call()

	time.Sleep(50 * time.Millisecond)
	close(release)

	for range 2 {
		res := <-results
		require.NoError(t, res.err)
		require.NotNil(t, res.bals)
		assert.Equal(t, uint64(20_000), res.bals["BASE"].RawAmount)
	}
	assert.Equal(t, batches+1, f.gw.BatchCalls.Load())
}

func TestEngine_GetBalancesForExplicitTokens(t *testing.T) {
	f := newEngineFixture(t)
	holder := f.signer.PublicKey()
	water := balance.Token{Name: "WATER", Mint: solana.NewWallet().PublicKey(), Decimals: 6}
	f.fund(t, water.Mint, 33)

	bals, err := f.engine.GetBalances(context.Background(), holder, water)
	require.NoError(t, err)
	assert.Equal(t, uint64(33), bals["WATER"].RawAmount)
	assert.Equal(t, uint64(20_000), bals["BASE"].RawAmount)
	_, tracked := bals["FIRE"]
	assert.False(t, tracked)

	bals, err = f.engine.GetBalances(context.Background(), holder)
	require.NoError(t, err)
	assert.Contains(t, bals, "FIRE")
	assert.NotContains(t, bals, "WATER")
}
