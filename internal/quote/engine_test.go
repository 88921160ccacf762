package quote

import (
	"context"
	"io"
	"testing"

	"github.com/aman-zulfiqar/solana-amm-client/internal/amm"
	"github.com/aman-zulfiqar/solana-amm-client/internal/ledger"
	"github.com/aman-zulfiqar/solana-amm-client/internal/ledger/ledgertest"
	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type market struct {
	gw       *ledgertest.Gateway
	registry *amm.Registry
	pool     amm.Pool
	mintA    solana.PublicKey
	mintB    solana.PublicKey
}

func newMarket(t *testing.T, reserveA, reserveB uint64) *market {
	t.Helper()
	gw := ledgertest.New()
	program := solana.NewWallet().PublicKey()
	ammAddr := solana.NewWallet().PublicKey()
	mintA, mintB := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()

	addr := solana.NewWallet().PublicKey()
	data := amm.EncodePool(ammAddr, mintA, mintB)
	gw.SetAccount(addr, program, data)

	pool, err := amm.DecodePool(program, addr, data)
	require.NoError(t, err)
	gw.SetAccount(pool.ReserveA, amm.TokenProgramID, amm.EncodeTokenAccount(mintA, pool.Authority, reserveA))
	gw.SetAccount(pool.ReserveB, amm.TokenProgramID, amm.EncodeTokenAccount(mintB, pool.Authority, reserveB))

	reg := amm.NewRegistry(gw, amm.RegistryConfig{ProgramID: program, Logger: quietLogger()})
	return &market{gw: gw, registry: reg, pool: pool, mintA: mintA, mintB: mintB}
}

func TestQuote_Scenario(t *testing.T) {
	m := newMarket(t, 1_000_000, 500_000)
	e := NewEngine(m.registry, m.gw, quietLogger(), nil)

	q, err := e.Quote(context.Background(), Pair{From: m.mintA, To: m.mintB}, 10_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(4950), q.AmountOut)
	assert.True(t, q.AToB)
	assert.Equal(t, uint64(1_000_000), q.ReserveIn)
	assert.Equal(t, uint64(500_000), q.ReserveOut)
	assert.Equal(t, m.pool.Address, q.Pool.Address)
}

func TestQuote_ReverseDirection(t *testing.T) {
	m := newMarket(t, 1_000_000, 500_000)
	e := NewEngine(m.registry, m.gw, quietLogger(), nil)

	q, err := e.Quote(context.Background(), Pair{From: m.mintB, To: m.mintA}, 10_000)
	require.NoError(t, err)
	assert.False(t, q.AToB)
	// 10_000 * 1_000_000 / 510_000
	assert.Equal(t, uint64(19_607), q.AmountOut)
}

func TestQuote_ZeroAmountSkipsNetwork(t *testing.T) {
	m := newMarket(t, 1_000_000, 500_000)
	e := NewEngine(m.registry, m.gw, quietLogger(), nil)

	q, err := e.Quote(context.Background(), Pair{From: m.mintA, To: m.mintB}, 0)
	require.NoError(t, err)
	assert.True(t, q.IsZero())
	assert.Zero(t, m.gw.ScanCalls.Load())
	assert.Zero(t, m.gw.BatchCalls.Load())
}

func TestQuote_PoolNotFound(t *testing.T) {
	m := newMarket(t, 1_000_000, 500_000)
	e := NewEngine(m.registry, m.gw, quietLogger(), nil)

	_, err := e.Quote(context.Background(), Pair{From: m.mintA, To: solana.NewWallet().PublicKey()}, 10)
	assert.ErrorIs(t, err, amm.ErrPoolNotFound)
}

func TestQuote_EmptyReserve(t *testing.T) {
	m := newMarket(t, 1_000_000, 0)
	e := NewEngine(m.registry, m.gw, quietLogger(), nil)

	q, err := e.Quote(context.Background(), Pair{From: m.mintA, To: m.mintB}, 10_000)
	require.NoError(t, err)
	assert.Zero(t, q.AmountOut)
}

func TestQuote_GatewayDown(t *testing.T) {
	m := newMarket(t, 1_000_000, 500_000)
	e := NewEngine(m.registry, m.gw, quietLogger(), nil)
	_, err := m.registry.Discover(context.Background())
	require.NoError(t, err)

	m.gw.Err = ledger.ErrGatewayUnavailable
	_, err = e.Quote(context.Background(), Pair{From: m.mintA, To: m.mintB}, 10_000)
	assert.ErrorIs(t, err, ledger.ErrGatewayUnavailable)
}

func TestQuote_Presentation(t *testing.T) {
	q := Quote{AmountIn: 2_000_000, AmountOut: 1_000_000_000, ReserveIn: 10, ReserveOut: 10}
	assert.Equal(t, "0.5", q.EffectivePrice(6, 9).String())
	assert.Zero(t, Quote{}.EffectivePrice(6, 9).IntPart())
}
