package amm

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePool(t *testing.T) {
	program := solana.NewWallet().PublicKey()
	address := solana.NewWallet().PublicKey()
	ammAddr := solana.NewWallet().PublicKey()
	mintA := solana.NewWallet().PublicKey()
	mintB := solana.NewWallet().PublicKey()

	pool, err := DecodePool(program, address, EncodePool(ammAddr, mintA, mintB))
	require.NoError(t, err)

	assert.Equal(t, address, pool.Address)
	assert.Equal(t, ammAddr, pool.Amm)
	assert.Equal(t, mintA, pool.MintA)
	assert.Equal(t, mintB, pool.MintB)

	authority, _, err := FindPoolAuthority(program, ammAddr, mintA, mintB)
	require.NoError(t, err)
	assert.Equal(t, authority, pool.Authority)

	reserveA, _, err := FindAssociatedTokenAddress(authority, mintA)
	require.NoError(t, err)
	assert.Equal(t, reserveA, pool.ReserveA)
	assert.NotEqual(t, pool.ReserveA, pool.ReserveB)
}

func TestDecodePool_RejectsShortBuffer(t *testing.T) {
	data := EncodePool(solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey())

	_, err := DecodePool(solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), data[:103])
	assert.ErrorIs(t, err, ErrInvalidLayout)
}

func TestDecodePool_RejectsIdenticalMints(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	data := EncodePool(solana.NewWallet().PublicKey(), mint, mint)

	_, err := DecodePool(solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), data)
	assert.ErrorIs(t, err, ErrInvalidLayout)
}

func TestDecodeTokenAccount(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	owner := solana.NewWallet().PublicKey()

	acct, err := DecodeTokenAccount(EncodeTokenAccount(mint, owner, 123_456_789))
	require.NoError(t, err)
	assert.Equal(t, mint, acct.Mint)
	assert.Equal(t, owner, acct.Owner)
	assert.Equal(t, uint64(123_456_789), acct.Amount)

	_, err = DecodeTokenAccount(make([]byte, 71))
	assert.ErrorIs(t, err, ErrInvalidLayout)

	amount, err := TokenAmount(nil)
	require.NoError(t, err)
	assert.Zero(t, amount, "absent account reads as zero")
}

func TestPool_DirectionAndMatches(t *testing.T) {
	a := solana.NewWallet().PublicKey()
	b := solana.NewWallet().PublicKey()
	c := solana.NewWallet().PublicKey()
	pool := Pool{MintA: a, MintB: b}

	aToB, err := pool.Direction(a)
	require.NoError(t, err)
	assert.True(t, aToB)

	aToB, err = pool.Direction(b)
	require.NoError(t, err)
	assert.False(t, aToB)

	_, err = pool.Direction(c)
	assert.Error(t, err)

	assert.True(t, pool.Matches(a, b))
	assert.True(t, pool.Matches(b, a))
	assert.False(t, pool.Matches(a, c))
	assert.Equal(t, b, pool.Other(a))
}
