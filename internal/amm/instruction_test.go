package amm

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPool(t *testing.T) Pool {
	t.Helper()
	pool, err := DecodePool(
		solana.NewWallet().PublicKey(),
		solana.NewWallet().PublicKey(),
		EncodePool(solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()),
	)
	require.NoError(t, err)
	return pool
}

func TestSwapArgs_Encode(t *testing.T) {
	data, err := SwapArgs{AToB: true, AmountIn: 10_000, MinAmountOut: 4851}.Encode()
	require.NoError(t, err)
	require.Len(t, data, 25)

	sum := sha256.Sum256([]byte("global:swap"))
	assert.Equal(t, sum[:8], data[:8])
	assert.Equal(t, byte(1), data[8])
	assert.Equal(t, uint64(10_000), binary.LittleEndian.Uint64(data[9:17]))
	assert.Equal(t, uint64(4851), binary.LittleEndian.Uint64(data[17:25]))

	args, err := DecodeSwapArgs(data)
	require.NoError(t, err)
	assert.Equal(t, SwapArgs{AToB: true, AmountIn: 10_000, MinAmountOut: 4851}, args)
}

func TestDecodeSwapArgs_Rejects(t *testing.T) {
	_, err := DecodeSwapArgs(make([]byte, 24))
	assert.ErrorIs(t, err, ErrInvalidLayout)

	_, err = DecodeSwapArgs(make([]byte, 25))
	assert.ErrorIs(t, err, ErrInvalidLayout, "zero discriminator is not a swap")
}

func TestBuildSwapInstruction_AccountOrder(t *testing.T) {
	pool := testPool(t)
	trader := solana.NewWallet().PublicKey()
	traderA := solana.NewWallet().PublicKey()
	traderB := solana.NewWallet().PublicKey()

	ix, err := BuildSwapInstruction(pool, trader, traderA, traderB, SwapArgs{AToB: false, AmountIn: 5, MinAmountOut: 1})
	require.NoError(t, err)
	assert.Equal(t, pool.ProgramID, ix.ProgramID())

	accounts := ix.Accounts()
	require.Len(t, accounts, 14)

	want := []struct {
		key      solana.PublicKey
		writable bool
		signer   bool
	}{
		{pool.Amm, false, false},
		{pool.Address, false, false},
		{pool.Authority, false, false},
		{trader, false, true},
		{pool.MintA, false, false},
		{pool.MintB, false, false},
		{pool.ReserveA, true, false},
		{pool.ReserveB, true, false},
		{traderA, true, false},
		{traderB, true, false},
		{trader, true, true},
		{TokenProgramID, false, false},
		{AssociatedTokenProgramID, false, false},
		{SystemProgramID, false, false},
	}
	for i, w := range want {
		assert.Equal(t, w.key, accounts[i].PublicKey, "account %d", i)
		assert.Equal(t, w.writable, accounts[i].IsWritable, "account %d writable", i)
		assert.Equal(t, w.signer, accounts[i].IsSigner, "account %d signer", i)
	}

	data, err := ix.Data()
	require.NoError(t, err)
	args, err := DecodeSwapArgs(data)
	require.NoError(t, err)
	assert.False(t, args.AToB)
}

func TestCreateAssociatedTokenAccount(t *testing.T) {
	payer, mint := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	ix, ata, err := CreateAssociatedTokenAccount(payer, payer, mint)
	require.NoError(t, err)

	want, _, err := FindAssociatedTokenAddress(payer, mint)
	require.NoError(t, err)
	assert.Equal(t, want, ata)
	assert.Equal(t, AssociatedTokenProgramID, ix.ProgramID())

	data, err := ix.Data()
	require.NoError(t, err)
	assert.Empty(t, data)

	accts := ix.Accounts()
	require.Len(t, accts, 7)
	assert.True(t, accts[0].IsSigner && accts[0].IsWritable)
	assert.Equal(t, ata, accts[1].PublicKey)
	assert.True(t, accts[1].IsWritable)
	assert.Equal(t, mint, accts[3].PublicKey)
	assert.False(t, accts[3].IsWritable)
}
