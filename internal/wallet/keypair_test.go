package wallet

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoTx(t *testing.T, payer solana.PublicKey) *solana.Transaction {
	t.Helper()
	ix := solana.NewInstruction(solana.MemoProgramID, solana.AccountMetaSlice{
		{PublicKey: payer, IsSigner: true, IsWritable: true},
	}, []byte("hi"))
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{9}, solana.TransactionPayer(payer))
	require.NoError(t, err)
	return tx
}

func TestNewKeypairSigner_Formats(t *testing.T) {
	w := solana.NewWallet()

	fromB58, err := NewKeypairSigner(base58.Encode(w.PrivateKey))
	require.NoError(t, err)
	assert.Equal(t, w.PublicKey(), fromB58.PublicKey())

	ints := make([]int, len(w.PrivateKey))
	for i, b := range w.PrivateKey {
		ints[i] = int(b)
	}
	raw, err := json.Marshal(ints)
	require.NoError(t, err)
	fromJSON, err := NewKeypairSigner(" " + string(raw) + "\n")
	require.NoError(t, err)
	assert.Equal(t, w.PublicKey().String(), fromJSON.Address())
}

func TestNewKeypairSigner_Rejects(t *testing.T) {
	for _, in := range []string{"", "   ", "[1,2,3]", "[300]", "0OIl", base58.Encode([]byte{1, 2, 3})} {
		_, err := NewKeypairSigner(in)
		assert.Error(t, err, in)
	}
}

func TestKeypairSigner_SignTransaction(t *testing.T) {
	w := solana.NewWallet()
	s, err := NewKeypairSigner(w.PrivateKey.String())
	require.NoError(t, err)

	tx := memoTx(t, s.PublicKey())
	require.NoError(t, s.SignTransaction(context.Background(), tx))
	require.Len(t, tx.Signatures, 1)
	assert.NotEqual(t, solana.Signature{}, tx.Signatures[0])
	assert.NoError(t, tx.VerifySignatures())
}

func TestKeypairSigner_RefusesForeignTransaction(t *testing.T) {
	s, err := NewKeypairSigner(solana.NewWallet().PrivateKey.String())
	require.NoError(t, err)

	tx := memoTx(t, solana.NewWallet().PublicKey())
	assert.Error(t, s.SignTransaction(context.Background(), tx))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.SignTransaction(ctx, memoTx(t, s.PublicKey())), context.Canceled)
}
