// Package ledgertest provides an in-memory ledger.Gateway for tests.
package ledgertest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/aman-zulfiqar/solana-amm-client/internal/ledger"
	"github.com/gagliardetto/solana-go"
	solrpc "github.com/gagliardetto/solana-go/rpc"
)

// Gateway is a programmable in-memory ledger. The zero value is not usable; call New.
type Gateway struct {
	mu        sync.Mutex
	accounts  map[solana.PublicKey][]byte
	owners    map[solana.PublicKey]solana.PublicKey
	lamports  map[solana.PublicKey]uint64
	blockhash solana.Hash

	// Err, when set, is returned by every read.
	Err error
	// BeforeBatch runs at the start of GetAccountsBatch, outside the lock.
	BeforeBatch func()

	SubmitFn  func(signed []byte) (solana.Signature, error)
	ConfirmFn func(sig solana.Signature) (ledger.Outcome, error)
	StatusFn  func(sig solana.Signature) (ledger.Outcome, error)

	BatchCalls   atomic.Int32
	ScanCalls    atomic.Int32
	Submitted    atomic.Int32
	StatusCalls  atomic.Int32
	ConfirmCalls atomic.Int32
}

var _ ledger.Gateway = (*Gateway)(nil)

func New() *Gateway {
	return &Gateway{
		accounts:  make(map[solana.PublicKey][]byte),
		owners:    make(map[solana.PublicKey]solana.PublicKey),
		lamports:  make(map[solana.PublicKey]uint64),
		blockhash: solana.Hash{7, 7, 7},
	}
}

// SetAccount stores data at addr, owned by owner.
func (g *Gateway) SetAccount(addr, owner solana.PublicKey, data []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.accounts[addr] = data
	g.owners[addr] = owner
}

func (g *Gateway) DeleteAccount(addr solana.PublicKey) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.accounts, addr)
	delete(g.owners, addr)
}

func (g *Gateway) SetLamports(addr solana.PublicKey, lamports uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lamports[addr] = lamports
}

func (g *Gateway) Blockhash() solana.Hash { return g.blockhash }

func (g *Gateway) GetProgramAccounts(ctx context.Context, programID solana.PublicKey, dataSize uint64) ([]ledger.Account, error) {
	g.ScanCalls.Add(1)
	if g.Err != nil {
		return nil, g.Err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []ledger.Account
	for addr, data := range g.accounts {
		if g.owners[addr] == programID && uint64(len(data)) == dataSize {
			out = append(out, ledger.Account{Address: addr, Data: append([]byte(nil), data...)})
		}
	}
	return out, nil
}

func (g *Gateway) GetAccountsBatch(ctx context.Context, addrs []solana.PublicKey) ([][]byte, error) {
	g.BatchCalls.Add(1)
	if g.BeforeBatch != nil {
		g.BeforeBatch()
	}
	if g.Err != nil {
		return nil, g.Err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([][]byte, len(addrs))
	for i, a := range addrs {
		if data, ok := g.accounts[a]; ok {
			out[i] = append([]byte{}, data...)
		}
	}
	return out, nil
}

func (g *Gateway) GetBalance(ctx context.Context, addr solana.PublicKey) (uint64, error) {
	if g.Err != nil {
		return 0, g.Err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lamports[addr], nil
}

func (g *Gateway) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	if g.Err != nil {
		return solana.Hash{}, g.Err
	}
	return g.blockhash, nil
}

func (g *Gateway) SubmitTransaction(ctx context.Context, signed []byte) (solana.Signature, error) {
	g.Submitted.Add(1)
	if g.SubmitFn != nil {
		return g.SubmitFn(signed)
	}
	return solana.Signature{1, 2, 3}, nil
}

func (g *Gateway) SignatureStatus(ctx context.Context, sig solana.Signature, commitment solrpc.CommitmentType) (ledger.Outcome, error) {
	g.StatusCalls.Add(1)
	if g.StatusFn != nil {
		return g.StatusFn(sig)
	}
	return ledger.Outcome{Status: ledger.StatusSuccess}, nil
}

func (g *Gateway) Confirm(ctx context.Context, sig solana.Signature, commitment solrpc.CommitmentType) (ledger.Outcome, error) {
	g.ConfirmCalls.Add(1)
	if g.ConfirmFn != nil {
		return g.ConfirmFn(sig)
	}
	return ledger.Outcome{Status: ledger.StatusSuccess}, nil
}
