package swapengine

import (
	"context"
	"fmt"

	"github.com/aman-zulfiqar/solana-amm-client/internal/amm"
	"github.com/aman-zulfiqar/solana-amm-client/internal/ledger"
	"github.com/gagliardetto/solana-go"
)

// ResolvedTokenAccount is the holder's associated token account for a mint.
type ResolvedTokenAccount struct {
	Mint    solana.PublicKey
	Account solana.PublicKey
	Exists  bool
}

// TokenAccountResolver finds an owner's token accounts for a set of mints.
type TokenAccountResolver interface {
	Resolve(ctx context.Context, owner solana.PublicKey, mints ...solana.PublicKey) ([]ResolvedTokenAccount, error)
}

// GatewayTokenAccountResolver derives associated token accounts and checks
// their existence with a single batch read.
type GatewayTokenAccountResolver struct {
	gw ledger.Gateway
}

func NewGatewayTokenAccountResolver(gw ledger.Gateway) *GatewayTokenAccountResolver {
	return &GatewayTokenAccountResolver{gw: gw}
}

func (r *GatewayTokenAccountResolver) Resolve(ctx context.Context, owner solana.PublicKey, mints ...solana.PublicKey) ([]ResolvedTokenAccount, error) {
	if r == nil || r.gw == nil {
		return nil, fmt.Errorf("token account resolver: gateway is nil")
	}

	out := make([]ResolvedTokenAccount, len(mints))
	addrs := make([]solana.PublicKey, len(mints))
	for i, mint := range mints {
		ata, _, err := amm.FindAssociatedTokenAddress(owner, mint)
		if err != nil {
			return nil, fmt.Errorf("derive token account for %s: %w", mint, err)
		}
		out[i] = ResolvedTokenAccount{Mint: mint, Account: ata}
		addrs[i] = ata
	}

	datas, err := r.gw.GetAccountsBatch(ctx, addrs)
	if err != nil {
		return nil, fmt.Errorf("resolve token accounts: %w", err)
	}
	if len(datas) != len(addrs) {
		return nil, fmt.Errorf("resolve token accounts: expected %d accounts, got %d", len(addrs), len(datas))
	}
	for i := range out {
		out[i].Exists = datas[i] != nil
	}
	return out, nil
}
