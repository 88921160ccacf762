package amm

import (
	"context"
	"fmt"
	"time"

	"github.com/aman-zulfiqar/solana-amm-client/internal/ledger"
	"github.com/gagliardetto/solana-go"
)

// ReservePair is a point-in-time read of a pool's two reserve balances.
type ReservePair struct {
	ReserveA uint64
	ReserveB uint64
	ReadAt   time.Time
}

// InOut returns reserves ordered for a swap direction.
func (r ReservePair) InOut(aToB bool) (reserveIn, reserveOut uint64) {
	if aToB {
		return r.ReserveA, r.ReserveB
	}
	return r.ReserveB, r.ReserveA
}

// ReadReserves fetches reserves for every pool in one batched read.
// A missing reserve account reads as zero.
func ReadReserves(ctx context.Context, gw ledger.Gateway, pools ...Pool) ([]ReservePair, error) {
	addrs := make([]solana.PublicKey, 0, 2*len(pools))
	for _, p := range pools {
		addrs = append(addrs, p.ReserveA, p.ReserveB)
	}

	datas, err := gw.GetAccountsBatch(ctx, addrs)
	if err != nil {
		return nil, fmt.Errorf("read reserves: %w", err)
	}
	if len(datas) != len(addrs) {
		return nil, fmt.Errorf("read reserves: expected %d accounts, got %d", len(addrs), len(datas))
	}

	now := time.Now()
	out := make([]ReservePair, len(pools))
	for i := range pools {
		a, err := TokenAmount(datas[2*i])
		if err != nil {
			return nil, fmt.Errorf("pool %s reserve A: %w", pools[i].Address, err)
		}
		b, err := TokenAmount(datas[2*i+1])
		if err != nil {
			return nil, fmt.Errorf("pool %s reserve B: %w", pools[i].Address, err)
		}
		out[i] = ReservePair{ReserveA: a, ReserveB: b, ReadAt: now}
	}
	return out, nil
}

// TokenAmount decodes a token account amount; nil data is an absent account.
func TokenAmount(data []byte) (uint64, error) {
	if data == nil {
		return 0, nil
	}
	acct, err := DecodeTokenAccount(data)
	if err != nil {
		return 0, err
	}
	return acct.Amount, nil
}
