package swapengine

import (
	"context"
	"fmt"

	"github.com/aman-zulfiqar/solana-amm-client/internal/amm"
	"github.com/aman-zulfiqar/solana-amm-client/internal/constants"
	"github.com/aman-zulfiqar/solana-amm-client/internal/ledger"
	"github.com/gagliardetto/solana-go"
)

// Preflight verifies that a holder can pay for a swap before it is submitted.
type Preflight struct {
	gw            ledger.Gateway
	minFeeReserve uint64
}

// NewPreflight creates a preflight check. A zero reserve uses the default.
func NewPreflight(gw ledger.Gateway, minFeeReserveLamports uint64) *Preflight {
	if minFeeReserveLamports == 0 {
		minFeeReserveLamports = constants.DefaultMinFeeReserve
	}
	return &Preflight{gw: gw, minFeeReserve: minFeeReserveLamports}
}

// Check reads the holder's source token account and native balance.
// The token balance is checked first, then the fee reserve.
func (p *Preflight) Check(ctx context.Context, holder solana.PublicKey, intent SwapIntent) (PreflightResult, error) {
	var res PreflightResult

	src, _, err := amm.FindAssociatedTokenAddress(holder, intent.FromMint)
	if err != nil {
		return res, fmt.Errorf("derive source account: %w", err)
	}

	datas, err := p.gw.GetAccountsBatch(ctx, []solana.PublicKey{src})
	if err != nil {
		return res, fmt.Errorf("read source account: %w", err)
	}
	if len(datas) != 1 {
		return res, fmt.Errorf("read source account: expected 1 account, got %d", len(datas))
	}
	res.TokenBalance, err = amm.TokenAmount(datas[0])
	if err != nil {
		return res, fmt.Errorf("source account %s: %w", src, err)
	}
	if res.TokenBalance < intent.AmountIn {
		return res, fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, res.TokenBalance, intent.AmountIn)
	}

	res.Lamports, err = p.gw.GetBalance(ctx, holder)
	if err != nil {
		return res, fmt.Errorf("read native balance: %w", err)
	}
	if res.Lamports < p.minFeeReserve {
		return res, fmt.Errorf("%w: have %d lamports, need %d", ErrInsufficientFeeReserve, res.Lamports, p.minFeeReserve)
	}
	return res, nil
}
