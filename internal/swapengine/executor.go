package swapengine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aman-zulfiqar/solana-amm-client/internal/amm"
	"github.com/aman-zulfiqar/solana-amm-client/internal/bus"
	"github.com/aman-zulfiqar/solana-amm-client/internal/constants"
	"github.com/aman-zulfiqar/solana-amm-client/internal/ledger"
	"github.com/aman-zulfiqar/solana-amm-client/internal/metrics"
	"github.com/aman-zulfiqar/solana-amm-client/internal/models"
	"github.com/aman-zulfiqar/solana-amm-client/internal/quote"
	"github.com/aman-zulfiqar/solana-amm-client/internal/storage"
	"github.com/gagliardetto/solana-go"
	solrpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const journalTimeout = 5 * time.Second

// Signer signs transactions on behalf of one holder. The executor never holds keys.
type Signer interface {
	PublicKey() solana.PublicKey
	SignTransaction(ctx context.Context, tx *solana.Transaction) error
}

// ExecutorConfig holds configuration for the swap executor
type ExecutorConfig struct {
	// SlippageTolerance is the fraction of the quoted output accepted, in (0, 1].
	SlippageTolerance     decimal.Decimal
	Commitment            solrpc.CommitmentType
	FallbackDelay         time.Duration
	MinFeeReserveLamports uint64
	// ProgramID, when set, is the only program a submitted swap may call.
	ProgramID solana.PublicKey

	Resolver TokenAccountResolver
	Gate     storage.TradingGate
	Journal  storage.SwapJournal
	Logger   *logrus.Logger
	Metrics  *metrics.Metrics
}

// Executor builds, submits and confirms swaps.
type Executor struct {
	gw        ledger.Gateway
	bus       *bus.Bus
	resolver  TokenAccountResolver
	preflight *Preflight
	gate      storage.TradingGate
	journal   storage.SwapJournal
	logger    *logrus.Logger
	metrics   *metrics.Metrics
	program   solana.PublicKey

	tolerance     decimal.Decimal
	commitment    solrpc.CommitmentType
	fallbackDelay time.Duration

	inflight singleflight.Group
}

func NewExecutor(gw ledger.Gateway, b *bus.Bus, cfg ExecutorConfig) (*Executor, error) {
	if gw == nil {
		return nil, fmt.Errorf("executor: gateway is nil")
	}
	if cfg.SlippageTolerance.IsZero() {
		cfg.SlippageTolerance = decimal.RequireFromString(constants.DefaultSlippageTolerance)
	}
	if !cfg.SlippageTolerance.IsPositive() || cfg.SlippageTolerance.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("executor: slippage tolerance %s must be in (0, 1]", cfg.SlippageTolerance)
	}
	if cfg.Commitment == "" {
		cfg.Commitment = solrpc.CommitmentConfirmed
	}
	if cfg.FallbackDelay == 0 {
		cfg.FallbackDelay = constants.DefaultConfirmFallbackDelay
	}
	if cfg.Resolver == nil {
		cfg.Resolver = NewGatewayTokenAccountResolver(gw)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	return &Executor{
		gw:            gw,
		bus:           b,
		resolver:      cfg.Resolver,
		preflight:     NewPreflight(gw, cfg.MinFeeReserveLamports),
		gate:          cfg.Gate,
		journal:       cfg.Journal,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		program:       cfg.ProgramID,
		tolerance:     cfg.SlippageTolerance,
		commitment:    cfg.Commitment,
		fallbackDelay: cfg.FallbackDelay,
	}, nil
}

// BuildSwap assembles the unsigned swap transaction for holder from a quote
// of the same intent. The destination token account is created in the same
// transaction when it does not exist yet.
func (e *Executor) BuildSwap(ctx context.Context, holder solana.PublicKey, intent SwapIntent, q quote.Quote) (*UnsignedSwap, error) {
	if err := ValidateIntent(intent); err != nil {
		return nil, err
	}
	if holder.IsZero() {
		return nil, fmt.Errorf("%w: holder is required", ErrInvalidIntent)
	}
	if q.Pair != intent.Pair() || q.AmountIn != intent.AmountIn {
		return nil, fmt.Errorf("%w: quote does not match intent", ErrInvalidIntent)
	}
	if q.IsZero() {
		return nil, fmt.Errorf("%w: quote has no output", ErrInvalidIntent)
	}

	minOut, err := amm.MinAmountOut(q.AmountOut, e.tolerance)
	if err != nil {
		return nil, err
	}

	pool := q.Pool
	accts, err := e.resolver.Resolve(ctx, holder, pool.MintA, pool.MintB)
	if err != nil {
		return nil, err
	}
	if len(accts) != 2 {
		return nil, fmt.Errorf("resolve token accounts: expected 2, got %d", len(accts))
	}

	dest := accts[0]
	if q.AToB {
		dest = accts[1]
	}

	var ixs []solana.Instruction
	if !dest.Exists {
		createIx, _, err := amm.CreateAssociatedTokenAccount(holder, holder, dest.Mint)
		if err != nil {
			return nil, fmt.Errorf("create token account ix: %w", err)
		}
		ixs = append(ixs, createIx)
	}

	swapIx, err := amm.BuildSwapInstruction(pool, holder, accts[0].Account, accts[1].Account, amm.SwapArgs{
		AToB:         q.AToB,
		AmountIn:     intent.AmountIn,
		MinAmountOut: minOut,
	})
	if err != nil {
		return nil, err
	}
	ixs = append(ixs, swapIx)

	blockhash, err := e.gw.LatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("get blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(ixs, blockhash, solana.TransactionPayer(holder))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}

	us := &UnsignedSwap{
		IdempotencyKey:     uuid.NewString(),
		Tx:                 tx,
		Intent:             intent,
		Quote:              q,
		MinAmountOut:       minOut,
		CreatesDestination: !dest.Exists,
		BuiltAt:            time.Now(),
	}

	e.logger.WithFields(logrus.Fields{
		"idempotency_key": us.IdempotencyKey,
		"holder":          holder.String(),
		"pool":            pool.Address.String(),
		"amount_in":       intent.AmountIn,
		"min_amount_out":  minOut,
		"creates_ata":     us.CreatesDestination,
	}).Debug("swap built")

	return us, nil
}

// Submit sends a holder-signed swap and waits for its outcome. Concurrent
// submissions of the same holder and intent share one execution.
//
// A confirmed failure returns ErrSubmissionFailed; a swap whose fate could not
// be observed returns ErrConfirmationUnknown. Both come with a non-nil outcome.
func (e *Executor) Submit(ctx context.Context, holder solana.PublicKey, intent SwapIntent, signed *solana.Transaction) (*SwapOutcome, error) {
	if err := ValidateIntent(intent); err != nil {
		return nil, err
	}

	v, err, shared := e.inflight.Do(intentKey(holder, intent), func() (any, error) {
		return e.submit(ctx, holder, intent, signed)
	})
	if shared {
		e.logger.WithField("holder", holder.String()).Debug("joined in-flight swap submission")
	}

	out, _ := v.(*SwapOutcome)
	if out == nil {
		return nil, err
	}
	c := *out
	return &c, err
}

func (e *Executor) submit(ctx context.Context, holder solana.PublicKey, intent SwapIntent, signed *solana.Transaction) (*SwapOutcome, error) {
	start := time.Now()
	log := e.logger.WithFields(logrus.Fields{
		"holder":    holder.String(),
		"from":      intent.FromMint.String(),
		"to":        intent.ToMint.String(),
		"amount_in": intent.AmountIn,
	})

	if err := e.checkGate(ctx); err != nil {
		e.metrics.ObserveSwap("halted", time.Since(start))
		return nil, err
	}

	details, err := inspectSwap(signed, holder, intent, e.program)
	if err != nil {
		e.metrics.ObserveSwap("invalid", time.Since(start))
		return nil, err
	}

	if _, err := e.preflight.Check(ctx, holder, intent); err != nil {
		e.metrics.ObserveSwap("preflight", time.Since(start))
		return nil, err
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize transaction: %w", err)
	}

	out := &SwapOutcome{
		ExecutionID:  uuid.NewString(),
		Pool:         details.pool,
		MinAmountOut: details.args.MinAmountOut,
	}
	log = log.WithField("execution_id", out.ExecutionID)

	sig, err := e.gw.SubmitTransaction(ctx, raw)
	if err != nil {
		var subErr *ledger.SubmissionError
		if !errors.As(err, &subErr) {
			e.metrics.ObserveSwap("error", time.Since(start))
			return nil, fmt.Errorf("submit swap: %w", err)
		}
		out.Status = ledger.StatusFailed
		out.Reason = subErr.Message
		out.Duration = time.Since(start)
		log.WithField("reason", subErr.Message).Warn("swap rejected by ledger")
		e.record(ctx, holder, intent, out)
		e.metrics.ObserveSwap(out.Status.String(), out.Duration)
		return out, fmt.Errorf("%w: %s", ErrSubmissionFailed, subErr.Message)
	}

	out.Signature = sig
	log = log.WithField("signature", sig.String())
	log.Info("swap submitted")

	outcome := e.settle(ctx, sig)
	out.Status = outcome.Status
	out.Reason = outcome.Reason
	out.Slot = outcome.Slot
	out.Duration = time.Since(start)

	var result error
	switch outcome.Status {
	case ledger.StatusSuccess:
		log.WithField("slot", outcome.Slot).Info("swap confirmed")
	case ledger.StatusFailed:
		log.WithField("reason", outcome.Reason).Warn("swap failed on ledger")
		result = fmt.Errorf("%w: %s", ErrSubmissionFailed, outcome.Reason)
	default:
		log.WithField("reason", outcome.Reason).Warn("swap outcome unknown")
		result = fmt.Errorf("%w: signature %s", ErrConfirmationUnknown, sig)
	}

	// an unknown swap may still have moved balances
	if outcome.Status != ledger.StatusFailed && e.bus != nil {
		e.bus.Publish(bus.Event{Source: constants.SourceSwap, Holder: holder})
	}

	e.record(ctx, holder, intent, out)
	e.metrics.ObserveSwap(out.Status.String(), out.Duration)
	return out, result
}

// Execute builds, signs and submits a swap for the signer's holder.
func (e *Executor) Execute(ctx context.Context, signer Signer, intent SwapIntent, q quote.Quote) (*SwapOutcome, error) {
	if signer == nil {
		return nil, fmt.Errorf("%w: signer is required", ErrSwapRejected)
	}
	holder := signer.PublicKey()

	us, err := e.BuildSwap(ctx, holder, intent, q)
	if err != nil {
		return nil, err
	}
	if err := signer.SignTransaction(ctx, us.Tx); err != nil {
		e.metrics.ObserveSwap("rejected", 0)
		return nil, fmt.Errorf("%w: %v", ErrSwapRejected, err)
	}
	return e.Submit(ctx, holder, intent, us.Tx)
}

// settle waits for confirmation and, if that ends without a verdict, makes
// one more status lookup after a short delay.
func (e *Executor) settle(ctx context.Context, sig solana.Signature) ledger.Outcome {
	out, err := e.gw.Confirm(ctx, sig, e.commitment)
	if err == nil && out.Status != ledger.StatusUnknown {
		return out
	}
	if err != nil {
		e.logger.WithError(err).WithField("signature", sig.String()).Debug("confirmation polling failed")
	}

	timer := time.NewTimer(e.fallbackDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ledger.Outcome{Status: ledger.StatusUnknown, Reason: ctx.Err().Error()}
	case <-timer.C:
	}

	out, err = e.gw.SignatureStatus(ctx, sig, e.commitment)
	if err != nil {
		return ledger.Outcome{Status: ledger.StatusUnknown, Reason: err.Error()}
	}
	return out
}

func (e *Executor) checkGate(ctx context.Context) error {
	if e.gate == nil {
		return nil
	}
	halted, reason, err := e.gate.Halted(ctx)
	if err != nil {
		return fmt.Errorf("check trading halt: %w", err)
	}
	if halted {
		if reason == "" {
			return ErrTradingHalted
		}
		return fmt.Errorf("%w: %s", ErrTradingHalted, reason)
	}
	return nil
}

// record writes the outcome to the journal; failures are logged only.
func (e *Executor) record(ctx context.Context, holder solana.PublicKey, intent SwapIntent, out *SwapOutcome) {
	if e.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()

	rec := &models.SwapRecord{
		ExecutionID:  out.ExecutionID,
		Timestamp:    time.Now().UTC(),
		Holder:       holder.String(),
		Pool:         out.Pool.String(),
		FromMint:     intent.FromMint.String(),
		ToMint:       intent.ToMint.String(),
		AmountIn:     intent.AmountIn,
		MinAmountOut: out.MinAmountOut,
		Status:       out.Status.String(),
		Reason:       out.Reason,
		Slot:         out.Slot,
		DurationMS:   out.Duration.Milliseconds(),
	}
	if out.Signature != (solana.Signature{}) {
		rec.Signature = out.Signature.String()
	}
	if err := e.journal.RecordSwap(ctx, rec); err != nil {
		e.logger.WithError(err).WithField("execution_id", out.ExecutionID).Warn("failed to journal swap")
	}
}

type swapDetails struct {
	pool solana.PublicKey
	args amm.SwapArgs
}

var swapDiscriminator = amm.Discriminator(constants.IxSwap)

// positions in the swap instruction's account list
const (
	swapAccountPool  = 1
	swapAccountMintA = 4
	swapAccountMintB = 5
)

// inspectSwap checks that signed pays from holder, carries a signature and
// contains a swap instruction selling intent.FromMint for intent.ToMint in
// the intent's amount. A non-zero program restricts which program may be called.
func inspectSwap(signed *solana.Transaction, holder solana.PublicKey, intent SwapIntent, program solana.PublicKey) (swapDetails, error) {
	var d swapDetails
	if signed == nil {
		return d, fmt.Errorf("%w: transaction is nil", ErrInvalidIntent)
	}
	keys := signed.Message.AccountKeys
	if len(keys) == 0 || !keys[0].Equals(holder) {
		return d, fmt.Errorf("%w: fee payer is not the holder", ErrInvalidIntent)
	}
	if len(signed.Signatures) == 0 || signed.Signatures[0] == (solana.Signature{}) {
		return d, fmt.Errorf("%w: transaction is not signed", ErrSwapRejected)
	}

	key := func(i uint16) (solana.PublicKey, bool) {
		if int(i) >= len(keys) {
			return solana.PublicKey{}, false
		}
		return keys[i], true
	}

	for _, ix := range signed.Message.Instructions {
		if !bytes.HasPrefix(ix.Data, swapDiscriminator[:]) {
			continue
		}
		called, ok := key(ix.ProgramIDIndex)
		if !ok {
			return d, fmt.Errorf("%w: swap program index out of range", ErrInvalidIntent)
		}
		if !program.IsZero() && !called.Equals(program) {
			return d, fmt.Errorf("%w: swap calls program %s, expected %s", ErrInvalidIntent, called, program)
		}
		args, err := amm.DecodeSwapArgs(ix.Data)
		if err != nil {
			return d, fmt.Errorf("%w: %v", ErrInvalidIntent, err)
		}
		if args.AmountIn != intent.AmountIn {
			return d, fmt.Errorf("%w: transaction swaps %d, intent is %d", ErrInvalidIntent, args.AmountIn, intent.AmountIn)
		}

		if len(ix.Accounts) <= swapAccountMintB {
			return d, fmt.Errorf("%w: swap instruction has %d accounts", ErrInvalidIntent, len(ix.Accounts))
		}
		pool, okPool := key(ix.Accounts[swapAccountPool])
		mintA, okA := key(ix.Accounts[swapAccountMintA])
		mintB, okB := key(ix.Accounts[swapAccountMintB])
		if !okPool || !okA || !okB {
			return d, fmt.Errorf("%w: swap account index out of range", ErrInvalidIntent)
		}

		from, to := mintB, mintA
		if args.AToB {
			from, to = mintA, mintB
		}
		if !from.Equals(intent.FromMint) || !to.Equals(intent.ToMint) {
			return d, fmt.Errorf("%w: transaction sells %s for %s, intent sells %s for %s",
				ErrInvalidIntent, from, to, intent.FromMint, intent.ToMint)
		}

		d.pool = pool
		d.args = args
		return d, nil
	}
	return d, fmt.Errorf("%w: transaction has no swap instruction", ErrInvalidIntent)
}
