package server

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/aman-zulfiqar/solana-amm-client/internal/amm"
	"github.com/aman-zulfiqar/solana-amm-client/internal/balance"
	"github.com/aman-zulfiqar/solana-amm-client/internal/flags"
	"github.com/aman-zulfiqar/solana-amm-client/internal/ledger"
	"github.com/aman-zulfiqar/solana-amm-client/internal/models"
	"github.com/aman-zulfiqar/solana-amm-client/internal/quote"
	"github.com/aman-zulfiqar/solana-amm-client/internal/swapengine"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Backend is what the API serves; *swapengine.Engine implements it.
type Backend interface {
	BaseToken() balance.Token
	Tokens() []balance.Token
	Token(mint solana.PublicKey) (balance.Token, bool)
	TokenBySymbol(symbol string) (balance.Token, bool)

	Pools(ctx context.Context) ([]amm.Pool, error)
	TradablePools(ctx context.Context) ([]amm.Pool, error)
	RescanPools(ctx context.Context) ([]amm.Pool, error)

	GetQuote(ctx context.Context, intent swapengine.SwapIntent) (quote.Quote, error)
	BuildSwap(ctx context.Context, holder solana.PublicKey, intent swapengine.SwapIntent) (*swapengine.UnsignedSwap, error)
	SubmitSwap(ctx context.Context, holder solana.PublicKey, intent swapengine.SwapIntent, signed *solana.Transaction) (*swapengine.SwapOutcome, error)
	RecentSwaps(ctx context.Context, holder solana.PublicKey, limit int) ([]*models.SwapRecord, error)

	GetBalances(ctx context.Context, holder solana.PublicKey, tokens ...balance.Token) (balance.Balances, error)
	RefreshBalances(ctx context.Context, holder solana.PublicKey) (balance.Balances, error)
	CachedBalances(holder solana.PublicKey) (balance.Balances, time.Time, bool)

	HaltTrading(ctx context.Context, reason string) (*flags.Flag, error)
	ResumeTrading(ctx context.Context) (*flags.Flag, error)
	TradingHalted(ctx context.Context) (bool, string, error)
	Flags(ctx context.Context) ([]*flags.Flag, error)
	DeleteFlag(ctx context.Context, key string) error
}

var _ Backend = (*swapengine.Engine)(nil)

// Handlers contains all dependencies for API endpoint handlers
type Handlers struct {
	Backend Backend
	DevMode bool // Enable detailed error responses in development
	Logger  *logrus.Logger
}

// err returns a standardized JSON error response
// In dev mode, includes additional error details for debugging
func (h *Handlers) err(c echo.Context, code int, msg string, details any) error {
	resp := ErrorResponse{Error: msg, Code: code}
	if h.DevMode && details != nil {
		resp.Details = details
	}
	return c.JSON(code, resp)
}

// fail maps a backend error to its response.
func (h *Handlers) fail(c echo.Context, err error) error {
	code, msg := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.Logger.WithError(err).WithField("path", c.Path()).Warn("request failed")
	}
	return h.err(c, code, msg, map[string]any{"err": err.Error()})
}

// withTimeout creates a context with timeout, defaulting to 10 seconds if duration <= 0
func (h *Handlers) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

func (h *Handlers) Health(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	halted, _, err := h.Backend.TradingHalted(ctx)
	if err != nil {
		// the halt switch being unreachable does not make the API unhealthy
		h.Logger.WithError(err).Debug("halt switch unreadable")
	}
	return c.JSON(http.StatusOK, HealthResponse{OK: true, Halted: halted})
}

func (h *Handlers) Tokens(c echo.Context) error {
	base := h.Backend.BaseToken()
	toks := h.Backend.Tokens()
	out := make([]TokenResponse, 0, len(toks))
	for _, t := range toks {
		out = append(out, TokenResponse{
			Name:     t.Name,
			Mint:     t.Mint.String(),
			Decimals: t.Decimals,
			Base:     t.Mint.Equals(base.Mint),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"items": out})
}

// Pools lists discovered pools. tradable=true keeps only pools against the base token.
func (h *Handlers) Pools(c echo.Context) error {
	tradable := false
	if v := c.QueryParam("tradable"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return h.err(c, http.StatusBadRequest, "invalid tradable", map[string]any{"tradable": "must be boolean"})
		}
		tradable = b
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	var (
		pools []amm.Pool
		err   error
	)
	if tradable {
		pools, err = h.Backend.TradablePools(ctx)
	} else {
		pools, err = h.Backend.Pools(ctx)
	}
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": poolResponses(pools)})
}

func (h *Handlers) RescanPools(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	pools, err := h.Backend.RescanPools(ctx)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": poolResponses(pools)})
}

// Quote prices from -> to for amount (display units) or amount_raw (base units).
// A zero amount returns an empty quote.
func (h *Handlers) Quote(c echo.Context) error {
	req := SwapRequest{
		From:   c.QueryParam("from"),
		To:     c.QueryParam("to"),
		Amount: c.QueryParam("amount"),
	}
	if v := strings.TrimSpace(c.QueryParam("amount_raw")); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return h.err(c, http.StatusBadRequest, "invalid amount_raw", map[string]any{"amount_raw": "must be uint64"})
		}
		if n == 0 {
			req.Amount = "0"
		}
		req.AmountRaw = n
	}

	intent, from, to, err := h.intent(req)
	if err != nil {
		return h.fail(c, err)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	q, err := h.Backend.GetQuote(ctx, intent)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, quoteResponse(intent, q, from, to))
}

// BuildSwap returns an unsigned transaction for an external signer.
func (h *Handlers) BuildSwap(c echo.Context) error {
	var req SwapRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	holder, err := parseKey(req.Holder)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid holder", map[string]any{"holder": err.Error()})
	}
	intent, from, to, err := h.intent(req)
	if err != nil {
		return h.fail(c, err)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	us, err := h.Backend.BuildSwap(ctx, holder, intent)
	if err != nil {
		return h.fail(c, err)
	}
	raw, err := us.Tx.MarshalBinary()
	if err != nil {
		return h.fail(c, err)
	}

	qr := quoteResponse(intent, us.Quote, from, to)
	qr.MinAmountOut = us.MinAmountOut
	return c.JSON(http.StatusOK, BuildSwapResponse{
		IdempotencyKey:     us.IdempotencyKey,
		Transaction:        base64.StdEncoding.EncodeToString(raw),
		CreatesDestination: us.CreatesDestination,
		Quote:              qr,
	})
}

// SubmitSwap sends a transaction signed by the holder and waits for it to settle.
// The outcome is returned whenever the ledger saw the transaction.
func (h *Handlers) SubmitSwap(c echo.Context) error {
	var req SubmitSwapRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	holder, err := parseKey(req.Holder)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid holder", map[string]any{"holder": err.Error()})
	}
	intent, _, _, err := h.intent(req.SwapRequest)
	if err != nil {
		return h.fail(c, err)
	}
	tx, err := decodeTransaction(req.Transaction)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid transaction", map[string]any{"transaction": err.Error()})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 70*time.Second)
	defer cancel()

	out, err := h.Backend.SubmitSwap(ctx, holder, intent, tx)
	if out == nil {
		return h.fail(c, err)
	}

	code := http.StatusOK
	switch out.Status {
	case ledger.StatusFailed:
		code = http.StatusUnprocessableEntity
	case ledger.StatusUnknown:
		code = http.StatusAccepted
	}
	return c.JSON(code, outcomeResponse(out))
}

// RecentSwaps returns the holder's journaled swaps
// Accepts limit query parameter (default: 50, range: 1-200)
func (h *Handlers) RecentSwaps(c echo.Context) error {
	holder, err := parseKey(c.QueryParam("holder"))
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid holder", map[string]any{"holder": err.Error()})
	}
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "must be an integer"})
		}
		limit = n
	}
	if limit < 1 || limit > 200 {
		return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "min 1 max 200"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Backend.RecentSwaps(ctx, holder, limit)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// Balances starts tracking the holder and returns a fresh snapshot.
// cached=true answers from the last snapshot without a network read.
func (h *Handlers) Balances(c echo.Context) error {
	holder, err := parseKey(c.Param("holder"))
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid holder", map[string]any{"holder": err.Error()})
	}

	if c.QueryParam("cached") == "true" {
		bals, at, ok := h.Backend.CachedBalances(holder)
		if !ok {
			return h.err(c, http.StatusNotFound, "holder not tracked", nil)
		}
		return c.JSON(http.StatusOK, h.balancesResponse(holder, bals, at))
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	bals, err := h.Backend.GetBalances(ctx, holder)
	if err != nil {
		return h.fail(c, err)
	}
	_, at, _ := h.Backend.CachedBalances(holder)
	return c.JSON(http.StatusOK, h.balancesResponse(holder, bals, at))
}

func (h *Handlers) RefreshBalances(c echo.Context) error {
	holder, err := parseKey(c.Param("holder"))
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid holder", map[string]any{"holder": err.Error()})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	bals, err := h.Backend.RefreshBalances(ctx, holder)
	if err != nil {
		return h.fail(c, err)
	}
	_, at, _ := h.Backend.CachedBalances(holder)
	return c.JSON(http.StatusOK, h.balancesResponse(holder, bals, at))
}

func (h *Handlers) HaltStatus(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	halted, reason, err := h.Backend.TradingHalted(ctx)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, HaltResponse{Halted: halted, Reason: reason})
}

func (h *Handlers) Halt(c echo.Context) error {
	var req HaltRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	f, err := h.Backend.HaltTrading(ctx, strings.TrimSpace(req.Reason))
	if err != nil {
		return h.fail(c, err)
	}
	h.Logger.WithField("reason", f.Reason).Warn("trading halted via api")
	return c.JSON(http.StatusOK, HaltResponse{Halted: f.Value, Reason: f.Reason})
}

func (h *Handlers) Resume(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	f, err := h.Backend.ResumeTrading(ctx)
	if err != nil {
		return h.fail(c, err)
	}
	h.Logger.Info("trading resumed via api")
	return c.JSON(http.StatusOK, HaltResponse{Halted: f.Value})
}

func (h *Handlers) Flags(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	list, err := h.Backend.Flags(ctx)
	if err != nil {
		return h.fail(c, err)
	}
	slices.SortFunc(list, func(a, b *flags.Flag) int { return strings.Compare(a.Key, b.Key) })
	return c.JSON(http.StatusOK, FlagsResponse{Flags: list})
}

func (h *Handlers) DeleteFlag(c echo.Context) error {
	key := c.Param("key")
	if err := flags.ValidateKey(key); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid flag key", map[string]any{"key": key})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := h.Backend.DeleteFlag(ctx, key); err != nil {
		return h.fail(c, err)
	}
	h.Logger.WithField("key", key).Info("flag deleted via api")
	return c.NoContent(http.StatusNoContent)
}

// intent resolves a request into a swap intent. Tokens may be given by
// configured name or by mint; display amounts need a configured source token.
func (h *Handlers) intent(req SwapRequest) (swapengine.SwapIntent, *balance.Token, *balance.Token, error) {
	fromMint, from, err := h.token(req.From)
	if err != nil {
		return swapengine.SwapIntent{}, nil, nil, err
	}
	toMint, to, err := h.token(req.To)
	if err != nil {
		return swapengine.SwapIntent{}, nil, nil, err
	}

	intent := swapengine.SwapIntent{FromMint: fromMint, ToMint: toMint, AmountIn: req.AmountRaw}
	if req.AmountRaw > 0 {
		return intent, from, to, nil
	}

	s := strings.TrimSpace(req.Amount)
	if s == "" {
		return intent, nil, nil, errors.Join(swapengine.ErrInvalidIntent, errors.New("amount is required"))
	}
	if d, err := decimal.NewFromString(s); err == nil && d.IsZero() {
		return intent, from, to, nil
	}
	if from == nil {
		return intent, nil, nil, errors.Join(swapengine.ErrInvalidIntent, errors.New("display amount needs a configured source token, use amount_raw"))
	}
	amount, err := swapengine.ParseAmount(s, from.Decimals)
	if err != nil {
		return intent, nil, nil, err
	}
	intent.AmountIn = amount
	return intent, from, to, nil
}

func (h *Handlers) token(s string) (solana.PublicKey, *balance.Token, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return solana.PublicKey{}, nil, errors.Join(swapengine.ErrInvalidIntent, errors.New("token is required"))
	}
	if t, ok := h.Backend.TokenBySymbol(strings.ToUpper(s)); ok {
		return t.Mint, &t, nil
	}
	mint, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, nil, errors.Join(swapengine.ErrInvalidIntent, errors.New("unknown token "+s))
	}
	if t, ok := h.Backend.Token(mint); ok {
		return mint, &t, nil
	}
	return mint, nil, nil
}

func (h *Handlers) balancesResponse(holder solana.PublicKey, bals balance.Balances, at time.Time) BalancesResponse {
	out := BalancesResponse{Holder: holder.String(), UpdatedAt: at}
	for _, t := range h.Backend.Tokens() {
		e, ok := bals[t.Name]
		if !ok {
			continue
		}
		out.Balances = append(out.Balances, BalanceResponse{
			Name:      e.Name,
			Mint:      e.Mint.String(),
			RawAmount: e.RawAmount,
			Amount:    e.UIAmount().String(),
			Decimals:  e.Decimals,
		})
	}
	return out
}

func parseKey(s string) (solana.PublicKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return solana.PublicKey{}, errors.New("required")
	}
	return solana.PublicKeyFromBase58(s)
}

func decodeTransaction(s string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	return solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
}

func poolResponses(pools []amm.Pool) []PoolResponse {
	out := make([]PoolResponse, 0, len(pools))
	for _, p := range pools {
		out = append(out, PoolResponse{
			Address:   p.Address.String(),
			Amm:       p.Amm.String(),
			MintA:     p.MintA.String(),
			MintB:     p.MintB.String(),
			Authority: p.Authority.String(),
			ReserveA:  p.ReserveA.String(),
			ReserveB:  p.ReserveB.String(),
		})
	}
	return out
}

func quoteResponse(intent swapengine.SwapIntent, q quote.Quote, from, to *balance.Token) QuoteResponse {
	out := QuoteResponse{
		FromMint:    intent.FromMint.String(),
		ToMint:      intent.ToMint.String(),
		AmountIn:    q.AmountIn,
		AmountOut:   q.AmountOut,
		PriceImpact: q.PriceImpact(),
		ReserveIn:   q.ReserveIn,
		ReserveOut:  q.ReserveOut,
		QuotedAt:    q.QuotedAt,
	}
	if !q.Pool.Address.IsZero() {
		out.Pool = q.Pool.Address.String()
	}
	if from != nil {
		out.AmountInUI = amm.UIAmount(q.AmountIn, from.Decimals).String()
	}
	if to != nil {
		out.AmountOutUI = amm.UIAmount(q.AmountOut, to.Decimals).String()
	}
	if from != nil && to != nil && !q.IsZero() {
		out.Price = q.EffectivePrice(from.Decimals, to.Decimals).String()
	}
	return out
}

func outcomeResponse(o *swapengine.SwapOutcome) SwapOutcomeResponse {
	return SwapOutcomeResponse{
		ExecutionID:  o.ExecutionID,
		Signature:    o.Signature.String(),
		Status:       o.Status.String(),
		Reason:       o.Reason,
		Slot:         o.Slot,
		Pool:         o.Pool.String(),
		MinAmountOut: o.MinAmountOut,
		TookMs:       o.Duration.Milliseconds(),
	}
}
