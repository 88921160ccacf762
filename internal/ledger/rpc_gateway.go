package ledger

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/aman-zulfiqar/solana-amm-client/internal/constants"
	"github.com/aman-zulfiqar/solana-amm-client/internal/rpc"
	"github.com/gagliardetto/solana-go"
	solrpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/sirupsen/logrus"
)

// RPCGatewayConfig holds configuration for the JSON-RPC backed gateway
type RPCGatewayConfig struct {
	Commitment solrpc.CommitmentType

	// ConfirmTimeout is the total wall-clock budget for Confirm.
	ConfirmTimeout time.Duration
	// ConfirmMaxPolls bounds the number of status lookups within the budget.
	ConfirmMaxPolls int
	// PollInterval is the first delay between polls; it doubles up to MaxPollInterval.
	PollInterval    time.Duration
	MaxPollInterval time.Duration

	Logger *logrus.Logger
}

// RPCGateway implements Gateway over the project's JSON-RPC client.
type RPCGateway struct {
	client *rpc.Client
	cfg    RPCGatewayConfig
	logger *logrus.Logger
}

var _ Gateway = (*RPCGateway)(nil)

func NewRPCGateway(client *rpc.Client, cfg RPCGatewayConfig) *RPCGateway {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Commitment == "" {
		cfg.Commitment = solrpc.CommitmentConfirmed
	}
	if cfg.ConfirmTimeout == 0 {
		cfg.ConfirmTimeout = constants.DefaultConfirmTimeout
	}
	if cfg.ConfirmMaxPolls <= 0 {
		cfg.ConfirmMaxPolls = constants.DefaultConfirmMaxPolls
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.MaxPollInterval == 0 {
		cfg.MaxPollInterval = 4 * time.Second
	}
	return &RPCGateway{client: client, cfg: cfg, logger: cfg.Logger}
}

func wrapErr(op string, err error) error {
	if errors.Is(err, rpc.ErrUnavailable) {
		return fmt.Errorf("%w: %s: %v", ErrGatewayUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (g *RPCGateway) GetProgramAccounts(ctx context.Context, programID solana.PublicKey, dataSize uint64) ([]Account, error) {
	keyed, err := g.client.GetProgramAccounts(ctx, programID.String(), dataSize, string(g.cfg.Commitment))
	if err != nil {
		return nil, wrapErr("getProgramAccounts", err)
	}

	out := make([]Account, 0, len(keyed))
	for _, ka := range keyed {
		addr, err := solana.PublicKeyFromBase58(ka.Pubkey)
		if err != nil {
			g.logger.WithError(err).WithField("pubkey", ka.Pubkey).Warn("skipping account with invalid address")
			continue
		}
		data, err := ka.Account.Decode()
		if err != nil {
			g.logger.WithError(err).WithField("pubkey", ka.Pubkey).Warn("skipping account with undecodable data")
			continue
		}
		out = append(out, Account{Address: addr, Data: data})
	}
	return out, nil
}

func (g *RPCGateway) GetAccountsBatch(ctx context.Context, addrs []solana.PublicKey) ([][]byte, error) {
	out := make([][]byte, 0, len(addrs))

	for start := 0; start < len(addrs); start += constants.MaxAccountsPerRequest {
		end := start + constants.MaxAccountsPerRequest
		if end > len(addrs) {
			end = len(addrs)
		}

		keys := make([]string, 0, end-start)
		for _, a := range addrs[start:end] {
			keys = append(keys, a.String())
		}

		infos, err := g.client.GetMultipleAccounts(ctx, keys, string(g.cfg.Commitment))
		if err != nil {
			return nil, wrapErr("getMultipleAccounts", err)
		}

		for i, info := range infos {
			if info == nil {
				out = append(out, nil)
				continue
			}
			data, err := info.Decode()
			if err != nil {
				return nil, fmt.Errorf("account %s: %w", keys[i], err)
			}
			out = append(out, data)
		}
	}
	return out, nil
}

func (g *RPCGateway) GetBalance(ctx context.Context, addr solana.PublicKey) (uint64, error) {
	lamports, err := g.client.GetBalance(ctx, addr.String(), string(g.cfg.Commitment))
	if err != nil {
		return 0, wrapErr("getBalance", err)
	}
	return lamports, nil
}

func (g *RPCGateway) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	raw, err := g.client.GetLatestBlockhash(ctx, string(g.cfg.Commitment))
	if err != nil {
		return solana.Hash{}, wrapErr("getLatestBlockhash", err)
	}
	h, err := solana.HashFromBase58(raw)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("invalid blockhash %q: %w", raw, err)
	}
	return h, nil
}

func (g *RPCGateway) SubmitTransaction(ctx context.Context, signed []byte) (solana.Signature, error) {
	encoded := base64.StdEncoding.EncodeToString(signed)

	raw, err := g.client.SendTransaction(ctx, encoded, string(g.cfg.Commitment))
	if err != nil {
		var rpcErr *rpc.RPCError
		if errors.As(err, &rpcErr) {
			return solana.Signature{}, &SubmissionError{Code: rpcErr.Code, Message: rpcErr.Message}
		}
		return solana.Signature{}, wrapErr("sendTransaction", err)
	}

	sig, err := solana.SignatureFromBase58(raw)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("invalid signature %q: %w", raw, err)
	}
	return sig, nil
}

func (g *RPCGateway) SignatureStatus(ctx context.Context, sig solana.Signature, commitment solrpc.CommitmentType) (Outcome, error) {
	statuses, err := g.client.GetSignatureStatuses(ctx, []string{sig.String()})
	if err != nil {
		return Outcome{Status: StatusUnknown}, wrapErr("getSignatureStatuses", err)
	}
	if len(statuses) == 0 || statuses[0] == nil {
		return Outcome{Status: StatusUnknown}, nil
	}
	return classifyStatus(statuses[0], commitment), nil
}

// classifyStatus maps a signature status to an outcome at the requested commitment.
// A transaction that landed with an error is Failed regardless of commitment.
func classifyStatus(s *rpc.SignatureStatus, commitment solrpc.CommitmentType) Outcome {
	if s.Err != nil {
		return Outcome{Status: StatusFailed, Reason: fmt.Sprintf("%v", s.Err), Slot: s.Slot}
	}

	reached := false
	switch commitment {
	case solrpc.CommitmentProcessed:
		reached = s.ConfirmationStatus != ""
	case solrpc.CommitmentFinalized:
		reached = s.ConfirmationStatus == "finalized"
	default:
		reached = s.ConfirmationStatus == "confirmed" || s.ConfirmationStatus == "finalized"
	}

	if reached {
		return Outcome{Status: StatusSuccess, Slot: s.Slot}
	}
	return Outcome{Status: StatusUnknown, Slot: s.Slot}
}

func (g *RPCGateway) Confirm(ctx context.Context, sig solana.Signature, commitment solrpc.CommitmentType) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.ConfirmTimeout)
	defer cancel()

	backoff := g.cfg.PollInterval
	last := Outcome{Status: StatusUnknown}

	for poll := 0; poll < g.cfg.ConfirmMaxPolls; poll++ {
		out, err := g.SignatureStatus(ctx, sig, commitment)
		if err != nil {
			// transient lookup failures do not decide the outcome
			g.logger.WithError(err).WithFields(logrus.Fields{
				"signature": sig.String(),
				"poll":      poll,
			}).Debug("signature status lookup failed")
		} else if out.Status != StatusUnknown {
			return out, nil
		} else {
			last = out
		}

		if poll == g.cfg.ConfirmMaxPolls-1 {
			break
		}

		select {
		case <-ctx.Done():
			g.logger.WithField("signature", sig.String()).Debug("confirmation budget exhausted")
			return last, nil
		case <-time.After(backoff):
			backoff *= 2
			if backoff > g.cfg.MaxPollInterval {
				backoff = g.cfg.MaxPollInterval
			}
		}
	}

	return last, nil
}
