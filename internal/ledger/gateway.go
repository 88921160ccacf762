package ledger

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
	solrpc "github.com/gagliardetto/solana-go/rpc"
)

// ErrGatewayUnavailable means the ledger could not be reached after retries.
var ErrGatewayUnavailable = errors.New("ledger gateway unavailable")

// Account is a program-owned account returned by a scan.
type Account struct {
	Address solana.PublicKey
	Data    []byte
}

// Status is the settlement state of a submitted transaction.
type Status int

const (
	StatusUnknown Status = iota
	StatusSuccess
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the observed result of a submitted transaction.
type Outcome struct {
	Status Status
	Reason string
	Slot   uint64
}

// Gateway is the only component that talks to the ledger.
type Gateway interface {
	// GetProgramAccounts scans accounts owned by programID with exactly dataSize bytes.
	GetProgramAccounts(ctx context.Context, programID solana.PublicKey, dataSize uint64) ([]Account, error)
	// GetAccountsBatch reads addrs in one round trip; a nil entry means the account does not exist.
	GetAccountsBatch(ctx context.Context, addrs []solana.PublicKey) ([][]byte, error)
	// GetBalance returns native lamports held by addr.
	GetBalance(ctx context.Context, addr solana.PublicKey) (uint64, error)
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	SubmitTransaction(ctx context.Context, signed []byte) (solana.Signature, error)
	// SignatureStatus performs a single status lookup.
	SignatureStatus(ctx context.Context, sig solana.Signature, commitment solrpc.CommitmentType) (Outcome, error)
	// Confirm polls until the commitment is reached, the transaction fails, or
	// the confirmation budget runs out; the latter yields StatusUnknown.
	Confirm(ctx context.Context, sig solana.Signature, commitment solrpc.CommitmentType) (Outcome, error)
}

// SubmissionError is a transaction the ledger refused outright.
type SubmissionError struct {
	Code    int
	Message string
}

func (e *SubmissionError) Error() string {
	return "transaction rejected: " + e.Message
}
