package rpc

import (
	"encoding/base64"
	"fmt"
)

// RPCError represents a JSON-RPC error response
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// RPCContext is the slot context attached to most results
type RPCContext struct {
	Slot uint64 `json:"slot"`
}

// AccountInfo is an account as returned with base64 encoding
type AccountInfo struct {
	Data       []string `json:"data"` // [payload, encoding]
	Executable bool     `json:"executable"`
	Lamports   uint64   `json:"lamports"`
	Owner      string   `json:"owner"`
	RentEpoch  uint64   `json:"rentEpoch"`
}

// Decode returns the raw account data.
func (a *AccountInfo) Decode() ([]byte, error) {
	if len(a.Data) == 0 {
		return []byte{}, nil
	}
	if len(a.Data) > 1 && a.Data[1] != "base64" {
		return nil, fmt.Errorf("unexpected account encoding %q", a.Data[1])
	}
	raw, err := base64.StdEncoding.DecodeString(a.Data[0])
	if err != nil {
		return nil, fmt.Errorf("decode account data: %w", err)
	}
	return raw, nil
}

// KeyedAccount is an entry of getProgramAccounts
type KeyedAccount struct {
	Pubkey  string      `json:"pubkey"`
	Account AccountInfo `json:"account"`
}

// ProgramAccountsResponse is the response from getProgramAccounts
type ProgramAccountsResponse struct {
	Result []KeyedAccount `json:"result"`
	Error  *RPCError      `json:"error"`
}

// MultipleAccountsResponse is the response from getMultipleAccounts
type MultipleAccountsResponse struct {
	Result *struct {
		Context RPCContext     `json:"context"`
		Value   []*AccountInfo `json:"value"`
	} `json:"result"`
	Error *RPCError `json:"error"`
}

// BalanceResponse is the response from getBalance
type BalanceResponse struct {
	Result *struct {
		Context RPCContext `json:"context"`
		Value   uint64     `json:"value"`
	} `json:"result"`
	Error *RPCError `json:"error"`
}

// BlockhashResponse is the response from getLatestBlockhash
type BlockhashResponse struct {
	Result *struct {
		Context RPCContext `json:"context"`
		Value   struct {
			Blockhash            string `json:"blockhash"`
			LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
		} `json:"value"`
	} `json:"result"`
	Error *RPCError `json:"error"`
}

// SendTransactionResponse is the response from sendTransaction
type SendTransactionResponse struct {
	Result string    `json:"result"`
	Error  *RPCError `json:"error"`
}

// SignatureStatus is one entry of getSignatureStatuses
type SignatureStatus struct {
	Slot               uint64      `json:"slot"`
	Confirmations      *uint64     `json:"confirmations"`
	Err                interface{} `json:"err"`
	ConfirmationStatus string      `json:"confirmationStatus"`
}

// SignatureStatusesResponse is the response from getSignatureStatuses
type SignatureStatusesResponse struct {
	Result *struct {
		Context RPCContext         `json:"context"`
		Value   []*SignatureStatus `json:"value"`
	} `json:"result"`
	Error *RPCError `json:"error"`
}
