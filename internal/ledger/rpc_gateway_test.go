package ledger

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aman-zulfiqar/solana-amm-client/internal/rpc"
	"github.com/gagliardetto/solana-go"
	solrpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcHandler func(params []json.RawMessage) (result interface{}, rpcErr *rpc.RPCError)

func fakeNode(t *testing.T, handlers map[string]rpcHandler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		h, ok := handlers[req.Method]
		if !ok {
			t.Errorf("unexpected method %s", req.Method)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		result, rpcErr := h(req.Params)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": 1}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newGateway(url string, cfg RPCGatewayConfig) *RPCGateway {
	l := logrus.New()
	l.SetOutput(io.Discard)
	client := rpc.NewClient(rpc.ClientConfig{
		BaseURL:      url,
		Timeout:      time.Second,
		MaxRetries:   0,
		RetryBackoff: time.Millisecond,
		Logger:       l,
	})
	cfg.Logger = l
	return NewRPCGateway(client, cfg)
}

func b64(b []byte) []string {
	return []string{base64.StdEncoding.EncodeToString(b), "base64"}
}

func TestGetAccountsBatch_AlignedWithMissing(t *testing.T) {
	a := solana.NewWallet().PublicKey()
	b := solana.NewWallet().PublicKey()

	srv := fakeNode(t, map[string]rpcHandler{
		"getMultipleAccounts": func(params []json.RawMessage) (interface{}, *rpc.RPCError) {
			var keys []string
			require.NoError(t, json.Unmarshal(params[0], &keys))
			assert.Equal(t, []string{a.String(), b.String()}, keys)
			return map[string]interface{}{
				"context": map[string]interface{}{"slot": 5},
				"value": []interface{}{
					map[string]interface{}{"data": b64([]byte{9, 9}), "lamports": 1},
					nil,
				},
			}, nil
		},
	})

	g := newGateway(srv.URL, RPCGatewayConfig{})
	out, err := g.GetAccountsBatch(context.Background(), []solana.PublicKey{a, b})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []byte{9, 9}, out[0])
	assert.Nil(t, out[1])
}

func TestGetAccountsBatch_ChunksLargeRequests(t *testing.T) {
	var calls int32
	srv := fakeNode(t, map[string]rpcHandler{
		"getMultipleAccounts": func(params []json.RawMessage) (interface{}, *rpc.RPCError) {
			atomic.AddInt32(&calls, 1)
			var keys []string
			require.NoError(t, json.Unmarshal(params[0], &keys))
			vals := make([]interface{}, len(keys))
			return map[string]interface{}{"value": vals}, nil
		},
	})

	addrs := make([]solana.PublicKey, 150)
	for i := range addrs {
		addrs[i] = solana.NewWallet().PublicKey()
	}

	g := newGateway(srv.URL, RPCGatewayConfig{})
	out, err := g.GetAccountsBatch(context.Background(), addrs)
	require.NoError(t, err)
	assert.Len(t, out, 150)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGateway_UnreachableIsGatewayUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := newGateway(srv.URL, RPCGatewayConfig{})
	_, err := g.GetProgramAccounts(context.Background(), solana.NewWallet().PublicKey(), 104)
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestSubmitTransaction_RejectedIsSubmissionError(t *testing.T) {
	srv := fakeNode(t, map[string]rpcHandler{
		"sendTransaction": func(params []json.RawMessage) (interface{}, *rpc.RPCError) {
			return nil, &rpc.RPCError{Code: -32002, Message: "insufficient funds for fee"}
		},
	})

	g := newGateway(srv.URL, RPCGatewayConfig{})
	_, err := g.SubmitTransaction(context.Background(), []byte{1, 2, 3})

	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Contains(t, subErr.Message, "insufficient funds")
}

func TestConfirm_SuccessAfterPending(t *testing.T) {
	var polls int32
	srv := fakeNode(t, map[string]rpcHandler{
		"getSignatureStatuses": func(params []json.RawMessage) (interface{}, *rpc.RPCError) {
			if atomic.AddInt32(&polls, 1) < 3 {
				return map[string]interface{}{"value": []interface{}{nil}}, nil
			}
			return map[string]interface{}{"value": []interface{}{
				map[string]interface{}{"slot": 77, "err": nil, "confirmationStatus": "confirmed"},
			}}, nil
		},
	})

	g := newGateway(srv.URL, RPCGatewayConfig{
		ConfirmTimeout:  2 * time.Second,
		ConfirmMaxPolls: 5,
		PollInterval:    time.Millisecond,
	})
	out, err := g.Confirm(context.Background(), solana.Signature{1}, solrpc.CommitmentConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, uint64(77), out.Slot)
}

func TestConfirm_FailedOnChain(t *testing.T) {
	srv := fakeNode(t, map[string]rpcHandler{
		"getSignatureStatuses": func(params []json.RawMessage) (interface{}, *rpc.RPCError) {
			return map[string]interface{}{"value": []interface{}{
				map[string]interface{}{"slot": 5, "err": map[string]interface{}{"InstructionError": []interface{}{1, "Custom"}}, "confirmationStatus": "confirmed"},
			}}, nil
		},
	})

	g := newGateway(srv.URL, RPCGatewayConfig{PollInterval: time.Millisecond})
	out, err := g.Confirm(context.Background(), solana.Signature{1}, solrpc.CommitmentConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Contains(t, out.Reason, "InstructionError")
}

func TestConfirm_BudgetExhaustedIsUnknown(t *testing.T) {
	var polls int32
	srv := fakeNode(t, map[string]rpcHandler{
		"getSignatureStatuses": func(params []json.RawMessage) (interface{}, *rpc.RPCError) {
			atomic.AddInt32(&polls, 1)
			return map[string]interface{}{"value": []interface{}{
				map[string]interface{}{"slot": 5, "err": nil, "confirmationStatus": "processed"},
			}}, nil
		},
	})

	g := newGateway(srv.URL, RPCGatewayConfig{
		ConfirmTimeout:  time.Second,
		ConfirmMaxPolls: 3,
		PollInterval:    time.Millisecond,
	})
	out, err := g.Confirm(context.Background(), solana.Signature{1}, solrpc.CommitmentConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, out.Status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&polls))
}

func TestClassifyStatus_Commitment(t *testing.T) {
	processed := &rpc.SignatureStatus{ConfirmationStatus: "processed"}
	finalized := &rpc.SignatureStatus{ConfirmationStatus: "finalized"}

	assert.Equal(t, StatusSuccess, classifyStatus(processed, solrpc.CommitmentProcessed).Status)
	assert.Equal(t, StatusUnknown, classifyStatus(processed, solrpc.CommitmentConfirmed).Status)
	assert.Equal(t, StatusSuccess, classifyStatus(finalized, solrpc.CommitmentConfirmed).Status)
	assert.Equal(t, StatusSuccess, classifyStatus(finalized, solrpc.CommitmentFinalized).Status)
}
