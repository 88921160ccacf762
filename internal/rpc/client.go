package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aman-zulfiqar/solana-amm-client/internal/metrics"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrUnavailable is returned when the endpoint could not be reached after all
// retries, or the circuit breaker is open.
var ErrUnavailable = errors.New("rpc endpoint unavailable")

// Client is an HTTP client with retry, rate limiting and a circuit breaker for Solana RPC
type Client struct {
	httpClient   *http.Client
	baseURL      string
	maxRetries   int
	retryBackoff time.Duration
	limiter      *rate.Limiter
	breaker      *gobreaker.CircuitBreaker
	logger       *logrus.Logger
	metrics      *metrics.Metrics
}

// ClientConfig holds configuration for the RPC client
type ClientConfig struct {
	BaseURL      string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration

	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64
	Burst     int

	// BreakerFailures is the number of consecutive failed requests that opens the breaker.
	BreakerFailures uint32
	BreakerTimeout  time.Duration

	Logger  *logrus.Logger
	Metrics *metrics.Metrics
}

// NewClient creates a new RPC client with retry support
func NewClient(cfg ClientConfig) *Client {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout == 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL:      cfg.BaseURL,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
		limiter:      limiter,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
	}

	failures := cfg.BreakerFailures
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "solana-rpc",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("RPC circuit breaker state changed")
			c.metrics.SetBreakerState(name, float64(to))
		},
	})

	return c
}

// Call makes a JSON-RPC call with retry logic. result receives the whole
// response envelope, so callers check its Error field.
func (c *Client) Call(ctx context.Context, method string, params interface{}, result interface{}) (err error) {
	start := time.Now()
	defer func() { c.metrics.ObserveRPC(method, err, time.Since(start)) }()

	body := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"backoff": backoff,
				"method":  method,
				"error":   lastErr,
			}).Debug("retrying RPC call")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2 // exponential backoff
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		out, err := c.breaker.Execute(func() (interface{}, error) {
			return c.doRequest(ctx, data)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return fmt.Errorf("%w: %s: %v", ErrUnavailable, method, err)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}

		if err := json.Unmarshal(out.([]byte), result); err != nil {
			return fmt.Errorf("failed to unmarshal %s response: %w", method, err)
		}

		return nil
	}

	return fmt.Errorf("%w: %s: max retries exceeded: %v", ErrUnavailable, method, lastErr)
}

func (c *Client) doRequest(ctx context.Context, data []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewBuffer(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// Handle rate limiting
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limited (429)")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return body, nil
}

// GetProgramAccounts lists accounts owned by programID whose data is exactly dataSize bytes.
func (c *Client) GetProgramAccounts(ctx context.Context, programID string, dataSize uint64, commitment string) ([]KeyedAccount, error) {
	params := []interface{}{
		programID,
		map[string]interface{}{
			"encoding":   "base64",
			"commitment": commitment,
			"filters": []interface{}{
				map[string]interface{}{"dataSize": dataSize},
			},
		},
	}

	var result ProgramAccountsResponse
	if err := c.Call(ctx, "getProgramAccounts", params, &result); err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return result.Result, nil
}

// GetMultipleAccounts returns account infos aligned with addrs; absent accounts are nil.
func (c *Client) GetMultipleAccounts(ctx context.Context, addrs []string, commitment string) ([]*AccountInfo, error) {
	params := []interface{}{
		addrs,
		map[string]interface{}{
			"encoding":   "base64",
			"commitment": commitment,
		},
	}

	var result MultipleAccountsResponse
	if err := c.Call(ctx, "getMultipleAccounts", params, &result); err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, result.Error
	}
	if result.Result == nil {
		return nil, fmt.Errorf("getMultipleAccounts: empty result")
	}
	if len(result.Result.Value) != len(addrs) {
		return nil, fmt.Errorf("getMultipleAccounts: expected %d entries, got %d", len(addrs), len(result.Result.Value))
	}
	return result.Result.Value, nil
}

// GetBalance returns the native balance in lamports.
func (c *Client) GetBalance(ctx context.Context, address string, commitment string) (uint64, error) {
	params := []interface{}{address, map[string]interface{}{"commitment": commitment}}

	var result BalanceResponse
	if err := c.Call(ctx, "getBalance", params, &result); err != nil {
		return 0, err
	}
	if result.Error != nil {
		return 0, result.Error
	}
	if result.Result == nil {
		return 0, fmt.Errorf("getBalance: empty result")
	}
	return result.Result.Value, nil
}

// GetLatestBlockhash returns the latest blockhash (base58).
func (c *Client) GetLatestBlockhash(ctx context.Context, commitment string) (string, error) {
	params := []interface{}{map[string]interface{}{"commitment": commitment}}

	var result BlockhashResponse
	if err := c.Call(ctx, "getLatestBlockhash", params, &result); err != nil {
		return "", err
	}
	if result.Error != nil {
		return "", result.Error
	}
	if result.Result == nil || result.Result.Value.Blockhash == "" {
		return "", fmt.Errorf("getLatestBlockhash: empty result")
	}
	return result.Result.Value.Blockhash, nil
}

// SendTransaction submits a base64-encoded signed transaction and returns its signature.
func (c *Client) SendTransaction(ctx context.Context, encoded string, commitment string) (string, error) {
	params := []interface{}{
		encoded,
		map[string]interface{}{
			"encoding":            "base64",
			"skipPreflight":       false,
			"preflightCommitment": commitment,
			"maxRetries":          0,
		},
	}

	var result SendTransactionResponse
	if err := c.Call(ctx, "sendTransaction", params, &result); err != nil {
		return "", err
	}
	if result.Error != nil {
		return "", result.Error
	}
	return result.Result, nil
}

// GetSignatureStatuses looks up signature statuses, searching history.
func (c *Client) GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error) {
	params := []interface{}{
		signatures,
		map[string]interface{}{"searchTransactionHistory": true},
	}

	var result SignatureStatusesResponse
	if err := c.Call(ctx, "getSignatureStatuses", params, &result); err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, result.Error
	}
	if result.Result == nil {
		return nil, fmt.Errorf("getSignatureStatuses: empty result")
	}
	return result.Result.Value, nil
}
