// Package onchain provides an EVM JSON-RPC client for transfer and log scans.
package onchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"token-trader/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// Client exposes the chain reads needed by the validation stage.
type Client interface {
	// BlockNumber returns the latest block number.
	BlockNumber(ctx context.Context) (int64, error)

	// BlockTimestamp returns the unix timestamp of the given block.
	BlockTimestamp(ctx context.Context, blockNum int64) (int64, error)

	// TokenTransfers returns recent ERC-20 transfers of the given contract,
	// newest first, up to maxCount entries.
	TokenTransfers(ctx context.Context, contract string, maxCount int) ([]Transfer, error)

	// TransferLogs returns Transfer event logs emitted by the contract in
	// the inclusive block range [fromBlock, toBlock].
	TransferLogs(ctx context.Context, contract string, fromBlock, toBlock int64) ([]Log, error)
}

// HTTPClient implements Client using HTTP JSON-RPC 2.0 with an
// Alchemy-compatible endpoint for asset transfers.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a new EVM RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "onchain-rpc",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return c
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs a JSON-RPC call with retries and exponential backoff.
// The circuit breaker wraps the full retry loop, not individual attempts.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	start := time.Now()
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.doCall(ctx, method, params, result)
	})
	observability.RecordProviderCall("onchain", method, time.Since(start).Seconds(), err)
	return err
}

func (c *HTTPClient) doCall(ctx context.Context, method string, params []interface{}, result interface{}) error {
	reqID := c.requestID.Add(1)
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			// RPC errors are not retried
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// BlockNumber retrieves the latest block number.
func (c *HTTPClient) BlockNumber(ctx context.Context) (int64, error) {
	var result string
	if err := c.call(ctx, "eth_blockNumber", nil, &result); err != nil {
		return 0, err
	}
	return parseHexInt(result)
}

// BlockTimestamp retrieves the unix timestamp of a block header.
func (c *HTTPClient) BlockTimestamp(ctx context.Context, blockNum int64) (int64, error) {
	params := []interface{}{hexBlock(blockNum), false}

	var result struct {
		Timestamp string `json:"timestamp"`
	}
	if err := c.call(ctx, "eth_getBlockByNumber", params, &result); err != nil {
		return 0, err
	}
	if result.Timestamp == "" {
		return 0, fmt.Errorf("block %d not found", blockNum)
	}
	return parseHexInt(result.Timestamp)
}

// TokenTransfers retrieves recent ERC-20 transfers of a contract, newest
// first, via the Alchemy transfers API.
func (c *HTTPClient) TokenTransfers(ctx context.Context, contract string, maxCount int) ([]Transfer, error) {
	params := []interface{}{
		map[string]interface{}{
			"fromBlock":         "0x0",
			"toBlock":           "latest",
			"contractAddresses": []string{contract},
			"category":          []string{"erc20"},
			"order":             "desc",
			"maxCount":          hexBlock(int64(maxCount)),
		},
	}

	var result assetTransfersResult
	if err := c.call(ctx, "alchemy_getAssetTransfers", params, &result); err != nil {
		return nil, err
	}

	transfers := make([]Transfer, 0, len(result.Transfers))
	for _, t := range result.Transfers {
		blockNum, err := parseHexInt(t.BlockNum)
		if err != nil {
			continue
		}
		transfers = append(transfers, Transfer{
			Value:    t.rawValue(),
			BlockNum: blockNum,
		})
	}
	return transfers, nil
}

// assetTransfersResult is the raw RPC response for alchemy_getAssetTransfers.
type assetTransfersResult struct {
	Transfers []assetTransfer `json:"transfers"`
}

type assetTransfer struct {
	BlockNum    string           `json:"blockNum"`
	Value       *float64         `json:"value"`
	RawContract assetTransferRaw `json:"rawContract"`
}

type assetTransferRaw struct {
	Value   string `json:"value"`
	Decimal string `json:"decimal"`
}

// rawValue returns the transfer amount in the token's smallest unit.
func (t assetTransfer) rawValue() float64 {
	if t.RawContract.Value != "" {
		if i, ok := new(big.Int).SetString(strings.TrimPrefix(t.RawContract.Value, "0x"), 16); ok {
			f, _ := new(big.Float).SetInt(i).Float64()
			return f
		}
	}
	if t.Value != nil {
		// Provider-normalized value; scale back to the smallest unit.
		decimals := int64(18)
		if t.RawContract.Decimal != "" {
			if d, err := parseHexInt(t.RawContract.Decimal); err == nil {
				decimals = d
			}
		}
		scale, _ := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(decimals), nil)).Float64()
		return *t.Value * scale
	}
	return 0
}

// TransferLogs retrieves Transfer event logs for a contract in a block range.
func (c *HTTPClient) TransferLogs(ctx context.Context, contract string, fromBlock, toBlock int64) ([]Log, error) {
	params := []interface{}{
		map[string]interface{}{
			"address":   contract,
			"fromBlock": hexBlock(fromBlock),
			"toBlock":   hexBlock(toBlock),
			"topics":    []string{TransferTopic},
		},
	}

	var result []logResult
	if err := c.call(ctx, "eth_getLogs", params, &result); err != nil {
		return nil, err
	}

	logs := make([]Log, 0, len(result))
	for _, r := range result {
		blockNum, err := parseHexInt(r.BlockNumber)
		if err != nil {
			continue
		}
		logs = append(logs, Log{
			BlockNumber: blockNum,
			TxHash:      r.TransactionHash,
			Topics:      r.Topics,
		})
	}
	return logs, nil
}

// logResult is the raw RPC response item for eth_getLogs.
type logResult struct {
	BlockNumber     string   `json:"blockNumber"`
	TransactionHash string   `json:"transactionHash"`
	Topics          []string `json:"topics"`
}

// parseHexInt parses a 0x-prefixed hex quantity.
func parseHexInt(s string) (int64, error) {
	trimmed := strings.TrimPrefix(s, "0x")
	if trimmed == "" {
		return 0, fmt.Errorf("empty hex quantity %q", s)
	}
	var n int64
	if _, err := fmt.Sscanf(trimmed, "%x", &n); err != nil {
		return 0, fmt.Errorf("parse hex %q: %w", s, err)
	}
	return n, nil
}

// hexBlock formats a block number as a 0x-prefixed hex quantity.
func hexBlock(n int64) string {
	return fmt.Sprintf("0x%x", n)
}
