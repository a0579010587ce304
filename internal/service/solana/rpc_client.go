package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	xhttp "X402Chat/pkg/http"
)

const (
	DefaultTimeout     = 15 * time.Second
	DefaultMaxRetries  = 2
	DefaultRetryDelay  = 300 * time.Millisecond
	DefaultMaxDelay    = 3 * time.Second
	DefaultBackoffMult = 2.0
)

// RPCClient implements JSON-RPC 2.0 over HTTP against a Solana node.
type RPCClient struct {
	endpoint    string
	http        *xhttp.Client
	timeout     time.Duration
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// RPCOption configures RPCClient.
type RPCOption func(*RPCClient)

func WithRPCTimeout(d time.Duration) RPCOption {
	return func(c *RPCClient) {
		c.timeout = d
	}
}

func WithMaxRetries(n int) RPCOption {
	return func(c *RPCClient) {
		c.maxRetries = n
	}
}

func WithRetryDelay(initial, maxDelay time.Duration) RPCOption {
	return func(c *RPCClient) {
		c.retryDelay = initial
		c.maxDelay = maxDelay
	}
}

func NewRPCClient(endpoint string, opts ...RPCOption) *RPCClient {
	c := &RPCClient{
		endpoint:    endpoint,
		timeout:     DefaultTimeout,
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http = xhttp.NewClient(xhttp.WithTimeout(c.timeout))
	return c
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is an error object returned by the node. It is never retried.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// call performs one JSON-RPC call, retrying transport failures, 429 and 5xx
// with exponential backoff.
func (c *RPCClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
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
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		var resp rpcResponse
		err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
			Method: xhttp.MethodPost,
			URL:    c.endpoint,
			Body:   req,
		}, &resp)
		if err != nil {
			if !retryable(err) || ctx.Err() != nil {
				return fmt.Errorf("%s: %w", method, err)
			}
			lastErr = err
			continue
		}

		if resp.Error != nil {
			return resp.Error
		}

		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("%s: unmarshal result: %w", method, err)
			}
		}
		return nil
	}

	return fmt.Errorf("%s: max retries exceeded: %w", method, lastErr)
}

func retryable(err error) bool {
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return true
}

type contextValue[T any] struct {
	Value T `json:"value"`
}

// GetAccountInfo returns nil, nil when the account does not exist.
func (c *RPCClient) GetAccountInfo(ctx context.Context, account, commitment string) (*AccountInfo, error) {
	params := []interface{}{
		account,
		map[string]interface{}{"encoding": "base64", "commitment": commitment},
	}
	var res contextValue[*AccountInfo]
	if err := c.call(ctx, "getAccountInfo", params, &res); err != nil {
		return nil, err
	}
	return res.Value, nil
}

// GetParsedTransaction returns nil, nil when the signature is unknown at the given commitment.
func (c *RPCClient) GetParsedTransaction(ctx context.Context, signature, commitment string) (*ParsedTransaction, error) {
	params := []interface{}{
		signature,
		map[string]interface{}{
			"encoding":                       "jsonParsed",
			"commitment":                     commitment,
			"maxSupportedTransactionVersion": 0,
		},
	}
	var tx *ParsedTransaction
	if err := c.call(ctx, "getTransaction", params, &tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (c *RPCClient) GetTokenAccountBalance(ctx context.Context, account, commitment string) (*UITokenAmount, error) {
	params := []interface{}{
		account,
		map[string]interface{}{"commitment": commitment},
	}
	var res contextValue[UITokenAmount]
	if err := c.call(ctx, "getTokenAccountBalance", params, &res); err != nil {
		return nil, err
	}
	return &res.Value, nil
}

func (c *RPCClient) GetLatestBlockhash(ctx context.Context, commitment string) (*Blockhash, error) {
	params := []interface{}{
		map[string]interface{}{"commitment": commitment},
	}
	var res contextValue[Blockhash]
	if err := c.call(ctx, "getLatestBlockhash", params, &res); err != nil {
		return nil, err
	}
	if res.Value.Blockhash == "" {
		return nil, fmt.Errorf("getLatestBlockhash: empty blockhash")
	}
	return &res.Value, nil
}

// SendTransaction submits a signed, base64 encoded transaction and returns its signature.
func (c *RPCClient) SendTransaction(ctx context.Context, encoded string) (string, error) {
	params := []interface{}{
		encoded,
		map[string]interface{}{"encoding": "base64", "preflightCommitment": CommitmentConfirmed},
	}
	var sig string
	if err := c.call(ctx, "sendTransaction", params, &sig); err != nil {
		return "", err
	}
	return sig, nil
}
