// Package chain implements the rate-limited JSON-RPC client for the upstream
// chain data provider and the normalization of its raw records.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/time/rate"

	"github.com/wallet-explorer/internal/config"
	"github.com/wallet-explorer/internal/errors"
	"github.com/wallet-explorer/internal/retry"
	"github.com/wallet-explorer/internal/types"
)

// Client issues JSON-RPC calls to the chain provider. Every call is paced by
// a token bucket and retried with exponential backoff when the provider
// throttles; any other failure propagates immediately.
type Client struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	retryCfg   *retry.Config
	source     types.Source
}

// NewClient creates a provider client from configuration.
func NewClient(cfg *config.ProviderConfig) *Client {
	endpoint := strings.TrimRight(cfg.BaseURL, "/")
	if cfg.APIKey != "" {
		endpoint = endpoint + "/" + cfg.APIKey
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 3
	}

	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		retryCfg:   retry.DefaultConfig(),
		source:     types.SourceInfura,
	}
}

// SetSleep overrides the backoff sleep function. Tests use this to simulate
// throttling deterministically without real delays.
func (c *Client) SetSleep(sleep retry.SleepFunc) {
	c.retryCfg.Sleep = sleep
}

// Source returns the provider tag recorded on transactions this client
// produced.
func (c *Client) Source() types.Source {
	return c.source
}

// Call issues one JSON-RPC request and decodes its result into result.
// Throttling responses (HTTP 429 or a provider throttling error) are retried
// up to the configured bound; exhausting retries surfaces RATE_LIMIT_EXCEEDED
// and transport failures surface PROVIDER_UNAVAILABLE.
func (c *Client) Call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.NewProviderUnavailableError(method, err)
	}

	var lastThrottled bool
	outcome := retry.Do(ctx, c.retryCfg, func(ctx context.Context, attempt int) (bool, error) {
		throttled, err := c.callOnce(ctx, method, params, result)
		lastThrottled = throttled
		return throttled, err
	})

	if outcome.Success {
		return nil
	}
	if lastThrottled {
		return errors.NewRateLimitExceededError(method, outcome.Attempts)
	}
	return outcome.LastError
}

// callOnce performs a single request. It reports whether the failure was a
// throttling response that warrants a retry.
func (c *Client) callOnce(ctx context.Context, method string, params []interface{}, result interface{}) (bool, error) {
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return false, errors.NewInternalError("failed to marshal RPC request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return false, errors.NewProviderUnavailableError(method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, errors.NewProviderUnavailableError(method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, errors.NewProviderUnavailableError(method, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return true, fmt.Errorf("provider returned status 429 for %s", method)
	}
	if resp.StatusCode != http.StatusOK {
		return false, errors.NewProviderUnavailableError(method,
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody)))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return false, errors.NewProviderUnavailableError(method, err)
	}

	if rpcResp.Error != nil {
		if isThrottlingError(rpcResp.Error) {
			return true, fmt.Errorf("provider throttled %s: %s", method, rpcResp.Error.Message)
		}
		return false, errors.NewProviderUnavailableError(method,
			fmt.Errorf("RPC error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message))
	}

	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return false, errors.NewProviderUnavailableError(method, err)
		}
	}

	return false, nil
}

// isThrottlingError recognizes provider-specific throttling responses.
// -32005 is the conventional "limit exceeded" JSON-RPC code.
func isThrottlingError(rpcErr *rpcError) bool {
	if rpcErr.Code == -32005 {
		return true
	}
	msg := strings.ToLower(rpcErr.Message)
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "429")
}

// BlockNumber returns the current head block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var hex string
	if err := c.Call(ctx, MethodBlockNumber, nil, &hex); err != nil {
		return 0, err
	}
	return decodeUint64(MethodBlockNumber, hex)
}

// GetTransactionCount returns the nonce of an address at the latest block.
func (c *Client) GetTransactionCount(ctx context.Context, address string) (uint64, error) {
	var hex string
	if err := c.Call(ctx, MethodGetTransactionCount, []interface{}{address, "latest"}, &hex); err != nil {
		return 0, err
	}
	return decodeUint64(MethodGetTransactionCount, hex)
}

// GetBalance returns the balance of an address at the latest block, in base
// units.
func (c *Client) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	var hex string
	if err := c.Call(ctx, MethodGetBalance, []interface{}{address, "latest"}, &hex); err != nil {
		return nil, err
	}
	balance, err := hexutil.DecodeBig(hex)
	if err != nil {
		return nil, errors.NewProviderUnavailableError(MethodGetBalance,
			fmt.Errorf("invalid balance %q: %w", hex, err))
	}
	return balance, nil
}

// GetBlockByNumber returns a block with its full transaction objects.
func (c *Client) GetBlockByNumber(ctx context.Context, number uint64) (*RawBlock, error) {
	var block *RawBlock
	params := []interface{}{hexutil.EncodeUint64(number), true}
	if err := c.Call(ctx, MethodGetBlockByNumber, params, &block); err != nil {
		return nil, err
	}
	return block, nil
}

// GetTransactionReceipt returns the receipt for a mined transaction, or nil
// when the provider has none.
func (c *Client) GetTransactionReceipt(ctx context.Context, hash string) (*RawReceipt, error) {
	var receipt *RawReceipt
	if err := c.Call(ctx, MethodGetTransactionReceipt, []interface{}{hash}, &receipt); err != nil {
		return nil, err
	}
	return receipt, nil
}

// GetTransactionByHash resolves a single transaction by hash, or nil when
// the provider does not know it.
func (c *Client) GetTransactionByHash(ctx context.Context, hash string) (*RawTransaction, error) {
	var tx *RawTransaction
	if err := c.Call(ctx, MethodGetTransactionByHash, []interface{}{hash}, &tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// decodeUint64 parses a 0x-prefixed hex quantity.
func decodeUint64(method, hex string) (uint64, error) {
	v, err := hexutil.DecodeUint64(hex)
	if err != nil {
		return 0, errors.NewProviderUnavailableError(method,
			fmt.Errorf("invalid hex quantity %q: %w", hex, err))
	}
	return v, nil
}
