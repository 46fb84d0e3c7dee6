package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"guessrounds/internal/config"
)

// Client talks JSON-RPC to a chain node. Reads used by the claim workflow
// (balance, blockhash) are retried a small bounded number of times with a
// fixed backoff; submission is attempted once under its own deadline.
type Client struct {
	httpClient    *http.Client
	endpoint      string
	attempts      int
	backoff       time.Duration
	submitTimeout time.Duration
	fallbackFee   decimal.Decimal
	logger        *zap.Logger
}

func NewClient(httpClient *http.Client, cfg config.ChainConfig, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	submitTimeout := cfg.SubmitTimeout
	if submitTimeout <= 0 {
		submitTimeout = 20 * time.Second
	}
	fee, err := decimal.NewFromString(strings.TrimSpace(cfg.FallbackFee))
	if err != nil || fee.IsNegative() {
		fee = decimal.NewFromInt(5000).Shift(-9)
	}
	return &Client{
		httpClient:    httpClient,
		endpoint:      strings.TrimRight(cfg.RPCEndpoint, "/"),
		attempts:      attempts,
		backoff:       backoff,
		submitTimeout: submitTimeout,
		fallbackFee:   fee,
		logger:        logger,
	}
}

// SignatureStatus is the reconciler's view of one submitted transaction.
type SignatureStatus struct {
	Signature string
	Known     bool
	Confirmed bool
	Failed    bool
	Raw       json.RawMessage
}

// Balance returns the account balance in token units.
func (c *Client) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	var result struct {
		Value uint64 `json:"value"`
	}
	err := c.withRetry(ctx, "getBalance", func() error {
		return c.call(ctx, "getBalance", []any{address}, &result)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return FromLamports(result.Value), nil
}

// EstimateTransferFee returns the flat network fee estimate for a single
// transfer, in token units.
func (c *Client) EstimateTransferFee(ctx context.Context) (decimal.Decimal, error) {
	if c == nil {
		return decimal.Zero, fmt.Errorf("chain client is nil")
	}
	return c.fallbackFee, nil
}

// Transfer builds, signs and submits one transfer of amount token units
// from the keypair to the recipient. It returns the base58 signature on
// acceptance; it does not wait for confirmation.
func (c *Client) Transfer(ctx context.Context, from *Keypair, to string, amount decimal.Decimal) (string, error) {
	if c == nil || from == nil {
		return "", fmt.Errorf("chain client or keypair is nil")
	}
	lamports, err := ToLamports(amount)
	if err != nil {
		return "", err
	}
	blockhash, err := c.latestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch blockhash: %w", err)
	}
	wire, signature, err := BuildTransfer(from, to, lamports, blockhash)
	if err != nil {
		return "", err
	}

	submitCtx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()
	var got string
	err = c.call(submitCtx, "sendTransaction", []any{wire, map[string]any{"encoding": "base64"}}, &got)
	if err != nil {
		return "", fmt.Errorf("submit transfer: %w", err)
	}
	if got != "" {
		// The node echoes the first signature; prefer its value.
		signature = got
	}
	return signature, nil
}

// SignatureStatuses resolves confirmation state for submitted signatures.
func (c *Client) SignatureStatuses(ctx context.Context, signatures []string) ([]SignatureStatus, error) {
	if len(signatures) == 0 {
		return nil, nil
	}
	var result struct {
		Value []json.RawMessage `json:"value"`
	}
	params := []any{signatures, map[string]any{"searchTransactionHistory": true}}
	if err := c.call(ctx, "getSignatureStatuses", params, &result); err != nil {
		return nil, err
	}
	out := make([]SignatureStatus, len(signatures))
	for i, sig := range signatures {
		st := SignatureStatus{Signature: sig}
		if i < len(result.Value) && len(result.Value[i]) > 0 && string(result.Value[i]) != "null" {
			var parsed struct {
				ConfirmationStatus string          `json:"confirmationStatus"`
				Err                json.RawMessage `json:"err"`
			}
			if err := json.Unmarshal(result.Value[i], &parsed); err == nil {
				st.Known = true
				st.Raw = result.Value[i]
				st.Failed = len(parsed.Err) > 0 && string(parsed.Err) != "null"
				status := strings.ToLower(parsed.ConfirmationStatus)
				st.Confirmed = !st.Failed && (status == "confirmed" || status == "finalized")
			}
		}
		out[i] = st
	}
	return out, nil
}

func (c *Client) latestBlockhash(ctx context.Context) (string, error) {
	var result struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	err := c.withRetry(ctx, "getLatestBlockhash", func() error {
		return c.call(ctx, "getLatestBlockhash", []any{}, &result)
	})
	if err != nil {
		return "", err
	}
	if result.Value.Blockhash == "" {
		return "", fmt.Errorf("node returned empty blockhash")
	}
	return result.Value.Blockhash, nil
}

func (c *Client) withRetry(ctx context.Context, method string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if attempt < c.attempts {
			if c.logger != nil {
				c.logger.Warn("chain rpc retry",
					zap.String("method", method),
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
			}
			select {
			case <-ctx.Done():
				return err
			case <-time.After(c.backoff):
			}
		}
	}
	return err
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	if c == nil || c.httpClient == nil {
		return fmt.Errorf("chain client is nil")
	}
	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s: http %d: %s", method, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if result != nil && len(envelope.Result) > 0 {
		return json.Unmarshal(envelope.Result, result)
	}
	return nil
}
