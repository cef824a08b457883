// Package mempool is the chain relay client: fee estimates, mempool
// acceptance tests, spent-output checks and broadcast against a
// mempool.space-style HTTP API.
package mempool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/LerianStudio/lib-uncommons/v2/uncommons/backoff"
)

const (
	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 1 << 20

	getAttempts   = 3
	retryBaseWait = 100 * time.Millisecond
)

// TestResult is the relay's verdict on a would-be transaction.
type TestResult struct {
	Allowed          bool    `json:"allowed"`
	RejectReason     string  `json:"reject_reason"`
	EffectiveFeeRate float64 `json:"effective_fee_rate_sat_vb"`
}

// Outspend reports whether a specific output has been spent.
type Outspend struct {
	Spent bool `json:"spent"`
}

type Client struct {
	baseURL string
	client  *http.Client
}

type Option func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.client.Timeout = d }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FeeEstimates returns the relay's fee-rate estimates in sat/vB keyed by
// confirmation target in blocks.
func (c *Client) FeeEstimates(ctx context.Context) (map[string]float64, error) {
	var out map[string]float64
	if err := c.getJSON(ctx, "/api/fee-estimates", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TestAccept submits the raw transaction to the relay's acceptance test
// without broadcasting it.
func (c *Client) TestAccept(ctx context.Context, rawTxHex string) (TestResult, error) {
	var out TestResult
	if err := c.postJSON(ctx, "/api/txs/test", rawTxHex, &out); err != nil {
		return TestResult{}, err
	}
	return out, nil
}

// Broadcast submits the raw transaction to the network and returns its txid.
func (c *Client) Broadcast(ctx context.Context, rawTxHex string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/tx", strings.NewReader(rawTxHex))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("broadcast: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("broadcast: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("broadcast: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return strings.TrimSpace(string(body)), nil
}

// TxOutspend reports the spend state of txid:vout.
func (c *Client) TxOutspend(ctx context.Context, txid string, vout uint32) (Outspend, error) {
	var out Outspend
	if err := c.getJSON(ctx, fmt.Sprintf("/api/tx/%s/outspend/%d", txid, vout), &out); err != nil {
		return Outspend{}, err
	}
	return out, nil
}

// getJSON issues a GET with bounded retries. Fee and outspend lookups are
// idempotent, so transport errors and 5xx responses are retried with
// jittered backoff.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	var lastErr error
	for attempt := 0; attempt < getAttempts; attempt++ {
		if attempt > 0 {
			wait := backoff.FullJitter(backoff.Exponential(retryBaseWait, attempt-1))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		retryable, err := c.getJSONOnce(ctx, path, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
	}
	return lastErr
}

func (c *Client) getJSONOnce(ctx context.Context, path string, out any) (retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return true, fmt.Errorf("relay %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return true, fmt.Errorf("relay %s: status %d", req.URL.Path, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		return false, fmt.Errorf("relay %s: status %d: %s", req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return false, fmt.Errorf("relay %s: decode response: %w", req.URL.Path, err)
	}
	return false, nil
}

func (c *Client) postJSON(ctx context.Context, path, body string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("relay %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		return fmt.Errorf("relay %s: status %d: %s", req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("relay %s: decode response: %w", req.URL.Path, err)
	}
	return nil
}
