// Package ord is the asset index client. The collection index serves the
// per-collection inventory (which inscriptions the store still owns and
// has not sold); the ord explorer serves live location and ownership for
// a single inscription.
package ord

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/LerianStudio/lib-uncommons/v2/uncommons/backoff"

	"github.com/cimillas/ordswap/internal/domain"
)

const (
	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 1 << 20

	getAttempts   = 3
	retryBaseWait = 100 * time.Millisecond
)

type Client struct {
	indexURL string
	ordURL   string
	client   *http.Client
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

// New builds a client for the collection index at indexURL and the ord
// explorer at ordURL.
func New(indexURL, ordURL string, opts ...Option) *Client {
	c := &Client{
		indexURL: strings.TrimRight(indexURL, "/"),
		ordURL:   strings.TrimRight(ordURL, "/"),
		client:   &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EligibleInscriptionIDs lists the inscriptions currently available for
// sale in the collection: owned by the store wallet and not under an
// active order.
func (c *Client) EligibleInscriptionIDs(ctx context.Context, collectionSlug string) ([]string, error) {
	var out struct {
		IDs []string `json:"ids"`
	}
	path := fmt.Sprintf("%s/collections/%s/available", c.indexURL, collectionSlug)
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.IDs, nil
}

// CollectionInscription returns the index metadata for one available
// inscription, or domain.ErrInscriptionNotFound when the collection does
// not offer it.
func (c *Client) CollectionInscription(ctx context.Context, collectionSlug, inscriptionID string) (domain.Inscription, error) {
	var insc domain.Inscription
	path := fmt.Sprintf("%s/collections/%s/inscriptions/%s", c.indexURL, collectionSlug, inscriptionID)
	if err := c.getJSON(ctx, path, &insc); err != nil {
		return domain.Inscription{}, err
	}
	return insc, nil
}

// LiveInscription fetches the current location and owner of an
// inscription from the ord explorer. This is the freshness source of
// truth consulted immediately before signing.
func (c *Client) LiveInscription(ctx context.Context, inscriptionID string) (domain.Inscription, error) {
	var insc domain.Inscription
	path := fmt.Sprintf("%s/inscription/%s", c.ordURL, inscriptionID)
	if err := c.getJSON(ctx, path, &insc); err != nil {
		return domain.Inscription{}, err
	}
	return insc, nil
}

// getJSON issues a GET with bounded retries. Lookups are idempotent, so
// transport errors and 5xx responses are retried with jittered backoff.
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
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

		retryable, err := c.getJSONOnce(ctx, url, out)
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

func (c *Client) getJSONOnce(ctx context.Context, url string, out any) (retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return true, fmt.Errorf("index %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, domain.ErrInscriptionNotFound
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("index %s: status %d", req.URL.Path, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return false, fmt.Errorf("index %s: status %d", req.URL.Path, resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return false, fmt.Errorf("index %s: decode response: %w", req.URL.Path, err)
	}
	return false, nil
}
