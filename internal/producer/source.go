// Package producer ships generated transactions to a durable partitioned
// stream in batches: it pulls from the transaction API, attaches derived
// risk flags, writes one partitioned batch per poll, retries the failed
// subset with bounded backoff, and keeps running delivery/fraud statistics.
package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"harborbank/txstream/internal/domain"
)

// ErrSourceUnreachable is returned when the transaction API cannot be
// reached. It fails the pre-flight self-test; the send loop never starts.
var ErrSourceUnreachable = errors.New("transaction source unreachable")

// Source is the pull interface to the transaction generation service.
// The producer has no shared-memory coupling with the serving process; this
// interface is the only channel between them.
type Source interface {
	// Ping verifies the source is reachable and healthy.
	Ping(ctx context.Context) error
	// FetchBatch requests count freshly generated transactions.
	FetchBatch(ctx context.Context, count int) ([]domain.Transaction, error)
}

// APIClient is the HTTP implementation of Source against the serving API.
type APIClient struct {
	baseURL string
	client  *http.Client
}

// NewAPIClient creates a client for the API at baseURL.
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Ping hits the status endpoint and reports reachability.
func (c *APIClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnreachable, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status endpoint returned %d", ErrSourceUnreachable, resp.StatusCode)
	}
	return nil
}

// FetchBatch pulls count transactions from the batch generation endpoint.
func (c *APIClient) FetchBatch(ctx context.Context, count int) ([]domain.Transaction, error) {
	url := fmt.Sprintf("%s/transactions/%d", c.baseURL, count)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch batch: unexpected status %d", resp.StatusCode)
	}

	// The API wraps payloads in a data/error envelope.
	var body struct {
		Data domain.BatchResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("fetch batch: decode response: %w", err)
	}
	return body.Data.Transactions, nil
}
