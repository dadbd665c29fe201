// Package transport implements the external bid-submission collaborator
// named in spec.md §6: an HTTP POST to an endpoint identified at
// configuration time, with capacity/price/hour query parameters. Grounded on
// the teacher's entsoe/api_client.go request-building idiom.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// BidClient submits priced capacity bids to a utility's bid-intake endpoint.
type BidClient struct {
	httpClient *http.Client
	endpoint   string
	timeout    time.Duration
}

// New creates a BidClient for the given endpoint.
func New(endpoint string, timeout time.Duration) *BidClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BidClient{
		httpClient: &http.Client{},
		endpoint:   endpoint,
		timeout:    timeout,
	}
}

// SubmitFastDispatch submits a fast-dispatch bid (no hour parameter).
func (c *BidClient) SubmitFastDispatch(ctx context.Context, capacity, price float64) error {
	return c.submit(ctx, capacity, price, -1)
}

// SubmitDayAhead submits a day-ahead bid for a specific hour.
func (c *BidClient) SubmitDayAhead(ctx context.Context, hour int, capacity, price float64) error {
	return c.submit(ctx, capacity, price, hour)
}

func (c *BidClient) submit(ctx context.Context, capacity, price float64, hour int) error {
	if c.endpoint == "" {
		return fmt.Errorf("transport: bid endpoint not configured")
	}

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return fmt.Errorf("transport: invalid bid endpoint: %w", err)
	}

	q := u.Query()
	q.Set("capacity", strconv.FormatFloat(capacity, 'f', -1, 64))
	q.Set("price", strconv.FormatFloat(price, 'f', -1, 64))
	if hour >= 0 {
		q.Set("hour", strconv.Itoa(hour))
	}
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), nil)
	if err != nil {
		return fmt.Errorf("transport: failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("transport: bid submission failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Non-200 responses are logged by the caller and treated as
		// non-fatal per spec.md §6; we still surface the error so the
		// caller can decide what to log.
		return fmt.Errorf("transport: bid submission returned status %d: %s", resp.StatusCode, resp.Status)
	}

	return nil
}
