// Package httpmarket implements market.Source over a plain HTTP/JSON pull
// endpoint, grounded on the teacher's entsoe/api_client.go: an http.Client
// with a bounded context.WithTimeout, a custom User-Agent, and non-200
// treated as an error. Unlike the teacher's ENTSO-E client it decodes the
// JSON shape named in spec.md §6 (prices/demand/competitors) rather than
// ENTSO-E's ESMP XML schema.
package httpmarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/devskill-org/bess-bidder/strategy"
)

// Client pulls a forecast snapshot from a configured endpoint.
type Client struct {
	httpClient *http.Client
	endpoint   string
	userAgent  string
	timeout    time.Duration
}

// New creates an httpmarket.Client for the given endpoint URL.
func New(endpoint, userAgent string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if userAgent == "" {
		userAgent = "bess-bidder/1.0"
	}
	return &Client{
		httpClient: &http.Client{},
		endpoint:   endpoint,
		userAgent:  userAgent,
		timeout:    timeout,
	}
}

// wireForecast is the JSON-equivalent object named in spec.md §6.
type wireForecast struct {
	Prices      [24]float64 `json:"prices"`
	Demand      [24]float64 `json:"demand"`
	Competitors int         `json:"competitors"`
}

// Refresh pulls and decodes the current forecast snapshot. A non-200
// response or malformed body is returned as an error; the caller is expected
// to keep using the previous snapshot on failure (spec.md §4.5).
func (c *Client) Refresh(ctx context.Context) (*strategy.Forecast, error) {
	if c.endpoint == "" {
		return nil, fmt.Errorf("httpmarket: endpoint not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("httpmarket: failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpmarket: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("httpmarket: request failed with status %d: %s", resp.StatusCode, resp.Status)
	}

	var wire wireForecast
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("httpmarket: failed to decode response: %w", err)
	}

	return &strategy.Forecast{
		PriceForecast:      wire.Prices,
		GridDemandForecast: wire.Demand,
		NumCompetitors:     wire.Competitors,
		FetchedAt:          time.Now(),
	}, nil
}
