// Package oracle fetches the live SUI/USD conversion rate.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"imaigine-lab/internal/domain"
)

// DefaultEndpoint is the public ticker used when none is configured.
const DefaultEndpoint = "https://api.binance.com/api/v3/ticker/price?symbol=SUIUSDT"

// DefaultTimeout bounds a single quote request.
const DefaultTimeout = 10 * time.Second

// RateSource provides the live rate. Implemented by HTTPClient.
type RateSource interface {
	FetchQuote(ctx context.Context) (domain.PriceQuote, error)
}

// HTTPClient fetches quotes with a single GET per call. It never caches and never retries;
// the caller decides whether to retry or abort the payment flow.
type HTTPClient struct {
	endpoint string
	client   *http.Client
	now      func() time.Time
	observe  func(time.Duration, error)
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithClock overrides the clock used to stamp quotes.
func WithClock(now func() time.Time) ClientOption {
	return func(c *HTTPClient) {
		c.now = now
	}
}

// WithObserver registers a callback receiving the latency and outcome of every fetch.
func WithObserver(fn func(time.Duration, error)) ClientOption {
	return func(c *HTTPClient) {
		c.observe = fn
	}
}

// NewHTTPClient creates a new price oracle client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &HTTPClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultTimeout},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ RateSource = (*HTTPClient)(nil)

// tickerResponse is the quote endpoint payload. Price may be a JSON string or number.
type tickerResponse struct {
	Symbol string          `json:"symbol"`
	Price  json.RawMessage `json:"price"`
}

// FetchRate returns the USD price of one SUI.
func (c *HTTPClient) FetchRate(ctx context.Context) (decimal.Decimal, error) {
	q, err := c.FetchQuote(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return q.Rate, nil
}

const (
	maxResponseBytes  = 64 << 10
	maxErrorBodyBytes = 512
)

// FetchQuote performs one GET and parses the price field.
func (c *HTTPClient) FetchQuote(ctx context.Context) (domain.PriceQuote, error) {
	start := c.now()
	q, err := c.fetch(ctx)
	if c.observe != nil {
		c.observe(c.now().Sub(start), err)
	}
	return q, err
}

func (c *HTTPClient) fetch(ctx context.Context) (domain.PriceQuote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("%w: create request: %v", domain.ErrOracleUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("%w: http request: %v", domain.ErrOracleUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return domain.PriceQuote{}, fmt.Errorf("%w: unexpected status %d: %s",
			domain.ErrOracleUnavailable, resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("%w: read response: %v", domain.ErrOracleUnavailable, err)
	}
	if len(body) > maxResponseBytes {
		return domain.PriceQuote{}, fmt.Errorf("%w: response larger than %d bytes", domain.ErrOracleUnavailable, maxResponseBytes)
	}

	var ticker tickerResponse
	if err := json.Unmarshal(body, &ticker); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("%w: unmarshal response: %v", domain.ErrOracleUnavailable, err)
	}

	rate, err := parsePrice(ticker.Price)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("%w: %v", domain.ErrOracleUnavailable, err)
	}

	return domain.PriceQuote{Rate: rate, FetchedAt: c.now()}, nil
}

// parsePrice accepts "1.23" or 1.23 and rejects anything non-positive.
func parsePrice(raw json.RawMessage) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Zero, fmt.Errorf("missing price field")
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return decimal.Zero, fmt.Errorf("decode price string: %v", err)
		}
	}

	rate, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, fmt.Errorf("non-numeric price %q", text)
	}
	if rate.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("non-positive price %s", rate)
	}
	return rate, nil
}
