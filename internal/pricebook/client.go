package pricebook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/quote-engine/internal/resilience"
)

var (
	// ErrNotFound is returned when the catalog has no product for the external id.
	ErrNotFound = errors.New("pricebook: product not found")
	// ErrNotConfigured is returned by a client without a base URL.
	ErrNotConfigured = errors.New("pricebook: base url not configured")
)

// Price is the authoritative catalog entry for an external product id.
type Price struct {
	ExternalID string           `json:"id"`
	UnitPrice  decimal.Decimal  `json:"unit_price"`
	Currency   string           `json:"currency,omitempty"`
	VATRate    *decimal.Decimal `json:"vat_rate,omitempty"`
}

// Lookup fetches the price of a single external product.
type Lookup interface {
	Lookup(ctx context.Context, externalID string) (Price, error)
}

// Doer executes outbound requests. resilience.HTTPClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// ClientConfig wires the HTTP client.
type ClientConfig struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
	Jitter      float64
	Breaker     *resilience.Breaker
	Transport   http.RoundTripper
	Logger      *zerolog.Logger
}

// Client talks to the external price catalog over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    Doer
}

// NewClient builds a Client whose requests retry through a circuit breaker
// and are traced by otelhttp.
func NewClient(cfg ClientConfig) *Client {
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	breaker := cfg.Breaker
	if breaker == nil {
		breaker = resilience.NewBreaker(10, 0.5, 30*time.Second).WithTarget("pricebook")
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:  cfg.APIKey,
		http: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(transport)},
			Breaker:     breaker,
			Target:      "pricebook",
			BaseBackoff: cfg.BaseBackoff,
			MaxAttempts: cfg.MaxAttempts,
			Jitter:      cfg.Jitter,
			Timeout:     cfg.Timeout,
			Logger:      cfg.Logger,
		},
	}
}

// Lookup implements Lookup against GET {base}/products/{id}.
func (c *Client) Lookup(ctx context.Context, externalID string) (Price, error) {
	if c == nil || c.baseURL == "" {
		return Price{}, ErrNotConfigured
	}
	id := strings.TrimSpace(externalID)
	if id == "" {
		return Price{}, ErrNotFound
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/products/"+url.PathEscape(id), nil)
	if err != nil {
		return Price{}, fmt.Errorf("pricebook: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return Price{}, fmt.Errorf("pricebook: lookup %s: %w", id, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Price{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	case resp.StatusCode >= http.StatusBadRequest:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Price{}, fmt.Errorf("pricebook: lookup %s: unexpected status %d", id, resp.StatusCode)
	}

	var p Price
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return Price{}, fmt.Errorf("pricebook: decode %s: %w", id, err)
	}
	if p.ExternalID == "" {
		p.ExternalID = id
	}
	return p, nil
}
