package link

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/quote-engine/internal/quote"
)

// Doer executes outbound requests. resilience.HTTPClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// HTTPLinker posts a quote summary to {BaseURL}/quotes and reads back the
// external id.
type HTTPLinker struct {
	BaseURL string
	APIKey  string
	HTTP    Doer
}

type summaryLine struct {
	OptionID string          `json:"option_id"`
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

type summary struct {
	QuoteID   string          `json:"quote_id"`
	ProductID string          `json:"product_id"`
	Email     string          `json:"customer_email"`
	Name      string          `json:"customer_name,omitempty"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Discount  decimal.Decimal `json:"discount"`
	Tax       decimal.Decimal `json:"tax"`
	Total     decimal.Decimal `json:"total"`
	Currency  string          `json:"currency"`
	Lines     []summaryLine   `json:"lines"`
}

// Link implements Linker.
func (l HTTPLinker) Link(ctx context.Context, q quote.Quote) (string, error) {
	if l.HTTP == nil || strings.TrimSpace(l.BaseURL) == "" {
		return "", errors.New("link: http linker not configured")
	}
	body := summary{
		QuoteID:   q.ID,
		ProductID: q.ProductID,
		Email:     q.Customer.Email,
		Name:      q.Customer.Name,
		Subtotal:  q.Subtotal,
		Discount:  q.Discount,
		Tax:       q.Tax,
		Total:     q.Total,
		Currency:  q.Currency,
		Lines:     make([]summaryLine, len(q.Items)),
	}
	for i, it := range q.Items {
		body.Lines[i] = summaryLine{OptionID: it.OptionID, Title: it.Title, Price: it.Price, Quantity: it.Quantity}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(l.BaseURL, "/")+"/quotes", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", q.ID)
	if l.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+l.APIKey)
	}

	resp, err := l.HTTP.Do(ctx, req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("link: external system returned %d", resp.StatusCode)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("link: decode response: %w", err)
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", errors.New("link: external system returned no id")
	}
	return out.ID, nil
}
