package discount

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ErrSourceUnavailable indicates the campaign source dependency is not configured.
var ErrSourceUnavailable = errors.New("discount: source unavailable")

// Source lists the configured campaigns in priority order.
type Source interface {
	Campaigns(ctx context.Context) ([]Campaign, error)
}

// StaticSource serves a fixed campaign list.
type StaticSource struct {
	List []Campaign
}

// Campaigns implements Source.
func (s StaticSource) Campaigns(context.Context) ([]Campaign, error) {
	out := make([]Campaign, len(s.List))
	copy(out, s.List)
	return out, nil
}

// LoadFile reads a JSON array of campaigns. Invalid campaigns are rejected so
// that configuration mistakes surface at startup.
func LoadFile(path string) (StaticSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return StaticSource{}, fmt.Errorf("read campaigns: %w", err)
	}
	var list []Campaign
	if err := json.Unmarshal(raw, &list); err != nil {
		return StaticSource{}, fmt.Errorf("decode campaigns: %w", err)
	}
	for i, c := range list {
		if err := c.Validate(); err != nil {
			return StaticSource{}, fmt.Errorf("campaign %d (%s): %w", i, c.ID, err)
		}
	}
	return StaticSource{List: list}, nil
}

// Querier is the subset of pgxpool.Pool used by PostgresSource.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSource reads campaigns from the discount_campaigns table.
type PostgresSource struct {
	DB Querier
}

const listCampaignsSQL = `SELECT id, name, discount_type, discount_value::text, applies_to, product_ids,
start_date, end_date, is_active FROM discount_campaigns ORDER BY position, id`

// Campaigns implements Source.
func (s PostgresSource) Campaigns(ctx context.Context) ([]Campaign, error) {
	if s.DB == nil {
		return nil, ErrSourceUnavailable
	}
	rows, err := s.DB.Query(ctx, listCampaignsSQL)
	if err != nil {
		return nil, fmt.Errorf("query campaigns: %w", err)
	}
	defer rows.Close()

	var out []Campaign
	for rows.Next() {
		var (
			c          Campaign
			kind       string
			scope      string
			value      string
			start, end *time.Time
		)
		if err := rows.Scan(&c.ID, &c.Name, &kind, &value, &scope, &c.ProductIDs, &start, &end, &c.IsActive); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		c.DiscountType = Type(kind)
		c.AppliesTo = Scope(scope)
		c.StartDate, c.EndDate = start, end
		if c.DiscountValue, err = decimal.NewFromString(value); err != nil {
			return nil, fmt.Errorf("campaign %s value: %w", c.ID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
