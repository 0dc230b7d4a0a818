package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/quote-engine/internal/discount"
	"github.com/noah-isme/quote-engine/internal/quote"
)

const uniqueViolation = "23505"

// DB is the subset of pgxpool.Pool used by Postgres.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres stores quotes in the quotes and quote_items tables. Money and
// quantities travel as text so no precision is lost.
type Postgres struct {
	DB  DB
	Now func() time.Time
}

const upsertQuoteSQL = `INSERT INTO quotes (id, external_ref, product_id, product_name, customer_email, customer_name,
customer_phone, subtotal, discount, discount_description, applied_discount, tax, tax_rate, total, currency, state,
notes, created_at, expires_at, updated_at)
VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10, $11::jsonb, $12::numeric, $13::numeric,
$14::numeric, $15, $16, $17, $18, $19, $20)
ON CONFLICT (id) DO UPDATE SET external_ref = EXCLUDED.external_ref, product_id = EXCLUDED.product_id,
product_name = EXCLUDED.product_name, customer_email = EXCLUDED.customer_email, customer_name = EXCLUDED.customer_name,
customer_phone = EXCLUDED.customer_phone, subtotal = EXCLUDED.subtotal, discount = EXCLUDED.discount,
discount_description = EXCLUDED.discount_description, applied_discount = EXCLUDED.applied_discount, tax = EXCLUDED.tax,
tax_rate = EXCLUDED.tax_rate, total = EXCLUDED.total, currency = EXCLUDED.currency, state = EXCLUDED.state,
notes = EXCLUDED.notes, expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at`

const insertItemSQL = `INSERT INTO quote_items (quote_id, position, step_id, step_name, option_id, title, description,
price, quantity, vat_rate, tag) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10::numeric, $11::jsonb)`

const selectQuoteSQL = `SELECT id, COALESCE(external_ref, ''), product_id, product_name, customer_email, customer_name,
customer_phone, subtotal::text, discount::text, discount_description, applied_discount, tax::text, tax_rate::text,
total::text, currency, state, notes, created_at, expires_at FROM quotes WHERE `

const selectItemsSQL = `SELECT step_id, step_name, option_id, title, description, price::text, quantity::text,
vat_rate::text, tag FROM quote_items WHERE quote_id = $1 ORDER BY position`

// Save upserts q and replaces its items in one transaction.
func (p Postgres) Save(ctx context.Context, q quote.Quote, externalRef string) (err error) {
	if p.DB == nil {
		return errors.New("store: postgres not configured")
	}
	applied, err := jsonOrNil(q.AppliedDiscount)
	if err != nil {
		return fmt.Errorf("store: encode discount: %w", err)
	}

	tx, err := p.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			err = errors.Join(err, fmt.Errorf("store: rollback: %w", rbErr))
		}
	}()

	_, err = tx.Exec(ctx, upsertQuoteSQL,
		q.ID, strings.TrimSpace(externalRef), q.ProductID, q.ProductName,
		q.Customer.Email, q.Customer.Name, q.Customer.Phone,
		q.Subtotal.String(), q.Discount.String(), q.DiscountDescription, applied,
		q.Tax.String(), q.TaxRate.String(), q.Total.String(), q.Currency, string(q.State),
		q.Notes, q.CreatedAt, q.ExpiresAt, p.now(),
	)
	if err != nil {
		return fmt.Errorf("store: upsert quote: %w", translate(err, externalRef))
	}
	if _, err = tx.Exec(ctx, `DELETE FROM quote_items WHERE quote_id = $1`, q.ID); err != nil {
		return fmt.Errorf("store: clear items: %w", err)
	}

	batch := &pgx.Batch{}
	for i, it := range q.Items {
		tag, tagErr := jsonOrNil(tagOrNil(it.Tag))
		if tagErr != nil {
			return fmt.Errorf("store: encode tag: %w", tagErr)
		}
		batch.Queue(insertItemSQL, q.ID, i, it.StepID, it.StepName, it.OptionID, it.Title, it.Description,
			it.Price.String(), it.Quantity.String(), decimalOrNil(it.VATRate), tag)
	}
	if err = tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("store: insert items: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// Get returns the quote with id.
func (p Postgres) Get(ctx context.Context, id string) (quote.Quote, error) {
	return p.load(ctx, "id = $1", id)
}

// GetByExternalRef returns the quote linked to ref.
func (p Postgres) GetByExternalRef(ctx context.Context, ref string) (quote.Quote, error) {
	return p.load(ctx, "external_ref = $1", ref)
}

// Link sets the external reference of a quote and marks it linked.
func (p Postgres) Link(ctx context.Context, id, externalRef string) error {
	if p.DB == nil {
		return errors.New("store: postgres not configured")
	}
	tag, err := p.DB.Exec(ctx, `UPDATE quotes SET external_ref = $2, state = $3, updated_at = $4 WHERE id = $1 AND state = $5`,
		id, strings.TrimSpace(externalRef), string(quote.StateLinked), p.now(), string(quote.StatePersisted))
	if err != nil {
		return fmt.Errorf("store: link quote: %w", translate(err, externalRef))
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := p.Get(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: quote %s is not persisted", quote.ErrInvalidTransition, id)
	}
	return nil
}

func (p Postgres) load(ctx context.Context, where string, arg string) (quote.Quote, error) {
	if p.DB == nil {
		return quote.Quote{}, errors.New("store: postgres not configured")
	}
	var (
		q                                   quote.Quote
		state                               string
		subtotal, disc, tax, taxRate, total string
		applied                             []byte
	)
	err := p.DB.QueryRow(ctx, selectQuoteSQL+where, arg).Scan(
		&q.ID, &q.ExternalRef, &q.ProductID, &q.ProductName, &q.Customer.Email, &q.Customer.Name,
		&q.Customer.Phone, &subtotal, &disc, &q.DiscountDescription, &applied, &tax, &taxRate,
		&total, &q.Currency, &state, &q.Notes, &q.CreatedAt, &q.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return quote.Quote{}, quote.ErrNotFound
	}
	if err != nil {
		return quote.Quote{}, fmt.Errorf("store: load quote: %w", err)
	}
	q.State = quote.State(state)
	if err := parseDecimals(
		field{subtotal, &q.Subtotal}, field{disc, &q.Discount}, field{tax, &q.Tax},
		field{taxRate, &q.TaxRate}, field{total, &q.Total},
	); err != nil {
		return quote.Quote{}, err
	}
	if len(applied) > 0 {
		q.AppliedDiscount = &discount.Applied{}
		if err := json.Unmarshal(applied, q.AppliedDiscount); err != nil {
			return quote.Quote{}, fmt.Errorf("store: decode discount: %w", err)
		}
	}

	items, err := p.loadItems(ctx, q.ID)
	if err != nil {
		return quote.Quote{}, err
	}
	q.Items = items
	return q, nil
}

func (p Postgres) loadItems(ctx context.Context, quoteID string) ([]quote.Item, error) {
	rows, err := p.DB.Query(ctx, selectItemsSQL, quoteID)
	if err != nil {
		return nil, fmt.Errorf("store: query items: %w", err)
	}
	defer rows.Close()

	items := []quote.Item{}
	for rows.Next() {
		var (
			it              quote.Item
			price, quantity string
			vat             *string
			tag             []byte
		)
		if err := rows.Scan(&it.StepID, &it.StepName, &it.OptionID, &it.Title, &it.Description,
			&price, &quantity, &vat, &tag); err != nil {
			return nil, fmt.Errorf("store: scan item: %w", err)
		}
		if err := parseDecimals(field{price, &it.Price}, field{quantity, &it.Quantity}); err != nil {
			return nil, err
		}
		if vat != nil {
			rate, err := decimal.NewFromString(*vat)
			if err != nil {
				return nil, fmt.Errorf("store: vat rate: %w", err)
			}
			it.VATRate = &rate
		}
		if len(tag) > 0 {
			if err := json.Unmarshal(tag, &it.Tag); err != nil {
				return nil, fmt.Errorf("store: decode tag: %w", err)
			}
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (p Postgres) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

type field struct {
	raw string
	dst *decimal.Decimal
}

func parseDecimals(fields ...field) error {
	for _, f := range fields {
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return fmt.Errorf("store: decimal %q: %w", f.raw, err)
		}
		*f.dst = v
	}
	return nil
}

func decimalOrNil(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func tagOrNil(t quote.Tag) *quote.Tag {
	if t.Kind == quote.TagNone {
		return nil
	}
	return &t
}

// jsonOrNil encodes v, mapping nil pointers to SQL NULL.
func jsonOrNil[T any](v *T) (*string, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}

func translate(err error, externalRef string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrRefTaken, externalRef)
	}
	return err
}
