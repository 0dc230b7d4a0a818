package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/quote-engine/internal/discount"
	"github.com/noah-isme/quote-engine/internal/quote"
)

type quoteStore interface {
	Save(ctx context.Context, q quote.Quote, externalRef string) error
	Get(ctx context.Context, id string) (quote.Quote, error)
	GetByExternalRef(ctx context.Context, ref string) (quote.Quote, error)
	Link(ctx context.Context, id, externalRef string) error
}

var _ quote.Store = (*Memory)(nil)
var _ quote.Store = Postgres{}
var _ quote.Store = Dynamo{}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleQuote(id string) quote.Quote {
	vat := dec("0.14")
	created := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	expires := created.AddDate(0, 0, 30)
	q := quote.Quote{
		ID:          id,
		ProductID:   "sauna-s",
		ProductName: "Sauna S",
		Customer:    quote.Customer{Email: "anna@example.com", Name: "Anna"},
		TaxRate:     dec("0.255"),
		Currency:    "EUR",
		State:       quote.StatePersisted,
		CreatedAt:   created,
		ExpiresAt:   &expires,
		Items: []quote.Item{
			{StepID: "product", StepName: "Sauna S", OptionID: "sauna-s", Title: "Sauna S", Price: dec("0"), Quantity: dec("1")},
			{StepID: "heater", StepName: "Heater", OptionID: "cilindro", Title: "Cilindro (80kg)", Price: dec("1290"), Quantity: dec("1")},
			{StepID: "heater", StepName: "Heater", OptionID: "stones", Title: "Heater stones (4 package(s))", Price: dec("29.50"),
				Quantity: dec("4"), VATRate: &vat, Tag: quote.Tag{Kind: quote.TagHeaterStonePackage, Packages: dec("4"), Resolved: true}},
			{StepID: "lighting", StepName: "Lighting", OptionID: "led-2", Title: "2x 2.5m LED", Price: dec("175"), Quantity: dec("2"),
				Tag: quote.Tag{Kind: quote.TagLightingMultiplier, Factor: 2, BaseOptionID: "led-1"}},
		},
		AppliedDiscount:     &discount.Applied{CampaignID: "spring", Name: "Spring sale", Type: discount.TypePercentage, Value: dec("10")},
		DiscountDescription: "Spring sale",
	}
	q.Recalculate()
	return q
}

func requireRoundTrip(t *testing.T, want, got quote.Quote) {
	t.Helper()
	require.Equal(t, want.ID, got.ID)
	require.Len(t, got.Items, len(want.Items))
	for i := range want.Items {
		w, g := want.Items[i], got.Items[i]
		require.Equal(t, w.OptionID, g.OptionID, "item %d", i)
		require.True(t, w.Price.Equal(g.Price), "item %d price %s != %s", i, w.Price, g.Price)
		require.True(t, w.Quantity.Equal(g.Quantity), "item %d quantity", i)
		require.Equal(t, w.Tag.Kind, g.Tag.Kind)
		require.Equal(t, w.Tag.BaseOptionID, g.Tag.BaseOptionID)
		if w.VATRate == nil {
			require.Nil(t, g.VATRate)
		} else {
			require.True(t, w.VATRate.Equal(*g.VATRate))
		}
	}
	require.True(t, want.Subtotal.Equal(got.Subtotal))
	require.True(t, want.Discount.Equal(got.Discount))
	require.True(t, want.Tax.Equal(got.Tax))
	require.True(t, want.Total.Equal(got.Total))
	require.True(t, want.CreatedAt.Equal(got.CreatedAt))
	require.NotNil(t, got.AppliedDiscount)
	require.True(t, want.AppliedDiscount.Value.Equal(got.AppliedDiscount.Value))
	require.Equal(t, want.Customer, got.Customer)
}

func exerciseStore(t *testing.T, s quoteStore) {
	t.Helper()
	ctx := context.Background()
	q := sampleQuote("q-" + t.Name())

	require.NoError(t, s.Save(ctx, q, ""))
	got, err := s.Get(ctx, q.ID)
	require.NoError(t, err)
	requireRoundTrip(t, q, got)
	require.Empty(t, got.ExternalRef)

	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, quote.ErrNotFound)
	_, err = s.GetByExternalRef(ctx, "ERP-"+t.Name())
	require.ErrorIs(t, err, quote.ErrNotFound)

	require.NoError(t, s.Link(ctx, q.ID, "ERP-"+t.Name()))
	linked, err := s.GetByExternalRef(ctx, "ERP-"+t.Name())
	require.NoError(t, err)
	require.Equal(t, q.ID, linked.ID, "linking never changes the quote id")
	require.Equal(t, quote.StateLinked, linked.State)

	require.ErrorIs(t, s.Link(ctx, q.ID, "ERP-again"), quote.ErrInvalidTransition)
	require.ErrorIs(t, s.Link(ctx, "missing", "ERP-x"), quote.ErrNotFound)

	other := sampleQuote("other-" + t.Name())
	require.ErrorIs(t, s.Save(ctx, other, "ERP-"+t.Name()), ErrRefTaken)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	q := sampleQuote("q-copy")
	require.NoError(t, s.Save(ctx, q, "REF-1"))

	q.Items[1].Price = dec("1")
	got, err := s.Get(ctx, "q-copy")
	require.NoError(t, err)
	require.Equal(t, "1290", got.Items[1].Price.String())
	require.Equal(t, "REF-1", got.ExternalRef)

	got.Items[1].Price = dec("2")
	again, err := s.GetByExternalRef(ctx, "REF-1")
	require.NoError(t, err)
	require.Equal(t, "1290", again.Items[1].Price.String())
}

func TestMigrateURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@db:5432/quotes?sslmode=disable", migrateURL("postgres://u:p@db:5432/quotes?sslmode=disable"))
	require.Equal(t, "pgx5://db/quotes", migrateURL("postgresql://db/quotes"))
	require.Equal(t, "pgx5://db/quotes", migrateURL("pgx5://db/quotes"))
}
