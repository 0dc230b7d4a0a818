package quote_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/quote-engine/internal/catalog"
	"github.com/noah-isme/quote-engine/internal/discount"
	"github.com/noah-isme/quote-engine/internal/quote"
	"github.com/noah-isme/quote-engine/internal/store"
)

type stubReconciler struct {
	calls int
	ids   map[string]string
	err   error
}

func (r *stubReconciler) Reconcile(ctx context.Context, q quote.Quote, ids map[string]string) (quote.Quote, error) {
	r.calls++
	r.ids = ids
	if r.err != nil {
		return q, r.err
	}
	out := q.Clone()
	for i := range out.Items {
		if out.Items[i].OptionID == "aspen" {
			out.Items[i].Price = dec("520")
		}
	}
	out.Recalculate()
	return out, nil
}

type failingStore struct{ quote.Store }

func (failingStore) Save(ctx context.Context, q quote.Quote, ref string) error {
	return errors.New("connection refused")
}

type recordingLinks struct{ ids []string }

func (l *recordingLinks) EnqueueLink(ctx context.Context, id string) error {
	l.ids = append(l.ids, id)
	return nil
}

type brokenCampaigns struct{}

func (brokenCampaigns) Campaigns(ctx context.Context) ([]discount.Campaign, error) {
	return nil, discount.ErrSourceUnavailable
}

func request() quote.Request {
	return quote.Request{
		ProductID:  "sauna-s",
		Selections: selections(),
		Customer:   quote.Customer{Email: "anna@example.com", Name: "Anna"},
	}
}

func newService(t *testing.T, cfg quote.ServiceConfig) *quote.Service {
	t.Helper()
	if cfg.Catalogs == nil {
		cfg.Catalogs = registry()
	}
	if cfg.Store == nil {
		cfg.Store = store.NewMemory()
	}
	if cfg.Generator == nil {
		cfg.Generator = generator()
	}
	svc, err := quote.NewService(cfg)
	require.NoError(t, err)
	return svc
}

func TestServiceGenerateReconcilesAndPersists(t *testing.T) {
	st := store.NewMemory()
	rec := &stubReconciler{}
	links := &recordingLinks{}
	svc := newService(t, quote.ServiceConfig{
		Store:      st,
		Reconciler: rec,
		Links:      links,
		Campaigns:  discount.StaticSource{List: []discount.Campaign{tenPercent()}},
	})

	q, err := svc.Generate(context.Background(), request())
	require.NoError(t, err)
	require.Equal(t, quote.StatePersisted, q.State)
	require.Equal(t, "520", q.Items[4].Price.String())
	require.Equal(t, "2278", q.Subtotal.String())
	require.Equal(t, "227.8", q.Discount.String(), "campaign is re-applied to the reconciled subtotal")
	require.Equal(t, "EXT-SAUNA-S", rec.ids["sauna-s"])
	require.Equal(t, "EXT-ASPEN", rec.ids["aspen"])
	require.Equal(t, []string{"q-fixed"}, links.ids)

	saved, err := st.Get(context.Background(), "q-fixed")
	require.NoError(t, err)
	require.Len(t, saved.Items, len(q.Items))
	require.True(t, saved.Total.Equal(q.Total))
}

func TestServiceGenerateKeepsQuoteWhenReconcileFails(t *testing.T) {
	svc := newService(t, quote.ServiceConfig{Reconciler: &stubReconciler{err: context.DeadlineExceeded}})

	q, err := svc.Generate(context.Background(), request())
	require.NoError(t, err)
	require.Equal(t, quote.StatePersisted, q.State)
	require.Equal(t, "500", q.Items[4].Price.String())
	require.Equal(t, "2258", q.Subtotal.String())
}

func TestServiceGenerateWithExternalRefSkipsLink(t *testing.T) {
	st := store.NewMemory()
	links := &recordingLinks{}
	svc := newService(t, quote.ServiceConfig{Store: st, Links: links})

	req := request()
	req.ExternalRef = "ERP-77"
	q, err := svc.Generate(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "ERP-77", q.ExternalRef)
	require.Empty(t, links.ids)

	byRef, err := svc.Get(context.Background(), "ERP-77")
	require.NoError(t, err)
	require.Equal(t, "q-fixed", byRef.ID)
	byID, err := svc.Get(context.Background(), "q-fixed")
	require.NoError(t, err)
	require.Equal(t, "ERP-77", byID.ExternalRef)

	_, err = svc.Get(context.Background(), "nope")
	require.ErrorIs(t, err, quote.ErrNotFound)
}

func TestServiceGeneratePersistenceFailure(t *testing.T) {
	svc := newService(t, quote.ServiceConfig{Store: failingStore{}})

	_, err := svc.Generate(context.Background(), request())
	require.ErrorIs(t, err, quote.ErrPersistence)
}

func TestServiceCampaignOutageMeansNoDiscount(t *testing.T) {
	svc := newService(t, quote.ServiceConfig{Campaigns: brokenCampaigns{}})

	q, err := svc.Preview(context.Background(), request())
	require.NoError(t, err)
	require.True(t, q.Discount.IsZero())
	require.Equal(t, quote.StateGenerated, q.State)
}

func TestServiceValidation(t *testing.T) {
	svc := newService(t, quote.ServiceConfig{})

	req := request()
	req.Customer.Email = "not-an-email"
	_, err := svc.Generate(context.Background(), req)
	require.ErrorIs(t, err, quote.ErrInvalidRequest)

	req = request()
	req.Selections = nil
	_, err = svc.Preview(context.Background(), req)
	require.ErrorIs(t, err, quote.ErrInvalidRequest)

	req = request()
	req.ProductID = "sauna-xl"
	_, err = svc.Generate(context.Background(), req)
	require.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	_, err := quote.NewService(quote.ServiceConfig{})
	require.Error(t, err)
	_, err = quote.NewService(quote.ServiceConfig{Catalogs: registry()})
	require.Error(t, err)
}
