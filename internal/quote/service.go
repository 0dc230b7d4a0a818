package quote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/quote-engine/internal/catalog"
	"github.com/noah-isme/quote-engine/internal/discount"
	"github.com/noah-isme/quote-engine/internal/obs"
)

// ErrInvalidRequest wraps request validation failures.
var ErrInvalidRequest = errors.New("quote: invalid request")

// Catalogs exposes the layered catalogs of configurable products.
type Catalogs interface {
	Product(id string) (catalog.Product, error)
	Catalogs(productID string) (override, def catalog.Catalog)
	ExternalIDs(productID string) map[string]string
}

// Reconciler replaces provisional prices with external catalog prices. On
// failure it returns the quote it was given together with the error.
type Reconciler interface {
	Reconcile(ctx context.Context, q Quote, externalIDs map[string]string) (Quote, error)
}

// Store persists quotes.
type Store interface {
	Save(ctx context.Context, q Quote, externalRef string) error
	Get(ctx context.Context, id string) (Quote, error)
	GetByExternalRef(ctx context.Context, ref string) (Quote, error)
	Link(ctx context.Context, id, externalRef string) error
}

// LinkEnqueuer schedules linking a persisted quote to the external system.
type LinkEnqueuer interface {
	EnqueueLink(ctx context.Context, quoteID string) error
}

// Request is the customer submission.
type Request struct {
	ProductID   string     `json:"product_id" validate:"required,max=128"`
	Selections  Selections `json:"selections" validate:"min=1,dive"`
	Customer    Customer   `json:"customer"`
	Notes       string     `json:"notes,omitempty" validate:"max=2000"`
	ExternalRef string     `json:"external_ref,omitempty" validate:"omitempty,max=128"`
}

// ServiceConfig wires the collaborators of Service.
type ServiceConfig struct {
	Catalogs         Catalogs
	Campaigns        discount.Source
	Reconciler       Reconciler
	Store            Store
	Links            LinkEnqueuer
	Generator        *Generator
	ReconcileTimeout time.Duration
	Validate         *validator.Validate
}

// Service orchestrates quote generation, reconciliation and persistence.
type Service struct {
	catalogs   Catalogs
	campaigns  discount.Source
	reconciler Reconciler
	store      Store
	links      LinkEnqueuer
	gen        *Generator
	timeout    time.Duration
	validate   *validator.Validate
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Catalogs == nil {
		return nil, errors.New("quote: catalogs are required")
	}
	if cfg.Store == nil {
		return nil, errors.New("quote: store is required")
	}
	gen := cfg.Generator
	if gen == nil {
		gen = &Generator{}
	}
	timeout := cfg.ReconcileTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	v := cfg.Validate
	if v == nil {
		v = validator.New()
	}
	return &Service{
		catalogs:   cfg.Catalogs,
		campaigns:  cfg.Campaigns,
		reconciler: cfg.Reconciler,
		store:      cfg.Store,
		links:      cfg.Links,
		gen:        gen,
		timeout:    timeout,
		validate:   v,
	}, nil
}

// Generate prices the request, reconciles it against the external catalog
// and persists it. Only validation, unknown products and persistence
// failures are returned as errors.
func (s *Service) Generate(ctx context.Context, req Request) (Quote, error) {
	q, err := s.build(ctx, req)
	if err != nil {
		obs.CountQuote("rejected")
		return Quote{}, err
	}
	logger := zerolog.Ctx(ctx).With().Str("quote_id", q.ID).Logger()

	ref := strings.TrimSpace(req.ExternalRef)
	q.ExternalRef = ref
	if err := q.Advance(StatePersisted); err != nil {
		return Quote{}, err
	}
	if err := s.store.Save(ctx, q, ref); err != nil {
		obs.CountQuote("persist_error")
		logger.Error().Err(err).Msg("quote persistence failed")
		return Quote{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	obs.CountQuote("ok")

	if ref == "" && s.links != nil {
		if err := s.links.EnqueueLink(ctx, q.ID); err != nil {
			logger.Warn().Err(err).Msg("enqueue link failed")
		}
	}
	return q, nil
}

// Preview prices and reconciles the request without persisting it.
func (s *Service) Preview(ctx context.Context, req Request) (Quote, error) {
	return s.build(ctx, req)
}

// Get returns a quote by id, or by external reference when no quote has that id.
func (s *Service) Get(ctx context.Context, idOrRef string) (Quote, error) {
	key := strings.TrimSpace(idOrRef)
	if key == "" {
		return Quote{}, ErrNotFound
	}
	q, err := s.store.Get(ctx, key)
	if err == nil {
		return q, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Quote{}, err
	}
	return s.store.GetByExternalRef(ctx, key)
}

func (s *Service) build(ctx context.Context, req Request) (Quote, error) {
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return Quote{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	product, err := s.catalogs.Product(req.ProductID)
	if err != nil {
		return Quote{}, err
	}
	override, def := s.catalogs.Catalogs(product.ID)

	q := s.gen.Generate(ctx, Input{
		Product:    product,
		Override:   override,
		Default:    def,
		Selections: req.Selections,
		Customer:   req.Customer,
		Notes:      req.Notes,
		Campaigns:  s.loadCampaigns(ctx),
	})
	return s.reconcile(ctx, q, s.catalogs.ExternalIDs(product.ID)), nil
}

func (s *Service) loadCampaigns(ctx context.Context) []discount.Campaign {
	if s.campaigns == nil {
		return nil
	}
	list, err := s.campaigns.Campaigns(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("campaigns unavailable, skipping discount")
		return nil
	}
	return list
}

func (s *Service) reconcile(ctx context.Context, q Quote, ids map[string]string) Quote {
	if s.reconciler == nil || len(ids) == 0 {
		return q
	}
	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	reconciled, err := s.reconciler.Reconcile(rctx, q, ids)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("quote_id", q.ID).Msg("reconciliation failed, keeping generated prices")
		return q
	}
	if err := reconciled.Advance(StateReconciled); err != nil {
		return q
	}
	return reconciled
}
