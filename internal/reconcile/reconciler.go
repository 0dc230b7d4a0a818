// Package reconcile replaces provisional quote prices with prices from the
// external catalog.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/quote-engine/internal/obs"
	"github.com/noah-isme/quote-engine/internal/pricebook"
	"github.com/noah-isme/quote-engine/internal/quote"
)

const defaultConcurrency = 8

var hundred = decimal.NewFromInt(100)

// Report summarises a reconciliation run.
type Report struct {
	Looked   int
	Updated  int
	Failed   int
	TimedOut bool
}

// Config wires the collaborators of Reconciler.
type Config struct {
	Lookup      pricebook.Lookup
	Concurrency int
}

// Reconciler looks up every distinct external id of a quote concurrently and
// recomputes the quote once all lookups have finished.
type Reconciler struct {
	lookup      pricebook.Lookup
	concurrency int
}

// New constructs a Reconciler.
func New(cfg Config) (*Reconciler, error) {
	if cfg.Lookup == nil {
		return nil, errors.New("reconcile: lookup is required")
	}
	n := cfg.Concurrency
	if n <= 0 {
		n = defaultConcurrency
	}
	return &Reconciler{lookup: cfg.Lookup, concurrency: n}, nil
}

// Reconcile implements quote.Reconciler.
func (r *Reconciler) Reconcile(ctx context.Context, q quote.Quote, externalIDs map[string]string) (quote.Quote, error) {
	out, _, err := r.ReconcileWithReport(ctx, q, externalIDs)
	return out, err
}

// ReconcileWithReport reconciles q and reports what happened. Failed lookups
// leave the affected items untouched. When ctx expires before all lookups
// complete, q is returned unchanged together with the context error.
func (r *Reconciler) ReconcileWithReport(ctx context.Context, q quote.Quote, externalIDs map[string]string) (quote.Quote, Report, error) {
	ctx, span := otel.Tracer("quote-engine/reconcile").Start(ctx, "reconcile.quote")
	defer span.End()
	span.SetAttributes(attribute.String("quote.id", q.ID), attribute.Int("quote.items", len(q.Items)))
	start := time.Now()
	logger := zerolog.Ctx(ctx).With().Str("quote_id", q.ID).Logger()

	ids := collectIDs(q.Items, externalIDs)
	prices, report := r.fetch(ctx, logger, ids)

	if err := ctx.Err(); err != nil {
		report.TimedOut = true
		observe("timeout", start)
		span.SetStatus(codes.Error, "timeout")
		logger.Warn().Int("looked", report.Looked).Msg("reconciliation timed out")
		return q, report, fmt.Errorf("reconcile: %w", err)
	}

	out := q.Clone()
	for i := range out.Items {
		if apply(&out.Items[i], externalIDs, prices) {
			report.Updated++
		}
	}
	out.Recalculate()

	observe("ok", start)
	span.SetAttributes(
		attribute.Int("reconcile.looked", report.Looked),
		attribute.Int("reconcile.updated", report.Updated),
		attribute.Int("reconcile.failed", report.Failed),
	)
	logger.Debug().
		Int("looked", report.Looked).
		Int("updated", report.Updated).
		Int("failed", report.Failed).
		Msg("quote reconciled")
	return out, report, nil
}

func (r *Reconciler) fetch(ctx context.Context, logger zerolog.Logger, ids []string) (map[string]pricebook.Price, Report) {
	var mu sync.Mutex
	var g errgroup.Group
	prices := make(map[string]pricebook.Price, len(ids))
	report := Report{Looked: len(ids)}
	g.SetLimit(r.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			p, err := r.lookup.Lookup(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				if errors.Is(err, pricebook.ErrNotFound) {
					obs.CountLookup("not_found")
				} else {
					obs.CountLookup("error")
				}
				logger.Warn().Err(err).Str("external_id", id).Msg("catalog lookup failed, keeping price")
				return nil
			}
			obs.CountLookup("ok")
			prices[id] = p
			return nil
		})
	}
	_ = g.Wait()
	return prices, report
}

// collectIDs returns the distinct external ids referenced by items in item order.
func collectIDs(items []quote.Item, externalIDs map[string]string) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, it := range items {
		id := externalIDFor(it, externalIDs)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// externalIDFor maps a lighting item through its base option, every other
// item through its own option id.
func externalIDFor(it quote.Item, externalIDs map[string]string) string {
	if it.Tag.Kind == quote.TagLightingMultiplier {
		if it.Tag.BaseOptionID == "" {
			return ""
		}
		return externalIDs[it.Tag.BaseOptionID]
	}
	return externalIDs[it.OptionID]
}

// apply updates it from its catalog price and reports whether anything changed.
func apply(it *quote.Item, externalIDs map[string]string, prices map[string]pricebook.Price) bool {
	p, ok := prices[externalIDFor(*it, externalIDs)]
	if !ok {
		return false
	}
	changed := false
	if rate, ok := normaliseVAT(p.VATRate); ok {
		it.VATRate = &rate
		changed = true
	}
	if it.Tag.Kind == quote.TagHeaterStonePackage {
		return changed
	}
	if p.UnitPrice.IsPositive() {
		it.Price = p.UnitPrice
		changed = true
	}
	return changed
}

// normaliseVAT accepts fractions (0.255) and percentages (25.5).
func normaliseVAT(rate *decimal.Decimal) (decimal.Decimal, bool) {
	if rate == nil || rate.IsNegative() {
		return decimal.Decimal{}, false
	}
	if rate.GreaterThan(decimal.NewFromInt(1)) {
		return rate.Div(hundred), true
	}
	return *rate, true
}

func observe(result string, start time.Time) {
	if obs.ReconcileDuration != nil {
		obs.ReconcileDuration.WithLabelValues(result).Observe(obs.DurationMillis(time.Since(start)))
	}
}
