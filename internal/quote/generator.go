package quote

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/quote-engine/internal/catalog"
	"github.com/noah-isme/quote-engine/internal/discount"
)

// Input carries everything needed to price one submission.
type Input struct {
	Product    catalog.Product
	Override   catalog.Catalog
	Default    catalog.Catalog
	Selections Selections
	Customer   Customer
	Notes      string
	Campaigns  []discount.Campaign
}

// Generator turns selections into a priced quote. It performs no I/O.
type Generator struct {
	Stones       StoneRules
	TaxRate      decimal.Decimal
	Currency     string
	ValidityDays int
	Now          func() time.Time
	NewID        func() string
}

// Generate expands the selections, applies dynamic pricing and the first
// matching discount campaign, and computes provisional totals.
func (g *Generator) Generate(ctx context.Context, in Input) Quote {
	lines := expand(ctx, in.Product, in.Override, in.Default, in.Selections)
	applyLighting(ctx, lines, in.Override, in.Default)
	applyHeaterStones(ctx, lines, in.Default, g.stones())

	items := make([]Item, len(lines))
	for i, l := range lines {
		items[i] = l.item
	}

	now := g.now()
	q := Quote{
		ID:          g.newID(),
		ProductID:   in.Product.ID,
		ProductName: in.Product.Name,
		Customer:    in.Customer,
		Items:       items,
		TaxRate:     g.TaxRate,
		Currency:    strings.ToUpper(strings.TrimSpace(g.Currency)),
		State:       StateDraft,
		CreatedAt:   now,
		Notes:       strings.TrimSpace(in.Notes),
	}
	if g.ValidityDays > 0 {
		exp := now.AddDate(0, 0, g.ValidityDays)
		q.ExpiresAt = &exp
	}

	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.LineTotal())
	}
	applied := discount.Apply(in.Campaigns, in.Product.ID, subtotal, now)
	q.AppliedDiscount = applied.Applied
	q.DiscountDescription = applied.Description

	q.Recalculate()
	_ = q.Advance(StateGenerated)
	return q
}

func (g *Generator) stones() StoneRules {
	if g.Stones.PackageKg.IsZero() && g.Stones.PackageUnitPrice.IsZero() {
		return DefaultStoneRules()
	}
	return g.Stones
}

func (g *Generator) now() time.Time {
	if g.Now != nil {
		return g.Now().UTC()
	}
	return time.Now().UTC()
}

func (g *Generator) newID() string {
	if g.NewID != nil {
		return g.NewID()
	}
	return uuid.NewString()
}
