package quote

import (
	"context"
	"fmt"
	"regexp"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/quote-engine/internal/catalog"
)

// StoneRules sizes heater stone packages.
type StoneRules struct {
	PackageKg        decimal.Decimal
	PackageUnitPrice decimal.Decimal
}

// DefaultStoneRules returns 20 kg packages at 29.50 each.
func DefaultStoneRules() StoneRules {
	return StoneRules{PackageKg: decimal.NewFromInt(20), PackageUnitPrice: decimal.RequireFromString("29.50")}
}

var selectedHeaterPhrase = regexp.MustCompile(`(?i)\bac+or+d?ing\s+to\b`)

// applyLighting prices lighting multiplier options as Factor copies of their
// base option. Without a base option the option's own price is split evenly.
func applyLighting(ctx context.Context, lines []line, override, def catalog.Catalog) {
	logger := zerolog.Ctx(ctx)
	for i := range lines {
		pk := lines[i].option.Pricing
		if pk.Kind != catalog.KindLightingMultiplier || pk.Factor <= 0 {
			continue
		}
		it := &lines[i].item
		n := decimal.NewFromInt(int64(pk.Factor))
		tag := Tag{Kind: TagLightingMultiplier, Factor: pk.Factor}

		var base catalog.Option
		found := false
		if pk.BaseOptionID != "" {
			base, found = catalog.Resolve(override, def, it.StepID, pk.BaseOptionID)
		}
		if found {
			it.Price = base.BasePrice
			tag.BaseOptionID = pk.BaseOptionID
		} else {
			it.Price = lines[i].option.BasePrice.Div(n)
			logger.Warn().Str("step_id", it.StepID).Str("option_id", it.OptionID).Int("factor", pk.Factor).
				Msg("lighting base option not found, splitting option price")
		}
		it.Quantity = n
		it.Tag = tag
	}
}

// applyHeaterStones sizes stone package options from the heater selected in
// the same step. The heater's stone load is read from the default catalog
// when it defines the option.
func applyHeaterStones(ctx context.Context, lines []line, def catalog.Catalog, rules StoneRules) {
	logger := zerolog.Ctx(ctx)
	for i := range lines {
		if lines[i].option.Pricing.Kind != catalog.KindHeaterStonePackage {
			continue
		}
		it := &lines[i].item
		kg, ok := siblingStoneKg(lines, it.StepID, def)
		if !ok || !rules.PackageKg.IsPositive() {
			it.Tag = Tag{Kind: TagHeaterStonePackage, Packages: decimal.NewFromInt(1)}
			logger.Warn().Str("step_id", it.StepID).Str("option_id", it.OptionID).
				Msg("heater stone load unknown, keeping base price")
			continue
		}
		packages := kg.Div(rules.PackageKg)
		it.Price = rules.PackageUnitPrice
		it.Quantity = packages
		it.Tag = Tag{Kind: TagHeaterStonePackage, Packages: packages, Resolved: true}
		if selectedHeaterPhrase.MatchString(it.Title) {
			it.Title = fmt.Sprintf("Heater stones (%s package(s))", packages.String())
		}
	}
}

func siblingStoneKg(lines []line, stepID string, def catalog.Catalog) (decimal.Decimal, bool) {
	for _, l := range lines {
		if l.item.StepID != stepID || l.option.Pricing.Kind == catalog.KindHeaterStonePackage {
			continue
		}
		if original, ok := def[stepID].Options[l.item.OptionID]; ok && original.StoneKg != nil {
			return *original.StoneKg, original.StoneKg.IsPositive()
		}
		if l.option.StoneKg != nil {
			return *l.option.StoneKg, l.option.StoneKg.IsPositive()
		}
		return decimal.Zero, false
	}
	return decimal.Zero, false
}
