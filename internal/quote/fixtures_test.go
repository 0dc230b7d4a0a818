package quote_test

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/quote-engine/internal/catalog"
	"github.com/noah-isme/quote-engine/internal/discount"
	"github.com/noah-isme/quote-engine/internal/quote"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func kg(s string) *decimal.Decimal {
	v := dec(s)
	return &v
}

var fixedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func defaultCatalog() catalog.Catalog {
	return catalog.Catalog{
		"heater": {
			Title: "heater",
			Options: map[string]catalog.Option{
				"cilindro": {Title: "Cilindro PRO (80kg)", BasePrice: dec("1290"), StoneKg: kg("80"), ExternalID: "EXT-CIL"},
				"stones":   {Title: "Stones according to selected heater", BasePrice: dec("0"), Pricing: catalog.HeaterStones(), ExternalID: "EXT-STONES"},
			},
		},
		"lighting": {
			Title: "lighting",
			Options: map[string]catalog.Option{
				"led-1": {Title: "2.5m LED", BasePrice: dec("175"), ExternalID: "EXT-LED"},
				"led-2": {Title: "2x 2.5m LED", BasePrice: dec("300"), Pricing: catalog.Lighting(2, "led-1")},
			},
		},
		"bench": {
			Title: "bench",
			Options: map[string]catalog.Option{
				"aspen": {Title: "aspen bench", BasePrice: dec("450"), Pricing: catalog.Standard()},
			},
		},
	}
}

func overrideCatalog() catalog.Catalog {
	return catalog.Catalog{
		"bench": {Options: map[string]catalog.Option{
			"aspen": {Title: "Aspen bench (custom)", BasePrice: dec("500"), ExternalID: "EXT-ASPEN"},
		}},
	}
}

func saunaS() catalog.Product {
	return catalog.Product{
		ID:             "sauna-s",
		Name:           "Sauna S",
		MainExternalID: "EXT-SAUNA-S",
		StepNames:      map[string]string{"heater": "Heater"},
	}
}

func registry() *catalog.Registry {
	return catalog.NewRegistry(defaultCatalog(), []catalog.Product{saunaS()}, map[string]catalog.Catalog{"sauna-s": overrideCatalog()})
}

func selections() quote.Selections {
	return quote.Selections{
		{StepID: "heater", OptionIDs: []string{"cilindro", "stones"}},
		{StepID: "lighting", OptionIDs: []string{"led-2"}},
		{StepID: "bench", OptionIDs: []string{"aspen", "teak"}},
		{StepID: "roof", OptionIDs: []string{"glass"}},
	}
}

func tenPercent() discount.Campaign {
	return discount.Campaign{
		ID:            "spring",
		Name:          "Spring sale",
		DiscountType:  discount.TypePercentage,
		DiscountValue: dec("10"),
		AppliesTo:     discount.ScopeAll,
		IsActive:      true,
	}
}

func generator() *quote.Generator {
	return &quote.Generator{
		TaxRate:      dec("0.255"),
		Currency:     "eur",
		ValidityDays: 30,
		Now:          func() time.Time { return fixedNow },
		NewID:        func() string { return "q-fixed" },
	}
}
