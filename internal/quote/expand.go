package quote

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/quote-engine/internal/catalog"
)

// MainProductStepID is the step id of the synthetic main product item.
const MainProductStepID = "product"

// line is an expanded item together with the catalog option it came from.
type line struct {
	item   Item
	option catalog.Option
}

// expand resolves every submitted (step, option) pair against the layered
// catalogs. Unknown steps or options are logged and skipped.
func expand(ctx context.Context, product catalog.Product, override, def catalog.Catalog, sel Selections) []line {
	logger := zerolog.Ctx(ctx)
	out := make([]line, 0, sel.Count()+1)
	if strings.TrimSpace(product.MainExternalID) != "" {
		out = append(out, line{item: Item{
			StepID:   MainProductStepID,
			StepName: product.Name,
			OptionID: product.ID,
			Title:    capitalize(product.Name),
			Price:    decimal.Zero,
			Quantity: decimal.NewFromInt(1),
		}})
	}

	for _, s := range sel {
		step, ok := catalog.ResolveStep(override, def, s.StepID)
		if !ok {
			logger.Warn().Err(catalog.ErrStepNotFound).Str("step_id", s.StepID).Str("product_id", product.ID).Msg("skipping selection")
			continue
		}
		stepName := step.Title
		if name := strings.TrimSpace(product.StepNames[s.StepID]); name != "" {
			stepName = name
		}
		for _, optionID := range s.OptionIDs {
			opt, ok := catalog.Resolve(override, def, s.StepID, optionID)
			if !ok {
				logger.Warn().Err(catalog.ErrOptionNotFound).Str("step_id", s.StepID).Str("option_id", optionID).
					Str("product_id", product.ID).Msg("skipping selection")
				continue
			}
			out = append(out, line{
				item: Item{
					StepID:      s.StepID,
					StepName:    stepName,
					OptionID:    optionID,
					Title:       capitalize(opt.Title),
					Description: opt.Description,
					Price:       opt.BasePrice,
					Quantity:    decimal.NewFromInt(1),
				},
				option: opt,
			})
		}
	}
	return out
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
