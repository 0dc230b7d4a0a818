package pricing

import "github.com/shopspring/decimal"

// CentPlaces is the number of decimal places money is rounded to.
const CentPlaces = 2

// Line describes a priced quote line used for totals calculation.
type Line struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
	// VATRate overrides the default rate for this line when set.
	VATRate *decimal.Decimal
}

// Amount returns price × quantity without rounding.
func (l Line) Amount() decimal.Decimal {
	return l.Price.Mul(l.Quantity)
}

// Discounter computes the discount for a given subtotal.
type Discounter interface {
	Amount(subtotal decimal.Decimal) decimal.Decimal
}

// Summary aggregates computed pricing components.
type Summary struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Summarize calculates quote totals. discount may be nil. defaultRate is
// applied to lines without a VAT rate of their own; pass zero when tax is
// disabled.
//
// The discount is spread over lines in proportion to their amount, so each
// line's VAT base is amount × (subtotal − discount) / subtotal.
func Summarize(lines []Line, discount Discounter, defaultRate decimal.Decimal) Summary {
	subtotal := decimal.Zero
	weighted := decimal.Zero
	for _, l := range lines {
		amount := l.Amount()
		subtotal = subtotal.Add(amount)
		rate := defaultRate
		if l.VATRate != nil {
			rate = *l.VATRate
		}
		weighted = weighted.Add(amount.Mul(rate))
	}

	disc := decimal.Zero
	if discount != nil && subtotal.IsPositive() {
		disc = clamp(discount.Amount(subtotal), subtotal).Round(CentPlaces)
	}

	tax := decimal.Zero
	if subtotal.IsPositive() {
		tax = weighted.Mul(subtotal.Sub(disc)).Div(subtotal).Round(CentPlaces)
	}

	return Summary{
		Subtotal: subtotal,
		Discount: disc,
		Tax:      tax,
		Total:    subtotal.Sub(disc).Add(tax).Round(CentPlaces),
	}
}

func clamp(v, upper decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	if v.GreaterThan(upper) {
		return upper
	}
	return v
}
