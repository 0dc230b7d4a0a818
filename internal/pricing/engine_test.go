package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type percentOff decimal.Decimal

func (p percentOff) Amount(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(decimal.Decimal(p)).Div(decimal.NewFromInt(100))
}

type fixedOff decimal.Decimal

func (f fixedOff) Amount(decimal.Decimal) decimal.Decimal { return decimal.Decimal(f) }

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func line(price, qty string) Line {
	return Line{Price: d(price), Quantity: d(qty)}
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, d(want).Equal(got), "want %s, got %s", want, got)
}

func TestSummarizeWithPercentDiscount(t *testing.T) {
	lines := []Line{line("600", "1"), line("200", "2")}
	sum := Summarize(lines, percentOff(d("10")), d("0.255"))

	requireDecimal(t, "1000", sum.Subtotal)
	requireDecimal(t, "100", sum.Discount)
	requireDecimal(t, "229.50", sum.Tax)
	requireDecimal(t, "1129.50", sum.Total)
}

func TestSummarizePerLineRates(t *testing.T) {
	rate := d("0.24")
	lines := []Line{
		{Price: d("100"), Quantity: d("1"), VATRate: &rate},
		line("100", "1"),
	}
	sum := Summarize(lines, nil, d("0.255"))
	requireDecimal(t, "49.50", sum.Tax)
	requireDecimal(t, "249.50", sum.Total)
}

func TestSummarizeDiscountSpreadAcrossRates(t *testing.T) {
	zero := decimal.Zero
	lines := []Line{
		{Price: d("100"), Quantity: d("1"), VATRate: &zero},
		line("100", "1"),
	}
	// Half of the 20.00 discount lands on the taxed line.
	sum := Summarize(lines, fixedOff(d("20")), d("0.25"))
	requireDecimal(t, "20", sum.Discount)
	requireDecimal(t, "22.50", sum.Tax)
	requireDecimal(t, "202.50", sum.Total)
}

func TestSummarizeClampsFixedDiscount(t *testing.T) {
	sum := Summarize([]Line{line("50", "1")}, fixedOff(d("80")), d("0.255"))
	requireDecimal(t, "50", sum.Discount)
	requireDecimal(t, "0", sum.Tax)
	requireDecimal(t, "0", sum.Total)

	sum = Summarize([]Line{line("50", "1")}, fixedOff(d("-5")), decimal.Zero)
	requireDecimal(t, "0", sum.Discount)
}

func TestSummarizeFractionalQuantity(t *testing.T) {
	sum := Summarize([]Line{line("29.50", "3.75")}, nil, decimal.Zero)
	requireDecimal(t, "110.625", sum.Subtotal)
	requireDecimal(t, "110.63", sum.Total)
}

func TestSummarizeEmpty(t *testing.T) {
	sum := Summarize(nil, percentOff(d("10")), d("0.255"))
	require.True(t, sum.Subtotal.IsZero())
	require.True(t, sum.Discount.IsZero())
	require.True(t, sum.Tax.IsZero())
	require.True(t, sum.Total.IsZero())
}
