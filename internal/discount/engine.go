package discount

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Type enumerates how a campaign value is interpreted.
type Type string

const (
	TypePercentage Type = "percentage"
	TypeFixed      Type = "fixed"
)

// Scope enumerates which products a campaign covers.
type Scope string

const (
	ScopeAll      Scope = "all"
	ScopeSpecific Scope = "specific"
)

// ErrInvalidCampaign is returned when a campaign definition cannot be applied.
var ErrInvalidCampaign = errors.New("discount: invalid campaign")

var hundred = decimal.NewFromInt(100)

// Campaign captures a configured discount campaign.
type Campaign struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	DiscountType  Type            `json:"discount_type"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	AppliesTo     Scope           `json:"applies_to"`
	ProductIDs    []string        `json:"product_ids,omitempty"`
	StartDate     *time.Time      `json:"start_date,omitempty"`
	EndDate       *time.Time      `json:"end_date,omitempty"`
	IsActive      bool            `json:"is_active"`
}

// Validate ensures the campaign has a known type and scope and a non-negative value.
func (c Campaign) Validate() error {
	switch c.DiscountType {
	case TypePercentage, TypeFixed:
	default:
		return fmt.Errorf("%w: unknown discount type %q", ErrInvalidCampaign, c.DiscountType)
	}
	switch c.AppliesTo {
	case ScopeAll, ScopeSpecific:
	default:
		return fmt.Errorf("%w: unknown scope %q", ErrInvalidCampaign, c.AppliesTo)
	}
	if c.DiscountValue.IsNegative() {
		return fmt.Errorf("%w: negative discount value", ErrInvalidCampaign)
	}
	return nil
}

// ActiveAt reports whether the campaign is enabled and inside its date window.
func (c Campaign) ActiveAt(now time.Time) bool {
	if !c.IsActive {
		return false
	}
	if c.StartDate != nil && now.Before(*c.StartDate) {
		return false
	}
	if c.EndDate != nil && now.After(*c.EndDate) {
		return false
	}
	return true
}

// Covers reports whether the campaign applies to productID.
func (c Campaign) Covers(productID string) bool {
	switch c.AppliesTo {
	case ScopeAll:
		return true
	case ScopeSpecific:
		return slices.Contains(c.ProductIDs, strings.TrimSpace(productID))
	}
	return false
}

// Select returns the first campaign in list order that is active at now and
// covers productID.
func Select(campaigns []Campaign, productID string, now time.Time) (Campaign, bool) {
	for _, c := range campaigns {
		if c.ActiveAt(now) && c.Covers(productID) {
			return c, true
		}
	}
	return Campaign{}, false
}

// Compute determines the discount amount of c against subtotal. Fixed values
// are clamped to the subtotal and the result is never negative.
func Compute(c Campaign, subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() || c.DiscountValue.IsNegative() {
		return decimal.Zero
	}
	var amount decimal.Decimal
	switch c.DiscountType {
	case TypePercentage:
		amount = subtotal.Mul(c.DiscountValue).Div(hundred)
	case TypeFixed:
		amount = c.DiscountValue
	default:
		return decimal.Zero
	}
	if amount.GreaterThan(subtotal) {
		return subtotal
	}
	return amount
}

// Applied is the campaign snapshot stored on a quote. It recomputes the
// discount for whatever subtotal the quote currently has.
type Applied struct {
	CampaignID string          `json:"campaign_id"`
	Name       string          `json:"name"`
	Type       Type            `json:"type"`
	Value      decimal.Decimal `json:"value"`
}

// Amount implements pricing.Discounter.
func (a Applied) Amount(subtotal decimal.Decimal) decimal.Decimal {
	return Compute(Campaign{DiscountType: a.Type, DiscountValue: a.Value}, subtotal)
}

// Result describes the outcome of applying the campaign list to a subtotal.
type Result struct {
	Amount      decimal.Decimal
	Description string
	Applied     *Applied
}

// Apply selects a campaign and computes its discount. No matching campaign
// yields a zero result without a description.
func Apply(campaigns []Campaign, productID string, subtotal decimal.Decimal, now time.Time) Result {
	c, ok := Select(campaigns, productID, now)
	if !ok {
		return Result{Amount: decimal.Zero}
	}
	return Result{
		Amount:      Compute(c, subtotal),
		Description: c.Name,
		Applied:     &Applied{CampaignID: c.ID, Name: c.Name, Type: c.DiscountType, Value: c.DiscountValue},
	}
}
