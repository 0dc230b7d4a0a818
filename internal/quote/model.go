package quote

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/quote-engine/internal/discount"
	"github.com/noah-isme/quote-engine/internal/pricing"
)

var (
	// ErrInvalidTransition is returned when a lifecycle transition would move backwards or skip a state.
	ErrInvalidTransition = errors.New("quote: invalid state transition")
	// ErrNotFound indicates no quote matched the id or external reference.
	ErrNotFound = errors.New("quote: not found")
	// ErrPersistence wraps store failures while saving a generated quote.
	ErrPersistence = errors.New("quote: persistence failure")
)

// State is the lifecycle position of a quote.
type State string

const (
	StateDraft      State = "draft"
	StateGenerated  State = "generated"
	StateReconciled State = "reconciled"
	StatePersisted  State = "persisted"
	StateLinked     State = "linked"
)

var transitions = map[State][]State{
	StateDraft:      {StateGenerated},
	StateGenerated:  {StateReconciled, StatePersisted},
	StateReconciled: {StatePersisted},
	StatePersisted:  {StateLinked},
}

// CanAdvance reports whether moving from s to next is allowed.
func (s State) CanAdvance(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TagKind identifies which dynamic pricing rule produced an item.
type TagKind string

const (
	TagNone               TagKind = ""
	TagHeaterStonePackage TagKind = "heater_stone_package"
	TagLightingMultiplier TagKind = "lighting_multiplier"
)

// Tag records the dynamic pricing decision for an item.
type Tag struct {
	Kind TagKind `json:"kind,omitempty"`
	// Packages and Resolved apply to heater stone packages.
	Packages decimal.Decimal `json:"packages,omitzero"`
	Resolved bool            `json:"resolved,omitempty"`
	// Factor and BaseOptionID apply to lighting multipliers.
	Factor       int    `json:"factor,omitempty"`
	BaseOptionID string `json:"base_option_id,omitempty"`
}

// Item is a single priced selection of a quote.
type Item struct {
	StepID      string           `json:"step_id"`
	StepName    string           `json:"step_name"`
	OptionID    string           `json:"option_id"`
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	Price       decimal.Decimal  `json:"price"`
	Quantity    decimal.Decimal  `json:"quantity"`
	VATRate     *decimal.Decimal `json:"vat_rate,omitempty"`
	Tag         Tag              `json:"tag,omitzero"`
}

// LineTotal returns price × quantity.
func (it Item) LineTotal() decimal.Decimal {
	return it.Price.Mul(it.Quantity)
}

// Customer identifies who requested the quote.
type Customer struct {
	Email string `json:"email" validate:"required,email,max=254"`
	Name  string `json:"name,omitempty" validate:"max=200"`
	Phone string `json:"phone,omitempty" validate:"max=50"`
}

// Quote is the priced document produced from a customer's selections.
type Quote struct {
	ID          string   `json:"id"`
	ExternalRef string   `json:"external_ref,omitempty"`
	ProductID   string   `json:"product_id"`
	ProductName string   `json:"product_name"`
	Customer    Customer `json:"customer"`
	Items       []Item   `json:"items"`

	Subtotal            decimal.Decimal   `json:"subtotal"`
	Discount            decimal.Decimal   `json:"discount"`
	DiscountDescription string            `json:"discount_description,omitempty"`
	AppliedDiscount     *discount.Applied `json:"applied_discount,omitempty"`
	Tax                 decimal.Decimal   `json:"tax"`
	TaxRate             decimal.Decimal   `json:"tax_rate"`
	Total               decimal.Decimal   `json:"total"`
	Currency            string            `json:"currency"`

	State     State      `json:"state"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Notes     string     `json:"notes,omitempty"`
}

// Advance moves the quote to next or returns ErrInvalidTransition.
func (q *Quote) Advance(next State) error {
	if !q.State.CanAdvance(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, q.State, next)
	}
	q.State = next
	return nil
}

// Recalculate refreshes subtotal, discount, tax and total from the current
// items. The applied campaign is re-evaluated against the new subtotal.
func (q *Quote) Recalculate() {
	lines := make([]pricing.Line, len(q.Items))
	for i, it := range q.Items {
		lines[i] = pricing.Line{Price: it.Price, Quantity: it.Quantity, VATRate: it.VATRate}
	}
	var d pricing.Discounter
	if q.AppliedDiscount != nil {
		d = *q.AppliedDiscount
	}
	sum := pricing.Summarize(lines, d, q.TaxRate)
	q.Subtotal = sum.Subtotal
	q.Discount = sum.Discount
	q.Tax = sum.Tax
	q.Total = sum.Total
}

// Clone returns a deep copy so that reconciliation can work on its own
// snapshot.
func (q Quote) Clone() Quote {
	out := q
	out.Items = make([]Item, len(q.Items))
	for i, it := range q.Items {
		if it.VATRate != nil {
			rate := *it.VATRate
			it.VATRate = &rate
		}
		out.Items[i] = it
	}
	if q.AppliedDiscount != nil {
		applied := *q.AppliedDiscount
		out.AppliedDiscount = &applied
	}
	if q.ExpiresAt != nil {
		exp := *q.ExpiresAt
		out.ExpiresAt = &exp
	}
	return out
}
