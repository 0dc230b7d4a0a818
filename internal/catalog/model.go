package catalog

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrStepNotFound is returned when neither catalog defines the step.
	ErrStepNotFound = errors.New("catalog: step not found")
	// ErrOptionNotFound is returned when neither catalog defines the option.
	ErrOptionNotFound = errors.New("catalog: option not found")
	// ErrProductNotFound is returned when the registry has no product with the given id.
	ErrProductNotFound = errors.New("catalog: product not found")
)

// Kind enumerates the pricing behaviour authored on an option.
type Kind string

const (
	KindStandard           Kind = "standard"
	KindHeaterStonePackage Kind = "heater_stone_package"
	KindLightingMultiplier Kind = "lighting_multiplier"
)

// PricingKind describes how an option's line is priced when a quote is generated.
type PricingKind struct {
	Kind         Kind   `json:"kind"`
	Factor       int    `json:"factor,omitempty"`
	BaseOptionID string `json:"base_option_id,omitempty"`
}

// IsZero reports whether no pricing kind was authored.
func (p PricingKind) IsZero() bool {
	return p.Kind == ""
}

// Standard returns the default pricing kind.
func Standard() PricingKind { return PricingKind{Kind: KindStandard} }

// HeaterStones marks an option as a stone package sized from the selected heater.
func HeaterStones() PricingKind { return PricingKind{Kind: KindHeaterStonePackage} }

// Lighting marks an option as factor copies of the base option.
func Lighting(factor int, baseOptionID string) PricingKind {
	return PricingKind{Kind: KindLightingMultiplier, Factor: factor, BaseOptionID: baseOptionID}
}

// Option is a selectable choice within a step.
type Option struct {
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	BasePrice   decimal.Decimal `json:"base_price"`
	ExternalID  string          `json:"external_id,omitempty"`
	Pricing     PricingKind     `json:"pricing,omitempty"`
	// StoneKg is the stone load of a heater model.
	StoneKg *decimal.Decimal `json:"stone_kg,omitempty"`
}

// StepDefinition describes one configurator step and its options.
type StepDefinition struct {
	Title         string            `json:"title"`
	SelectionType string            `json:"selection_type,omitempty"`
	Options       map[string]Option `json:"options"`
	// Order lists option ids in authoring order; options missing from it sort last by id.
	Order []string `json:"order,omitempty"`
}

// Catalog maps step ids to their definitions.
type Catalog map[string]StepDefinition

// Product is the pricing context of a configurable product.
type Product struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// StepNames overrides catalog step titles for display.
	StepNames map[string]string `json:"step_names,omitempty"`
	// MainExternalID links the base product to the external price catalog.
	MainExternalID string `json:"main_external_id,omitempty"`
}
