package catalog

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// LegacyRules configures the text heuristics used to tag catalogs authored
// before pricing kinds existed.
type LegacyRules struct {
	HeaterStepID   string
	LightingStepID string
	// DescriptorToken identifies the single-unit lighting variant, e.g. "led".
	DescriptorToken string
}

// DefaultLegacyRules returns the rules matching the historical catalog data.
func DefaultLegacyRules() LegacyRules {
	return LegacyRules{HeaterStepID: "heater", LightingStepID: "lighting", DescriptorToken: "led"}
}

var (
	leadingMultiplier = regexp.MustCompile(`(?i)^\s*\(?\s*(\d+)\s*x(?:[^a-z]|$)`)
	anyMultiplier     = regexp.MustCompile(`(?i)(?:^|[^0-9.,])\d+\s*x(?:[^a-z]|$)`)
	singleMultiplier  = regexp.MustCompile(`(?i)(?:^|[^0-9.,])1\s*x(?:[^a-z]|$)`)
	kgPattern         = regexp.MustCompile(`(?i)\(?\s*(\d+(?:[.,]\d+)?)\s*kg\b\s*\)?`)
)

// stoneVocabulary includes misspellings found in imported catalogs.
var stoneVocabulary = []string{"stone", "according to", "acording to", "accoring to", "kivet"}

// ImportLegacy returns a copy of target where options without an authored
// pricing kind are tagged from their titles. fallback supplies the rest of a
// step's option list when target is a product override; pass nil for the
// default catalog.
func ImportLegacy(target, fallback Catalog, rules LegacyRules) Catalog {
	out := make(Catalog, len(target))
	for stepID, step := range target {
		copied := step
		copied.Options = make(map[string]Option, len(step.Options))
		merged, _ := ResolveStep(target, fallback, stepID)
		for optID, opt := range step.Options {
			copied.Options[optID] = tagOption(stepID, optID, opt, merged, rules)
		}
		out[stepID] = copied
	}
	return out
}

func tagOption(stepID, optID string, opt Option, step StepDefinition, rules LegacyRules) Option {
	if stepID == rules.HeaterStepID && opt.StoneKg == nil && !IsStoneText(optID, opt.Title) {
		if kg, ok := ParseKg(opt.Title); ok {
			opt.StoneKg = &kg
		}
	}
	if !opt.Pricing.IsZero() {
		return opt
	}
	switch stepID {
	case rules.LightingStepID:
		if n, ok := ParseMultiplier(opt.Title); ok && n > 1 {
			opt.Pricing = Lighting(n, FindLightingBase(step, optID, rules.DescriptorToken))
			return opt
		}
	case rules.HeaterStepID:
		if IsStoneText(optID, opt.Title) {
			opt.Pricing = HeaterStones()
			return opt
		}
	}
	opt.Pricing = Standard()
	return opt
}

// ParseMultiplier extracts N from titles such as "2x 2.5m LED" or "(3x) LED".
func ParseMultiplier(title string) (int, bool) {
	m := leadingMultiplier.FindStringSubmatch(title)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// ParseKg extracts a kilogram value from "(80kg)", "(80 kg)" or "80kg".
func ParseKg(title string) (decimal.Decimal, bool) {
	m := kgPattern.FindStringSubmatch(title)
	if m == nil {
		return decimal.Zero, false
	}
	kg, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", "."))
	if err != nil || !kg.IsPositive() {
		return decimal.Zero, false
	}
	return kg, true
}

// IsStoneText reports whether the option id or title names heater stones.
func IsStoneText(optionID, title string) bool {
	haystack := strings.ToLower(optionID + " " + title)
	for _, word := range stoneVocabulary {
		if strings.Contains(haystack, word) {
			return true
		}
	}
	return false
}

// FindLightingBase locates the canonical single-unit option of a lighting
// step: first an option marked "1x" with the descriptor token, then the
// unqualified variant with neither a multiplier nor a backrest qualifier.
func FindLightingBase(step StepDefinition, exceptID, descriptor string) string {
	descriptor = strings.ToLower(strings.TrimSpace(descriptor))
	ids := step.OptionIDs()
	for _, id := range ids {
		if id == exceptID {
			continue
		}
		title := strings.ToLower(step.Options[id].Title)
		if singleMultiplier.MatchString(title) && strings.Contains(title, descriptor) {
			return id
		}
	}
	for _, id := range ids {
		if id == exceptID {
			continue
		}
		title := strings.ToLower(step.Options[id].Title)
		if anyMultiplier.MatchString(title) || strings.Contains(title, "backrest") {
			continue
		}
		if descriptor != "" && !strings.Contains(title, descriptor) {
			continue
		}
		return id
	}
	return ""
}
