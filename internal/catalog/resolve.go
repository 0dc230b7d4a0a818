package catalog

import "sort"

// Resolve returns the option from override when present, else from def.
// Steps and options are looked up independently, so an override step that
// lacks the option still falls back to the default option.
func Resolve(override, def Catalog, stepID, optionID string) (Option, bool) {
	if step, ok := override[stepID]; ok {
		if opt, ok := step.Options[optionID]; ok {
			return opt, true
		}
	}
	if step, ok := def[stepID]; ok {
		if opt, ok := step.Options[optionID]; ok {
			return opt, true
		}
	}
	return Option{}, false
}

// ResolveStep returns step metadata with the same precedence as Resolve.
// The returned definition carries the merged option set of both catalogs.
func ResolveStep(override, def Catalog, stepID string) (StepDefinition, bool) {
	o, inOverride := override[stepID]
	d, inDefault := def[stepID]
	if !inOverride && !inDefault {
		return StepDefinition{}, false
	}
	merged := StepDefinition{
		Title:         d.Title,
		SelectionType: d.SelectionType,
		Options:       make(map[string]Option, len(d.Options)+len(o.Options)),
	}
	if inOverride {
		if o.Title != "" {
			merged.Title = o.Title
		}
		if o.SelectionType != "" {
			merged.SelectionType = o.SelectionType
		}
	}
	for id, opt := range d.Options {
		merged.Options[id] = opt
	}
	for id, opt := range o.Options {
		merged.Options[id] = opt
	}
	merged.Order = mergeOrder(o.Order, d.Order, merged.Options)
	return merged, true
}

// OptionIDs returns the step's option ids in authoring order.
func (s StepDefinition) OptionIDs() []string {
	return mergeOrder(s.Order, nil, s.Options)
}

func mergeOrder(primary, secondary []string, options map[string]Option) []string {
	seen := make(map[string]struct{}, len(options))
	out := make([]string, 0, len(options))
	for _, list := range [][]string{primary, secondary} {
		for _, id := range list {
			if _, ok := options[id]; !ok {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	var rest []string
	for id := range options {
		if _, ok := seen[id]; !ok {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}
