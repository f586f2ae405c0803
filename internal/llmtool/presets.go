package llmtool

import "slices"

// PromptPreset is a reusable set of constraints and rules.
type PromptPreset struct {
	Constraints []string
	Rules       []string
}

var (
	// StrictJSON keeps the model to one envelope per turn.
	StrictJSON = PromptPreset{Constraints: []string{
		"Return exactly one JSON object per turn.",
		"Use only the fields listed under OUTPUT.",
		"Put markdown only inside the final string, never around the JSON.",
	}}
	CiteSources = PromptPreset{Constraints: []string{
		"Do not invent statistics; every figure taken from a tool result must name its source.",
	}}
	Cautious = PromptPreset{Rules: []string{
		"Avoid guessing; if unsure, state the uncertainty and what data would resolve it.",
	}}
)

// ApplyPresets puts preset constraints and rules ahead of the spec's own.
func ApplyPresets(spec StructuredPromptSpec, presets ...PromptPreset) StructuredPromptSpec {
	var cons, rules [][]string
	for _, p := range presets {
		cons = append(cons, p.Constraints)
		rules = append(rules, p.Rules)
	}
	spec.Constraints = slices.Concat(append(cons, spec.Constraints)...)
	spec.Rules = slices.Concat(append(rules, spec.Rules)...)
	return spec
}
