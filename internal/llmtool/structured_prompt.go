package llmtool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"worldeconomics/internal/tools"
)

// PromptField describes a single output field in a simple schema.
type PromptField struct {
	Name        string
	Type        string
	Required    bool
	Description string
}

// PromptExample captures an optional output example.
type PromptExample struct {
	Note       string
	OutputJSON string
}

// StructuredPromptSpec defines the sections for a structured prompt.
type StructuredPromptSpec struct {
	Purpose        string
	Background     string
	Task           string
	ExpectedOutput string
	OutputFields   []PromptField
	Constraints    []string
	Rules          []string
	Examples       []PromptExample
}

// ActionFields is the envelope schema the tool loop understands.
func ActionFields() []PromptField {
	return []PromptField{
		{Name: "action", Type: "string", Required: true, Description: `"tool" to call a tool, "final" to answer.`},
		{Name: "tool_name", Type: "string", Description: "Name of the tool to call when action is \"tool\"."},
		{Name: "tool_input", Type: "object", Description: "Input object for the tool, matching its input_schema."},
		{Name: "final", Type: "string", Description: "The complete answer in markdown when action is \"final\"."},
	}
}

// StructuredPromptBuilder renders the spec as titled sections followed by
// the tool list, earlier tool results and examples. The last permitted turn
// carries a notice demanding a final answer.
func StructuredPromptBuilder(spec StructuredPromptSpec) PromptBuilder {
	return func(_ context.Context, state *ToolState, specs []tools.ToolSpec) (string, error) {
		switch {
		case strings.TrimSpace(spec.Purpose) == "":
			return "", errors.New("llmtool: purpose is empty")
		case len(spec.OutputFields) == 0:
			return "", errors.New("llmtool: output fields are empty")
		}
		var input string
		if state.Input != nil {
			b, err := json.MarshalIndent(state.Input, "", "  ")
			if err != nil {
				return "", fmt.Errorf("llmtool: encode input: %w", err)
			}
			input = string(b)
		}

		var p sections
		p.add("PURPOSE", spec.Purpose)
		p.add("BACKGROUND", spec.Background)
		p.add("TASK", spec.Task)
		p.add("EXPECTED_OUTPUT", spec.ExpectedOutput)
		p.add("INPUT", input)
		p.add("OUTPUT", bullets(spec.OutputFields, PromptField.line))
		p.add("CONSTRAINTS", bullets(spec.Constraints, strings.TrimSpace))
		p.add("RULES", bullets(spec.Rules, strings.TrimSpace))
		if len(specs) > 0 {
			p.add("TOOLS", jsonBlock(specs))
		}
		if len(state.ToolResults) > 0 {
			p.add("TOOL_RESULTS", jsonBlock(state.ToolResults))
		}
		p.add("EXAMPLES", examples(spec.Examples))
		if state.LastIteration() {
			p.add("NOTICE", "This is your last turn. Respond with action \"final\" now.")
		}
		return strings.TrimSpace(p.String()) + "\n", nil
	}
}

func (f PromptField) line() string {
	name := strings.TrimSpace(f.Name)
	if name == "" {
		return ""
	}
	req := "optional"
	if f.Required {
		req = "required"
	}
	out := fmt.Sprintf("%s (%s, %s)", name, f.Type, req)
	if f.Description != "" {
		out += ": " + f.Description
	}
	return out
}

// bullets renders one "- item" line per non-empty rendering.
func bullets[T any](items []T, render func(T) string) string {
	var b strings.Builder
	for _, it := range items {
		if s := render(it); s != "" {
			b.WriteString("- " + s + "\n")
		}
	}
	return b.String()
}

func examples(list []PromptExample) string {
	blocks := make([]string, 0, len(list))
	for i, ex := range list {
		head := fmt.Sprintf("Example %d", i+1)
		if ex.Note != "" {
			head += " (" + ex.Note + ")"
		}
		blocks = append(blocks, head+":\n"+strings.TrimSpace(ex.OutputJSON))
	}
	return strings.Join(blocks, "\n\n")
}
