package llmtool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"worldeconomics/internal/tools"
)

// jsonBlock encodes items on one line without HTML escaping. A nil slice renders
// as [].
func jsonBlock[T any](items []T) string {
	if items == nil {
		items = []T{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(items)
	return buf.String()
}

// DefaultPromptBuilder appends the tool list and any tool results to base.
func DefaultPromptBuilder(base string) PromptBuilder {
	return func(_ context.Context, state *ToolState, specs []tools.ToolSpec) (string, error) {
		if strings.TrimSpace(base) == "" {
			return "", errors.New("llmtool: base prompt is empty")
		}
		var p sections
		p.raw(base + "\n")
		p.add("TOOLS", jsonBlock(specs))
		if len(state.ToolResults) > 0 {
			p.add("TOOL_RESULTS", jsonBlock(state.ToolResults))
		}
		return p.String(), nil
	}
}

// sections renders "[TITLE]\nbody\n\n" blocks, skipping empty bodies.
type sections struct{ strings.Builder }

func (p *sections) raw(s string) { p.WriteString(s) }

func (p *sections) add(title, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	if p.Len() > 0 && !strings.HasSuffix(p.String(), "\n\n") {
		p.WriteString("\n")
	}
	p.WriteString("[" + title + "]\n")
	p.WriteString(strings.TrimRight(body, "\n"))
	p.WriteString("\n\n")
}
