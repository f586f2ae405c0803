package search

import (
	"context"
	"encoding/json"
	"fmt"

	"worldeconomics/internal/tools"
)

// ToolName is the registry name of the search tool.
const ToolName = "web_search"

var toolInputSchema = json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"Search query"},"limit":{"type":"integer","minimum":1,"maximum":20}},"required":["query"]}`)

var toolOutputSchema = json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"},"results":{"type":"array","items":{"type":"object","properties":{"title":{"type":"string"},"snippet":{"type":"string"},"url":{"type":"string"}}}}}}`)

type toolInput struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type toolOutput struct {
	Query   string   `json:"query"`
	Results []Result `json:"results"`
}

// Tool exposes a Searcher to agents.
type Tool struct {
	searcher Searcher
	limit    int
}

var _ tools.Tool = (*Tool)(nil)

// NewTool wraps searcher; limit is the default result count.
func NewTool(searcher Searcher, limit int) *Tool {
	return &Tool{searcher: searcher, limit: clampLimit(limit)}
}

func (t *Tool) Spec() tools.ToolSpec {
	return tools.ToolSpec{
		Name:         ToolName,
		Description:  "Search the web for current economic data, news and official statistics. Returns titles, snippets and URLs.",
		InputSchema:  toolInputSchema,
		OutputSchema: toolOutputSchema,
	}
}

func (t *Tool) Call(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in toolInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, fmt.Errorf("search: invalid input: %w", err)
		}
	}
	if in.Limit <= 0 {
		in.Limit = t.limit
	}
	results, err := t.searcher.Search(ctx, in.Query, in.Limit)
	if err != nil {
		return nil, err
	}
	return json.Marshal(toolOutput{Query: in.Query, Results: results})
}
