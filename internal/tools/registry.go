// Package tools defines the in-process tools agents may call and the
// registry that dispatches them by name.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
)

var ErrUnknownTool = errors.New("tools: unknown tool")

// ToolSpec is what the model sees of a tool.
type ToolSpec struct {
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	InputSchema  json.RawMessage `json:"input_schema,omitempty"`
	OutputSchema json.RawMessage `json:"output_schema,omitempty"`
}

type Tool interface {
	Spec() ToolSpec
	Call(ctx context.Context, input json.RawMessage) (json.RawMessage, error)
}

// Registry is an immutable name → tool table. A nil *Registry is empty.
type Registry struct {
	byName map[string]Tool
}

// NewRegistry indexes tools by spec name. Nil tools and tools without a
// name are skipped; a later tool with the same name wins.
func NewRegistry(ts ...Tool) *Registry {
	r := &Registry{byName: make(map[string]Tool, len(ts))}
	for _, t := range ts {
		if t == nil {
			continue
		}
		if name := t.Spec().Name; name != "" {
			r.byName[name] = t
		}
	}
	return r
}

func (r *Registry) lookup(name string) (Tool, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.byName[name]
	return t, ok
}

func (r *Registry) Call(ctx context.Context, name string, input json.RawMessage) (json.RawMessage, error) {
	t, ok := r.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownTool, name)
	}
	return t.Call(ctx, input)
}

// Names lists tool names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(r.byName))
}

// Specs follows the order of Names.
func (r *Registry) Specs() []ToolSpec {
	names := r.Names()
	specs := make([]ToolSpec, len(names))
	for i, n := range names {
		specs[i] = r.byName[n].Spec()
	}
	return specs
}

// Subset keeps only the named tools that exist.
func (r *Registry) Subset(names ...string) *Registry {
	picked := make([]Tool, 0, len(names))
	for _, n := range names {
		if t, ok := r.lookup(n); ok {
			picked = append(picked, t)
		}
	}
	return NewRegistry(picked...)
}

// Func turns a plain function into a Tool.
type Func struct {
	ToolSpec ToolSpec
	Fn       func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)
}

func (f Func) Spec() ToolSpec { return f.ToolSpec }

func (f Func) Call(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	return f.Fn(ctx, input)
}
