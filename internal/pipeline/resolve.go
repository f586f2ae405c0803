package pipeline

import (
	"strings"

	"worldeconomics/internal/crew"
)

// ContextHeader introduces the upstream outputs appended to a task prompt.
const ContextHeader = "This is the context you're working with:"

// ContextEntry is one upstream task output, in the order the task lists it.
type ContextEntry struct {
	Task string
	Text string
}

// ContextText joins upstream outputs in order, separated by a blank line.
func ContextText(entries []ContextEntry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, e.Text)
	}
	return strings.Join(parts, "\n\n")
}

// Resolve substitutes {name} placeholders from inputs, then from context task
// names, and appends the context block when there is any upstream output.
// It has no side effects: equal arguments always yield the same prompt.
func Resolve(template string, inputs RunInputs, context []ContextEntry) string {
	byTask := make(map[string]string, len(context))
	for _, e := range context {
		byTask[e.Task] = e.Text
	}
	out := crew.Expand(template, func(name string) (string, bool) {
		if v, ok := inputs[name]; ok {
			return v, true
		}
		v, ok := byTask[name]
		return v, ok
	})
	if len(context) == 0 {
		return out
	}
	return out + "\n\n" + ContextHeader + "\n" + ContextText(context)
}
