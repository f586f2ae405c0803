package llm

import (
	"context"
	"encoding/json"
)

// PromptHook observes every model call made under a context.
type PromptHook interface {
	Before(ctx context.Context, phase, prompt string, input any)
	After(ctx context.Context, phase string, raw json.RawMessage, err error)
}

type ctxKey int

const (
	hookKey ctxKey = iota
	phaseKey
)

// WithHook attaches a PromptHook that the WithHooks middleware calls.
func WithHook(ctx context.Context, hook PromptHook) context.Context {
	return context.WithValue(ctx, hookKey, hook)
}

// WithPhase labels calls made under ctx, usually with the task name.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, phaseKey, phase)
}

func HookFrom(ctx context.Context) PromptHook {
	h, _ := ctx.Value(hookKey).(PromptHook)
	return h
}

// PhaseFrom returns the phase label, or "unknown".
func PhaseFrom(ctx context.Context) string {
	if p, ok := ctx.Value(phaseKey).(string); ok && p != "" {
		return p
	}
	return "unknown"
}
