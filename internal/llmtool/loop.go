package llmtool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"worldeconomics/internal/llm"
	"worldeconomics/internal/tools"
)

var (
	ErrMaxIterations  = errors.New("llmtool: max iterations reached")
	ErrUnknownAction  = errors.New("llmtool: unknown action")
	ErrToolNotAllowed = errors.New("llmtool: tool not allowed")
)

const defaultMaxIters = 5

// ToolProvider is the part of tools.Registry the loop needs.
type ToolProvider interface {
	Specs() []tools.ToolSpec
	Call(ctx context.Context, name string, input json.RawMessage) (json.RawMessage, error)
}

// PromptBuilder renders the prompt for one iteration.
type PromptBuilder func(ctx context.Context, state *ToolState, tools []tools.ToolSpec) (string, error)

// ToolLoop alternates model calls and tool calls until the model returns a
// final answer or MaxIters model calls have been made.
type ToolLoop struct {
	LLM      llm.LLMClient
	Tools    ToolProvider
	MaxIters int
	// Allowed restricts both the specs shown to the model and the tools it
	// may call. Empty allows every tool.
	Allowed      []string
	OnToolResult func(ctx context.Context, res ToolResult)
}

type ToolState struct {
	Input       any
	Iterations  int
	MaxIters    int
	ToolResults []ToolResult
}

// LastIteration reports whether the model must answer now.
func (s *ToolState) LastIteration() bool {
	return s != nil && s.MaxIters > 0 && s.Iterations >= s.MaxIters
}

type ToolResult struct {
	Name   string          `json:"name"`
	Input  json.RawMessage `json:"input,omitempty"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// allowList is a set of tool names; the empty set admits everything.
type allowList map[string]bool

func newAllowList(names []string) allowList {
	a := allowList{}
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			a[n] = true
		}
	}
	return a
}

func (a allowList) admits(name string) bool { return len(a) == 0 || a[name] }

func (a allowList) filter(specs []tools.ToolSpec) []tools.ToolSpec {
	if len(a) == 0 {
		return specs
	}
	var out []tools.ToolSpec
	for _, s := range specs {
		if a[s.Name] {
			out = append(out, s)
		}
	}
	return out
}

// Run drives the loop and returns the model's final payload.
//
// A failing tool, or a call to a tool outside Allowed, does not stop the
// loop; the error is recorded and shown to the model on the next prompt.
func (l *ToolLoop) Run(ctx context.Context, input any, build PromptBuilder) (json.RawMessage, *ToolState, error) {
	if l == nil || l.LLM == nil {
		return nil, nil, errors.New("llmtool: missing LLM")
	}
	if build == nil {
		return nil, nil, errors.New("llmtool: prompt builder is nil")
	}
	state := &ToolState{Input: input, MaxIters: l.MaxIters}
	if state.MaxIters <= 0 {
		state.MaxIters = defaultMaxIters
	}
	allow := newAllowList(l.Allowed)
	var specs []tools.ToolSpec
	if l.Tools != nil {
		specs = allow.filter(l.Tools.Specs())
	}

	for state.Iterations < state.MaxIters {
		if err := ctx.Err(); err != nil {
			return nil, state, err
		}
		state.Iterations++
		act, err := l.ask(ctx, state, specs, build)
		if err != nil {
			return nil, state, err
		}
		if act.Action == "final" {
			return act.Final, state, nil
		}
		res := l.invoke(ctx, allow, act)
		state.ToolResults = append(state.ToolResults, res)
		if l.OnToolResult != nil {
			l.OnToolResult(ctx, res)
		}
	}
	return nil, state, ErrMaxIterations
}

func (l *ToolLoop) ask(ctx context.Context, state *ToolState, specs []tools.ToolSpec, build PromptBuilder) (ActionEnvelope, error) {
	prompt, err := build(ctx, state, specs)
	if err != nil {
		return ActionEnvelope{}, err
	}
	raw, err := l.LLM.GenerateJSON(ctx, prompt, state.Input)
	if err != nil {
		return ActionEnvelope{}, err
	}
	return ParseAction(raw)
}

func (l *ToolLoop) invoke(ctx context.Context, allow allowList, act ActionEnvelope) ToolResult {
	res := ToolResult{Name: act.ToolName, Input: act.ToolInput}
	if act.ToolName == "" {
		res.Error = "tool_name required"
		return res
	}
	if l.Tools == nil || !allow.admits(act.ToolName) {
		res.Error = fmt.Sprintf("%v: %s", ErrToolNotAllowed, act.ToolName)
		return res
	}
	out, err := l.Tools.Call(ctx, act.ToolName, act.ToolInput)
	res.Output = out
	if err != nil {
		res.Error = err.Error()
	}
	return res
}
