// Package agent runs crew tasks against a language model with the agent's
// tools available through the tool loop.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"worldeconomics/internal/llm"
	"worldeconomics/internal/llmtool"
	"worldeconomics/internal/pipeline"
	"worldeconomics/internal/tools"
)

var (
	ErrNilLLM      = errors.New("agent: llm client is nil")
	ErrEmptyAnswer = errors.New("agent: model returned an empty answer")
)

const defaultMaxIters = 6

// Executor implements pipeline.Executor.
type Executor struct {
	LLM   llm.LLMClient
	Tools *tools.Registry
	// MaxIters bounds model turns per task, tool calls included.
	MaxIters int
	Logger   *log.Logger
}

var _ pipeline.Executor = (*Executor)(nil)

func New(client llm.LLMClient, registry *tools.Registry) *Executor {
	return &Executor{LLM: client, Tools: registry, MaxIters: defaultMaxIters}
}

func (e *Executor) Execute(ctx context.Context, req pipeline.Request) (string, error) {
	if e == nil || e.LLM == nil {
		return "", ErrNilLLM
	}
	ctx = llm.WithPhase(ctx, req.Task.Name)

	var provider llmtool.ToolProvider
	if len(req.Agent.Tools) > 0 && e.Tools != nil {
		provider = e.Tools.Subset(req.Agent.Tools...)
	}
	loop := &llmtool.ToolLoop{
		LLM:      e.LLM,
		Tools:    provider,
		MaxIters: e.maxIters(),
		Allowed:  req.Agent.Tools,
		OnToolResult: func(_ context.Context, res llmtool.ToolResult) {
			if res.Error != "" {
				e.logf("agent: %s/%s tool %s failed: %s", req.Agent.Name, req.Task.Name, res.Name, res.Error)
				return
			}
			e.logf("agent: %s/%s tool %s returned %d bytes", req.Agent.Name, req.Task.Name, res.Name, len(res.Output))
		},
	}

	start := time.Now()
	final, state, err := loop.Run(ctx, taskInput(req), llmtool.StructuredPromptBuilder(PromptSpec(req)))
	iters := 0
	if state != nil {
		iters = state.Iterations
	}
	if err != nil {
		return "", fmt.Errorf("agent %s: %w", req.Agent.Name, err)
	}
	text := strings.TrimSpace(llmtool.FinalText(final))
	if text == "" {
		return "", fmt.Errorf("agent %s: %w", req.Agent.Name, ErrEmptyAnswer)
	}
	e.logf("agent: %s finished %s in %d turn(s), %s", req.Agent.Name, req.Task.Name, iters, time.Since(start).Round(time.Millisecond))
	return text, nil
}

func (e *Executor) maxIters() int {
	if e.MaxIters > 0 {
		return e.MaxIters
	}
	return defaultMaxIters
}

func (e *Executor) logf(format string, args ...any) {
	if e.Logger != nil {
		e.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// taskInput is the JSON document shown to the model under INPUT.
func taskInput(req pipeline.Request) map[string]any {
	in := map[string]any{
		"task":  req.Task.Name,
		"agent": req.Agent.Name,
	}
	if len(req.Context) > 0 {
		in["context_tasks"] = req.Task.Context
	}
	return in
}
