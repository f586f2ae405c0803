package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// FakeClient returns scripted payloads in order and, once the script is
// exhausted, a deterministic final answer derived from the phase and prompt.
// It is used for tests and for offline runs (MODEL=fake).
type FakeClient struct {
	mu      sync.Mutex
	script  []json.RawMessage
	errs    []error
	prompts []string
	phases  []string
}

func NewFakeClient(script ...json.RawMessage) *FakeClient {
	return &FakeClient{script: script}
}

// FailNext makes the next call return err instead of consuming the script.
func (f *FakeClient) FailNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
}

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

// Prompts returns every prompt received so far.
func (f *FakeClient) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// Phases returns the phase tag of every call so far.
func (f *FakeClient) Phases() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.phases...)
}

func (f *FakeClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	phase := PhaseFrom(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.phases = append(f.phases, phase)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	if len(f.script) > 0 {
		out := f.script[0]
		f.script = f.script[1:]
		return out, nil
	}
	return offlineFinal(phase, prompt), nil
}

func offlineFinal(phase, prompt string) json.RawMessage {
	summary := firstLine(prompt)
	text := fmt.Sprintf("## %s\n\nOffline response generated without a language model.\n\n> %s\n", phase, summary)
	b, _ := json.Marshal(map[string]any{"action": "final", "final": text})
	return b
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "[") {
			continue
		}
		if len(line) > 200 {
			line = line[:200] + "..."
		}
		return line
	}
	return ""
}
