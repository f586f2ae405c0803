package pipeline

import (
	"context"
	"time"

	"worldeconomics/internal/crew"
)

// RunInputs are the named values a run substitutes into task descriptions.
type RunInputs map[string]string

// Request is everything an agent needs to perform one task.
type Request struct {
	RunID   string
	Agent   crew.AgentSpec
	Task    crew.TaskSpec
	Prompt  string
	Context []string
}

// Executor performs one task and returns its text output.
type Executor interface {
	Execute(ctx context.Context, req Request) (string, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req Request) (string, error)

func (f ExecutorFunc) Execute(ctx context.Context, req Request) (string, error) { return f(ctx, req) }

// Sink persists a task's output under its configured file name and returns
// the location it was written to. Writes fully overwrite previous content.
type Sink interface {
	Persist(ctx context.Context, runID, file, text string) (string, error)
}

// TaskResult is created once per task per run.
type TaskResult struct {
	Task          string        `json:"task"`
	Agent         string        `json:"agent"`
	Prompt        string        `json:"prompt"`
	Text          string        `json:"text"`
	OutputFile    string        `json:"output_file,omitempty"`
	PersistedPath string        `json:"persisted_path,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
}

// Run accumulates results in execution order.
type Run struct {
	ID      string       `json:"id"`
	Crew    string       `json:"crew"`
	Inputs  RunInputs    `json:"inputs"`
	Results []TaskResult `json:"results"`
}

// Result returns the recorded result of the named task.
func (r *Run) Result(task string) (TaskResult, bool) {
	if r == nil {
		return TaskResult{}, false
	}
	for _, res := range r.Results {
		if res.Task == task {
			return res, true
		}
	}
	return TaskResult{}, false
}

// Final returns the most recent result. For a completed run this is the
// designated output of the crew.
func (r *Run) Final() (TaskResult, bool) {
	if r == nil || len(r.Results) == 0 {
		return TaskResult{}, false
	}
	return r.Results[len(r.Results)-1], true
}
