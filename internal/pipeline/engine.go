package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rs/xid"

	"worldeconomics/internal/crew"
)

// Engine runs a crew's tasks strictly in declaration order.
type Engine struct {
	Executor Executor
	// Sink receives outputs of tasks that declare an output file.
	// Nil disables persistence.
	Sink Sink
	// TaskTimeout bounds each executor call when positive.
	TaskTimeout time.Duration

	Now   func() time.Time
	NewID func() string
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// NewRunID returns a fresh, sortable run identifier.
func NewRunID() string { return xid.New().String() }

// Run executes the crew with a freshly generated run id.
func (e *Engine) Run(ctx context.Context, c *crew.Crew, inputs RunInputs) (*Run, error) {
	id := ""
	if e.NewID != nil {
		id = e.NewID()
	}
	return e.RunWithID(ctx, id, c, inputs)
}

// RunWithID executes the crew under the given run id.
//
// The first failing task aborts the run. The returned Run then holds the
// results of every task before it and the error is a *TaskError. Files
// already handed to the sink are left in place.
func (e *Engine) RunWithID(ctx context.Context, runID string, c *crew.Crew, inputs RunInputs) (*Run, error) {
	if e == nil || e.Executor == nil {
		return nil, ErrNilExecutor
	}
	if c == nil || len(c.Tasks) == 0 {
		return nil, ErrEmptyCrew
	}
	if runID == "" {
		runID = NewRunID()
	}
	for _, name := range c.Inputs {
		if _, ok := inputs[name]; !ok {
			return nil, fmt.Errorf("%w %q", ErrMissingInput, name)
		}
	}

	emit := EmitterFrom(ctx)
	total := len(c.Tasks)
	run := &Run{ID: runID, Crew: c.Name, Inputs: copyInputs(inputs), Results: make([]TaskResult, 0, total)}
	emit.Emit(Event{Type: EventRunStarted, RunID: runID, Total: total, At: e.now()})

	fail := func(i int, task crew.TaskSpec, err error) (*Run, error) {
		terr := &TaskError{Index: i, Task: task.Name, Err: err}
		log.Printf("pipeline: run %s: %v", runID, terr)
		at := e.now()
		emit.Emit(Event{Type: EventTaskFailed, RunID: runID, Task: task.Name, Agent: task.Agent, Index: i, Total: total, Message: err.Error(), At: at})
		emit.Emit(Event{Type: EventRunFailed, RunID: runID, Task: task.Name, Index: i, Total: total, Message: terr.Error(), At: at})
		return run, terr
	}

	for i, task := range c.Tasks {
		if err := ctx.Err(); err != nil {
			return fail(i, task, err)
		}
		agent, ok := c.Agent(task.Agent)
		if !ok {
			return fail(i, task, fmt.Errorf("%w %q", ErrUnknownAgent, task.Agent))
		}
		upstream := make([]ContextEntry, 0, len(task.Context))
		for _, ref := range task.Context {
			res, ok := run.Result(ref)
			if !ok {
				return fail(i, task, fmt.Errorf("%w: %s", ErrMissingContext, ref))
			}
			upstream = append(upstream, ContextEntry{Task: ref, Text: res.Text})
		}

		req := Request{
			RunID:   runID,
			Agent:   agent,
			Task:    task,
			Prompt:  Resolve(task.Description, inputs, upstream),
			Context: contextTexts(upstream),
		}
		started := e.now()
		emit.Emit(Event{Type: EventTaskStarted, RunID: runID, Task: task.Name, Agent: agent.Name, Index: i, Total: total, At: started})
		log.Printf("pipeline: run %s task %d/%d %s (agent %s) started", runID, i+1, total, task.Name, agent.Name)

		text, err := e.execute(ctx, req)
		if err != nil {
			return fail(i, task, err)
		}
		res := TaskResult{
			Task:       task.Name,
			Agent:      agent.Name,
			Prompt:     req.Prompt,
			Text:       text,
			OutputFile: task.OutputFile,
			StartedAt:  started,
		}
		if task.OutputFile != "" && e.Sink != nil {
			loc, err := e.Sink.Persist(ctx, runID, task.OutputFile, text)
			if err != nil {
				return fail(i, task, fmt.Errorf("persist %s: %w", task.OutputFile, err))
			}
			res.PersistedPath = loc
		}
		res.Duration = e.now().Sub(started)
		run.Results = append(run.Results, res)
		emit.Emit(Event{Type: EventTaskFinished, RunID: runID, Task: task.Name, Agent: agent.Name, Index: i, Total: total, File: task.OutputFile, At: e.now()})
		log.Printf("pipeline: run %s task %s finished in %s", runID, task.Name, res.Duration.Round(time.Millisecond))
	}

	final, _ := run.Final()
	emit.Emit(Event{Type: EventRunFinished, RunID: runID, Task: final.Task, Index: total - 1, Total: total, File: final.OutputFile, At: e.now()})
	return run, nil
}

type execResult struct {
	text string
	err  error
}

// execute calls the executor under the task timeout. An executor that ignores
// cancellation is abandoned once the deadline passes.
func (e *Engine) execute(ctx context.Context, req Request) (string, error) {
	if e.TaskTimeout <= 0 {
		return e.Executor.Execute(ctx, req)
	}
	ctx, cancel := context.WithTimeout(ctx, e.TaskTimeout)
	defer cancel()

	done := make(chan execResult, 1)
	go func() {
		text, err := e.Executor.Execute(ctx, req)
		done <- execResult{text: text, err: err}
	}()
	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("task %s: %w", req.Task.Name, ctx.Err())
	}
}

func contextTexts(entries []ContextEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Text)
	}
	return out
}

func copyInputs(in RunInputs) RunInputs {
	out := make(RunInputs, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
