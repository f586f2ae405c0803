// Package analysis runs the economics crew for the HTTP gateway and answers
// follow-up questions about finished reports.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"worldeconomics/internal/crew"
	"worldeconomics/internal/gateway/runtime"
	"worldeconomics/internal/llm"
	"worldeconomics/internal/pipeline"
	"worldeconomics/internal/report"
	"worldeconomics/internal/trace"
)

type Options struct {
	Crew        *crew.Crew
	Executor    pipeline.Executor
	TaskTimeout time.Duration
	Index       *report.Index
	Trace       *trace.Logger
	Hub         *runtime.Hub
	// MaxConcurrent bounds simultaneous pipeline runs; zero means 2.
	MaxConcurrent int
	SessionTTL    time.Duration
	MaxSessions   int
	Now           func() time.Time
}

// Service owns run lifecycle, report lookup and chat sessions.
type Service struct {
	crew     *crew.Crew
	engine   pipeline.Engine
	index    *report.Index
	trace    *trace.Logger
	hub      *runtime.Hub
	slots    *semaphore.Weighted
	sessions *sessions
	now      func() time.Time

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

func New(opts Options) (*Service, error) {
	if opts.Crew == nil {
		return nil, errors.New("analysis: crew is required")
	}
	if opts.Executor == nil {
		return nil, pipeline.ErrNilExecutor
	}
	if opts.Index == nil {
		return nil, errors.New("analysis: report index is required")
	}
	if opts.Hub == nil {
		opts.Hub = runtime.NewHub()
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 2
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, stop := context.WithCancel(context.Background())
	s := &Service{
		crew: opts.Crew,
		engine: pipeline.Engine{
			Executor:    opts.Executor,
			TaskTimeout: opts.TaskTimeout,
			Sink:        report.StoreSink{Store: opts.Index.Store()},
			Now:         opts.Now,
		},
		index:    opts.Index,
		trace:    opts.Trace,
		hub:      opts.Hub,
		slots:    semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		sessions: newSessions(opts.MaxSessions, opts.SessionTTL),
		now:      opts.Now,
		baseCtx:  ctx,
		stop:     stop,
	}
	return s, nil
}

// Hub exposes live run events.
func (s *Service) Hub() *runtime.Hub { return s.hub }

// Crew is the crew every run executes.
func (s *Service) Crew() *crew.Crew { return s.crew }

// Result is a successful run.
type Result struct {
	RunID  string
	Record report.RunRecord
	Report string
	Run    *pipeline.Run
}

// RunError is a failed run with its diagnostic trace.
type RunError struct {
	RunID string
	Err   error
	Trace []string
}

func (e *RunError) Error() string { return e.Err.Error() }
func (e *RunError) Unwrap() error { return e.Err }

// Run executes the crew synchronously.
func (s *Service) Run(ctx context.Context, question string) (*Result, error) {
	id, inputs, err := s.begin(ctx, question)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, id, inputs)
}

// Start registers a run and executes it in the background. Use the hub or
// the index to follow it.
func (s *Service) Start(ctx context.Context, question string) (string, error) {
	id, inputs, err := s.begin(ctx, question)
	if err != nil {
		return "", err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.execute(s.baseCtx, id, inputs); err != nil {
			log.Printf("analysis: background run %s failed: %v", id, err)
		}
	}()
	return id, nil
}

// Shutdown cancels background runs and waits for them to stop.
func (s *Service) Shutdown(ctx context.Context) error {
	s.stop()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) begin(ctx context.Context, question string) (string, pipeline.RunInputs, error) {
	inputs := pipeline.RunInputs(crew.DefaultInputs(question, s.now()))
	id := pipeline.NewRunID()
	if _, err := s.index.Begin(ctx, id, inputs[crew.InputUserQuery], s.crew.FinalReportFile()); err != nil {
		return "", nil, err
	}
	s.hub.Open(id)
	return id, inputs, nil
}

func (s *Service) execute(ctx context.Context, id string, inputs pipeline.RunInputs) (*Result, error) {
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return nil, s.fail(id, nil, err)
	}
	defer s.slots.Release(1)

	// Watchers see run_finished only once the index marks the run succeeded.
	var finished *pipeline.Event
	hub := pipeline.EmitterFunc(func(ev pipeline.Event) {
		if ev.Type == pipeline.EventRunFinished {
			finished = &ev
			return
		}
		s.hub.Emit(ev)
	})
	emitters := pipeline.MultiEmitter{hub}
	if s.trace != nil {
		emitters = append(emitters, s.trace.Emitter())
		s.trace.Append(id, "analysis", "run_requested", map[string]any{"question": inputs[crew.InputUserQuery]})
		ctx = llm.WithHook(ctx, s.trace.Hook(id))
	}
	ctx = pipeline.WithEmitter(ctx, emitters)

	run, err := s.engine.RunWithID(ctx, id, s.crew, inputs)
	if err != nil {
		return nil, s.fail(id, run, err)
	}
	rec, err := s.index.Finish(ctx, id, persistedFiles(run))
	if err != nil {
		return nil, s.fail(id, run, err)
	}
	if finished != nil {
		s.hub.Emit(*finished)
	}
	body, err := s.index.Report(ctx, id)
	if err != nil {
		return nil, &RunError{RunID: id, Err: err, Trace: s.traceLines(id)}
	}
	return &Result{RunID: id, Record: rec, Report: string(body), Run: run}, nil
}

// fail records the failure. A failed index write is logged; the run error wins.
func (s *Service) fail(id string, run *pipeline.Run, cause error) error {
	if _, err := s.index.Fail(context.WithoutCancel(s.baseCtx), id, cause, persistedFiles(run)); err != nil {
		log.Printf("analysis: record failure of run %s: %v", id, err)
	}
	if s.trace != nil {
		s.trace.Append(id, "analysis", "run_failed", map[string]any{"message": cause.Error()})
	}
	// No-op when the engine already reported the failure.
	s.hub.Emit(pipeline.Event{Type: pipeline.EventRunFailed, RunID: id, Message: cause.Error(), At: s.now()})
	return &RunError{RunID: id, Err: cause, Trace: s.traceLines(id)}
}

func (s *Service) traceLines(id string) []string {
	if s.trace == nil {
		return nil
	}
	return s.trace.Lines(id)
}

func persistedFiles(run *pipeline.Run) []string {
	if run == nil {
		return nil
	}
	var out []string
	for _, r := range run.Results {
		if r.OutputFile != "" && r.PersistedPath != "" {
			out = append(out, r.OutputFile)
		}
	}
	return out
}

// Runs lists every known run, newest first.
func (s *Service) Runs() []report.RunRecord { return s.index.List() }

// RunRecord returns one run.
func (s *Service) RunRecord(id string) (report.RunRecord, error) { return s.index.Get(id) }

// Report returns the final report of a run.
func (s *Service) Report(ctx context.Context, id string) (string, error) {
	b, err := s.index.Report(ctx, id)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// LatestReport returns the most recent successful run and its report.
func (s *Service) LatestReport(ctx context.Context) (report.RunRecord, string, error) {
	rec, b, err := s.index.LatestReport(ctx)
	if err != nil {
		return rec, "", err
	}
	return rec, string(b), nil
}

// FileInfo names one persisted output of a run.
type FileInfo struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// Files lists the task outputs persisted for a run.
func (s *Service) Files(ctx context.Context, id string) ([]FileInfo, error) {
	if _, err := s.index.Get(id); err != nil {
		return nil, err
	}
	store := s.index.Store()
	names, err := store.List(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]FileInfo, 0, len(names))
	for _, n := range names {
		if n == report.RunFile {
			continue
		}
		u, err := store.GetURL(ctx, id, n)
		if err != nil {
			log.Printf("analysis: url for %s/%s: %v", id, n, err)
		}
		out = append(out, FileInfo{Name: n, URL: u})
	}
	return out, nil
}

// File returns one persisted output of a run.
func (s *Service) File(ctx context.Context, id, name string) ([]byte, error) {
	if _, err := s.index.Get(id); err != nil {
		return nil, err
	}
	if path.Clean(name) == report.RunFile {
		return nil, fmt.Errorf("%w: %s", report.ErrNotFound, name)
	}
	return s.index.Store().Get(ctx, id, name)
}

// Trace returns the diagnostic events of a run.
func (s *Service) Trace(id string) ([]trace.Event, error) {
	if s.trace == nil {
		return []trace.Event{}, nil
	}
	return s.trace.Read(strings.TrimSpace(id))
}
