package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"go.uber.org/atomic"

	"worldeconomics/internal/crew"
)

// RunFile holds the persisted run record next to the run outputs. Crews may
// not use it as a task output file.
const RunFile = crew.RunRecordFile

var (
	ErrNoReport      = errors.New("report: no completed report yet")
	ErrRunFailed     = errors.New("report: run failed")
	ErrRunInProgress = errors.New("report: run in progress")
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// RunRecord describes one pipeline run.
type RunRecord struct {
	ID         string    `json:"id"`
	Question   string    `json:"question"`
	Status     Status    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Error      string    `json:"error,omitempty"`
	FinalFile  string    `json:"final_file"`
	Files      []string  `json:"files,omitempty"`
}

// Index tracks run records and which run holds the latest report. The latest
// pointer only moves when a run succeeds, so a failing run never hides the
// previous report.
type Index struct {
	store  Store
	now    func() time.Time
	latest *atomic.String

	mu   sync.RWMutex
	runs map[string]*RunRecord
}

func NewIndex(store Store) *Index {
	return &Index{
		store:  store,
		now:    time.Now,
		latest: atomic.NewString(""),
		runs:   make(map[string]*RunRecord),
	}
}

// Store is the backing file store.
func (x *Index) Store() Store { return x.store }

// Begin registers a running run.
func (x *Index) Begin(ctx context.Context, id, question, finalFile string) (RunRecord, error) {
	id, err := cleanRunID(id)
	if err != nil {
		return RunRecord{}, err
	}
	rec := &RunRecord{ID: id, Question: question, Status: StatusRunning, StartedAt: x.now().UTC(), FinalFile: finalFile}
	x.mu.Lock()
	if _, exists := x.runs[id]; exists {
		x.mu.Unlock()
		return RunRecord{}, fmt.Errorf("report: run %s already registered", id)
	}
	x.runs[id] = rec
	snap := *rec
	x.mu.Unlock()
	return snap, x.persist(ctx, snap)
}

// Finish marks a run succeeded and makes it the latest report.
func (x *Index) Finish(ctx context.Context, id string, files []string) (RunRecord, error) {
	snap, err := x.update(id, func(r *RunRecord) {
		r.Status = StatusSucceeded
		r.FinishedAt = x.now().UTC()
		r.Files = append([]string(nil), files...)
	})
	if err != nil {
		return RunRecord{}, err
	}
	if err := x.persist(ctx, snap); err != nil {
		return snap, err
	}
	x.latest.Store(id)
	return snap, nil
}

// Fail marks a run failed. The latest pointer is left untouched.
func (x *Index) Fail(ctx context.Context, id string, cause error, files []string) (RunRecord, error) {
	snap, err := x.update(id, func(r *RunRecord) {
		r.Status = StatusFailed
		r.FinishedAt = x.now().UTC()
		r.Files = append([]string(nil), files...)
		if cause != nil {
			r.Error = cause.Error()
		}
	})
	if err != nil {
		return RunRecord{}, err
	}
	return snap, x.persist(ctx, snap)
}

func (x *Index) update(id string, fn func(*RunRecord)) (RunRecord, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	rec, ok := x.runs[id]
	if !ok {
		return RunRecord{}, fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	fn(rec)
	return *rec, nil
}

func (x *Index) persist(ctx context.Context, rec RunRecord) error {
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	if err := x.store.Put(ctx, rec.ID, RunFile, b); err != nil {
		return fmt.Errorf("report: persist run record %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns the record of a run.
func (x *Index) Get(id string) (RunRecord, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	rec, ok := x.runs[id]
	if !ok {
		return RunRecord{}, fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	return *rec, nil
}

// List returns every run, newest first.
func (x *Index) List() []RunRecord {
	x.mu.RLock()
	out := make([]RunRecord, 0, len(x.runs))
	for _, r := range x.runs {
		out = append(out, *r)
	}
	x.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Latest returns the most recent successful run.
func (x *Index) Latest() (RunRecord, error) {
	id := x.latest.Load()
	if id == "" {
		return RunRecord{}, ErrNoReport
	}
	return x.Get(id)
}

// Report returns the final report of a run.
func (x *Index) Report(ctx context.Context, id string) ([]byte, error) {
	rec, err := x.Get(id)
	if err != nil {
		return nil, err
	}
	switch rec.Status {
	case StatusRunning:
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, id)
	case StatusFailed:
		return nil, fmt.Errorf("%w: %s: %s", ErrRunFailed, id, rec.Error)
	}
	b, err := x.store.Get(ctx, id, rec.FinalFile)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: Expected output '%s' not found", ErrNotFound, rec.FinalFile)
	}
	return b, err
}

// LatestReport returns the latest successful run and its final report.
func (x *Index) LatestReport(ctx context.Context) (RunRecord, []byte, error) {
	rec, err := x.Latest()
	if err != nil {
		return RunRecord{}, nil, err
	}
	b, err := x.Report(ctx, rec.ID)
	if err != nil {
		return rec, nil, err
	}
	return rec, b, nil
}

// Restore reloads run records from a store that can enumerate runs. Runs
// recorded as running belonged to a previous process and are marked failed.
func (x *Index) Restore(ctx context.Context) (int, error) {
	rl, ok := x.store.(RunLister)
	if !ok {
		return 0, nil
	}
	ids, err := rl.Runs(ctx)
	if err != nil {
		return 0, fmt.Errorf("report: list runs: %w", err)
	}
	var latest RunRecord
	n := 0
	for _, id := range ids {
		raw, err := x.store.Get(ctx, id, RunFile)
		if err != nil {
			continue
		}
		var rec RunRecord
		if err := json.Unmarshal(raw, &rec); err != nil || rec.ID != id {
			log.Printf("report store: skip run %s: unreadable %s", id, RunFile)
			continue
		}
		if rec.Status == StatusRunning {
			rec.Status = StatusFailed
			rec.Error = "interrupted"
		}
		if rec.Status == StatusSucceeded && rec.FinishedAt.After(latest.FinishedAt) {
			latest = rec
		}
		x.mu.Lock()
		if _, exists := x.runs[id]; !exists {
			r := rec
			x.runs[id] = &r
			n++
		}
		x.mu.Unlock()
	}
	if latest.ID != "" && x.latest.Load() == "" {
		x.latest.Store(latest.ID)
	}
	return n, nil
}
