package trace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"worldeconomics/internal/pipeline"
	"worldeconomics/internal/tester"
)

func TestAppendAndRead(t *testing.T) {
	l := NewLogger(t.TempDir())
	l.Append("run/1", "pipeline", "run_started", map[string]any{"total": 4})
	l.Append("run/1", "pipeline", "task_started", nil)
	l.Append("", "pipeline", "ignored", nil)

	events, err := l.Read("run/1")
	tester.NoErr(t, err)
	tester.Eq(t, len(events), 2)
	tester.Eq(t, events[0].Stage, "run_started")
	tester.Eq(t, events[0].RunID, "run/1")
	tester.Eq[any](t, events[0].Fields["total"], float64(4))

	_, err = os.Stat(filepath.Join(l.Dir(), "run_1.jsonl"))
	tester.NoErr(t, err, "run id is sanitized into the file name")

	none, err := l.Read("other")
	tester.NoErr(t, err)
	tester.Eq(t, len(none), 0)
}

func TestEmitterAndHook(t *testing.T) {
	l := NewLogger(t.TempDir())
	l.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	em := l.Emitter()
	em.Emit(pipeline.Event{Type: pipeline.EventTaskStarted, RunID: "r1", Task: "research_task", Agent: "data_researcher", Index: 1, Total: 4})
	em.Emit(pipeline.Event{Type: pipeline.EventRunFailed, RunID: "r1", Message: "boom"})

	h := l.Hook("r1")
	h.Before(context.Background(), "research_task", "prompt", nil)
	h.After(context.Background(), "research_task", nil, errors.New("quota"))

	events, err := l.Read("r1")
	tester.NoErr(t, err)
	tester.Eq(t, len(events), 4)
	tester.Eq[any](t, events[0].Fields["agent"], "data_researcher")
	tester.Eq(t, events[2].Source, "llm")
	tester.Eq[any](t, events[3].Fields["message"], "quota")

	lines := l.Lines("r1")
	tester.Eq(t, lines[0], "2025-01-02T03:04:05Z pipeline/task_started research_task")
	tester.Eq(t, lines[1], "2025-01-02T03:04:05Z pipeline/run_failed: boom")
}
