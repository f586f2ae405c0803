package analysis

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worldeconomics/internal/crew"
	"worldeconomics/internal/gateway/runtime"
	"worldeconomics/internal/pipeline"
	"worldeconomics/internal/report"
	"worldeconomics/internal/trace"
)

func echoExecutor(failTask string) pipeline.ExecutorFunc {
	return func(_ context.Context, req pipeline.Request) (string, error) {
		if req.Task.Name == failTask {
			return "", errors.New("model unavailable")
		}
		return "## " + req.Task.Name + "\n\n" + req.Prompt, nil
	}
}

func newService(t *testing.T, exec pipeline.Executor) (*Service, *report.Index) {
	t.Helper()
	idx := report.NewIndex(report.NewMemoryStore())
	svc, err := New(Options{
		Crew:     crew.Default(),
		Executor: exec,
		Index:    idx,
		Trace:    trace.NewLogger(t.TempDir()),
		Hub:      runtime.NewHub(),
		Now:      func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })
	return svc, idx
}

func TestRunPersistsEveryOutput(t *testing.T) {
	svc, _ := newService(t, echoExecutor(""))
	ctx := context.Background()

	res, err := svc.Run(ctx, "How do tariffs affect Kenya?")
	require.NoError(t, err)
	assert.Equal(t, report.StatusSucceeded, res.Record.Status)

	final, ok := crew.Default().FinalTask()
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(res.Report, "## "+final.Name), res.Report)

	files, err := svc.Files(ctx, res.RunID)
	require.NoError(t, err)
	var names []string
	for _, f := range files {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, crew.Default().OutputFiles(), names)

	first := crew.Default().Tasks[0]
	body, err := svc.File(ctx, res.RunID, first.OutputFile)
	require.NoError(t, err)
	assert.Contains(t, string(body), "How do tariffs affect Kenya?")
	assert.Contains(t, string(body), "2025")

	_, err = svc.File(ctx, res.RunID, report.RunFile)
	assert.ErrorIs(t, err, report.ErrNotFound)

	rec, latest, err := svc.LatestReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.RunID, rec.ID)
	assert.Equal(t, res.Report, latest)
}

func TestRunDefaultsQuestion(t *testing.T) {
	svc, _ := newService(t, echoExecutor(""))
	res, err := svc.Run(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, crew.DefaultQuestion, res.Record.Question)
}

func TestRunFailureKeepsLatestAndReturnsTrace(t *testing.T) {
	svc, _ := newService(t, echoExecutor(""))
	ctx := context.Background()
	ok, err := svc.Run(ctx, "first")
	require.NoError(t, err)

	svc.engine.Executor = echoExecutor(crew.Default().Tasks[1].Name)
	_, err = svc.Run(ctx, "second")
	require.Error(t, err)

	var runErr *RunError
	require.True(t, errors.As(err, &runErr))
	var taskErr *pipeline.TaskError
	require.True(t, errors.As(err, &taskErr))
	assert.Equal(t, 1, taskErr.Index)
	assert.NotEmpty(t, runErr.Trace)

	rec, err := svc.RunRecord(runErr.RunID)
	require.NoError(t, err)
	assert.Equal(t, report.StatusFailed, rec.Status)
	assert.Equal(t, []string{crew.Default().Tasks[0].OutputFile}, rec.Files)

	latest, _, err := svc.LatestReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, ok.RunID, latest.ID, "a failed run never replaces the latest report")

	_, err = svc.Report(ctx, runErr.RunID)
	assert.ErrorIs(t, err, report.ErrRunFailed)
}

func TestStartStreamsEventsThroughHub(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	exec := pipeline.ExecutorFunc(func(ctx context.Context, req pipeline.Request) (string, error) {
		if calls.Add(1) == 1 {
			<-release
		}
		return "out " + req.Task.Name, nil
	})
	svc, _ := newService(t, exec)
	ctx := context.Background()

	id, err := svc.Start(ctx, "async question")
	require.NoError(t, err)
	rec, err := svc.RunRecord(id)
	require.NoError(t, err)
	assert.Equal(t, report.StatusRunning, rec.Status)

	_, err = svc.Report(ctx, id)
	assert.ErrorIs(t, err, report.ErrRunInProgress)

	_, ch, cancel, err := svc.Hub().Subscribe(id, 64)
	require.NoError(t, err)
	defer cancel()
	close(release)

	var last pipeline.Event
	for ev := range ch {
		last = ev
	}
	assert.Equal(t, pipeline.EventRunFinished, last.Type)

	rec, err = svc.RunRecord(id)
	require.NoError(t, err)
	assert.Equal(t, report.StatusSucceeded, rec.Status, "index is updated before watchers see run_finished")
}

func TestFollowUpKeepsSessionHistory(t *testing.T) {
	var prompts []string
	exec := pipeline.ExecutorFunc(func(_ context.Context, req pipeline.Request) (string, error) {
		prompts = append(prompts, req.Prompt)
		if req.Task.OutputFile == "" && len(req.Agent.Tools) == 1 && req.Agent.Tools[0] == pipeline.FollowUpTool {
			return "answer ok", nil
		}
		return "report body for " + req.Task.Name, nil
	})
	svc, idx := newService(t, exec)
	ctx := context.Background()

	_, err := svc.FollowUp(ctx, "", "", "anything?")
	assert.ErrorIs(t, err, report.ErrNoReport)

	res, err := svc.Run(ctx, "q")
	require.NoError(t, err)
	storedRuns := len(idx.List())

	_, err = svc.FollowUp(ctx, "", "", "  ")
	assert.ErrorIs(t, err, pipeline.ErrEmptyQuestion)

	first, err := svc.FollowUp(ctx, "", "", "What about inflation?")
	require.NoError(t, err)
	assert.NotEmpty(t, first.SessionID)
	assert.Equal(t, res.RunID, first.RunID)
	assert.Equal(t, "answer ok", first.Answer)
	assert.Len(t, first.Messages, 2)
	assert.Contains(t, prompts[len(prompts)-1], res.Report)
	assert.Contains(t, prompts[len(prompts)-1], "What about inflation?")

	second, err := svc.FollowUp(ctx, first.SessionID, res.RunID, "And debt?")
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)
	require.Len(t, second.Messages, 4)
	assert.Equal(t, "user", second.Messages[2].Role)
	assert.Equal(t, "And debt?", second.Messages[2].Content)

	sess, ok := svc.Session(first.SessionID)
	require.True(t, ok)
	assert.Len(t, sess.Messages, 4)

	assert.Equal(t, storedRuns, len(idx.List()), "follow-up does not register runs")
	files, err := svc.Files(ctx, res.RunID)
	require.NoError(t, err)
	assert.Len(t, files, len(crew.Default().OutputFiles()))

	_, err = svc.FollowUp(ctx, "", "missing-run", "x")
	assert.ErrorIs(t, err, report.ErrNotFound)
}

func TestTraceRecordsPipelineEvents(t *testing.T) {
	svc, _ := newService(t, echoExecutor(""))
	res, err := svc.Run(context.Background(), "q")
	require.NoError(t, err)

	events, err := svc.Trace(res.RunID)
	require.NoError(t, err)
	stages := map[string]bool{}
	for _, ev := range events {
		stages[ev.Stage] = true
	}
	assert.True(t, stages["run_requested"])
	assert.True(t, stages[string(pipeline.EventTaskFinished)])
	assert.True(t, stages[string(pipeline.EventRunFinished)])
}
