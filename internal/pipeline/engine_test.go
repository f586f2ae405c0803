package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worldeconomics/internal/crew"
)

// fakeExecutor answers "<task>-out" unless a scripted reply or failure exists.
type fakeExecutor struct {
	mu      sync.Mutex
	replies map[string]string
	failOn  map[string]error
	calls   []Request
	hook    func(req Request)
}

func (f *fakeExecutor) Execute(ctx context.Context, req Request) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook(req)
	}
	if err := f.failOn[req.Task.Name]; err != nil {
		return "", err
	}
	if r, ok := f.replies[req.Task.Name]; ok {
		return r, nil
	}
	return req.Task.Name + "-out", nil
}

func (f *fakeExecutor) taskOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Task.Name)
	}
	return out
}

func (f *fakeExecutor) call(task string) (Request, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c.Task.Name == task {
			return c, true
		}
	}
	return Request{}, false
}

type recordingSink struct {
	mu     sync.Mutex
	writes map[string]string
}

func (s *recordingSink) Persist(_ context.Context, runID, file, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writes == nil {
		s.writes = map[string]string{}
	}
	key := runID + "/" + file
	s.writes[key] = text
	return key, nil
}

func chainCrew() *crew.Crew {
	return &crew.Crew{
		Name:   "chain",
		Inputs: []string{"topic"},
		Agents: []crew.AgentSpec{{Name: "w", Role: "writer", Goal: "write"}},
		Tasks: []crew.TaskSpec{
			{Name: "a", Agent: "w", Description: "start on {topic}", ExpectedOutput: "x", OutputFile: "a.md"},
			{Name: "b", Agent: "w", Description: "extend", ExpectedOutput: "x", Context: []string{"a"}, OutputFile: "b.md"},
			{Name: "c", Agent: "w", Description: "combine {a}", ExpectedOutput: "x", Context: []string{"b", "a"}, OutputFile: "c.md"},
			{Name: "d", Agent: "w", Description: "finish", ExpectedOutput: "x", Context: []string{"c"}, OutputFile: "d.md"},
		},
	}
}

func TestEngineRunsInDeclarationOrderAndPropagatesContext(t *testing.T) {
	exec := &fakeExecutor{}
	eng := &Engine{Executor: exec}

	run, err := eng.Run(context.Background(), chainCrew(), RunInputs{"topic": "inflation"})
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)

	assert.Equal(t, []string{"a", "b", "c", "d"}, exec.taskOrder())
	require.Len(t, run.Results, 4)

	a, _ := exec.call("a")
	assert.Equal(t, "start on inflation", a.Prompt)
	assert.Empty(t, a.Context)

	c, _ := exec.call("c")
	assert.Equal(t, []string{"b-out", "a-out"}, c.Context)
	assert.Equal(t, "combine a-out\n\n"+ContextHeader+"\nb-out\n\na-out", c.Prompt)

	final, ok := run.Final()
	require.True(t, ok)
	assert.Equal(t, "d", final.Task)
	assert.Equal(t, "d-out", final.Text)
}

func TestEngineStopsAtFirstFailure(t *testing.T) {
	boom := errors.New("model unavailable")
	exec := &fakeExecutor{failOn: map[string]error{"c": boom}}
	sink := &recordingSink{}
	eng := &Engine{Executor: exec, Sink: sink, NewID: func() string { return "run1" }}

	run, err := eng.Run(context.Background(), chainCrew(), RunInputs{"topic": "trade"})
	require.Error(t, err)

	var terr *TaskError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 2, terr.Index)
	assert.Equal(t, "c", terr.Task)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, []string{"a", "b", "c"}, exec.taskOrder())
	require.NotNil(t, run)
	require.Len(t, run.Results, 2)
	_, ok := run.Result("c")
	assert.False(t, ok)

	assert.Equal(t, map[string]string{"run1/a.md": "a-out", "run1/b.md": "b-out"}, sink.writes)
}

func TestEngineRejectsMissingInputBeforeExecuting(t *testing.T) {
	exec := &fakeExecutor{}
	_, err := (&Engine{Executor: exec}).Run(context.Background(), chainCrew(), RunInputs{})
	require.ErrorIs(t, err, ErrMissingInput)
	assert.Empty(t, exec.taskOrder())

	_, err = (&Engine{}).Run(context.Background(), chainCrew(), RunInputs{"topic": "x"})
	assert.ErrorIs(t, err, ErrNilExecutor)
}

func TestEngineStopsBetweenTasksOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exec := &fakeExecutor{hook: func(req Request) {
		if req.Task.Name == "a" {
			cancel()
		}
	}}
	run, err := (&Engine{Executor: exec}).Run(ctx, chainCrew(), RunInputs{"topic": "x"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a"}, exec.taskOrder())
	assert.Len(t, run.Results, 1)
}

func TestEngineTaskTimeoutAbandonsStuckExecutor(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	stuck := ExecutorFunc(func(ctx context.Context, req Request) (string, error) {
		<-release
		return "late", nil
	})
	eng := &Engine{Executor: stuck, TaskTimeout: 20 * time.Millisecond}

	start := time.Now()
	run, err := eng.Run(context.Background(), chainCrew(), RunInputs{"topic": "x"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Empty(t, run.Results)
}

func TestEngineEmitsProgressEvents(t *testing.T) {
	ch := make(chan Event, 32)
	ctx := WithEmitter(context.Background(), &ChannelEmitter{Ch: ch})
	_, err := (&Engine{Executor: &fakeExecutor{}}).RunWithID(ctx, "evt", chainCrew(), RunInputs{"topic": "x"})
	require.NoError(t, err)
	close(ch)

	var types []EventType
	for ev := range ch {
		assert.Equal(t, "evt", ev.RunID)
		types = append(types, ev.Type)
	}
	want := []EventType{EventRunStarted}
	for range chainCrew().Tasks {
		want = append(want, EventTaskStarted, EventTaskFinished)
	}
	want = append(want, EventRunFinished)
	assert.Equal(t, want, types)
}

func TestDirSinkFullyOverwrites(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewDirSink(dir)
	require.NoError(t, err)

	long := &fakeExecutor{replies: map[string]string{"d": strings.Repeat("long report line\n", 50)}}
	_, err = (&Engine{Executor: long, Sink: sink}).Run(context.Background(), chainCrew(), RunInputs{"topic": "x"})
	require.NoError(t, err)

	short := &fakeExecutor{replies: map[string]string{"d": "short"}}
	_, err = (&Engine{Executor: short, Sink: sink}).Run(context.Background(), chainCrew(), RunInputs{"topic": "x"})
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(dir, "d.md"))
	require.NoError(t, err)
	assert.Equal(t, "short", string(b))

	got, err := sink.ReadFile("d.md")
	require.NoError(t, err)
	assert.Equal(t, "short", got)
}

func TestResolveIsPure(t *testing.T) {
	inputs := RunInputs{"user_query": "Why {current_year}?", "current_year": "2025"}
	ctxEntries := []ContextEntry{{Task: "brief", Text: "B"}, {Task: "data", Text: "D"}}
	tmpl := "Q: {user_query} Y: {current_year} brief={brief} keep {unknown}"

	first := Resolve(tmpl, inputs, ctxEntries)
	second := Resolve(tmpl, inputs, ctxEntries)
	assert.Equal(t, first, second)
	assert.Equal(t, "Q: Why {current_year}? Y: 2025 brief=B keep {unknown}\n\n"+ContextHeader+"\nB\n\nD", first)
	assert.Equal(t, RunInputs{"user_query": "Why {current_year}?", "current_year": "2025"}, inputs)

	assert.Equal(t, "plain", Resolve("plain", nil, nil))
	assert.Equal(t, "B\n\nD", ContextText(ctxEntries))
}

func TestWorldEconomicsCrewEndToEnd(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewDirSink(dir)
	require.NoError(t, err)
	exec := &fakeExecutor{replies: map[string]string{
		"user_analysis_task": "A: brief",
		"research_task":      "B: findings",
		"analysis_task":      "C: analysis",
		"reporting_task":     "# D: report",
	}}
	c := crew.Default()
	inputs := RunInputs(crew.DefaultInputs("Effect of oil prices on Nigeria", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))

	run, err := (&Engine{Executor: exec, Sink: sink}).Run(context.Background(), c, inputs)
	require.NoError(t, err)
	assert.Equal(t, []string{"user_analysis_task", "research_task", "analysis_task", "reporting_task"}, exec.taskOrder())

	research, _ := exec.call("research_task")
	assert.Equal(t, []string{"A: brief"}, research.Context)
	assert.Contains(t, research.Prompt, "Effect of oil prices on Nigeria")
	assert.Contains(t, research.Prompt, "2025")
	assert.Equal(t, []string{"web_search", "read_webpage"}, research.Agent.Tools)

	reporting, _ := exec.call("reporting_task")
	assert.Equal(t, []string{"A: brief", "C: analysis"}, reporting.Context)
	assert.Contains(t, reporting.Prompt, "A: brief")
	assert.Contains(t, reporting.Prompt, "C: analysis")
	assert.NotContains(t, reporting.Prompt, "B: findings")

	for file, want := range map[string]string{
		"user_analysis_report.md": "A: brief",
		"research_task_report.md": "B: findings",
		"analysis_task_report.md": "C: analysis",
		"final_report.md":         "# D: report",
	} {
		b, err := os.ReadFile(filepath.Join(dir, file))
		require.NoError(t, err, file)
		assert.Equal(t, want, string(b), file)
	}
	final, _ := run.Final()
	assert.Equal(t, filepath.Join(sink.Dir(), "final_report.md"), final.PersistedPath)
}

func TestFollowUpRunsSingleTaskWithoutPersisting(t *testing.T) {
	report := "# Report\nRates rose {user_query} in 2024."
	question := "What about Ghana?"
	exec := &fakeExecutor{replies: map[string]string{followUpTaskName: "Ghana answer"}}
	sink := &recordingSink{}

	res, err := (&Engine{Executor: exec, Sink: sink}).FollowUp(context.Background(), report, question)
	require.NoError(t, err)
	assert.Equal(t, "Ghana answer", res.Text)

	require.Len(t, exec.calls, 1)
	req := exec.calls[0]
	assert.Contains(t, req.Prompt, report)
	assert.Contains(t, req.Prompt, question)
	assert.Equal(t, FollowUpPrompt(report, question), req.Prompt)
	assert.Equal(t, "Economic Report Assistant", req.Agent.Role)
	assert.Equal(t, []string{FollowUpTool}, req.Agent.Tools)
	assert.Empty(t, sink.writes)

	_, err = FollowUp(context.Background(), exec, report, "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestTaskErrorMessage(t *testing.T) {
	err := &TaskError{Index: 0, Task: "research_task", Err: fmt.Errorf("search: %w", context.DeadlineExceeded)}
	assert.Equal(t, "pipeline: task 1 (research_task) failed: search: context deadline exceeded", err.Error())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
