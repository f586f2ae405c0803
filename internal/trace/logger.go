// Package trace persists run-scoped diagnostic events as JSONL files.
package trace

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"worldeconomics/internal/llm"
	"worldeconomics/internal/pipeline"
)

var runIDSanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// DefaultDir is used when no trace directory is configured.
var DefaultDir = filepath.Join("tmp", "run_logs")

// Event is one trace line.
type Event struct {
	Timestamp string         `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Source    string         `json:"source"`
	Stage     string         `json:"stage"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Logger appends events to <dir>/<run_id>.jsonl.
type Logger struct {
	dir string
	now func() time.Time
	mu  sync.Mutex
}

func NewLogger(dir string) *Logger {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = DefaultDir
	}
	_ = os.MkdirAll(dir, 0o755)
	return &Logger{dir: dir, now: time.Now}
}

// Dir is the directory trace files are written to.
func (l *Logger) Dir() string { return l.dir }

func sanitizeRunID(runID string) string {
	id := runIDSanitizer.ReplaceAllString(strings.TrimSpace(runID), "_")
	if id == "" {
		return "unknown"
	}
	return id
}

func (l *Logger) filePath(runID string) string {
	return filepath.Join(l.dir, sanitizeRunID(runID)+".jsonl")
}

// Append writes one trace line for the run. Write failures are dropped.
func (l *Logger) Append(runID, source, stage string, fields map[string]any) {
	if l == nil || strings.TrimSpace(runID) == "" {
		return
	}
	ev := Event{
		Timestamp: l.now().UTC().Format(time.RFC3339Nano),
		RunID:     strings.TrimSpace(runID),
		Source:    strings.TrimSpace(source),
		Stage:     strings.TrimSpace(stage),
	}
	if len(fields) > 0 {
		ev.Fields = fields
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}
	raw = append(raw, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_ = os.MkdirAll(l.dir, 0o755)
	f, err := os.OpenFile(l.filePath(runID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.Write(raw)
}

// Read returns all events recorded for a run, oldest first.
func (l *Logger) Read(runID string) ([]Event, error) {
	if l == nil {
		return nil, nil
	}
	f, err := os.Open(l.filePath(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return []Event{}, nil
		}
		return nil, fmt.Errorf("trace: open: %w", err)
	}
	defer f.Close()

	out := make([]Event, 0, 32)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("trace: scan: %w", err)
	}
	return out, nil
}

// Lines renders a run's trace as short human-readable lines.
func (l *Logger) Lines(runID string) []string {
	events, err := l.Read(runID)
	if err != nil {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(events))
	for _, ev := range events {
		line := ev.Timestamp + " " + ev.Source + "/" + ev.Stage
		if msg, ok := ev.Fields["message"].(string); ok && msg != "" {
			line += ": " + msg
		} else if task, ok := ev.Fields["task"].(string); ok && task != "" {
			line += " " + task
		}
		out = append(out, line)
	}
	return out
}

// Emitter records pipeline events.
func (l *Logger) Emitter() pipeline.Emitter {
	return pipeline.EmitterFunc(func(ev pipeline.Event) {
		fields := map[string]any{"index": ev.Index, "total": ev.Total}
		if ev.Task != "" {
			fields["task"] = ev.Task
		}
		if ev.Agent != "" {
			fields["agent"] = ev.Agent
		}
		if ev.File != "" {
			fields["file"] = ev.File
		}
		if ev.Message != "" {
			fields["message"] = ev.Message
		}
		l.Append(ev.RunID, "pipeline", string(ev.Type), fields)
	})
}

// Hook returns an llm.PromptHook recording model calls for one run.
func (l *Logger) Hook(runID string) llm.PromptHook {
	return &promptHook{l: l, runID: runID}
}

type promptHook struct {
	l     *Logger
	runID string
}

func (h *promptHook) Before(_ context.Context, phase, prompt string, _ any) {
	h.l.Append(h.runID, "llm", "llm_request", map[string]any{"task": phase, "prompt_bytes": len(prompt)})
}

func (h *promptHook) After(_ context.Context, phase string, raw json.RawMessage, err error) {
	fields := map[string]any{"task": phase, "response_bytes": len(raw)}
	if err != nil {
		fields["message"] = err.Error()
	}
	h.l.Append(h.runID, "llm", "llm_response", fields)
}
