// Package runtime fans pipeline events out to live watchers.
package runtime

import (
	"errors"
	"strings"
	"sync"
	"time"

	"worldeconomics/internal/pipeline"
)

const completedRunRetention = 30 * time.Second

var ErrUnknownRun = errors.New("runtime: unknown run")

type runLog struct {
	events []pipeline.Event
	subs   map[chan pipeline.Event]struct{}
	done   bool
}

// Hub keeps every event of open runs so late subscribers get a replay, then
// streams new events. Completed runs are dropped after a retention period.
type Hub struct {
	retention time.Duration

	mu   sync.Mutex
	runs map[string]*runLog
}

func NewHub() *Hub {
	return &Hub{retention: completedRunRetention, runs: make(map[string]*runLog)}
}

// Open registers a run so it can be watched before its first event.
func (h *Hub) Open(runID string) {
	runID = strings.TrimSpace(runID)
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.runs[runID]; !ok {
		h.runs[runID] = &runLog{subs: make(map[chan pipeline.Event]struct{})}
	}
}

// Emit implements pipeline.Emitter. Slow subscribers miss events rather
// than block the run.
func (h *Hub) Emit(ev pipeline.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rl, ok := h.runs[ev.RunID]
	if !ok {
		rl = &runLog{subs: make(map[chan pipeline.Event]struct{})}
		h.runs[ev.RunID] = rl
	}
	if rl.done {
		return
	}
	rl.events = append(rl.events, ev)
	for ch := range rl.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	if ev.Type == pipeline.EventRunFinished || ev.Type == pipeline.EventRunFailed {
		rl.done = true
		for ch := range rl.subs {
			close(ch)
		}
		rl.subs = nil
		h.scheduleCleanup(ev.RunID)
	}
}

func (h *Hub) scheduleCleanup(runID string) {
	time.AfterFunc(h.retention, func() {
		h.mu.Lock()
		delete(h.runs, runID)
		h.mu.Unlock()
	})
}

// Subscribe returns the events so far and a channel of later events. The
// channel is closed when the run ends or cancel is called.
func (h *Hub) Subscribe(runID string, buffer int) ([]pipeline.Event, <-chan pipeline.Event, func(), error) {
	if buffer <= 0 {
		buffer = 16
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	rl, ok := h.runs[strings.TrimSpace(runID)]
	if !ok {
		return nil, nil, nil, ErrUnknownRun
	}
	replay := append([]pipeline.Event(nil), rl.events...)
	ch := make(chan pipeline.Event, buffer)
	if rl.done {
		close(ch)
		return replay, ch, func() {}, nil
	}
	rl.subs[ch] = struct{}{}
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := rl.subs[ch]; ok {
				delete(rl.subs, ch)
				close(ch)
			}
		})
	}
	return replay, ch, cancel, nil
}
