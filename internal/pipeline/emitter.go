package pipeline

import (
	"context"
	"time"
)

// EventType classifies run progress events.
type EventType string

const (
	EventRunStarted   EventType = "run_started"
	EventTaskStarted  EventType = "task_started"
	EventTaskFinished EventType = "task_finished"
	EventTaskFailed   EventType = "task_failed"
	EventRunFinished  EventType = "run_finished"
	EventRunFailed    EventType = "run_failed"
)

// Event is one progress notification from a running pipeline.
type Event struct {
	Type    EventType `json:"type"`
	RunID   string    `json:"run_id"`
	Task    string    `json:"task,omitempty"`
	Agent   string    `json:"agent,omitempty"`
	Index   int       `json:"index"`
	Total   int       `json:"total"`
	File    string    `json:"file,omitempty"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// Emitter receives run events. Implementations must not block the run.
type Emitter interface {
	Emit(ev Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(ev Event) { f(ev) }

type emitterKey struct{}

// WithEmitter attaches an emitter to the context.
func WithEmitter(ctx context.Context, e Emitter) context.Context {
	return context.WithValue(ctx, emitterKey{}, e)
}

// EmitterFrom retrieves the emitter from context, or returns a no-op emitter.
func EmitterFrom(ctx context.Context) Emitter {
	if e, ok := ctx.Value(emitterKey{}).(Emitter); ok && e != nil {
		return e
	}
	return noopEmitter{}
}

type noopEmitter struct{}

func (noopEmitter) Emit(Event) {}

// ChannelEmitter forwards events to a channel without blocking; events are
// dropped when the channel is full.
type ChannelEmitter struct {
	Ch chan<- Event
}

func (e *ChannelEmitter) Emit(ev Event) {
	select {
	case e.Ch <- ev:
	default:
	}
}

// MultiEmitter fans events out to every non-nil emitter in order.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(ev Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(ev)
		}
	}
}
