package runtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worldeconomics/internal/pipeline"
)

func TestHubReplayAndStream(t *testing.T) {
	h := NewHub()
	h.Open("r1")
	h.Emit(pipeline.Event{Type: pipeline.EventRunStarted, RunID: "r1", Total: 2})

	replay, ch, cancel, err := h.Subscribe("r1", 4)
	require.NoError(t, err)
	defer cancel()
	require.Len(t, replay, 1)
	assert.Equal(t, pipeline.EventRunStarted, replay[0].Type)

	h.Emit(pipeline.Event{Type: pipeline.EventTaskStarted, RunID: "r1", Task: "a"})
	h.Emit(pipeline.Event{Type: pipeline.EventRunFinished, RunID: "r1"})

	var got []pipeline.EventType
	for ev := range ch {
		got = append(got, ev.Type)
	}
	assert.Equal(t, []pipeline.EventType{pipeline.EventTaskStarted, pipeline.EventRunFinished}, got)

	late, lateCh, _, err := h.Subscribe("r1", 1)
	require.NoError(t, err)
	assert.Len(t, late, 3)
	_, open := <-lateCh
	assert.False(t, open, "finished run yields a closed channel")
}

func TestHubUnknownRunAndCancel(t *testing.T) {
	h := NewHub()
	_, _, _, err := h.Subscribe("nope", 1)
	assert.ErrorIs(t, err, ErrUnknownRun)

	h.Open("r2")
	_, ch, cancel, err := h.Subscribe("r2", 1)
	require.NoError(t, err)
	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)

	h.Emit(pipeline.Event{Type: pipeline.EventTaskStarted, RunID: "r2"})
}

func TestHubDropsForSlowSubscribers(t *testing.T) {
	h := NewHub()
	h.Open("r3")
	_, ch, cancel, err := h.Subscribe("r3", 1)
	require.NoError(t, err)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			h.Emit(pipeline.Event{Type: pipeline.EventTaskStarted, RunID: "r3"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit blocked on a full subscriber")
	}
	assert.Len(t, ch, 1)
}

func TestHubCleansUpCompletedRuns(t *testing.T) {
	h := NewHub()
	h.retention = 10 * time.Millisecond
	h.Open("r4")
	h.Emit(pipeline.Event{Type: pipeline.EventRunFailed, RunID: "r4"})
	assert.Eventually(t, func() bool {
		_, _, _, err := h.Subscribe("r4", 1)
		return err != nil
	}, time.Second, 5*time.Millisecond)
}
