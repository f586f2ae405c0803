package handler

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"worldeconomics/internal/pipeline"
	"worldeconomics/internal/report"
)

const (
	runWSWriteWait = 10 * time.Second
	runWSPongWait  = 60 * time.Second
	runWSPingEvery = (runWSPongWait * 9) / 10
)

var runWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type runWSInbound struct {
	Type string `json:"type"`
}

type runWSOutbound struct {
	Type    string          `json:"type"`
	RunID   string          `json:"run_id,omitempty"`
	Event   *pipeline.Event `json:"event,omitempty"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
}

// HandleRunWS streams the events of one run: a replay of everything so far,
// then live events until the run ends.
func (h *Handler) HandleRunWS(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(r.URL.Query().Get("run_id"))
	if runID == "" {
		http.Error(w, "run_id is required", http.StatusBadRequest)
		return
	}

	conn, err := runWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(runWSPongWait)); err != nil {
		log.Printf("run ws set read deadline failed: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(runWSPongWait))
	})

	write := func(out runWSOutbound) error {
		if err := conn.SetWriteDeadline(time.Now().Add(runWSWriteWait)); err != nil {
			return err
		}
		return conn.WriteJSON(out)
	}
	closeNormal := func(reason string) {
		_ = conn.SetWriteDeadline(time.Now().Add(runWSWriteWait))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
	}

	replay, events, unsubscribe, err := h.svc.Hub().Subscribe(runID, 32)
	if err != nil {
		// The run may have ended and left the hub; its record still answers.
		rec, recErr := h.svc.RunRecord(runID)
		if recErr != nil || rec.Status == report.StatusRunning {
			_ = write(runWSOutbound{Type: "error", Code: "not_found", Message: err.Error()})
			closeNormal("unknown run")
			return
		}
		ev := finalEvent(rec)
		_ = write(runWSOutbound{Type: "event", RunID: runID, Event: &ev})
		closeNormal("run ended")
		return
	}
	defer unsubscribe()

	if err := write(runWSOutbound{Type: "subscribed", RunID: runID}); err != nil {
		return
	}
	for i := range replay {
		if err := write(runWSOutbound{Type: "event", RunID: runID, Event: &replay[i]}); err != nil {
			return
		}
	}

	// Reads only keep the deadline fresh and collect pings.
	pings := make(chan struct{}, 1)
	go func() {
		defer cancel()
		for {
			var in runWSInbound
			if err := conn.ReadJSON(&in); err != nil {
				return
			}
			if strings.EqualFold(strings.TrimSpace(in.Type), "ping") {
				select {
				case pings <- struct{}{}:
				default:
				}
			}
		}
	}()

	ticker := time.NewTicker(runWSPingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-pings:
			if err := write(runWSOutbound{Type: "pong"}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(runWSWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				closeNormal("run ended")
				return
			}
			if err := write(runWSOutbound{Type: "event", RunID: runID, Event: &ev}); err != nil {
				return
			}
		}
	}
}

func finalEvent(rec report.RunRecord) pipeline.Event {
	typ := pipeline.EventRunFinished
	if rec.Status == report.StatusFailed {
		typ = pipeline.EventRunFailed
	}
	return pipeline.Event{Type: typ, RunID: rec.ID, Message: rec.Error, At: rec.FinishedAt}
}
