package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worldeconomics/internal/crew"
	"worldeconomics/internal/gateway/handler"
	"worldeconomics/internal/gateway/runtime"
	"worldeconomics/internal/gateway/service/analysis"
	"worldeconomics/internal/pipeline"
	"worldeconomics/internal/report"
	"worldeconomics/internal/trace"
)

type stack struct {
	srv  *httptest.Server
	svc  *analysis.Service
	fail atomic.Bool
	gate chan struct{}
}

func newStack(t *testing.T) *stack {
	t.Helper()
	st := &stack{}
	exec := pipeline.ExecutorFunc(func(ctx context.Context, req pipeline.Request) (string, error) {
		if st.gate != nil {
			select {
			case <-st.gate:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		if st.fail.Load() && req.Task.Name == crew.Default().Tasks[2].Name {
			return "", errors.New("quota exceeded")
		}
		if req.Task.OutputFile == "" {
			return "**Follow-up:** " + strings.TrimSpace(req.Prompt[strings.LastIndex(req.Prompt, "question:")+len("question:"):]), nil
		}
		return "# " + req.Task.Name + "\n\nbody", nil
	})
	svc, err := analysis.New(analysis.Options{
		Crew:     crew.Default(),
		Executor: exec,
		Index:    report.NewIndex(report.NewMemoryStore()),
		Trace:    trace.NewLogger(t.TempDir()),
		Hub:      runtime.NewHub(),
	})
	require.NoError(t, err)
	st.svc = svc
	st.srv = httptest.NewServer(NewMux(handler.New(svc)))
	t.Cleanup(func() {
		st.srv.Close()
		_ = svc.Shutdown(context.Background())
	})
	return st
}

func (st *stack) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, st.srv.URL+path, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func decode(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m), string(raw))
	return m
}

func TestRunAnalysisSuccessAndDownload(t *testing.T) {
	st := newStack(t)

	resp, raw := st.do(t, http.MethodPost, "/run-analysis", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	body := decode(t, raw)
	assert.Equal(t, "success", body["status"])
	runID, _ := body["run_id"].(string)
	require.NotEmpty(t, runID)
	assert.Equal(t, "# "+crew.Default().Tasks[3].Name+"\n\nbody", body["report"])

	resp, raw = st.do(t, http.MethodGet, "/api/reports/"+runID+"/download", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/markdown; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), handler.DownloadName)
	assert.Equal(t, body["report"], string(raw))

	resp, raw = st.do(t, http.MethodGet, "/api/reports/latest?format=html", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	latest := decode(t, raw)
	assert.Equal(t, runID, latest["run_id"])
	assert.Contains(t, latest["html"], "<h1>")

	resp, raw = st.do(t, http.MethodGet, "/api/runs/"+runID+"/files", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	files := decode(t, raw)["files"].([]any)
	assert.Len(t, files, 4)

	resp, raw = st.do(t, http.MethodGet, "/api/runs/"+runID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	detail := decode(t, raw)
	assert.Equal(t, "succeeded", detail["status"])
	for _, task := range detail["tasks"].([]any) {
		assert.Equal(t, true, task.(map[string]any)["done"])
	}

	resp, raw = st.do(t, http.MethodGet, "/api/runs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode(t, raw)["runs"], 1)
}

func TestRunAnalysisFailureReturnsTrace(t *testing.T) {
	st := newStack(t)
	st.fail.Store(true)

	resp, raw := st.do(t, http.MethodPost, "/run-analysis", map[string]string{"question": "Will the yen recover?"})
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body := decode(t, raw)
	assert.Equal(t, "error", body["status"])
	assert.Contains(t, body["message"], "quota exceeded")
	assert.NotEmpty(t, body["trace"])

	resp, raw = st.do(t, http.MethodGet, "/api/reports/latest", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, string(raw))

	runID := body["run_id"].(string)
	resp, raw = st.do(t, http.MethodGet, "/api/reports/"+runID, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, string(raw))

	resp, raw = st.do(t, http.MethodGet, "/debug/run-logs?run_id="+runID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, decode(t, raw)["events"])
}

func TestBadRequests(t *testing.T) {
	st := newStack(t)

	req, err := http.NewRequest(http.MethodPost, st.srv.URL+"/run-analysis", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = st.do(t, http.MethodGet, "/debug/run-logs", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = st.do(t, http.MethodGet, "/api/runs/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = st.do(t, http.MethodGet, "/api/chat/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = st.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestChatFlow(t *testing.T) {
	st := newStack(t)

	resp, raw := st.do(t, http.MethodPost, "/api/chat", map[string]string{"question": "What next?"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, string(raw))

	resp, _ = st.do(t, http.MethodPost, "/run-analysis", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, raw = st.do(t, http.MethodPost, "/api/chat", map[string]string{"question": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(raw))

	resp, raw = st.do(t, http.MethodPost, "/api/chat", map[string]string{"question": "What next?"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	reply := decode(t, raw)
	assert.Contains(t, reply["answer"], "What next?")
	assert.Contains(t, reply["answer_html"], "<strong>Follow-up:</strong>")
	sessionID := reply["session_id"].(string)

	resp, raw = st.do(t, http.MethodGet, "/api/chat/"+sessionID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode(t, raw)["messages"], 2)
}

func TestDashboardRendersLatestReport(t *testing.T) {
	st := newStack(t)
	resp, raw := st.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "Please generate a report first")

	_, err := st.svc.Run(context.Background(), "")
	require.NoError(t, err)
	resp, raw = st.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(raw), "Final Economic Report")
	assert.Contains(t, string(raw), "<h1>"+crew.Default().Tasks[3].Name+"</h1>")
}

func TestRunWebsocketStreamsUntilFinished(t *testing.T) {
	st := newStack(t)
	st.gate = make(chan struct{})

	resp, raw := st.do(t, http.MethodPost, "/api/runs", map[string]string{"question": "Oil shock?"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(raw))
	runID := decode(t, raw)["run_id"].(string)

	wsURL := "ws" + strings.TrimPrefix(st.srv.URL, "http") + "/ws/runs?run_id=" + runID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	close(st.gate)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var types []string
	for {
		var msg struct {
			Type  string          `json:"type"`
			Event *pipeline.Event `json:"event"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		if msg.Event != nil {
			types = append(types, string(msg.Event.Type))
		} else {
			types = append(types, msg.Type)
		}
	}
	require.NotEmpty(t, types)
	assert.Equal(t, "subscribed", types[0])
	assert.Equal(t, string(pipeline.EventRunFinished), types[len(types)-1])
	assert.Contains(t, types, string(pipeline.EventTaskStarted))

	resp, _ = st.do(t, http.MethodGet, "/api/reports/"+runID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRunWebsocketRequiresRunID(t *testing.T) {
	st := newStack(t)
	resp, _ := st.do(t, http.MethodGet, "/ws/runs", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
