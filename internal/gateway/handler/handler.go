// Package handler serves the gateway's HTTP and websocket endpoints.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"worldeconomics/internal/gateway/runtime"
	"worldeconomics/internal/gateway/service/analysis"
	"worldeconomics/internal/pipeline"
	"worldeconomics/internal/report"
)

const maxBodyBytes = 1 << 20

// Handler holds the analysis service as its single dependency.
type Handler struct {
	svc *analysis.Service
}

func New(svc *analysis.Service) *Handler {
	return &Handler{svc: svc}
}

type errorBody struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	RunID   string   `json:"run_id,omitempty"`
	Trace   []string `json:"trace,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("handler: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Status: "error", Message: err.Error()}
	var runErr *analysis.RunError
	if errors.As(err, &runErr) {
		body.RunID = runErr.RunID
		body.Trace = runErr.Trace
		if body.Trace == nil {
			body.Trace = []string{}
		}
	}
	writeJSON(w, statusFor(err), body)
}

func statusFor(err error) int {
	var runErr *analysis.RunError
	switch {
	case errors.As(err, &runErr):
		return http.StatusInternalServerError
	case errors.Is(err, pipeline.ErrEmptyQuestion), errors.Is(err, report.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, report.ErrNotFound), errors.Is(err, report.ErrNoReport), errors.Is(err, runtime.ErrUnknownRun):
		return http.StatusNotFound
	case errors.Is(err, report.ErrRunInProgress), errors.Is(err, report.ErrRunFailed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decodeOptional decodes a JSON body into v. An empty body leaves v untouched.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Status: "error", Message: msg})
}

func pathID(r *http.Request) string {
	return strings.TrimSpace(r.PathValue("id"))
}

// HandleHealth reports liveness.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
