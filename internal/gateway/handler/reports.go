package handler

import (
	"bytes"
	"errors"
	"log"
	"net/http"
	"time"

	"worldeconomics/internal/dashboard"
	"worldeconomics/internal/report"
)

// DownloadName is the attachment name of a downloaded report.
const DownloadName = "world_economics_report.md"

type reportResponse struct {
	RunID      string    `json:"run_id"`
	Question   string    `json:"question"`
	FinishedAt time.Time `json:"finished_at"`
	Report     string    `json:"report"`
	HTML       string    `json:"html,omitempty"`
}

func newReportResponse(r *http.Request, rec report.RunRecord, body string) reportResponse {
	out := reportResponse{RunID: rec.ID, Question: rec.Question, FinishedAt: rec.FinishedAt, Report: body}
	if r.URL.Query().Get("format") == "html" {
		out.HTML = string(dashboard.RenderMarkdown(body))
	}
	return out
}

func (h *Handler) HandleLatestReport(w http.ResponseWriter, r *http.Request) {
	rec, body, err := h.svc.LatestReport(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newReportResponse(r, rec, body))
}

func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	rec, err := h.svc.RunRecord(id)
	if err != nil {
		writeError(w, err)
		return
	}
	body, err := h.svc.Report(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newReportResponse(r, rec, body))
}

// HandleDownloadReport serves the final report as a markdown attachment.
func (h *Handler) HandleDownloadReport(w http.ResponseWriter, r *http.Request) {
	body, err := h.svc.Report(r.Context(), pathID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+DownloadName+`"`)
	_, _ = w.Write([]byte(body))
}

// HandleDashboard renders the UI with the latest report, if any.
func (h *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	data := dashboard.PageData{DefaultQuestion: exampleQuestion}
	if rec, body, err := h.svc.LatestReport(r.Context()); err == nil {
		data.Latest = &dashboard.Report{RunID: rec.ID, Question: rec.Question, FinishedAt: rec.FinishedAt, HTML: dashboard.RenderMarkdown(body)}
	} else if !errors.Is(err, report.ErrNoReport) {
		log.Printf("handler: dashboard without report: %v", err)
	}
	var buf bytes.Buffer
	if err := dashboard.Render(&buf, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

const exampleQuestion = "How does the Fed's interest rate policy affect developing economies?"
