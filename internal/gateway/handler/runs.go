package handler

import (
	"net/http"

	"worldeconomics/internal/crew"
	"worldeconomics/internal/report"
)

type runRequest struct {
	Question string `json:"question"`
}

type runAnalysisResponse struct {
	Status string `json:"status"`
	RunID  string `json:"run_id"`
	Report string `json:"report"`
}

// HandleRunAnalysis runs the crew synchronously and returns the final report.
// An absent question falls back to crew.DefaultQuestion.
func (h *Handler) HandleRunAnalysis(w http.ResponseWriter, r *http.Request) {
	var in runRequest
	if err := decodeOptional(r, &in); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	res, err := h.svc.Run(r.Context(), in.Question)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runAnalysisResponse{Status: "success", RunID: res.RunID, Report: res.Report})
}

// HandleStartRun starts a background run for the dashboard.
func (h *Handler) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	var in runRequest
	if err := decodeOptional(r, &in); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	id, err := h.svc.Start(r.Context(), in.Question)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted", "run_id": id})
}

func (h *Handler) HandleListRuns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"runs": h.svc.Runs()})
}

type runDetail struct {
	report.RunRecord
	Tasks []taskDetail `json:"tasks"`
}

type taskDetail struct {
	Name       string `json:"name"`
	Agent      string `json:"agent"`
	OutputFile string `json:"output_file,omitempty"`
	Done       bool   `json:"done"`
}

// HandleGetRun returns a run record and the crew's task list marked with
// which outputs were persisted.
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.RunRecord(pathID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runDetail{RunRecord: rec, Tasks: tasksFor(h.svc.Crew(), rec.Files)})
}

func tasksFor(c *crew.Crew, files []string) []taskDetail {
	done := make(map[string]bool, len(files))
	for _, f := range files {
		done[f] = true
	}
	out := make([]taskDetail, 0, len(c.Tasks))
	for _, t := range c.Tasks {
		out = append(out, taskDetail{Name: t.Name, Agent: t.Agent, OutputFile: t.OutputFile, Done: done[t.OutputFile]})
	}
	return out
}

func (h *Handler) HandleRunFiles(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	files, err := h.svc.Files(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": id, "files": files})
}

// HandleRunFile serves one task output as markdown.
func (h *Handler) HandleRunFile(w http.ResponseWriter, r *http.Request) {
	body, err := h.svc.File(r.Context(), pathID(r), r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = w.Write(body)
}

// HandleRunLogs returns the diagnostic trace of a run.
func (h *Handler) HandleRunLogs(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		badRequest(w, "run_id is required")
		return
	}
	events, err := h.svc.Trace(runID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "events": events})
}
