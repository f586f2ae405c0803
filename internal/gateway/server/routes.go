package server

import (
	"net/http"

	"worldeconomics/internal/gateway/handler"
	"worldeconomics/internal/gateway/middleware"
)

func NewMux(h *handler.Handler) http.Handler {
	mux := http.NewServeMux()

	// Report pipeline
	mux.HandleFunc("POST /run-analysis", h.HandleRunAnalysis)
	mux.HandleFunc("POST /api/runs", h.HandleStartRun)
	mux.HandleFunc("GET /api/runs", h.HandleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", h.HandleGetRun)
	mux.HandleFunc("GET /api/runs/{id}/files", h.HandleRunFiles)
	mux.HandleFunc("GET /api/runs/{id}/files/{name}", h.HandleRunFile)
	mux.HandleFunc("GET /ws/runs", h.HandleRunWS)

	// Reports and follow-up chat
	mux.HandleFunc("GET /api/reports/latest", h.HandleLatestReport)
	mux.HandleFunc("GET /api/reports/{id}", h.HandleReport)
	mux.HandleFunc("GET /api/reports/{id}/download", h.HandleDownloadReport)
	mux.HandleFunc("POST /api/chat", h.HandleChat)
	mux.HandleFunc("GET /api/chat/{id}", h.HandleChatSession)

	// Debug and health
	mux.HandleFunc("GET /debug/run-logs", h.HandleRunLogs)
	mux.HandleFunc("GET /healthz", h.HandleHealth)

	mux.HandleFunc("GET /{$}", h.HandleDashboard)

	return middleware.CORS(mux)
}
