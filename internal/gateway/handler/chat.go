package handler

import (
	"net/http"
	"strings"

	"worldeconomics/internal/dashboard"
	"worldeconomics/internal/gateway/service/analysis"
)

type chatRequest struct {
	SessionID string `json:"session_id"`
	RunID     string `json:"run_id"`
	Question  string `json:"question"`
}

type chatResponse struct {
	*analysis.ChatReply
	AnswerHTML string `json:"answer_html"`
}

// HandleChat answers a follow-up question. Without a run id the latest
// report is used.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var in chatRequest
	if err := decodeOptional(r, &in); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	reply, err := h.svc.FollowUp(r.Context(), strings.TrimSpace(in.SessionID), strings.TrimSpace(in.RunID), in.Question)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{ChatReply: reply, AnswerHTML: string(dashboard.RenderMarkdown(reply.Answer))})
}

func (h *Handler) HandleChatSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.svc.Session(pathID(r))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Status: "error", Message: "unknown chat session"})
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
