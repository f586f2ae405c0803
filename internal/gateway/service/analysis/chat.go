package analysis

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"worldeconomics/internal/llm"
	"worldeconomics/internal/pipeline"
	"worldeconomics/internal/report"
)

const (
	defaultMaxSessions = 512
	defaultSessionTTL  = 2 * time.Hour
)

type ChatMessage struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Session is one follow-up conversation about a run's report.
type Session struct {
	ID       string        `json:"id"`
	RunID    string        `json:"run_id"`
	Messages []ChatMessage `json:"messages"`
}

type sessions struct {
	mu  sync.Mutex
	lru *expirable.LRU[string, Session]
}

func newSessions(max int, ttl time.Duration) *sessions {
	if max <= 0 {
		max = defaultMaxSessions
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &sessions{lru: expirable.NewLRU[string, Session](max, nil, ttl)}
}

// ChatReply is the answer to one follow-up question.
type ChatReply struct {
	SessionID string        `json:"session_id"`
	RunID     string        `json:"run_id"`
	Answer    string        `json:"answer"`
	Messages  []ChatMessage `json:"messages"`
}

// FollowUp answers question against the report of runID, or the latest
// report when runID is empty. The exchange is appended to the session,
// which is created when sessionID is empty or expired.
func (s *Service) FollowUp(ctx context.Context, sessionID, runID, question string) (*ChatReply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, pipeline.ErrEmptyQuestion
	}
	var (
		rec  report.RunRecord
		body []byte
		err  error
	)
	if strings.TrimSpace(runID) == "" {
		rec, body, err = s.index.LatestReport(ctx)
	} else {
		rec, err = s.index.Get(runID)
		if err == nil {
			body, err = s.index.Report(ctx, rec.ID)
		}
	}
	if err != nil {
		return nil, err
	}

	if s.trace != nil {
		ctx = llm.WithHook(ctx, s.trace.Hook(rec.ID))
	}
	res, err := s.engine.FollowUp(ctx, string(body), question)
	if err != nil {
		return nil, err
	}

	s.sessions.mu.Lock()
	defer s.sessions.mu.Unlock()
	sess, ok := s.sessions.lru.Get(sessionID)
	if !ok || sessionID == "" {
		sess = Session{ID: uuid.NewString()}
	}
	sess.RunID = rec.ID
	now := s.now()
	sess.Messages = append(append([]ChatMessage(nil), sess.Messages...),
		ChatMessage{Role: "user", Content: question, At: now},
		ChatMessage{Role: "assistant", Content: res.Text, At: now},
	)
	s.sessions.lru.Add(sess.ID, sess)
	return &ChatReply{SessionID: sess.ID, RunID: rec.ID, Answer: res.Text, Messages: sess.Messages}, nil
}

// Session returns a chat session by id.
func (s *Service) Session(id string) (Session, bool) {
	s.sessions.mu.Lock()
	defer s.sessions.mu.Unlock()
	return s.sessions.lru.Get(id)
}
