// Package search implements the web search tool used by the research and
// follow-up agents.
package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrMissingCredential = errors.New("search: missing credential")
	ErrNoResults         = errors.New("search: no results")
	ErrEmptyQuery        = errors.New("search: empty query")
)

// Result is one organic search hit.
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// Searcher runs a web search and returns at most limit results.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// StatusError is returned for non-2xx responses from a search backend.
type StatusError struct {
	Backend string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("search: %s returned HTTP %d", e.Backend, e.Code)
	}
	return fmt.Sprintf("search: %s returned HTTP %d: %s", e.Backend, e.Code, e.Body)
}

const (
	defaultLimit   = 5
	maxLimit       = 20
	defaultTimeout = 20 * time.Second
)

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return defaultLimit
	case n > maxLimit:
		return maxLimit
	}
	return n
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultTimeout}
}
