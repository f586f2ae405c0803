package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Searxng queries a self-hosted SearxNG instance through its JSON API.
type Searxng struct {
	BaseURL    string
	Language   string
	HTTPClient *http.Client
}

func NewSearxng(baseURL string) *Searxng {
	return &Searxng{BaseURL: strings.TrimRight(baseURL, "/"), HTTPClient: defaultHTTPClient()}
}

type searxngResponse struct {
	Results []struct {
		URL     string `json:"url"`
		Title   string `json:"title"`
		Content string `json:"content"`
	} `json:"results"`
}

func (s *Searxng) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if strings.TrimSpace(s.BaseURL) == "" {
		return nil, fmt.Errorf("%w: searxng base url", ErrMissingCredential)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	limit = clampLimit(limit)

	values := url.Values{}
	values.Set("q", query)
	values.Set("format", "json")
	values.Set("safesearch", "0")
	values.Set("categories", "general")
	if s.Language != "" {
		values.Set("language", s.Language)
	}
	searchURL := fmt.Sprintf("%s/search?%s", strings.TrimRight(s.BaseURL, "/"), values.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	client := s.HTTPClient
	if client == nil {
		client = defaultHTTPClient()
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: searxng request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Backend: "searxng", Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	var parsed searxngResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("search: decode searxng response: %w", err)
	}
	out := make([]Result, 0, limit)
	for _, r := range parsed.Results {
		if len(out) >= limit {
			break
		}
		out = append(out, Result{Title: r.Title, Snippet: r.Content, URL: r.URL})
	}
	if len(out) == 0 {
		return nil, ErrNoResults
	}
	return out, nil
}
