package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultSerperURL is the Google search endpoint of serper.dev.
const DefaultSerperURL = "https://google.serper.dev/search"

// Serper queries the serper.dev Google search API.
type Serper struct {
	APIKey     string
	Endpoint   string
	HTTPClient *http.Client
}

// NewSerper returns a Serper client for the public endpoint.
func NewSerper(apiKey string) *Serper {
	return &Serper{APIKey: apiKey, Endpoint: DefaultSerperURL, HTTPClient: defaultHTTPClient()}
}

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
}

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
	AnswerBox *struct {
		Title   string `json:"title"`
		Answer  string `json:"answer"`
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
	} `json:"answerBox"`
}

func (s *Serper) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if strings.TrimSpace(s.APIKey) == "" {
		return nil, ErrMissingCredential
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	limit = clampLimit(limit)

	body, err := json.Marshal(serperRequest{Q: query, Num: limit})
	if err != nil {
		return nil, err
	}
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = DefaultSerperURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := s.HTTPClient
	if client == nil {
		client = defaultHTTPClient()
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: serper request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Backend: "serper", Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	var parsed serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("search: decode serper response: %w", err)
	}
	out := make([]Result, 0, limit)
	if ab := parsed.AnswerBox; ab != nil && (ab.Answer != "" || ab.Snippet != "") {
		snippet := ab.Answer
		if snippet == "" {
			snippet = ab.Snippet
		}
		out = append(out, Result{Title: ab.Title, Snippet: snippet, URL: ab.Link})
	}
	for _, o := range parsed.Organic {
		if len(out) >= limit {
			break
		}
		out = append(out, Result{Title: o.Title, Snippet: o.Snippet, URL: o.Link})
	}
	if len(out) == 0 {
		return nil, ErrNoResults
	}
	return out, nil
}
