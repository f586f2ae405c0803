package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	genai "google.golang.org/genai"
)

// GeminiClient calls the Gemini API in JSON response mode. Retries, rate
// limits and hooks are layered on by the middleware in this package.
type GeminiClient struct {
	cli   *genai.Client
	model string
	gen   *genai.GenerateContentConfig
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &GeminiClient{
		cli:   cli,
		model: model,
		gen:   &genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	}, nil
}

func (g *GeminiClient) Name() string { return "Gemini:" + g.model }

func (g *GeminiClient) Close() error { return nil }

func (g *GeminiClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	resp, err := g.cli.Models.GenerateContent(ctx, g.model, genai.Text(composePrompt(prompt, input)), g.gen)
	if err != nil {
		return nil, classifyGemini(err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyResponse
	}
	return extractJSON(text)
}

// classifyGemini marks client-side API errors as permanent.
func classifyGemini(err error) error {
	var byVal genai.APIError
	var byPtr *genai.APIError
	code := 0
	switch {
	case errors.As(err, &byVal):
		code = byVal.Code
	case errors.As(err, &byPtr) && byPtr != nil:
		code = byPtr.Code
	}
	if permanentStatus(code) {
		return NewPermanentError(err)
	}
	return err
}
