package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	anthropic "github.com/liushuangls/go-anthropic/v2"
)

const anthropicMaxTokens = 4096

// AnthropicClient calls the Messages API and extracts the JSON object from
// the first text block.
type AnthropicClient struct {
	cli   *anthropic.Client
	model string
}

func NewAnthropicClient(apiKey, baseURL, model string) (*AnthropicClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	opts := make([]anthropic.ClientOption, 0, 1)
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	return &AnthropicClient{cli: anthropic.NewClient(apiKey, opts...), model: model}, nil
}

func (a *AnthropicClient) Name() string { return "Anthropic:" + a.model }
func (a *AnthropicClient) Close() error { return nil }

func (a *AnthropicClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	resp, err := a.cli.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(a.model),
		System:    "Respond with a single JSON object only. Do not add prose or code fences.",
		Messages:  []anthropic.Message{anthropic.NewUserTextMessage(composePrompt(prompt, input))},
		MaxTokens: anthropicMaxTokens,
	})
	if err != nil {
		var reqErr *anthropic.RequestError
		if errors.As(err, &reqErr) && permanentStatus(reqErr.StatusCode) {
			return nil, NewPermanentError(err)
		}
		return nil, err
	}
	if len(resp.Content) == 0 {
		return nil, ErrEmptyResponse
	}
	return extractJSON(resp.GetFirstContentText())
}
