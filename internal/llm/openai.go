package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient talks to the OpenAI chat completions API or any compatible
// endpoint (set baseURL).
type OpenAIClient struct {
	cli   *openai.Client
	model string
}

func NewOpenAIClient(apiKey, baseURL, model string) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{cli: openai.NewClientWithConfig(cfg), model: model}, nil
}

func (o *OpenAIClient) Name() string { return "OpenAI:" + o.model }
func (o *OpenAIClient) Close() error { return nil }

func (o *OpenAIClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	resp, err := o.cli.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "Respond with a single JSON object only."},
			{Role: openai.ChatMessageRoleUser, Content: composePrompt(prompt, input)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && permanentStatus(apiErr.HTTPStatusCode) {
			return nil, NewPermanentError(err)
		}
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	return extractJSON(resp.Choices[0].Message.Content)
}
