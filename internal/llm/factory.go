package llm

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderFake      = "fake"
)

var defaultModels = map[string]string{
	ProviderGemini:    "gemini-2.5-flash",
	ProviderOpenAI:    "gpt-4o-mini",
	ProviderAnthropic: "claude-3-5-haiku-latest",
	ProviderFake:      "offline",
}

// Options selects and decorates a provider client.
type Options struct {
	// Model is "provider/model" or a bare model name when Provider is set.
	Model    string
	Provider string

	GeminiAPIKey    string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string

	RPS           float64
	Burst         int
	RetryAttempts int
	RetryDelay    time.Duration
	CallTimeout   time.Duration
	Logger        *log.Logger
}

// ParseModel splits "provider/model". A bare name keeps fallbackProvider;
// an empty model resolves to the provider default.
func ParseModel(spec, fallbackProvider string) (provider, model string) {
	spec = strings.TrimSpace(spec)
	provider = strings.ToLower(strings.TrimSpace(fallbackProvider))
	if p, m, ok := strings.Cut(spec, "/"); ok {
		if _, known := defaultModels[strings.ToLower(p)]; known {
			provider, spec = strings.ToLower(p), m
		}
	}
	if provider == "" {
		provider = ProviderGemini
	}
	model = strings.TrimSpace(spec)
	if model == "" {
		model = defaultModels[provider]
	}
	return provider, model
}

// New builds the provider client and wraps it with the standard middleware
// chain: logging, hooks, rate limit, retry, per-call timeout.
func New(ctx context.Context, opts Options) (LLMClient, error) {
	provider, model := ParseModel(opts.Model, opts.Provider)
	var (
		base LLMClient
		err  error
	)
	switch provider {
	case ProviderGemini:
		base, err = NewGeminiClient(ctx, opts.GeminiAPIKey, model)
	case ProviderOpenAI:
		base, err = NewOpenAIClient(opts.OpenAIAPIKey, opts.OpenAIBaseURL, model)
	case ProviderAnthropic:
		base, err = NewAnthropicClient(opts.AnthropicAPIKey, "", model)
	case ProviderFake:
		base = NewFakeClient()
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownProvider, provider)
	}
	if err != nil {
		return nil, fmt.Errorf("llm: %s client: %w", provider, err)
	}
	return Wrap(base,
		WithLogging(opts.Logger),
		WithHooks(),
		RateLimit(opts.RPS, opts.Burst),
		Retry(opts.RetryAttempts, opts.RetryDelay),
		Timeout(opts.CallTimeout),
	), nil
}
