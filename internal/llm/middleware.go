package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"
)

// Middleware decorates an LLMClient with one cross-cutting concern.
type Middleware func(LLMClient) LLMClient

// Wrap applies middlewares so the first one is outermost:
// Wrap(c, A, B) calls A, then B, then c.
func Wrap(inner LLMClient, mws ...Middleware) LLMClient {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			out = mws[i](out)
		}
	}
	return out
}

type generateFunc func(ctx context.Context, prompt string, input any) (json.RawMessage, error)

// decorated replaces GenerateJSON and passes Name and Close through.
type decorated struct {
	LLMClient
	generate generateFunc
}

func (d *decorated) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	return d.generate(ctx, prompt, input)
}

func decorate(next LLMClient, fn func(next LLMClient) generateFunc) LLMClient {
	return &decorated{LLMClient: next, generate: fn(next)}
}

// RateLimit allows rps calls per second with the given burst. rps <= 0
// disables limiting.
func RateLimit(rps float64, burst int) Middleware {
	return func(next LLMClient) LLMClient {
		if rps <= 0 {
			return next
		}
		if burst <= 0 {
			burst = 1
		}
		lim := rate.NewLimiter(rate.Limit(rps), burst)
		return decorate(next, func(next LLMClient) generateFunc {
			return func(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
				if err := lim.Wait(ctx); err != nil {
					if cerr := ctx.Err(); cerr != nil {
						return nil, cerr
					}
					// The limiter refuses waits that would outlive the deadline.
					return nil, fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
				}
				return next.GenerateJSON(ctx, prompt, input)
			}
		})
	}
}

// Timeout bounds each call. d <= 0 disables it.
func Timeout(d time.Duration) Middleware {
	return func(next LLMClient) LLMClient {
		if d <= 0 {
			return next
		}
		return decorate(next, func(next LLMClient) generateFunc {
			return func(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
				ctx, cancel := context.WithTimeout(ctx, d)
				defer cancel()
				return next.GenerateJSON(ctx, prompt, input)
			}
		})
	}
}

// Retry makes up to attempts calls, doubling the pause from baseDelay after
// each transient failure. Permanent errors and cancellation end it early.
// attempts <= 1 means a single call.
func Retry(attempts int, baseDelay time.Duration) Middleware {
	if attempts < 1 {
		attempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next LLMClient) LLMClient {
		if attempts == 1 {
			return next
		}
		return decorate(next, func(next LLMClient) generateFunc {
			return func(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
				delay := baseDelay
				for attempt := 1; ; attempt++ {
					raw, err := next.GenerateJSON(ctx, prompt, input)
					if err == nil || IsPermanent(err) || attempt == attempts {
						return raw, err
					}
					select {
					case <-ctx.Done():
						return nil, ctx.Err()
					case <-time.After(delay):
					}
					delay *= 2
				}
			}
		})
	}
}

// WithLogging logs request size, latency and errors to logger, or to
// log.Default() when nil.
func WithLogging(logger *log.Logger) Middleware {
	if logger == nil {
		logger = log.Default()
	}
	return func(next LLMClient) LLMClient {
		return decorate(next, func(next LLMClient) generateFunc {
			return func(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
				in, _ := json.Marshal(input)
				name, phase, start := next.Name(), PhaseFrom(ctx), time.Now()
				logger.Printf("llm: %s request (%s): %d bytes", name, phase, len(prompt)+len(in))
				raw, err := next.GenerateJSON(ctx, prompt, input)
				took := time.Since(start).Round(time.Millisecond)
				if err != nil {
					logger.Printf("llm: %s error (%s) after %s: %v", name, phase, took, err)
				} else {
					logger.Printf("llm: %s response (%s): %d bytes in %s", name, phase, len(raw), took)
				}
				return raw, err
			}
		})
	}
}

// WithHooks reports each call to the PromptHook carried by its context.
func WithHooks() Middleware {
	return func(next LLMClient) LLMClient {
		return decorate(next, func(next LLMClient) generateFunc {
			return func(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
				hook := HookFrom(ctx)
				if hook == nil {
					return next.GenerateJSON(ctx, prompt, input)
				}
				phase := PhaseFrom(ctx)
				hook.Before(ctx, phase, prompt, input)
				raw, err := next.GenerateJSON(ctx, prompt, input)
				hook.After(ctx, phase, raw, err)
				return raw, err
			}
		})
	}
}
