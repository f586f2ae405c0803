package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// LLMClient asks a model for a JSON document.
type LLMClient interface {
	Name() string
	GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error)
	Close() error
}

var (
	ErrInvalidJSON     = errors.New("invalid json from LLM")
	ErrEmptyResponse   = errors.New("empty response from LLM")
	ErrMissingAPIKey   = errors.New("llm: missing api key")
	ErrUnknownProvider = errors.New("llm: unknown provider")
)

// PermanentError indicates an error that will not resolve with retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err, or anything it wraps, is permanent.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// permanentStatus reports HTTP statuses that retrying cannot fix.
func permanentStatus(code int) bool {
	switch code {
	case 400, 401, 403, 404, 422:
		return true
	}
	return false
}
