// Package llm wraps the two completion backends behind one streaming contract.
package llm

import (
	"context"
	"errors"
	"fmt"

	"planforge/internal/domain"
)

// ErrNotConfigured means the selected backend has no usable credentials or
// endpoint stored. Surfaced to the caller, never retried.
var ErrNotConfigured = errors.New("llm provider not configured")

// UnknownProviderError is returned when a provider identifier matches neither
// supported backend.
type UnknownProviderError struct {
	Provider string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown provider: %s", e.Provider)
}

// Backend is one completion service. CompleteStreaming relays every produced
// increment to onDelta synchronously, in arrival order, without buffering. A
// backend failure terminates the call; no partial result is surfaced beyond
// what onDelta already saw.
type Backend interface {
	CompleteStreaming(ctx context.Context, systemPrompt, userPrompt, model string, onDelta func(string) error) error
	ListModels(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}

// Factory builds a backend for the given provider identifier from the stored
// settings. Clients are constructed fresh per request so a settings save is
// picked up by the next call without process-global state.
type Factory func(provider string, settings domain.LLMSettings) (Backend, error)

// NewBackend is the default Factory.
func NewBackend(provider string, settings domain.LLMSettings) (Backend, error) {
	switch provider {
	case domain.ProviderGroq:
		if settings.Groq.APIKey == "" {
			return nil, fmt.Errorf("groq: %w", ErrNotConfigured)
		}
		return NewGroq(settings.Groq), nil
	case domain.ProviderOllama:
		return NewOllama(settings.Ollama), nil
	default:
		return nil, &UnknownProviderError{Provider: provider}
	}
}
