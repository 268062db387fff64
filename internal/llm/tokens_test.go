package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"planforge/internal/domain"
)

func domainSettings(apiKey string) domain.LLMSettings {
	return domain.LLMSettings{
		Provider: domain.ProviderGroq,
		Groq:     domain.GroqSettings{APIKey: apiKey, Model: "m"},
	}
}

func TestEstimateTokensNeverZero(t *testing.T) {
	assert.GreaterOrEqual(t, EstimateTokens(""), 1)
	assert.GreaterOrEqual(t, EstimateTokens("hi"), 1)
}

func TestEstimateTokensGrowsWithInput(t *testing.T) {
	short := EstimateTokens("one sentence of prompt text")
	long := EstimateTokens(strings.Repeat("one sentence of prompt text ", 50))
	assert.Greater(t, long, short)
}

func TestNewBackendDispatch(t *testing.T) {
	settings := domainSettings("gsk_test")

	b, err := NewBackend("groq", settings)
	assert.NoError(t, err)
	assert.IsType(t, &Groq{}, b)

	b, err = NewBackend("ollama", settings)
	assert.NoError(t, err)
	assert.IsType(t, &Ollama{}, b)

	_, err = NewBackend("copilot", settings)
	var upe *UnknownProviderError
	assert.ErrorAs(t, err, &upe)

	settings.Groq.APIKey = ""
	_, err = NewBackend("groq", settings)
	assert.ErrorIs(t, err, ErrNotConfigured)
}
