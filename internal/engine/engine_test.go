package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planforge/internal/domain"
	"planforge/internal/llm"
)

func TestFetchTicketValidatesKey(t *testing.T) {
	e := newTestEngine(t)
	for _, key := range []string{"", "proj-1", "PROJ1", "PROJ-1; DROP"} {
		_, err := e.FetchTicket(context.Background(), key)
		var ve *ValidationError
		assert.ErrorAs(t, err, &ve, key)
	}
}

func TestFetchTicketCachesAndTouchesRecents(t *testing.T) {
	e := newTestEngine(t)
	e.NewTicketSource = func(domain.JiraSettings) (TicketSource, error) {
		return &fakeTicketSource{ticket: domain.Ticket{ID: "t1", Key: "PROJ-1", Summary: "login"}}, nil
	}

	got, err := e.FetchTicket(context.Background(), "PROJ-1")
	require.NoError(t, err)
	assert.NotEmpty(t, got.FetchedAt)

	cached, err := e.Repo.GetTicketByKey(context.Background(), "PROJ-1")
	require.NoError(t, err)
	assert.Equal(t, "login", cached.Summary)

	recents, err := e.RecentTickets(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, recents, 1)
	assert.Equal(t, "PROJ-1", recents[0].TicketKey)
}

func TestJiraSettingsMasked(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.SaveJiraSettings(context.Background(), domain.JiraSettings{
		BaseURL:  "https://x.atlassian.net",
		Username: "qa@example.com",
		APIToken: "super-secret",
	}))

	s, err := e.JiraSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://x.atlassian.net", s.BaseURL)
	assert.Equal(t, "***", s.APIToken)

	// The stored value is untouched.
	raw, err := e.Repo.LoadJiraSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "super-secret", raw.APIToken)
}

func TestLLMSettingsMasked(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.SaveLLMSettings(context.Background(), domain.LLMSettings{
		Provider: domain.ProviderGroq,
		Groq:     domain.GroqSettings{APIKey: "gsk_live", Model: "m", Temperature: 0.3},
	}))

	s, err := e.LLMSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "***", s.Groq.APIKey)
	assert.Equal(t, "m", s.Groq.Model)
}

func TestSaveLLMSettingsRejectsUnknownProvider(t *testing.T) {
	e := newTestEngine(t)
	err := e.SaveLLMSettings(context.Background(), domain.LLMSettings{Provider: "bard"})
	var upe *llm.UnknownProviderError
	require.ErrorAs(t, err, &upe)
	assert.Equal(t, "bard", upe.Provider)
}

func TestSaveTemplateRejectsEmpty(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.SaveTemplate(context.Background(), nil, "empty.pdf")
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestTestGroqRequiresKey(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.TestGroq(context.Background(), "")
	assert.ErrorIs(t, err, llm.ErrNotConfigured)
}
