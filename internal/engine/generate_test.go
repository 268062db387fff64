package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planforge/internal/db"
	"planforge/internal/domain"
	"planforge/internal/jira"
	"planforge/internal/llm"
	"planforge/internal/logging"
	"planforge/internal/migrate"
)

type fakeBackend struct {
	deltas []string
	failAt int // fail before emitting this index when >= 0
	err    error
}

func (f *fakeBackend) CompleteStreaming(ctx context.Context, system, user, model string, onDelta func(string) error) error {
	for i, d := range f.deltas {
		if f.err != nil && i == f.failAt {
			return f.err
		}
		if err := onDelta(d); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeBackend) ListModels(ctx context.Context) ([]string, error) { return nil, nil }
func (f *fakeBackend) Ping(ctx context.Context) error                   { return nil }

type fakeTicketSource struct {
	ticket domain.Ticket
	err    error
}

func (f *fakeTicketSource) FetchTicket(ctx context.Context, key string) (domain.Ticket, error) {
	return f.ticket, f.err
}

func (f *fakeTicketSource) Search(ctx context.Context, query string, maxResults int) ([]domain.TicketSummary, error) {
	return nil, nil
}

func (f *fakeTicketSource) TestConnection(ctx context.Context) (string, error) { return "", nil }
func (f *fakeTicketSource) Projects(ctx context.Context) ([]jira.Project, error) {
	return nil, nil
}

func newTestEngine(t *testing.T) Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return New(conn, logging.Discard())
}

func countRows(t *testing.T, e Engine, table string) int {
	t.Helper()
	var n int
	require.NoError(t, e.DB.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestGenerateUnknownProvider(t *testing.T) {
	e := newTestEngine(t)
	called := false

	_, err := e.Generate(context.Background(), domain.Ticket{Key: "PROJ-1"}, nil, "copilot", "", func(string) {
		called = true
	})

	var upe *llm.UnknownProviderError
	require.ErrorAs(t, err, &upe)
	assert.Equal(t, "copilot", upe.Provider)
	assert.False(t, called, "chunk sink must not run for an unknown provider")
	assert.Equal(t, 0, countRows(t, e, "test_plans"))
}

func TestGenerateStreamsInOrder(t *testing.T) {
	e := newTestEngine(t)
	e.NewBackend = func(provider string, settings domain.LLMSettings) (llm.Backend, error) {
		return &fakeBackend{deltas: []string{"Hello", " world"}}, nil
	}

	var chunks []string
	res, err := e.Generate(context.Background(), domain.Ticket{Key: "PROJ-1"}, nil, domain.ProviderOllama, "", func(d string) {
		chunks = append(chunks, d)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hello", " world"}, chunks)
	assert.Equal(t, "Hello world", res.Content)
	assert.Equal(t, 2, res.TokensUsed)
	assert.Equal(t, domain.ProviderOllama, res.Provider)
}

func TestGenerateDefaultsModelFromSettings(t *testing.T) {
	e := newTestEngine(t)
	e.NewBackend = func(provider string, settings domain.LLMSettings) (llm.Backend, error) {
		return &fakeBackend{deltas: []string{"x"}}, nil
	}

	res, err := e.Generate(context.Background(), domain.Ticket{Key: "PROJ-1"}, nil, domain.ProviderOllama, "", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultOllamaModel, res.ModelUsed)

	res, err = e.Generate(context.Background(), domain.Ticket{Key: "PROJ-1"}, nil, domain.ProviderOllama, "custom", nil)
	require.NoError(t, err)
	assert.Equal(t, "custom", res.ModelUsed)
}

func TestGenerateMeasuresElapsed(t *testing.T) {
	e := newTestEngine(t)
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	calls := 0
	e.Now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls-1) * 250 * time.Millisecond)
	}
	e.NewBackend = func(provider string, settings domain.LLMSettings) (llm.Backend, error) {
		return &fakeBackend{deltas: []string{"x"}}, nil
	}

	res, err := e.Generate(context.Background(), domain.Ticket{Key: "PROJ-1"}, nil, domain.ProviderOllama, "", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(250), res.GenerationTimeMs)
}

func TestGeneratePlanPersists(t *testing.T) {
	e := newTestEngine(t)
	e.NewTicketSource = func(domain.JiraSettings) (TicketSource, error) {
		return &fakeTicketSource{ticket: domain.Ticket{ID: "t1", Key: "PROJ-1", Summary: "login"}}, nil
	}
	e.NewBackend = func(provider string, settings domain.LLMSettings) (llm.Backend, error) {
		return &fakeBackend{deltas: []string{"# Plan\n", "content"}}, nil
	}

	plan, err := e.GeneratePlan(context.Background(), GeneratePlanRequest{
		TicketKey: "PROJ-1",
		Provider:  domain.ProviderOllama,
	})
	require.NoError(t, err)
	assert.Equal(t, "# Plan\ncontent", plan.Content)
	assert.Equal(t, "t1", plan.TicketID)
	assert.Equal(t, 2, plan.TokensUsed)
	assert.NotEmpty(t, plan.ID)

	history, err := e.History(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, plan.ID, history[0].ID)
	assert.Equal(t, "PROJ-1", history[0].TicketKey)

	events, err := e.Repo.LatestEvents(context.Background(), 10)
	require.NoError(t, err)
	types := make([]string, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	assert.Contains(t, types, "plan.generated")
	assert.Contains(t, types, "ticket.fetched")
}

func TestGeneratePlanBackendFailureNotPersisted(t *testing.T) {
	e := newTestEngine(t)
	e.NewTicketSource = func(domain.JiraSettings) (TicketSource, error) {
		return &fakeTicketSource{ticket: domain.Ticket{ID: "t1", Key: "PROJ-1"}}, nil
	}
	backendErr := errors.New("connection reset")
	e.NewBackend = func(provider string, settings domain.LLMSettings) (llm.Backend, error) {
		return &fakeBackend{deltas: []string{"partial", " output"}, failAt: 1, err: backendErr}, nil
	}

	var chunks []string
	_, err := e.GeneratePlan(context.Background(), GeneratePlanRequest{
		TicketKey: "PROJ-1",
		Provider:  domain.ProviderOllama,
		OnChunk:   func(d string) { chunks = append(chunks, d) },
	})
	require.ErrorIs(t, err, backendErr)

	// The sink saw what arrived before the failure, but nothing is stored.
	assert.Equal(t, []string{"partial"}, chunks)
	assert.Equal(t, 0, countRows(t, e, "test_plans"))
}

func TestGeneratePlanInvalidKey(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.GeneratePlan(context.Background(), GeneratePlanRequest{TicketKey: "lowercase-1"})
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = e.GeneratePlan(context.Background(), GeneratePlanRequest{})
	assert.ErrorAs(t, err, &ve)
}

func TestGeneratePlanMissingTemplateFallsBack(t *testing.T) {
	e := newTestEngine(t)
	e.NewTicketSource = func(domain.JiraSettings) (TicketSource, error) {
		return &fakeTicketSource{ticket: domain.Ticket{ID: "t1", Key: "PROJ-1"}}, nil
	}
	e.NewBackend = func(provider string, settings domain.LLMSettings) (llm.Backend, error) {
		return &fakeBackend{deltas: []string{"plan"}}, nil
	}

	plan, err := e.GeneratePlan(context.Background(), GeneratePlanRequest{
		TicketKey:  "PROJ-1",
		TemplateID: "does-not-exist",
		Provider:   domain.ProviderOllama,
	})
	require.NoError(t, err)
	assert.Equal(t, "plan", plan.Content)
	assert.Equal(t, "does-not-exist", plan.TemplateID)
}
