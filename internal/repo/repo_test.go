package repo

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planforge/internal/db"
	"planforge/internal/domain"
	"planforge/internal/migrate"
)

func newTestRepo(t *testing.T) Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return Repo{DB: conn}
}

func inTx(t *testing.T, r Repo, fn func(tx *sql.Tx)) {
	t.Helper()
	tx, err := r.DB.Begin()
	require.NoError(t, err)
	fn(tx)
	require.NoError(t, tx.Commit())
}

func TestSettingsRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	_, err := r.GetSetting(ctx, KeyJiraBaseURL)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, r.SetSetting(ctx, KeyJiraBaseURL, "https://a.example"))
	got, err := r.GetSetting(ctx, KeyJiraBaseURL)
	require.NoError(t, err)
	assert.Equal(t, "https://a.example", got)

	// Upsert replaces.
	require.NoError(t, r.SetSetting(ctx, KeyJiraBaseURL, "https://b.example"))
	got, err = r.GetSetting(ctx, KeyJiraBaseURL)
	require.NoError(t, err)
	assert.Equal(t, "https://b.example", got)
}

func TestLoadLLMSettingsDefaults(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	s, err := r.LoadLLMSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderGroq, s.Provider)
	assert.Equal(t, domain.DefaultGroqModel, s.Groq.Model)
	assert.Equal(t, domain.DefaultTemperature, s.Groq.Temperature)
	assert.Equal(t, domain.DefaultOllamaBaseURL, s.Ollama.BaseURL)
	assert.Equal(t, domain.DefaultOllamaModel, s.Ollama.Model)
	assert.Empty(t, s.Groq.APIKey)
}

func TestSaveLLMSettingsAppliesStoredTemperature(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	inTx(t, r, func(tx *sql.Tx) {
		require.NoError(t, r.SaveLLMSettings(ctx, tx, domain.LLMSettings{
			Provider: domain.ProviderGroq,
			Groq:     domain.GroqSettings{APIKey: "gsk_test", Model: "mixtral", Temperature: 0.2},
		}))
	})

	s, err := r.LoadLLMSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gsk_test", s.Groq.APIKey)
	assert.Equal(t, "mixtral", s.Groq.Model)
	assert.Equal(t, 0.2, s.Groq.Temperature)
	// Untouched ollama settings keep defaults.
	assert.Equal(t, domain.DefaultOllamaModel, s.Ollama.Model)
}

func TestTicketUpsertAndRecents(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	ticket := domain.Ticket{
		ID:        "10001",
		Key:       "PROJ-1",
		Summary:   "first",
		Status:    "Open",
		Priority:  "High",
		FetchedAt: "2026-08-30T10:00:00Z",
	}
	inTx(t, r, func(tx *sql.Tx) {
		require.NoError(t, r.UpsertTicket(ctx, tx, ticket))
		require.NoError(t, r.TouchRecentTicket(ctx, tx, ticket.Key, ticket.ID, "2026-08-30T10:00:00Z"))
	})

	// Refetch replaces the row and bumps the recency timestamp.
	ticket.Summary = "first updated"
	inTx(t, r, func(tx *sql.Tx) {
		require.NoError(t, r.UpsertTicket(ctx, tx, ticket))
		require.NoError(t, r.TouchRecentTicket(ctx, tx, ticket.Key, ticket.ID, "2026-08-30T11:00:00Z"))
	})

	got, err := r.GetTicketByKey(ctx, "PROJ-1")
	require.NoError(t, err)
	assert.Equal(t, "first updated", got.Summary)

	recents, err := r.ListRecentTickets(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recents, 1)
	assert.Equal(t, "PROJ-1", recents[0].TicketKey)
	assert.Equal(t, "2026-08-30T11:00:00Z", recents[0].AccessedAt)
	assert.Equal(t, "first updated", recents[0].Summary)

	_, err = r.GetTicketByKey(ctx, "PROJ-404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTemplateSectionsRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	tpl := domain.Template{
		ID:       "tpl-1",
		Name:     "plan",
		Filename: "plan.pdf",
		Content:  "1. OVERVIEW\nbody",
		Sections: []domain.Section{
			{Title: "1. OVERVIEW", Content: "body"},
		},
		CreatedAt: "2026-08-30T10:00:00Z",
	}
	inTx(t, r, func(tx *sql.Tx) {
		require.NoError(t, r.InsertTemplate(ctx, tx, tpl))
	})

	got, err := r.GetTemplate(ctx, "tpl-1")
	require.NoError(t, err)
	assert.Equal(t, tpl.Sections, got.Sections)
	assert.Equal(t, tpl.Content, got.Content)

	list, err := r.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "plan", list[0].Name)

	_, err = r.GetTemplate(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetTemplateToleratesCorruptSections(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	_, err := r.DB.Exec(`INSERT INTO templates(id,name,filename,content,sections,created_at) VALUES (?,?,?,?,?,?)`,
		"tpl-bad", "bad", "bad.pdf", "text", "{not json", "2026-08-30T10:00:00Z")
	require.NoError(t, err)

	got, err := r.GetTemplate(ctx, "tpl-bad")
	require.NoError(t, err)
	assert.Nil(t, got.Sections)
	assert.Equal(t, "text", got.Content)
}

func TestTestPlanHistoryJoin(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	inTx(t, r, func(tx *sql.Tx) {
		require.NoError(t, r.UpsertTicket(ctx, tx, domain.Ticket{
			ID: "t1", Key: "PROJ-9", Summary: "ninth", Status: "Open", Priority: "Low",
			FetchedAt: "2026-08-30T09:00:00Z",
		}))
		require.NoError(t, r.InsertTestPlan(ctx, tx, domain.TestPlan{
			ID: "p1", TicketID: "t1", Content: "older plan", Provider: "groq",
			ModelUsed: "m", TokensUsed: 3, GenerationTimeMs: 120,
			CreatedAt: "2026-08-30T09:30:00Z",
		}))
		require.NoError(t, r.InsertTestPlan(ctx, tx, domain.TestPlan{
			ID: "p2", TicketID: "t1", Content: "newer plan", Provider: "ollama",
			ModelUsed: "m2", TokensUsed: 5, GenerationTimeMs: 80,
			CreatedAt: "2026-08-30T10:30:00Z",
		}))
	})

	plans, err := r.ListTestPlanHistory(ctx, 20)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "p2", plans[0].ID)
	assert.Equal(t, "PROJ-9", plans[0].TicketKey)
	assert.Equal(t, "ninth", plans[0].TicketSummary)
	assert.Equal(t, "p1", plans[1].ID)

	plans, err = r.ListTestPlanHistory(ctx, 1)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "p2", plans[0].ID)
}

func TestEventLog(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	for _, typ := range []string{"a", "b", "c"} {
		_, err := r.DB.Exec(`INSERT INTO events(ts,type,entity_kind,payload_json) VALUES (?,?,?,?)`,
			"2026-08-30T10:00:00Z", typ, "test", "{}")
		require.NoError(t, err)
	}

	latest, err := r.LatestEventID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), latest)

	after, err := r.ListEventsAfter(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, "b", after[0].Type)
	assert.Equal(t, "c", after[1].Type)

	newest, err := r.LatestEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, newest, 2)
	assert.Equal(t, "c", newest[0].Type)
}
