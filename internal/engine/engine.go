package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"planforge/internal/domain"
	"planforge/internal/events"
	"planforge/internal/jira"
	"planforge/internal/llm"
	"planforge/internal/repo"
)

// maskedSecret replaces stored credentials on every read path.
const maskedSecret = "***"

// ValidationError covers malformed caller input. Surfaced directly, never
// retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// TicketSource is the issue-tracker surface the engine needs.
type TicketSource interface {
	FetchTicket(ctx context.Context, key string) (domain.Ticket, error)
	Search(ctx context.Context, query string, maxResults int) ([]domain.TicketSummary, error)
	TestConnection(ctx context.Context) (string, error)
	Projects(ctx context.Context) ([]jira.Project, error)
}

// Engine owns the application flows over the store, the issue tracker, and
// the completion backends. Collaborator constructors are fields so tests can
// substitute fakes.
type Engine struct {
	DB              *sql.DB
	Repo            repo.Repo
	Events          events.Writer
	Log             logr.Logger
	Now             func() time.Time
	NewBackend      llm.Factory
	NewTicketSource func(domain.JiraSettings) (TicketSource, error)
}

func New(conn *sql.DB, log logr.Logger) Engine {
	return Engine{
		DB:         conn,
		Repo:       repo.Repo{DB: conn},
		Events:     events.Writer{DB: conn},
		Log:        log,
		Now:        time.Now,
		NewBackend: llm.NewBackend,
		NewTicketSource: func(s domain.JiraSettings) (TicketSource, error) {
			return jira.NewClient(s)
		},
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// ticketSource builds an issue-tracker client from the latest stored
// settings. Built per call so a settings save is visible immediately.
func (e Engine) ticketSource(ctx context.Context) (TicketSource, error) {
	settings, err := e.Repo.LoadJiraSettings(ctx)
	if err != nil {
		return nil, err
	}
	return e.NewTicketSource(settings)
}

// FetchTicket loads a ticket from the tracker and records it locally along
// with a recent-access touch.
func (e Engine) FetchTicket(ctx context.Context, key string) (domain.Ticket, error) {
	if !jira.KeyPattern.MatchString(key) {
		return domain.Ticket{}, &ValidationError{Msg: fmt.Sprintf("invalid ticket key %q; expected PROJECT-123", key)}
	}
	src, err := e.ticketSource(ctx)
	if err != nil {
		return domain.Ticket{}, err
	}
	t, err := src.FetchTicket(ctx, key)
	if err != nil {
		return domain.Ticket{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	t.FetchedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Ticket{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertTicket(ctx, tx, t); err != nil {
		return domain.Ticket{}, fmt.Errorf("store ticket: %w", err)
	}
	if err := e.Repo.TouchRecentTicket(ctx, tx, t.Key, t.ID, now); err != nil {
		return domain.Ticket{}, fmt.Errorf("touch recent ticket: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "ticket.fetched", "ticket", t.Key, events.EventPayload{"summary": t.Summary}); err != nil {
		return domain.Ticket{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Ticket{}, err
	}
	e.Log.Info("ticket fetched", "key", t.Key)
	return t, nil
}

// SearchTickets runs a tracker-side text search.
func (e Engine) SearchTickets(ctx context.Context, query string, maxResults int) ([]domain.TicketSummary, error) {
	src, err := e.ticketSource(ctx)
	if err != nil {
		return nil, err
	}
	return src.Search(ctx, query, maxResults)
}

// RecentTickets lists the most recently accessed tickets.
func (e Engine) RecentTickets(ctx context.Context, limit int) ([]domain.RecentTicket, error) {
	return e.Repo.ListRecentTickets(ctx, limit)
}

// TrackerProjects lists the projects the stored credentials can see.
func (e Engine) TrackerProjects(ctx context.Context) ([]jira.Project, error) {
	src, err := e.ticketSource(ctx)
	if err != nil {
		return nil, err
	}
	return src.Projects(ctx)
}

// TestJira verifies the stored tracker credentials.
func (e Engine) TestJira(ctx context.Context) (string, error) {
	src, err := e.ticketSource(ctx)
	if err != nil {
		return "", err
	}
	return src.TestConnection(ctx)
}

// JiraSettings returns the stored tracker settings with the credential masked.
func (e Engine) JiraSettings(ctx context.Context) (domain.JiraSettings, error) {
	s, err := e.Repo.LoadJiraSettings(ctx)
	if err != nil {
		return s, err
	}
	s.APIToken = maskedSecret
	return s, nil
}

// SaveJiraSettings persists tracker settings and logs the change (without the
// secret).
func (e Engine) SaveJiraSettings(ctx context.Context, s domain.JiraSettings) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SaveJiraSettings(ctx, tx, s); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "settings.jira.saved", "settings", repo.KeyJiraBaseURL, events.EventPayload{
		"base_url": s.BaseURL,
		"username": s.Username,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// LLMSettings returns the stored provider settings with the API key masked.
func (e Engine) LLMSettings(ctx context.Context) (domain.LLMSettings, error) {
	s, err := e.Repo.LoadLLMSettings(ctx)
	if err != nil {
		return s, err
	}
	s.Groq.APIKey = maskedSecret
	return s, nil
}

// SaveLLMSettings persists provider settings.
func (e Engine) SaveLLMSettings(ctx context.Context, s domain.LLMSettings) error {
	if s.Provider != domain.ProviderGroq && s.Provider != domain.ProviderOllama {
		return &llm.UnknownProviderError{Provider: s.Provider}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SaveLLMSettings(ctx, tx, s); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "settings.llm.saved", "settings", repo.KeyLLMProvider, events.EventPayload{
		"provider": s.Provider,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// ProviderModels lists the models of the currently selected provider.
func (e Engine) ProviderModels(ctx context.Context) ([]string, error) {
	settings, err := e.Repo.LoadLLMSettings(ctx)
	if err != nil {
		return nil, err
	}
	backend, err := e.NewBackend(settings.Provider, settings)
	if err != nil {
		return nil, err
	}
	return backend.ListModels(ctx)
}

// TestGroq checks reachability of the cloud backend with an explicit key.
func (e Engine) TestGroq(ctx context.Context, apiKey string) ([]string, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("groq: %w", llm.ErrNotConfigured)
	}
	return llm.NewGroq(domain.GroqSettings{APIKey: apiKey}).ListModels(ctx)
}

// TestOllama checks reachability of a local backend at the given URL.
func (e Engine) TestOllama(ctx context.Context, baseURL string) ([]string, error) {
	return llm.NewOllama(domain.OllamaSettings{BaseURL: baseURL}).ListModels(ctx)
}
