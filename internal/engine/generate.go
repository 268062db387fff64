package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"planforge/internal/domain"
	"planforge/internal/events"
	"planforge/internal/jira"
	"planforge/internal/llm"
	"planforge/internal/prompt"
	"planforge/internal/repo"
)

// Generate runs one completion call: assemble the prompt pair, dispatch to
// the selected backend, and accumulate the streamed increments. onChunk, when
// non-nil, is invoked synchronously once per increment in arrival order; a
// slow sink delays consumption of the next increment. No retry; a backend
// failure is terminal and no partial result is returned.
func (e Engine) Generate(ctx context.Context, ticket domain.Ticket, tpl *domain.Template, provider, model string, onChunk func(string)) (domain.GenerationResult, error) {
	start := e.now()

	settings, err := e.Repo.LoadLLMSettings(ctx)
	if err != nil {
		return domain.GenerationResult{}, err
	}
	backend, err := e.NewBackend(provider, settings)
	if err != nil {
		return domain.GenerationResult{}, err
	}
	if model == "" {
		model = settings.DefaultModel(provider)
	}

	pair := prompt.BuildForTemplate(ticket, tpl)
	e.Log.V(1).Info("prompts assembled",
		"ticket", ticket.Key,
		"provider", provider,
		"model", model,
		"promptTokens", llm.EstimateTokens(pair.System+pair.User))

	var content strings.Builder
	tokens := 0
	err = backend.CompleteStreaming(ctx, pair.System, pair.User, model, func(delta string) error {
		content.WriteString(delta)
		tokens++
		if onChunk != nil {
			onChunk(delta)
		}
		return nil
	})
	if err != nil {
		return domain.GenerationResult{}, err
	}

	return domain.GenerationResult{
		Content:          content.String(),
		Provider:         provider,
		ModelUsed:        model,
		TokensUsed:       tokens,
		GenerationTimeMs: e.now().Sub(start).Milliseconds(),
	}, nil
}

// GeneratePlanRequest is the full-flow input.
type GeneratePlanRequest struct {
	TicketKey  string
	TemplateID string
	Provider   string
	Model      string
	OnChunk    func(string)
}

// GeneratePlan is the end-to-end flow: fetch the ticket, load the template,
// resolve provider defaults from the stored settings, generate, and persist
// the successful result. Nothing is written when generation fails.
func (e Engine) GeneratePlan(ctx context.Context, req GeneratePlanRequest) (domain.TestPlan, error) {
	if req.TicketKey == "" {
		return domain.TestPlan{}, &ValidationError{Msg: "ticket key is required"}
	}
	if !jira.KeyPattern.MatchString(req.TicketKey) {
		return domain.TestPlan{}, &ValidationError{Msg: fmt.Sprintf("invalid ticket key %q; expected PROJECT-123", req.TicketKey)}
	}

	ticket, err := e.FetchTicket(ctx, req.TicketKey)
	if err != nil {
		return domain.TestPlan{}, err
	}

	var tpl *domain.Template
	if req.TemplateID != "" {
		loaded, err := e.Repo.GetTemplate(ctx, req.TemplateID)
		switch {
		case err == nil:
			tpl = &loaded
		case errors.Is(err, repo.ErrNotFound):
			// Missing template falls back to the standard structure.
			e.Log.Info("template not found, using default structure", "id", req.TemplateID)
		default:
			return domain.TestPlan{}, err
		}
	}

	provider := req.Provider
	if provider == "" {
		settings, err := e.Repo.LoadLLMSettings(ctx)
		if err != nil {
			return domain.TestPlan{}, err
		}
		provider = settings.Provider
	}

	result, err := e.Generate(ctx, ticket, tpl, provider, req.Model, req.OnChunk)
	if err != nil {
		return domain.TestPlan{}, err
	}

	plan := domain.TestPlan{
		ID:               uuid.NewString(),
		TicketID:         ticket.ID,
		TemplateID:       req.TemplateID,
		Content:          result.Content,
		Provider:         result.Provider,
		ModelUsed:        result.ModelUsed,
		TokensUsed:       result.TokensUsed,
		GenerationTimeMs: result.GenerationTimeMs,
		CreatedAt:        e.now().UTC().Format(time.RFC3339),
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TestPlan{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTestPlan(ctx, tx, plan); err != nil {
		return domain.TestPlan{}, fmt.Errorf("store test plan: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "plan.generated", "test_plan", plan.ID, events.EventPayload{
		"ticket":   ticket.Key,
		"provider": plan.Provider,
		"model":    plan.ModelUsed,
		"tokens":   plan.TokensUsed,
	}); err != nil {
		return domain.TestPlan{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TestPlan{}, err
	}
	e.Log.Info("test plan generated",
		"id", plan.ID,
		"ticket", ticket.Key,
		"provider", plan.Provider,
		"elapsedMs", plan.GenerationTimeMs)
	return plan, nil
}

// History returns the most recent generation runs joined with their tickets.
func (e Engine) History(ctx context.Context, limit int) ([]domain.TestPlanHistoryEntry, error) {
	return e.Repo.ListTestPlanHistory(ctx, limit)
}
