package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"planforge/internal/engine"
)

// ChunkEvent carries one streamed model increment.
type ChunkEvent struct {
	Content string `json:"content"`
}

// DoneEvent closes a successful stream with the persisted plan metadata.
type DoneEvent struct {
	PlanID           string `json:"planId"`
	Provider         string `json:"provider"`
	ModelUsed        string `json:"modelUsed"`
	TokensUsed       int    `json:"tokensUsed"`
	GenerationTimeMs int64  `json:"generationTimeMs"`
}

// ErrorEvent terminates a failed stream. Chunks already sent are advisory
// only; the failed run is never persisted.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func registerPlanStream(api huma.API, e engine.Engine) {
	sse.Register(api, huma.Operation{
		OperationID: "generate-plan-stream",
		Method:      http.MethodPost,
		Path:        "/testplans/generate/stream",
		Summary:     "Generate a test plan, streaming increments over SSE",
		Tags:        []string{"testplans"},
	}, map[string]any{
		"chunk": ChunkEvent{},
		"done":  DoneEvent{},
		"error": ErrorEvent{},
	}, func(ctx context.Context, input *generateInput, send sse.Sender) {
		plan, err := e.GeneratePlan(ctx, engine.GeneratePlanRequest{
			TicketKey:  input.Body.TicketKey,
			TemplateID: input.Body.TemplateID,
			Provider:   input.Body.Provider,
			Model:      input.Body.Model,
			OnChunk: func(delta string) {
				send.Data(ChunkEvent{Content: delta})
			},
		})
		if err != nil {
			status := handleError(err)
			var code string
			if ae, ok := status.(*apiError); ok {
				code = ae.Body.Code
			}
			send.Data(ErrorEvent{Code: code, Message: err.Error()})
			return
		}
		send.Data(DoneEvent{
			PlanID:           plan.ID,
			Provider:         plan.Provider,
			ModelUsed:        plan.ModelUsed,
			TokensUsed:       plan.TokensUsed,
			GenerationTimeMs: plan.GenerationTimeMs,
		})
	})
}
