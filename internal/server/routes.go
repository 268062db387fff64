package server

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"planforge/internal/config"
	"planforge/internal/domain"
	"planforge/internal/engine"
	"planforge/internal/jira"
)

type ticketOutput struct {
	Body domain.Ticket
}

type ticketSearchOutput struct {
	Body struct {
		Tickets []domain.TicketSummary `json:"tickets"`
	}
}

type recentTicketsOutput struct {
	Body struct {
		Tickets []domain.RecentTicket `json:"tickets"`
	}
}

type projectsOutput struct {
	Body struct {
		Projects []jira.Project `json:"projects"`
	}
}

func registerTickets(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "fetch-ticket",
		Method:      http.MethodGet,
		Path:        "/jira/ticket/{key}",
		Summary:     "Fetch a JIRA ticket and cache it locally",
		Tags:        []string{"jira"},
	}, func(ctx context.Context, input *struct {
		Key string `path:"key" example:"PROJ-123"`
	}) (*ticketOutput, error) {
		t, err := e.FetchTicket(ctx, input.Key)
		if err != nil {
			return nil, handleError(err)
		}
		return &ticketOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "search-tickets",
		Method:      http.MethodGet,
		Path:        "/jira/search",
		Summary:     "Search JIRA tickets by free text",
		Tags:        []string{"jira"},
	}, func(ctx context.Context, input *struct {
		Query      string `query:"q"`
		MaxResults int    `query:"maxResults" default:"10" minimum:"1" maximum:"50"`
	}) (*ticketSearchOutput, error) {
		tickets, err := e.SearchTickets(ctx, input.Query, input.MaxResults)
		if err != nil {
			return nil, handleError(err)
		}
		out := &ticketSearchOutput{}
		out.Body.Tickets = tickets
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "recent-tickets",
		Method:      http.MethodGet,
		Path:        "/jira/recent",
		Summary:     "Recently fetched tickets",
		Tags:        []string{"jira"},
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"5" minimum:"1" maximum:"50"`
	}) (*recentTicketsOutput, error) {
		tickets, err := e.RecentTickets(ctx, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		out := &recentTicketsOutput{}
		out.Body.Tickets = tickets
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/jira/projects",
		Summary:     "List projects visible to the configured JIRA user",
		Tags:        []string{"jira"},
	}, func(ctx context.Context, _ *struct{}) (*projectsOutput, error) {
		projects, err := e.TrackerProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := &projectsOutput{}
		out.Body.Projects = projects
		return out, nil
	})
}

type jiraSettingsOutput struct {
	Body domain.JiraSettings
}

type savedOutput struct {
	Body struct {
		Saved bool `json:"saved"`
	}
}

type connectionTestOutput struct {
	Body struct {
		OK   bool   `json:"ok"`
		User string `json:"user,omitempty"`
	}
}

type llmSettingsOutput struct {
	Body domain.LLMSettings
}

type modelsOutput struct {
	Body struct {
		Models []string `json:"models"`
	}
}

func registerSettings(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-jira-settings",
		Method:      http.MethodGet,
		Path:        "/settings/jira",
		Summary:     "JIRA connection settings with masked secrets",
		Tags:        []string{"settings"},
	}, func(ctx context.Context, _ *struct{}) (*jiraSettingsOutput, error) {
		s, err := e.JiraSettings(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &jiraSettingsOutput{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "save-jira-settings",
		Method:      http.MethodPost,
		Path:        "/settings/jira",
		Summary:     "Save JIRA connection settings",
		Tags:        []string{"settings"},
	}, func(ctx context.Context, input *struct {
		Body domain.JiraSettings
	}) (*savedOutput, error) {
		if err := e.SaveJiraSettings(ctx, input.Body); err != nil {
			return nil, handleError(err)
		}
		out := &savedOutput{}
		out.Body.Saved = true
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "test-jira-connection",
		Method:      http.MethodPost,
		Path:        "/settings/jira/test",
		Summary:     "Verify the stored JIRA credentials",
		Tags:        []string{"settings"},
	}, func(ctx context.Context, _ *struct{}) (*connectionTestOutput, error) {
		user, err := e.TestJira(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := &connectionTestOutput{}
		out.Body.OK = true
		out.Body.User = user
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-llm-settings",
		Method:      http.MethodGet,
		Path:        "/settings/llm",
		Summary:     "LLM provider settings with masked secrets",
		Tags:        []string{"settings"},
	}, func(ctx context.Context, _ *struct{}) (*llmSettingsOutput, error) {
		s, err := e.LLMSettings(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &llmSettingsOutput{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "save-llm-settings",
		Method:      http.MethodPost,
		Path:        "/settings/llm",
		Summary:     "Save LLM provider settings",
		Tags:        []string{"settings"},
	}, func(ctx context.Context, input *struct {
		Body domain.LLMSettings
	}) (*savedOutput, error) {
		if err := e.SaveLLMSettings(ctx, input.Body); err != nil {
			return nil, handleError(err)
		}
		out := &savedOutput{}
		out.Body.Saved = true
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-models",
		Method:      http.MethodGet,
		Path:        "/settings/llm/models",
		Summary:     "List models available from the active provider",
		Tags:        []string{"settings"},
	}, func(ctx context.Context, _ *struct{}) (*modelsOutput, error) {
		models, err := e.ProviderModels(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := &modelsOutput{}
		out.Body.Models = models
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "test-groq",
		Method:      http.MethodPost,
		Path:        "/settings/llm/test/groq",
		Summary:     "Verify a Groq API key by listing models",
		Tags:        []string{"settings"},
	}, func(ctx context.Context, input *struct {
		Body struct {
			APIKey string `json:"apiKey"`
		}
	}) (*modelsOutput, error) {
		models, err := e.TestGroq(ctx, input.Body.APIKey)
		if err != nil {
			return nil, handleError(err)
		}
		out := &modelsOutput{}
		out.Body.Models = models
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "test-ollama",
		Method:      http.MethodPost,
		Path:        "/settings/llm/test/ollama",
		Summary:     "Verify an Ollama server by listing models",
		Tags:        []string{"settings"},
	}, func(ctx context.Context, input *struct {
		Body struct {
			BaseURL string `json:"baseUrl"`
		}
	}) (*modelsOutput, error) {
		models, err := e.TestOllama(ctx, input.Body.BaseURL)
		if err != nil {
			return nil, handleError(err)
		}
		out := &modelsOutput{}
		out.Body.Models = models
		return out, nil
	})
}

type templateUploadInput struct {
	RawBody huma.MultipartFormFiles[struct {
		File huma.FormFile `form:"file" contentType:"application/pdf" required:"true"`
	}]
}

type templateOutput struct {
	Body domain.Template
}

type templateListOutput struct {
	Body struct {
		Templates []domain.TemplateSummary `json:"templates"`
	}
}

func registerTemplates(api huma.API, e engine.Engine) {
	maxUpload := config.MaxUploadBytes()

	huma.Register(api, huma.Operation{
		OperationID: "upload-template",
		Method:      http.MethodPost,
		Path:        "/templates",
		Summary:     "Upload a PDF test plan template",
		Tags:        []string{"templates"},
		MaxBodyBytes: maxUpload + 64*1024, // multipart framing overhead
	}, func(ctx context.Context, input *templateUploadInput) (*templateOutput, error) {
		form := input.RawBody.Data()
		if !form.File.IsSet {
			return nil, handleError(&engine.ValidationError{Msg: "file is required"})
		}
		if !strings.EqualFold(form.File.ContentType, "application/pdf") {
			return nil, handleError(&engine.ValidationError{Msg: "only PDF templates are supported"})
		}
		if form.File.Size > maxUpload {
			return nil, handleError(&engine.ValidationError{Msg: "template exceeds the 5MB upload limit"})
		}
		data, err := readAll(form.File.File, maxUpload)
		if err != nil {
			return nil, handleError(err)
		}
		tpl, err := e.SaveTemplate(ctx, data, form.File.Filename)
		if err != nil {
			return nil, handleError(err)
		}
		return &templateOutput{Body: tpl}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-templates",
		Method:      http.MethodGet,
		Path:        "/templates",
		Summary:     "List uploaded templates",
		Tags:        []string{"templates"},
	}, func(ctx context.Context, _ *struct{}) (*templateListOutput, error) {
		templates, err := e.ListTemplates(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := &templateListOutput{}
		out.Body.Templates = templates
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-template",
		Method:      http.MethodGet,
		Path:        "/templates/{id}",
		Summary:     "Fetch a template with its extracted sections",
		Tags:        []string{"templates"},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*templateOutput, error) {
		tpl, err := e.GetTemplate(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &templateOutput{Body: tpl}, nil
	})
}

func readAll(f multipart.File, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, &engine.ValidationError{Msg: "template exceeds the 5MB upload limit"}
	}
	return data, nil
}

type generateInput struct {
	Body struct {
		TicketKey  string `json:"ticketKey" example:"PROJ-123"`
		TemplateID string `json:"templateId,omitempty"`
		Provider   string `json:"provider,omitempty" example:"groq"`
		Model      string `json:"model,omitempty"`
	}
}

type testPlanOutput struct {
	Body domain.TestPlan
}

type historyOutput struct {
	Body struct {
		Plans []domain.TestPlanHistoryEntry `json:"plans"`
	}
}

func registerPlans(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "generate-plan",
		Method:      http.MethodPost,
		Path:        "/testplans/generate",
		Summary:     "Generate a test plan for a ticket",
		Tags:        []string{"testplans"},
	}, func(ctx context.Context, input *generateInput) (*testPlanOutput, error) {
		plan, err := e.GeneratePlan(ctx, engine.GeneratePlanRequest{
			TicketKey:  input.Body.TicketKey,
			TemplateID: input.Body.TemplateID,
			Provider:   input.Body.Provider,
			Model:      input.Body.Model,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &testPlanOutput{Body: plan}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "plan-history",
		Method:      http.MethodGet,
		Path:        "/testplans/history",
		Summary:     "Recently generated test plans",
		Tags:        []string{"testplans"},
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"20" minimum:"1" maximum:"100"`
	}) (*historyOutput, error) {
		plans, err := e.History(ctx, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		out := &historyOutput{}
		out.Body.Plans = plans
		return out, nil
	})
}
