package domain

// Section is a titled, contiguous span of document text. Sections are derived
// from raw text, never mutated in place, and recomputed on each extraction.
type Section struct {
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
}

// Template is a stored reference document used to shape generated output.
// Content holds the text extracted from the uploaded PDF; RawText is an
// alternate body for templates supplied inline by API clients.
type Template struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Filename  string    `json:"filename,omitempty"`
	Content   string    `json:"content,omitempty"`
	RawText   string    `json:"rawText,omitempty"`
	Sections  []Section `json:"sections,omitempty"`
	CreatedAt string    `json:"created_at,omitempty" format:"date-time"`
}

// TemplateSummary is the listing row without the extracted body.
type TemplateSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Ticket is an issue-tracker ticket as consumed by prompt assembly.
type Ticket struct {
	ID                 string `json:"id"`
	Key                string `json:"key"`
	Summary            string `json:"summary"`
	Description        string `json:"description,omitempty"`
	Priority           string `json:"priority"`
	Status             string `json:"status"`
	Assignee           string `json:"assignee,omitempty"`
	Labels             string `json:"labels,omitempty"`
	AcceptanceCriteria string `json:"acceptance_criteria,omitempty"`
	RawData            string `json:"-"`
	FetchedAt          string `json:"fetched_at,omitempty" format:"date-time"`
}

// TicketSummary is a search result row.
type TicketSummary struct {
	Key      string `json:"key"`
	Summary  string `json:"summary"`
	Status   string `json:"status,omitempty"`
	Priority string `json:"priority,omitempty"`
}

// RecentTicket is one recently accessed ticket.
type RecentTicket struct {
	TicketKey  string `json:"ticket_key"`
	AccessedAt string `json:"accessed_at" format:"date-time"`
	Summary    string `json:"summary,omitempty"`
}

// GenerationResult is the outcome of one completion call.
type GenerationResult struct {
	Content          string `json:"content"`
	Provider         string `json:"provider"`
	ModelUsed        string `json:"model_used"`
	TokensUsed       int    `json:"tokens_used"`
	GenerationTimeMs int64  `json:"generation_time_ms"`
}

// TestPlan is a persisted generation run.
type TestPlan struct {
	ID               string `json:"id"`
	TicketID         string `json:"ticket_id"`
	TemplateID       string `json:"template_id,omitempty"`
	Content          string `json:"content"`
	Provider         string `json:"provider"`
	ModelUsed        string `json:"model_used"`
	TokensUsed       int    `json:"tokens_used"`
	GenerationTimeMs int64  `json:"generation_time_ms"`
	CreatedAt        string `json:"created_at" format:"date-time"`
}

// TestPlanHistoryEntry is a history row joined with its ticket.
type TestPlanHistoryEntry struct {
	TestPlan
	TicketKey     string `json:"ticket_key"`
	TicketSummary string `json:"ticket_summary,omitempty"`
}

// JiraSettings are the persisted issue-tracker credentials.
type JiraSettings struct {
	BaseURL  string `json:"baseUrl" yaml:"base_url"`
	Username string `json:"username" yaml:"username"`
	APIToken string `json:"apiToken" yaml:"api_token"`
}

// Configured reports whether all required fields are present.
func (s JiraSettings) Configured() bool {
	return s.BaseURL != "" && s.Username != "" && s.APIToken != ""
}

// GroqSettings configure the cloud backend.
type GroqSettings struct {
	APIKey      string  `json:"apiKey" yaml:"api_key"`
	Model       string  `json:"model" yaml:"model"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
}

// OllamaSettings configure the local backend.
type OllamaSettings struct {
	BaseURL string `json:"baseUrl" yaml:"base_url"`
	Model   string `json:"model" yaml:"model"`
}

// LLMSettings select and configure the completion provider.
type LLMSettings struct {
	Provider string         `json:"provider" yaml:"provider" enum:"groq,ollama"`
	Groq     GroqSettings   `json:"groq" yaml:"groq"`
	Ollama   OllamaSettings `json:"ollama" yaml:"ollama"`
}

// DefaultModel returns the stored model for the given provider.
func (s LLMSettings) DefaultModel(provider string) string {
	switch provider {
	case ProviderGroq:
		if s.Groq.Model != "" {
			return s.Groq.Model
		}
		return DefaultGroqModel
	case ProviderOllama:
		if s.Ollama.Model != "" {
			return s.Ollama.Model
		}
		return DefaultOllamaModel
	}
	return ""
}

// Supported provider identifiers and model defaults.
const (
	ProviderGroq   = "groq"
	ProviderOllama = "ollama"

	DefaultGroqModel     = "llama-3.3-70b-versatile"
	DefaultOllamaModel   = "llama3.2"
	DefaultOllamaBaseURL = "http://localhost:11434"
	DefaultTemperature   = 0.7
)

// Event is one audit log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}
