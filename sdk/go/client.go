package planforgesdk

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Planforge HTTP API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults. baseURL includes the API prefix,
// e.g. "http://127.0.0.1:3001/api".
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	}
}

// Ticket represents the API ticket model (partial).
type Ticket struct {
	ID                 string `json:"id"`
	Key                string `json:"key"`
	Summary            string `json:"summary"`
	Description        string `json:"description"`
	Status             string `json:"status"`
	Priority           string `json:"priority"`
	AcceptanceCriteria string `json:"acceptance_criteria"`
}

// Section is one extracted template section.
type Section struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Template represents an uploaded test plan template.
type Template struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Filename  string    `json:"filename"`
	Sections  []Section `json:"sections,omitempty"`
	CreatedAt string    `json:"created_at"`
}

// TestPlan represents a persisted generation run.
type TestPlan struct {
	ID               string `json:"id"`
	TicketID         string `json:"ticket_id"`
	TemplateID       string `json:"template_id,omitempty"`
	Content          string `json:"content"`
	Provider         string `json:"provider"`
	ModelUsed        string `json:"model_used"`
	TokensUsed       int    `json:"tokens_used"`
	GenerationTimeMs int64  `json:"generation_time_ms"`
	CreatedAt        string `json:"created_at"`
	TicketKey        string `json:"ticket_key,omitempty"`
	TicketSummary    string `json:"ticket_summary,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// FetchTicket fetches and caches a ticket by key.
func (c *Client) FetchTicket(ctx context.Context, key string) (Ticket, error) {
	var resp Ticket
	err := c.do(ctx, http.MethodGet, "jira/ticket/"+url.PathEscape(key), nil, &resp)
	return resp, err
}

// RecentTickets returns the most recently fetched tickets.
func (c *Client) RecentTickets(ctx context.Context, limit int) ([]Ticket, error) {
	var resp struct {
		Tickets []Ticket `json:"tickets"`
	}
	endpoint := "jira/recent"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Tickets, err
}

// UploadTemplate uploads a PDF template.
func (c *Client) UploadTemplate(ctx context.Context, filename string, pdf []byte) (Template, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	hdr := make(map[string][]string)
	hdr["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="file"; filename=%q`, filename)}
	hdr["Content-Type"] = []string{"application/pdf"}
	part, err := w.CreatePart(hdr)
	if err != nil {
		return Template{}, err
	}
	if _, err := part.Write(pdf); err != nil {
		return Template{}, err
	}
	if err := w.Close(); err != nil {
		return Template{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("templates"), &buf)
	if err != nil {
		return Template{}, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	var resp Template
	err = c.send(req, &resp)
	return resp, err
}

// ListTemplates lists uploaded templates.
func (c *Client) ListTemplates(ctx context.Context) ([]Template, error) {
	var resp struct {
		Templates []Template `json:"templates"`
	}
	err := c.do(ctx, http.MethodGet, "templates", nil, &resp)
	return resp.Templates, err
}

// GetTemplate fetches a template with its extracted sections.
func (c *Client) GetTemplate(ctx context.Context, id string) (Template, error) {
	var resp Template
	err := c.do(ctx, http.MethodGet, "templates/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// GenerateRequest selects what to generate.
type GenerateRequest struct {
	TicketKey  string `json:"ticketKey"`
	TemplateID string `json:"templateId,omitempty"`
	Provider   string `json:"provider,omitempty"`
	Model      string `json:"model,omitempty"`
}

// Generate runs a full generation and returns the persisted plan.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (TestPlan, error) {
	var resp TestPlan
	err := c.do(ctx, http.MethodPost, "testplans/generate", req, &resp)
	return resp, err
}

// GenerateStream runs a generation over SSE, invoking onChunk per increment.
// It returns once the server sends the terminal done or error event.
func (c *Client) GenerateStream(ctx context.Context, req GenerateRequest, onChunk func(string)) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(req); err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("testplans/generate/stream"), &buf)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	resp, err := c.client().Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return readEventStream(resp.Body, onChunk)
}

func readEventStream(r io.Reader, onChunk func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	event := ""
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			switch event {
			case "", "chunk":
				var chunk struct {
					Content string `json:"content"`
				}
				if err := json.Unmarshal([]byte(data), &chunk); err == nil && onChunk != nil {
					onChunk(chunk.Content)
				}
			case "error":
				var apiErr struct {
					Code    string `json:"code"`
					Message string `json:"message"`
				}
				if err := json.Unmarshal([]byte(data), &apiErr); err == nil {
					return fmt.Errorf("generation failed: %s", apiErr.Message)
				}
				return fmt.Errorf("generation failed: %s", data)
			case "done":
				return nil
			}
		case line == "":
			event = ""
		}
	}
	return scanner.Err()
}

// History returns the most recent generated plans.
func (c *Client) History(ctx context.Context, limit int) ([]TestPlan, error) {
	var resp struct {
		Plans []TestPlan `json:"plans"`
	}
	endpoint := "testplans/history"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Plans, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(endpoint), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) client() *http.Client {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	return c.HTTPClient
}

func (c *Client) endpoint(p string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(p, "/")
}
