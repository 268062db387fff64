// Package jira wraps the issue tracker API. Clients are built per request
// from the stored settings; there is no long-lived process-global client.
package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	gojira "github.com/andygrunwald/go-jira"

	"planforge/internal/domain"
)

// KeyPattern is the accepted ticket key shape, validated before dispatch.
var KeyPattern = regexp.MustCompile(`^[A-Z]+-\d+$`)

var acceptanceCriteriaPattern = regexp.MustCompile(`(?is)acceptance criteria:?(.+?)(\n\n|$)`)

// ErrNotConfigured means the stored settings are incomplete.
var ErrNotConfigured = fmt.Errorf("jira client not configured")

// NotFoundError covers a missing ticket or one the credentials cannot see.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("ticket %q not found or you don't have permission to view it", e.Key)
}

// AuthError covers rejected credentials.
type AuthError struct{}

func (e *AuthError) Error() string {
	return "authentication failed; check your JIRA API token"
}

const ticketFields = "summary,description,status,priority,assignee,labels"

// Client is a thin typed wrapper over the upstream SDK.
type Client struct {
	jc *gojira.Client
}

// NewClient builds a client from the stored settings.
func NewClient(s domain.JiraSettings) (*Client, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}
	tp := gojira.BasicAuthTransport{
		Username: strings.TrimSpace(s.Username),
		Password: strings.TrimSpace(s.APIToken),
	}
	jc, err := gojira.NewClient(tp.Client(), normalizeBaseURL(s.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("create jira client: %w", err)
	}
	return &Client{jc: jc}, nil
}

func normalizeBaseURL(raw string) string {
	u := strings.TrimRight(strings.TrimSpace(raw), "/")
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "https://" + u
	}
	return u
}

// FetchTicket loads one ticket with the fields prompt assembly needs.
func (c *Client) FetchTicket(ctx context.Context, key string) (domain.Ticket, error) {
	key = strings.ToUpper(strings.TrimSpace(key))
	issue, res, err := c.jc.Issue.GetWithContext(ctx, key, &gojira.GetQueryOptions{Fields: ticketFields})
	if err != nil {
		return domain.Ticket{}, rewriteError(err, res, key)
	}
	return ticketFromIssue(issue), nil
}

// Search runs a text query, or lists newest tickets when the query is empty.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]domain.TicketSummary, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	jql := "order by created DESC"
	if query != "" {
		jql = fmt.Sprintf("text ~ %q", query)
	}
	issues, res, err := c.jc.Issue.SearchWithContext(ctx, jql, &gojira.SearchOptions{MaxResults: maxResults})
	if err != nil {
		return nil, rewriteError(err, res, "")
	}
	out := make([]domain.TicketSummary, 0, len(issues))
	for _, issue := range issues {
		s := domain.TicketSummary{Key: issue.Key}
		if issue.Fields != nil {
			s.Summary = issue.Fields.Summary
			if issue.Fields.Status != nil {
				s.Status = issue.Fields.Status.Name
			}
			if issue.Fields.Priority != nil {
				s.Priority = issue.Fields.Priority.Name
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// TestConnection verifies the credentials by loading the current user.
func (c *Client) TestConnection(ctx context.Context) (string, error) {
	user, res, err := c.jc.User.GetSelfWithContext(ctx)
	if err != nil {
		return "", rewriteError(err, res, "")
	}
	return user.DisplayName, nil
}

// Project is one accessible project.
type Project struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Projects lists the projects the credentials can see.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	list, res, err := c.jc.Project.GetListWithContext(ctx)
	if err != nil {
		return nil, rewriteError(err, res, "")
	}
	out := make([]Project, 0, len(*list))
	for _, p := range *list {
		out = append(out, Project{ID: p.ID, Key: p.Key, Name: p.Name})
	}
	return out, nil
}

func ticketFromIssue(issue *gojira.Issue) domain.Ticket {
	t := domain.Ticket{
		ID:  issue.ID,
		Key: issue.Key,
	}
	if issue.Fields == nil {
		return t
	}
	t.Summary = issue.Fields.Summary
	t.Description = issue.Fields.Description
	t.Priority = "Unknown"
	if issue.Fields.Priority != nil {
		t.Priority = issue.Fields.Priority.Name
	}
	t.Status = "Unknown"
	if issue.Fields.Status != nil {
		t.Status = issue.Fields.Status.Name
	}
	t.Assignee = "Unassigned"
	if issue.Fields.Assignee != nil {
		t.Assignee = issue.Fields.Assignee.DisplayName
	}
	if labels, err := json.Marshal(issue.Fields.Labels); err == nil {
		t.Labels = string(labels)
	}
	t.AcceptanceCriteria = ExtractAcceptanceCriteria(t.Description)
	if raw, err := json.Marshal(issue); err == nil {
		t.RawData = string(raw)
	}
	return t
}

// ExtractAcceptanceCriteria pulls an "Acceptance Criteria:" block out of a
// ticket description. Empty when no such block exists.
func ExtractAcceptanceCriteria(description string) string {
	m := acceptanceCriteriaPattern.FindStringSubmatch(description)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// rewriteError maps the two actionable upstream failures to clearer messages
// and passes everything else through.
func rewriteError(err error, res *gojira.Response, key string) error {
	if res != nil {
		switch res.StatusCode {
		case http.StatusNotFound:
			return &NotFoundError{Key: key}
		case http.StatusUnauthorized, http.StatusForbidden:
			return &AuthError{}
		}
	}
	return fmt.Errorf("jira request failed: %w", err)
}
