package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"planforge/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// Persisted settings keys.
const (
	KeyJiraBaseURL     = "jira_base_url"
	KeyJiraUsername    = "jira_username"
	KeyJiraAPIToken    = "jira_api_token"
	KeyLLMProvider     = "llm_provider"
	KeyGroqAPIKey      = "groq_api_key"
	KeyGroqModel       = "groq_model"
	KeyGroqTemperature = "groq_temperature"
	KeyOllamaBaseURL   = "ollama_base_url"
	KeyOllamaModel     = "ollama_model"
)

func (r Repo) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.DB.QueryRowContext(ctx, `SELECT value FROM settings WHERE key=?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

func (r Repo) getSettingOr(ctx context.Context, key, fallback string) (string, error) {
	v, err := r.GetSetting(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return fallback, nil
	}
	return v, err
}

func (r Repo) SetSetting(ctx context.Context, key, value string) error {
	return setSetting(ctx, r.DB, nil, key, value)
}

func (r Repo) SetSettingTx(ctx context.Context, tx *sql.Tx, key, value string) error {
	return setSetting(ctx, nil, tx, key, value)
}

func setSetting(ctx context.Context, db *sql.DB, tx *sql.Tx, key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	query := `INSERT INTO settings(key,value,updated_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`
	if tx != nil {
		_, err := tx.ExecContext(ctx, query, key, value, now)
		return err
	}
	_, err := db.ExecContext(ctx, query, key, value, now)
	return err
}

// LoadJiraSettings reads the stored issue-tracker credentials. Missing keys
// come back as empty strings; Configured() decides usability.
func (r Repo) LoadJiraSettings(ctx context.Context) (domain.JiraSettings, error) {
	var s domain.JiraSettings
	var err error
	if s.BaseURL, err = r.getSettingOr(ctx, KeyJiraBaseURL, ""); err != nil {
		return s, err
	}
	if s.Username, err = r.getSettingOr(ctx, KeyJiraUsername, ""); err != nil {
		return s, err
	}
	s.APIToken, err = r.getSettingOr(ctx, KeyJiraAPIToken, "")
	return s, err
}

func (r Repo) SaveJiraSettings(ctx context.Context, tx *sql.Tx, s domain.JiraSettings) error {
	for key, value := range map[string]string{
		KeyJiraBaseURL:  s.BaseURL,
		KeyJiraUsername: s.Username,
		KeyJiraAPIToken: s.APIToken,
	} {
		if err := setSetting(ctx, nil, tx, key, value); err != nil {
			return err
		}
	}
	return nil
}

// LoadLLMSettings reads provider settings, applying the stock defaults for
// anything unset.
func (r Repo) LoadLLMSettings(ctx context.Context) (domain.LLMSettings, error) {
	var s domain.LLMSettings
	var err error
	if s.Provider, err = r.getSettingOr(ctx, KeyLLMProvider, domain.ProviderGroq); err != nil {
		return s, err
	}
	if s.Groq.APIKey, err = r.getSettingOr(ctx, KeyGroqAPIKey, ""); err != nil {
		return s, err
	}
	if s.Groq.Model, err = r.getSettingOr(ctx, KeyGroqModel, domain.DefaultGroqModel); err != nil {
		return s, err
	}
	temp, err := r.getSettingOr(ctx, KeyGroqTemperature, "")
	if err != nil {
		return s, err
	}
	s.Groq.Temperature = domain.DefaultTemperature
	if temp != "" {
		if parsed, perr := strconv.ParseFloat(temp, 64); perr == nil {
			s.Groq.Temperature = parsed
		}
	}
	if s.Ollama.BaseURL, err = r.getSettingOr(ctx, KeyOllamaBaseURL, domain.DefaultOllamaBaseURL); err != nil {
		return s, err
	}
	s.Ollama.Model, err = r.getSettingOr(ctx, KeyOllamaModel, domain.DefaultOllamaModel)
	return s, err
}

func (r Repo) SaveLLMSettings(ctx context.Context, tx *sql.Tx, s domain.LLMSettings) error {
	values := map[string]string{
		KeyLLMProvider: s.Provider,
	}
	if s.Groq != (domain.GroqSettings{}) {
		values[KeyGroqAPIKey] = s.Groq.APIKey
		values[KeyGroqModel] = s.Groq.Model
		values[KeyGroqTemperature] = strconv.FormatFloat(s.Groq.Temperature, 'f', -1, 64)
	}
	if s.Ollama != (domain.OllamaSettings{}) {
		values[KeyOllamaBaseURL] = s.Ollama.BaseURL
		values[KeyOllamaModel] = s.Ollama.Model
	}
	for key, value := range values {
		if err := setSetting(ctx, nil, tx, key, value); err != nil {
			return err
		}
	}
	return nil
}

// AllSettings returns every stored key/value pair, secrets included.
// Callers exporting to untrusted surfaces must mask.
func (r Repo) AllSettings(ctx context.Context) (map[string]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT key,value FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (r Repo) UpsertTicket(ctx context.Context, tx *sql.Tx, t domain.Ticket) error {
	_, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO tickets
(id,key,summary,description,priority,status,assignee,labels,acceptance_criteria,raw_data,fetched_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Key, t.Summary, nullable(t.Description), t.Priority, t.Status,
		nullable(t.Assignee), nullable(t.Labels), nullable(t.AcceptanceCriteria), nullable(t.RawData), t.FetchedAt)
	return err
}

func (r Repo) TouchRecentTicket(ctx context.Context, tx *sql.Tx, key, ticketID, accessedAt string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO recent_tickets(ticket_key,ticket_id,accessed_at) VALUES (?,?,?)`,
		key, ticketID, accessedAt)
	return err
}

func (r Repo) GetTicketByKey(ctx context.Context, key string) (domain.Ticket, error) {
	var t domain.Ticket
	var desc, assignee, labels, ac, raw sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,key,summary,description,priority,status,assignee,labels,acceptance_criteria,raw_data,fetched_at
FROM tickets WHERE key=?`, key).
		Scan(&t.ID, &t.Key, &t.Summary, &desc, &t.Priority, &t.Status, &assignee, &labels, &ac, &raw, &t.FetchedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Description = desc.String
	t.Assignee = assignee.String
	t.Labels = labels.String
	t.AcceptanceCriteria = ac.String
	t.RawData = raw.String
	return t, nil
}

func (r Repo) ListRecentTickets(ctx context.Context, limit int) ([]domain.RecentTicket, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT rt.ticket_key, rt.accessed_at, COALESCE(t.summary,'')
FROM recent_tickets rt
LEFT JOIN tickets t ON rt.ticket_id = t.id
ORDER BY rt.accessed_at DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.RecentTicket
	for rows.Next() {
		var rt domain.RecentTicket
		if err := rows.Scan(&rt.TicketKey, &rt.AccessedAt, &rt.Summary); err != nil {
			return nil, err
		}
		res = append(res, rt)
	}
	return res, rows.Err()
}

func (r Repo) InsertTemplate(ctx context.Context, tx *sql.Tx, t domain.Template) error {
	sections, err := json.Marshal(t.Sections)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO templates(id,name,filename,content,sections,created_at) VALUES (?,?,?,?,?,?)`,
		t.ID, t.Name, t.Filename, nullable(t.Content), string(sections), t.CreatedAt)
	return err
}

func (r Repo) ListTemplates(ctx context.Context) ([]domain.TemplateSummary, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,filename,created_at FROM templates ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TemplateSummary
	for rows.Next() {
		var t domain.TemplateSummary
		if err := rows.Scan(&t.ID, &t.Name, &t.Filename, &t.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) GetTemplate(ctx context.Context, id string) (domain.Template, error) {
	var t domain.Template
	var content, sections sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,filename,content,sections,created_at FROM templates WHERE id=?`, id).
		Scan(&t.ID, &t.Name, &t.Filename, &content, &sections, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Content = content.String
	if sections.Valid && sections.String != "" {
		// Tolerate rows written before sections were structured.
		if uerr := json.Unmarshal([]byte(sections.String), &t.Sections); uerr != nil {
			t.Sections = nil
		}
	}
	return t, nil
}

func (r Repo) InsertTestPlan(ctx context.Context, tx *sql.Tx, p domain.TestPlan) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO test_plans(id,ticket_id,template_id,content,provider,model_used,tokens_used,generation_time_ms,created_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		p.ID, p.TicketID, nullable(p.TemplateID), p.Content, p.Provider, p.ModelUsed, p.TokensUsed, p.GenerationTimeMs, p.CreatedAt)
	return err
}

func (r Repo) ListTestPlanHistory(ctx context.Context, limit int) ([]domain.TestPlanHistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT p.id,p.ticket_id,COALESCE(p.template_id,''),p.content,p.provider,p.model_used,p.tokens_used,p.generation_time_ms,p.created_at,t.key,COALESCE(t.summary,'')
FROM test_plans p
JOIN tickets t ON p.ticket_id = t.id
ORDER BY p.created_at DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TestPlanHistoryEntry
	for rows.Next() {
		var e domain.TestPlanHistoryEntry
		if err := rows.Scan(&e.ID, &e.TicketID, &e.TemplateID, &e.Content, &e.Provider, &e.ModelUsed,
			&e.TokensUsed, &e.GenerationTimeMs, &e.CreatedAt, &e.TicketKey, &e.TicketSummary); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// ListEventsAfter returns up to limit events with id greater than afterID, oldest first.
func (r Repo) ListEventsAfter(ctx context.Context, afterID int64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),payload_json
FROM events WHERE id > ? ORDER BY id ASC LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var ev domain.Event
		if err := rows.Scan(&ev.ID, &ev.TS, &ev.Type, &ev.EntityKind, &ev.EntityID, &ev.Payload); err != nil {
			return nil, err
		}
		res = append(res, ev)
	}
	return res, rows.Err()
}

// LatestEvents returns the newest n events, newest first.
func (r Repo) LatestEvents(ctx context.Context, n int) ([]domain.Event, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),payload_json
FROM events ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var ev domain.Event
		if err := rows.Scan(&ev.ID, &ev.TS, &ev.Type, &ev.EntityKind, &ev.EntityID, &ev.Payload); err != nil {
			return nil, err
		}
		res = append(res, ev)
	}
	return res, rows.Err()
}

// LatestEventID returns the highest event id, or 0 when the log is empty.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id)
	return id, err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
