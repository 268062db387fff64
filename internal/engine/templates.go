package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"planforge/internal/domain"
	"planforge/internal/events"
	"planforge/internal/pdftext"
	"planforge/internal/sections"
)

// SaveTemplate parses an uploaded PDF, extracts its text and sections, and
// stores the result. File type and size ceilings are enforced at the HTTP
// boundary before the bytes get here.
func (e Engine) SaveTemplate(ctx context.Context, data []byte, originalName string) (domain.Template, error) {
	if len(data) == 0 {
		return domain.Template{}, &ValidationError{Msg: "no file uploaded"}
	}
	doc, err := pdftext.Extract(data)
	if err != nil {
		return domain.Template{}, err
	}
	tpl := domain.Template{
		ID:        uuid.NewString(),
		Name:      strings.TrimSuffix(originalName, ".pdf"),
		Filename:  originalName,
		Content:   doc.Text,
		Sections:  sections.Extract(doc.Text),
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Template{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTemplate(ctx, tx, tpl); err != nil {
		return domain.Template{}, fmt.Errorf("store template: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "template.uploaded", "template", tpl.ID, events.EventPayload{
		"name":     tpl.Name,
		"pages":    doc.Pages,
		"sections": len(tpl.Sections),
	}); err != nil {
		return domain.Template{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Template{}, err
	}
	e.Log.Info("template saved", "id", tpl.ID, "name", tpl.Name, "sections", len(tpl.Sections))
	return tpl, nil
}

// ListTemplates returns stored template summaries, newest first.
func (e Engine) ListTemplates(ctx context.Context) ([]domain.TemplateSummary, error) {
	return e.Repo.ListTemplates(ctx)
}

// GetTemplate loads one template including its extracted body and sections.
func (e Engine) GetTemplate(ctx context.Context, id string) (domain.Template, error) {
	return e.Repo.GetTemplate(ctx, id)
}
