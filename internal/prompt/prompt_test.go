package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planforge/internal/domain"
	"planforge/internal/sections"
)

func TestBuildDefaultsForEmptyFields(t *testing.T) {
	ticket := domain.Ticket{Key: "PROJ-7", Summary: "Login flow"}
	pair := Build(ticket, nil, sections.DefaultTitles)

	assert.Contains(t, pair.User, "No description provided")
	assert.Contains(t, pair.User, "No acceptance criteria provided")
	assert.Contains(t, pair.User, "Standard test plan format")

	// Default titles appear in order.
	last := -1
	for _, title := range sections.DefaultTitles {
		idx := strings.Index(pair.User, title)
		require.GreaterOrEqual(t, idx, 0, "missing title %q", title)
		assert.Greater(t, idx, last)
		last = idx
	}
}

func TestBuildInterpolatesTicketFields(t *testing.T) {
	ticket := domain.Ticket{
		Key:                "ABC-123",
		Summary:            "Checkout totals",
		Priority:           "High",
		Status:             "In Progress",
		Description:        "Totals are wrong for mixed currencies",
		AcceptanceCriteria: "Totals match the invoice",
	}
	tpl := &domain.Template{Content: "1. SCOPE\nscope body"}
	pair := Build(ticket, tpl, []string{"1. SCOPE"})

	assert.Contains(t, pair.User, "**Ticket ID:** ABC-123")
	assert.Contains(t, pair.User, "**Summary:** Checkout totals")
	assert.Contains(t, pair.User, "Totals are wrong for mixed currencies")
	assert.Contains(t, pair.User, "Totals match the invoice")
	assert.Contains(t, pair.User, "1. SCOPE\nscope body")
	assert.NotContains(t, pair.User, "No description provided")
	assert.NotContains(t, pair.User, "Standard test plan format")

	// Ticket key is referenced twice: the header and the overview instructions.
	assert.Equal(t, 2, strings.Count(pair.User, "ABC-123"))
}

func TestBuildTableHeaderLiteral(t *testing.T) {
	pair := Build(domain.Ticket{Key: "X-1"}, nil, sections.DefaultTitles)
	assert.Contains(t, pair.User, "| TC-ID | Test Case Title | Priority |")
}

func TestBuildDeterministic(t *testing.T) {
	ticket := domain.Ticket{Key: "X-1", Summary: "s", Description: "d"}
	a := Build(ticket, nil, sections.DefaultTitles)
	b := Build(ticket, nil, sections.DefaultTitles)
	assert.Equal(t, a, b)
	assert.Equal(t, SystemPrompt, a.System)
}

func TestBuildForTemplateUsesResolvedTitles(t *testing.T) {
	tpl := &domain.Template{
		Sections: []domain.Section{{Title: "Custom Section", Content: "body"}},
		Content:  "raw reference",
	}
	pair := BuildForTemplate(domain.Ticket{Key: "X-2"}, tpl)
	assert.Contains(t, pair.User, "Custom Section")
	assert.Contains(t, pair.User, "raw reference")
}
