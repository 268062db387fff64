// Package sections splits raw document text into titled sections and derives
// the section structure of stored templates.
package sections

import (
	"regexp"
	"strings"

	"planforge/internal/domain"
)

// Heading categories recognized when extracting sections from an uploaded
// document. Tried in order, first match wins; later categories can shadow
// earlier ones on ambiguous lines, so the order is load-bearing.
var headingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(?:\d+\.)?\s*(OVERVIEW|INTRODUCTION|SCOPE)`),
	regexp.MustCompile(`(?i)^(?:\d+\.)?\s*(TEST SCENARIOS?|TEST CASES?)`),
	regexp.MustCompile(`(?i)^(?:\d+\.)?\s*(ACCEPTANCE CRITERIA?)`),
	regexp.MustCompile(`(?i)^(?:\d+\.)?\s*(TEST DATA|PREREQUISITES)`),
	regexp.MustCompile(`(?i)^(?:\d+\.)?\s*(ENVIRONMENT|SETUP)`),
	regexp.MustCompile(`(?i)^(?:\d+\.)?\s*(RISKS?|ASSUMPTIONS?)`),
}

// Looser heuristic used when a stored template has no structured sections:
// a numbered prefix or a run of uppercase letters/spaces marks a heading.
var (
	numberedHeading  = regexp.MustCompile(`^\d+\.`)
	uppercaseHeading = regexp.MustCompile(`^[A-Z][A-Z\s]{3,}`)
)

// DefaultTitles is the canonical section structure used when a template
// yields no sections at all.
var DefaultTitles = []string{
	"1. Overview",
	"2. Test Scope",
	"3. Test Scenarios",
	"4. Test Cases",
	"5. Test Data",
	"6. Entry/Exit Criteria",
	"7. Risks & Assumptions",
}

// Extract splits raw text into titled sections. Lines matching one of the
// fixed heading patterns start a new section; everything else accumulates
// under the current title, starting with "General". Pure and deterministic:
// empty input yields nil, input without headings yields a single "General"
// section holding every non-empty line.
func Extract(text string) []domain.Section {
	var sections []domain.Section
	current := accumulator{title: "General"}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if isHeading(trimmed) {
			if len(current.lines) > 0 {
				sections = append(sections, current.section())
			}
			current = accumulator{title: trimmed}
			continue
		}
		if trimmed != "" {
			current.lines = append(current.lines, trimmed)
		}
	}
	if len(current.lines) > 0 {
		sections = append(sections, current.section())
	}
	return sections
}

func isHeading(trimmed string) bool {
	if trimmed == "" {
		return false
	}
	for _, p := range headingPatterns {
		if p.MatchString(trimmed) {
			return true
		}
	}
	return false
}

type accumulator struct {
	title string
	lines []string
}

func (a accumulator) section() domain.Section {
	return domain.Section{
		Title:   a.title,
		Content: strings.TrimSpace(strings.Join(a.lines, "\n")),
	}
}

// Resolve produces the ordered section titles for a template. Structured
// sections win; otherwise titles are derived from the raw text with the
// loose heading heuristic; an empty result falls back to DefaultTitles.
// The returned slice is never empty.
func Resolve(tpl *domain.Template) []string {
	if tpl != nil && len(tpl.Sections) > 0 {
		titles := make([]string, len(tpl.Sections))
		for i, s := range tpl.Sections {
			titles[i] = s.Title
		}
		return titles
	}

	text := ""
	if tpl != nil {
		text = tpl.Content
		if text == "" {
			text = tpl.RawText
		}
	}

	// Bodies are grouped under headings the same way Extract does it, but only
	// the titles matter downstream, so they are dropped here.
	var titles []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if numberedHeading.MatchString(trimmed) || uppercaseHeading.MatchString(trimmed) {
			titles = append(titles, trimmed)
		}
	}
	if len(titles) == 0 {
		return append([]string(nil), DefaultTitles...)
	}
	return titles
}
