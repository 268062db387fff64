package sections

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planforge/internal/domain"
)

func TestExtractEmptyInput(t *testing.T) {
	assert.Nil(t, Extract(""))
	assert.Nil(t, Extract("\n\n  \n"))
}

func TestExtractNoHeadings(t *testing.T) {
	got := Extract("first line\n\nsecond line\n")
	require.Len(t, got, 1)
	assert.Equal(t, "General", got[0].Title)
	assert.Equal(t, "first line\nsecond line", got[0].Content)
}

func TestExtractSplitsOnHeadings(t *testing.T) {
	text := "intro text\n1. OVERVIEW\nthe overview body\nmore body\nTEST SCENARIOS\nscenario body\n"
	got := Extract(text)
	require.Len(t, got, 3)
	assert.Equal(t, "General", got[0].Title)
	assert.Equal(t, "intro text", got[0].Content)
	assert.Equal(t, "1. OVERVIEW", got[1].Title)
	assert.Equal(t, "the overview body\nmore body", got[1].Content)
	assert.Equal(t, "TEST SCENARIOS", got[2].Title)
	assert.Equal(t, "scenario body", got[2].Content)
}

func TestExtractHeadingCaseInsensitive(t *testing.T) {
	got := Extract("acceptance criteria\nAC body")
	require.Len(t, got, 1)
	assert.Equal(t, "acceptance criteria", got[0].Title)
}

func TestExtractHeadingWithoutBodyDropped(t *testing.T) {
	// A heading followed immediately by another heading produces no section
	// for the first one; only sections with content survive.
	got := Extract("OVERVIEW\nRISKS\nrisk body")
	require.Len(t, got, 1)
	assert.Equal(t, "RISKS", got[0].Title)
	assert.Equal(t, "risk body", got[0].Content)
}

func TestResolvePrefersStructuredSections(t *testing.T) {
	tpl := &domain.Template{
		Sections: []domain.Section{
			{Title: "Intro", Content: "a"},
			{Title: "Cases", Content: "b"},
		},
		Content: "1. SOMETHING ELSE\nbody",
	}
	assert.Equal(t, []string{"Intro", "Cases"}, Resolve(tpl))
}

func TestResolveLooseHeuristic(t *testing.T) {
	tpl := &domain.Template{Content: "1. OVERVIEW\nSome text\n2. RISKS\nRisk text"}
	assert.Equal(t, []string{"1. OVERVIEW", "2. RISKS"}, Resolve(tpl))
}

func TestResolveFallsBackToRawText(t *testing.T) {
	tpl := &domain.Template{RawText: "3. SETUP\nsteps here"}
	assert.Equal(t, []string{"3. SETUP"}, Resolve(tpl))
}

func TestResolveDefaultTitles(t *testing.T) {
	assert.Equal(t, DefaultTitles, Resolve(nil))
	assert.Equal(t, DefaultTitles, Resolve(&domain.Template{Content: "just prose, nothing structured"}))

	// Returned slice is a copy; mutating it must not corrupt the defaults.
	got := Resolve(nil)
	got[0] = "mutated"
	assert.Equal(t, "1. Overview", DefaultTitles[0])
}

func TestResolveUppercaseRunHeuristic(t *testing.T) {
	tpl := &domain.Template{Content: "TEST ENVIRONMENT\ndetails\nshort\nAB"}
	assert.Equal(t, []string{"TEST ENVIRONMENT"}, Resolve(tpl))
}
