// Package prompt assembles the system/user prompt pair for test plan
// generation. Pure string construction; no storage or network access.
package prompt

import (
	"fmt"
	"strings"

	"planforge/internal/domain"
	"planforge/internal/sections"
)

// SystemPrompt establishes the generation role and rules. Constant,
// independent of input.
const SystemPrompt = `You are an expert QA Engineer with 10+ years of experience. Your task is to generate a comprehensive, professional test plan that STRICTLY follows the provided template structure.

CRITICAL RULES:
1. Follow the template section structure EXACTLY - use the same section headers
2. Each test case must have: TC-ID, Description, Preconditions, Steps (numbered), Expected Result
3. Map acceptance criteria to SPECIFIC test cases with clear traceability
4. Include BOTH positive and negative test scenarios
5. Add edge cases and boundary value analysis
6. Use professional QA terminology
7. Format output in proper Markdown with clear hierarchy`

const (
	noDescription        = "No description provided"
	noAcceptanceCriteria = "No acceptance criteria provided"
	noTemplateReference  = "Standard test plan format"
)

// Pair is one assembled prompt pair.
type Pair struct {
	System string
	User   string
}

// Build assembles the prompt pair from ticket fields, the template, and the
// resolved section titles. Deterministic: identical inputs yield byte-identical
// output.
func Build(ticket domain.Ticket, tpl *domain.Template, titles []string) Pair {
	description := ticket.Description
	if description == "" {
		description = noDescription
	}
	criteria := ticket.AcceptanceCriteria
	if criteria == "" {
		criteria = noAcceptanceCriteria
	}
	reference := ""
	if tpl != nil {
		reference = tpl.Content
		if reference == "" {
			reference = tpl.RawText
		}
	}
	if reference == "" {
		reference = noTemplateReference
	}

	user := fmt.Sprintf(userPromptTemplate,
		ticket.Key,
		ticket.Summary,
		ticket.Priority,
		ticket.Status,
		description,
		criteria,
		strings.Join(titles, "\n"),
		reference,
		ticket.Key,
	)
	return Pair{System: SystemPrompt, User: user}
}

// BuildForTemplate resolves the template's section titles and assembles the
// pair in one step.
func BuildForTemplate(ticket domain.Ticket, tpl *domain.Template) Pair {
	return Build(ticket, tpl, sections.Resolve(tpl))
}

const userPromptTemplate = `## JIRA TICKET INFORMATION

**Ticket ID:** %s
**Summary:** %s
**Priority:** %s
**Status:** %s

**Description:**
%s

**Acceptance Criteria:**
%s

---

## TEMPLATE STRUCTURE (MUST FOLLOW EXACTLY)

%s

---

## TEMPLATE REFERENCE CONTENT

%s

---

## GENERATION INSTRUCTIONS

Generate a complete test plan with the following structure:

### 1. Overview
- Brief description of the feature being tested
- Reference to JIRA ticket: %s
- Test plan version and date

### 2. Test Scope
#### In Scope
- Features to be tested based on the ticket
- Functionality covered

#### Out of Scope
- Features explicitly not covered

### 3. Test Scenarios (High Level)
List 5-10 test scenarios covering:
- Happy path flows
- Alternative flows
- Error handling
- Edge cases

### 4. Detailed Test Cases
For each scenario, create specific test cases with this EXACT format:

| TC-ID | Test Case Title | Priority |
|-------|----------------|----------|
| TC-001 | [Clear, descriptive title] | High/Medium/Low |

**Preconditions:**
- List setup requirements

**Test Steps:**
1. Step 1 description
2. Step 2 description
3. Step 3 description

**Expected Result:**
- Clear description of expected outcome

**Traceability:** Maps to Acceptance Criteria: [AC reference]

### 5. Test Data Requirements
- Specific data needed for testing
- User accounts, test inputs, etc.

### 6. Entry and Exit Criteria
- When to start testing
- When to stop testing

### 7. Risks and Mitigation
- Potential risks
- Mitigation strategies

---

**REMEMBER:**
- Generate at least 8-12 detailed test cases
- Each test case must be executable
- Include negative test cases (invalid inputs, error conditions)
- Include boundary value test cases
- Map each test case to specific acceptance criteria`
