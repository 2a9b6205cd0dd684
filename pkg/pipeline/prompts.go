package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/triadworks/triad/pkg/models"
)

// Prompt wording is configuration, not logic: the executor substitutes
// the issue and prior stage outputs into these templates verbatim.

const pmSystemPrompt = `You are a senior product manager. Given a software issue, produce a
requirements analysis. Respond with a single JSON object and nothing
else, using exactly these keys:
{"summary": string, "acceptance_criteria": [string], "plan": [string], "assumptions": [string]}
acceptance_criteria and plan must each contain at least one entry.`

const devSystemPrompt = `You are a senior software developer. Given an issue and a product
manager's analysis, draft the implementation. Respond with a single
JSON object and nothing else, using exactly these keys:
{"files": [{"path": string, "content": string, "language": string}], "notes": [string]}`

const qaSystemPrompt = `You are a quality assurance engineer. Given an issue, a requirements
analysis, and a developer's draft, review the work. Respond with a
single JSON object and nothing else, using exactly these keys:
{"verdict": "pass" | "fail" | "needs-human", "findings": [string], "suggested_changes": [string]}`

// SystemPrompt returns the stage's system message. The second return
// is false for unknown stage names.
func SystemPrompt(stage string) (string, bool) {
	switch stage {
	case models.StagePM:
		return pmSystemPrompt, true
	case models.StageDev:
		return devSystemPrompt, true
	case models.StageQA:
		return qaSystemPrompt, true
	}
	return "", false
}

// PromptNames lists the available prompt templates, in stage order.
func PromptNames() []string {
	return append([]string(nil), models.Stages...)
}

func issueSection(issue *models.Issue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Issue %s: %s\n", issue.IssueID, issue.Title)
	fmt.Fprintf(&b, "Repository: %s\n", issue.Repo)
	if len(issue.Labels) > 0 {
		fmt.Fprintf(&b, "Labels: %s\n", strings.Join(issue.Labels, ", "))
	}
	if issue.Body != "" {
		fmt.Fprintf(&b, "\n%s\n", issue.Body)
	}
	return b.String()
}

func jsonSection(title string, v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%s: (unavailable)\n", title)
	}
	return fmt.Sprintf("%s:\n%s\n", title, data)
}

func pmUserPrompt(s *RunState) string {
	return "Analyze the following issue.\n\n" + issueSection(s.Issue)
}

func devUserPrompt(s *RunState) string {
	return "Implement the following issue according to the analysis.\n\n" +
		issueSection(s.Issue) + "\n" +
		jsonSection("Product manager analysis", s.PM)
}

func qaUserPrompt(s *RunState) string {
	return "Review the following implementation.\n\n" +
		issueSection(s.Issue) + "\n" +
		jsonSection("Product manager analysis", s.PM) + "\n" +
		jsonSection("Developer draft", s.Dev)
}
