package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sec-tools/iac-sentinel/pkg/adapters"
	"github.com/sec-tools/iac-sentinel/pkg/models/domain"
)

// fixPlanPrompt asks for a structured fix plan for a single issue. The
// response shape matches wireFixPlan.
func fixPlanPrompt(issue domain.LocatedIssue) string {
	var b strings.Builder
	b.WriteString("Analyze this infrastructure-as-code security issue and provide a fix plan in JSON format.\n\n")
	fmt.Fprintf(&b, "Issue Type: %s\n", issue.Type)
	fmt.Fprintf(&b, "Severity: %s\n", issue.Severity)
	fmt.Fprintf(&b, "Message: %s\n", issue.Message)
	fmt.Fprintf(&b, "File: %s\n", issue.File)
	fmt.Fprintf(&b, "Line: %d\n", issue.Line)
	if issue.Check != "" {
		fmt.Fprintf(&b, "Check: %s\n", issue.Check)
	}
	if issue.Context.SurroundingCode != "" {
		b.WriteString("\nCode Context:\n")
		b.WriteString(issue.Context.SurroundingCode)
		b.WriteString("\n")
	}
	if issue.Context.Variables != "" {
		b.WriteString("\nVariable Declarations:\n")
		b.WriteString(issue.Context.Variables)
		b.WriteString("\n")
	}
	b.WriteString(`
Respond with JSON in this format:
{
    "description": "Brief description of the fix",
    "changes": [{"file": "path", "line": 1, "content": "replacement line content"}],
    "confidence": 0.0,
    "reasoning": "Why this fix is correct",
    "explanation": "What causes the issue",
    "impact": "What happens if it is left unfixed",
    "fix_suggestion": "Corrected configuration snippet",
    "best_practices": ["Relevant best practices"]
}`)
	return b.String()
}

// fileFixPrompt asks for a whole-file rewrite addressing every listed issue.
func fileFixPrompt(path, content string, issues []domain.LocatedIssue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Fix the security issues in this %s file.\n\n", path)
	b.WriteString("Original File Content:\n```\n")
	b.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("```\n\nSecurity Issues:\n")
	b.WriteString(issuesJSON(issues))
	b.WriteString(`

Respond with JSON in this format:
{
    "fixed_content": "The complete fixed file content",
    "changes_summary": "Brief summary of changes made"
}`)
	return b.String()
}

// summaryPrompt asks for a markdown summary of the whole review.
func summaryPrompt(issues []domain.LocatedIssue, fixes []domain.AppliedFix) string {
	var b strings.Builder
	b.WriteString("Generate a concise markdown summary of this automated security review.\n\n")
	b.WriteString("Issues Found:\n")
	b.WriteString(issuesJSON(issues))
	b.WriteString("\n\nFixes Applied:\n")
	b.WriteString(fixesJSON(fixes))
	b.WriteString("\n\nStart with an overall assessment, then list the key findings and the applied fixes.")
	return b.String()
}

func issuesJSON(issues []domain.LocatedIssue) string {
	out := make([]any, 0, len(issues))
	for _, issue := range issues {
		out = append(out, adapters.MapDomainIssueToAPI(issue))
	}
	return marshalIndent(out)
}

func fixesJSON(fixes []domain.AppliedFix) string {
	out := make([]any, 0, len(fixes))
	for _, fix := range fixes {
		out = append(out, adapters.MapDomainFixToAPI(fix))
	}
	return marshalIndent(out)
}

func marshalIndent(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(b)
}
