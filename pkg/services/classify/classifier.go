package classify

import (
	"context"
	"strings"

	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/rs/zerolog"

	"github.com/sec-tools/iac-sentinel/pkg/models/domain"
)

// patternGroups are evaluated in order; the first group with a matching
// sub-pattern decides the issue type.
var patternGroups = []struct {
	issueType domain.IssueType
	patterns  []string
}{
	{domain.IssueSyntax, []string{
		"Invalid expression",
		"Invalid block definition",
		"Invalid argument",
	}},
	{domain.IssueLogic, []string{
		"Reference to undeclared resource",
		"Reference to undeclared variable",
		"Invalid reference",
	}},
	{domain.IssueVersioning, []string{
		"Unsupported argument",
		"Invalid version constraint",
		"Provider version constraint",
	}},
}

// TypeOf maps a diagnostic message onto an issue type. Unmatched messages
// are unknown, never empty.
func TypeOf(message string) domain.IssueType {
	for _, group := range patternGroups {
		for _, p := range group.patterns {
			if strings.Contains(message, p) {
				return group.issueType
			}
		}
	}
	return domain.IssueUnknown
}

// SeverityOf derives severity from marker tokens in the diagnostic text.
func SeverityOf(text string) domain.Severity {
	switch {
	case strings.Contains(text, "Error:"):
		return domain.SeverityError
	case strings.Contains(text, "Warning:"):
		return domain.SeverityWarning
	default:
		return domain.SeverityInfo
	}
}

// Classifier turns parsed diagnostics into fully populated issues.
type Classifier struct{}

func New() *Classifier {
	return &Classifier{}
}

// Classify fills type, severity and source context for a diagnostic.
// It never fails: an unreadable or unparsable source file degrades to an
// empty context.
func (c *Classifier) Classify(ctx context.Context, d domain.Diagnostic, source string) domain.LocatedIssue {
	text := d.Raw
	if text == "" {
		text = d.Message
	}

	return domain.LocatedIssue{
		Type:     TypeOf(d.Message),
		Severity: SeverityOf(text),
		Message:  d.Message,
		File:     d.File,
		Line:     d.Line,
		Column:   d.Column,
		Check:    d.Code,
		Context:  c.contextFor(ctx, d.File, d.Line, source),
	}
}

// Enrich completes a pre-structured finding: unset type and severity get
// defaults, and the source context is attached the same way Classify does it.
func (c *Classifier) Enrich(ctx context.Context, issue domain.LocatedIssue, source string) domain.LocatedIssue {
	if issue.Type == "" {
		issue.Type = TypeOf(issue.Message)
	}
	if issue.Severity == "" {
		issue.Severity = domain.SeverityInfo
	}
	issue.Context = c.contextFor(ctx, issue.File, issue.Line, source)
	return issue
}

func (c *Classifier) contextFor(ctx context.Context, file string, line int, source string) domain.IssueContext {
	if source == "" {
		return domain.IssueContext{}
	}

	lines := strings.Split(source, "\n")
	start := line - 3
	if start < 0 {
		start = 0
	}
	end := line + 3
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		start = end
	}

	return domain.IssueContext{
		SurroundingCode: strings.Join(lines[start:end], "\n"),
		Variables:       c.variableBlocks(ctx, file, source),
	}
}

// variableBlocks lifts the source text of every variable declaration out of
// a Terraform file. Non-Terraform files and unparsable sources yield "".
func (c *Classifier) variableBlocks(ctx context.Context, filename, source string) string {
	if !strings.HasSuffix(filename, ".tf") {
		return ""
	}

	f, diags := hclparse.NewParser().ParseHCL([]byte(source), filename)
	if f == nil || diags.HasErrors() {
		zerolog.Ctx(ctx).Debug().
			Str("file", filename).
			Msg("hcl parse failed, continuing without variable context")
		return ""
	}

	body, ok := f.Body.(*hclsyntax.Body)
	if !ok {
		return ""
	}

	src := []byte(source)
	var parts []string
	for _, block := range body.Blocks {
		if block.Type != "variable" {
			continue
		}
		parts = append(parts, strings.TrimSpace(string(block.Range().SliceBytes(src))))
	}
	return strings.Join(parts, "\n\n")
}
