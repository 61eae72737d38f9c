package review

import (
	"fmt"
	"strings"

	"github.com/sec-tools/iac-sentinel/pkg/models/domain"
)

const (
	fixPRTitle = "🔒 Security fixes suggested by AI review"
	fixPRBody  = "This PR contains automated security fixes suggested by the AI security review."
)

// annotationBody renders the review comment for one issue and its fix plan.
func annotationBody(issue domain.LocatedIssue, plan *domain.FixPlan) string {
	var b strings.Builder

	b.WriteString("🔒 **Security Issue Detected**\n")
	fmt.Fprintf(&b, "Severity: %s\n", issue.Severity)
	fmt.Fprintf(&b, "Check: %s\n\n", issue.Check)

	b.WriteString(plan.Description)
	b.WriteString("\n\n**Impact:**\n")
	b.WriteString(plan.Impact)
	b.WriteString("\n\n**Suggested Fix:**\n```\n")
	b.WriteString(plan.FixSuggestion)
	b.WriteString("\n```\n\n**Best Practices:**\n")
	for _, practice := range plan.BestPractices {
		fmt.Fprintf(&b, "- %s\n", practice)
	}

	return b.String()
}
