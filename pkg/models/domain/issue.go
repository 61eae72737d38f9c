package domain

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

type IssueType string

const (
	IssueSyntax     IssueType = "syntax"
	IssueLogic      IssueType = "logic"
	IssueVersioning IssueType = "versioning"
	IssueUnknown    IssueType = "unknown"
)

// DiagnosticCode identifies the tool family the parser understands.
const DiagnosticCode = "terraform"

// Diagnostic is a single finding extracted from raw tool output. Raw keeps
// the originating block, marker included, for severity detection.
type Diagnostic struct {
	Message string
	File    string
	Line    int
	Column  int
	Code    string
	Raw     string
}

// IssueContext is the source surrounding an issue plus any variable
// declarations found in the file.
type IssueContext struct {
	SurroundingCode string
	Variables       string
}

// LocatedIssue is a classified diagnostic. Severity and Type are always
// set; Fixed flips once a staged remediation covers the issue.
type LocatedIssue struct {
	Type          IssueType
	Severity      Severity
	Message       string
	File          string
	Line          int
	Column        int
	Check         string
	Context       IssueContext
	Fixed         bool
	FixSuggestion string
}
