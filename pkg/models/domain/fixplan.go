package domain

// ChangeHunk is a single-line replacement proposed by a fix plan.
// Line is 1-based in the target file; Content is the full replacement line.
type ChangeHunk struct {
	File    string
	Line    int
	Content string
}

// FixPlan is a backend's remediation proposal for one issue.
type FixPlan struct {
	ErrorType     string
	Description   string
	Changes       []ChangeHunk
	Confidence    float64
	Reasoning     string
	FixSuggestion string
	Impact        string
	BestPractices []string
}
