package api

import "time"

type ReviewIssue struct {
	Type          string `json:"type"`
	Severity      string `json:"severity"`
	Message       string `json:"message"`
	File          string `json:"file"`
	Line          int    `json:"line"`
	Column        int    `json:"column"`
	Check         string `json:"check,omitempty"`
	Fixed         bool   `json:"fixed"`
	FixSuggestion string `json:"fix_suggestion,omitempty"`
}

type ReviewFix struct {
	FilePath string `json:"file_path"`
	Summary  string `json:"summary"`
}

type ReviewRecord struct {
	ID           int           `json:"id"`
	Status       string        `json:"status"`
	IssuesFound  []ReviewIssue `json:"issues_found"`
	FixesApplied []ReviewFix   `json:"fixes_applied"`
	Error        string        `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

type ReviewSummary struct {
	ID         int       `json:"id"`
	Status     string    `json:"status"`
	IssueCount int       `json:"issue_count"`
	FixCount   int       `json:"fix_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type StatusNotFound struct {
	Status string `json:"status"`
}

type WebhookAck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type Health struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}
