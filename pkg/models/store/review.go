package store

import "time"

// Review is the archive row. Issues and Fixes hold JSON payloads.
type Review struct {
	ID        int
	Status    string
	Issues    []byte
	Fixes     []byte
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type ReviewSummary struct {
	ID         int
	Status     string
	IssueCount int
	FixCount   int
	UpdatedAt  time.Time
}
