package domain

import "time"

type ReviewStatus string

const (
	ReviewStatusPending   ReviewStatus = "pending"
	ReviewStatusAnalyzing ReviewStatus = "analyzing"
	ReviewStatusFixing    ReviewStatus = "fixing"
	ReviewStatusCompleted ReviewStatus = "completed"
	ReviewStatusError     ReviewStatus = "error"
)

// CommitState mirrors the states the VCS accepts for a commit status.
type CommitState string

const (
	CommitStatePending CommitState = "pending"
	CommitStateSuccess CommitState = "success"
	CommitStateFailure CommitState = "failure"
	CommitStateError   CommitState = "error"
)

// ChangeRequest identifies the pull request under review.
type ChangeRequest struct {
	Owner   string
	Repo    string
	Number  int
	HeadSHA string
	HeadRef string
	BaseRef string
}

// AppliedFix records one whole-file remediation staged during a run.
type AppliedFix struct {
	FilePath string
	Summary  string
}

// ReviewRecord is the mutable state of one review run. Issues and Fixes
// are append-only while the run is in flight.
type ReviewRecord struct {
	ID        int
	Status    ReviewStatus
	Issues    []LocatedIssue
	Fixes     []AppliedFix
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a snapshot safe to hand out while the run keeps appending.
func (r ReviewRecord) Clone() ReviewRecord {
	out := r
	out.Issues = append([]LocatedIssue(nil), r.Issues...)
	out.Fixes = append([]AppliedFix(nil), r.Fixes...)
	return out
}
