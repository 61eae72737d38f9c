package adapters

import (
	"github.com/sec-tools/iac-sentinel/pkg/models/api"
	"github.com/sec-tools/iac-sentinel/pkg/models/domain"
	"github.com/sec-tools/iac-sentinel/pkg/models/store"
)

func MapDomainIssueToAPI(i domain.LocatedIssue) api.ReviewIssue {
	return api.ReviewIssue{
		Type:          string(i.Type),
		Severity:      string(i.Severity),
		Message:       i.Message,
		File:          i.File,
		Line:          i.Line,
		Column:        i.Column,
		Check:         i.Check,
		Fixed:         i.Fixed,
		FixSuggestion: i.FixSuggestion,
	}
}

func MapDomainFixToAPI(f domain.AppliedFix) api.ReviewFix {
	return api.ReviewFix{
		FilePath: f.FilePath,
		Summary:  f.Summary,
	}
}

func MapDomainReviewToAPI(r domain.ReviewRecord) api.ReviewRecord {
	issues := make([]api.ReviewIssue, 0, len(r.Issues))
	for _, i := range r.Issues {
		issues = append(issues, MapDomainIssueToAPI(i))
	}

	fixes := make([]api.ReviewFix, 0, len(r.Fixes))
	for _, f := range r.Fixes {
		fixes = append(fixes, MapDomainFixToAPI(f))
	}

	return api.ReviewRecord{
		ID:           r.ID,
		Status:       string(r.Status),
		IssuesFound:  issues,
		FixesApplied: fixes,
		Error:        r.Error,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func MapStoreSummaryToAPI(s store.ReviewSummary) api.ReviewSummary {
	return api.ReviewSummary{
		ID:         s.ID,
		Status:     s.Status,
		IssueCount: s.IssueCount,
		FixCount:   s.FixCount,
		UpdatedAt:  s.UpdatedAt,
	}
}
