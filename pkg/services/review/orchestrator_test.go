package review

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sec-tools/iac-sentinel/pkg/models/domain"
	"github.com/sec-tools/iac-sentinel/pkg/models/store"
	"github.com/sec-tools/iac-sentinel/pkg/services/analyzer"
)

type mockVCS struct {
	mock.Mock
}

func (m *mockVCS) ChangedFiles(ctx context.Context, req domain.ChangeRequest) (map[string]string, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

func (m *mockVCS) CreateStatus(
	ctx context.Context,
	req domain.ChangeRequest,
	state domain.CommitState,
	description string,
) error {
	args := m.Called(ctx, req, state, description)
	return args.Error(0)
}

func (m *mockVCS) CreateReviewComment(
	ctx context.Context,
	req domain.ChangeRequest,
	body, path string,
	line int,
) error {
	args := m.Called(ctx, req, body, path, line)
	return args.Error(0)
}

func (m *mockVCS) SubmitFixes(
	ctx context.Context,
	req domain.ChangeRequest,
	changes map[string]string,
	title, body string,
) error {
	args := m.Called(ctx, req, changes, title, body)
	return args.Error(0)
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) GetFixPlan(ctx context.Context, issue domain.LocatedIssue) *domain.FixPlan {
	args := m.Called(ctx, issue)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*domain.FixPlan)
}

func (m *mockProvider) GetFileFix(
	ctx context.Context,
	path, content string,
	issues []domain.LocatedIssue,
) (*string, string) {
	args := m.Called(ctx, path, content, issues)
	if args.Get(0) == nil {
		return nil, args.String(1)
	}
	return args.Get(0).(*string), args.String(1)
}

func (m *mockProvider) Summarize(
	ctx context.Context,
	issues []domain.LocatedIssue,
	fixes []domain.AppliedFix,
) (string, error) {
	args := m.Called(ctx, issues, fixes)
	return args.String(0), args.Error(1)
}

type mockAnalyzer struct {
	mock.Mock
}

func (m *mockAnalyzer) Name() string { return "mock" }

func (m *mockAnalyzer) Analyze(ctx context.Context, in analyzer.Input) (analyzer.Report, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(analyzer.Report), args.Error(1)
}

type mockArchive struct {
	mock.Mock
}

func (m *mockArchive) Upsert(ctx context.Context, rec domain.ReviewRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *mockArchive) Get(ctx context.Context, id int) (domain.ReviewRecord, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.ReviewRecord), args.Error(1)
}

func (m *mockArchive) List(ctx context.Context) ([]store.ReviewSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.ReviewSummary), args.Error(1)
}

func testContext(t *testing.T) context.Context {
	logger := zerolog.New(zerolog.NewTestWriter(t))
	return logger.WithContext(context.Background())
}

// recordStatuses captures every persisted record status in call order.
func recordStatuses(archive *mockArchive, statuses *[]domain.ReviewStatus) {
	archive.On("Upsert", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			*statuses = append(*statuses, args.Get(1).(domain.ReviewRecord).Status)
		}).
		Return(nil)
}

func inputFor(path string) func(analyzer.Input) bool {
	return func(in analyzer.Input) bool {
		_, ok := in.Files[path]
		return ok && in.Dir != ""
	}
}

func isAnnotation(body string) bool {
	return strings.Contains(body, "Security Issue Detected")
}

func TestService_Review_ReportsFailureWhenErrorsFound(t *testing.T) {
	// Given a change request whose only file fails validation
	vcs := new(mockVCS)
	prov := new(mockProvider)
	analyze := new(mockAnalyzer)
	archive := new(mockArchive)

	req := domain.ChangeRequest{Owner: "octo", Repo: "infra", Number: 7, HeadSHA: "abc1234", HeadRef: "feature"}
	content := "resource \"aws_s3_bucket\" \"logs\" {\n  bucket = var.name\n}\n"
	raw := "Error: Invalid block definition\n\n  on main.tf line 1, in resource \"aws_s3_bucket\" \"logs\":"

	vcs.On("CreateStatus", mock.Anything, req, domain.CommitStatePending, "Security review in progress").
		Return(nil)
	vcs.On("ChangedFiles", mock.Anything, req).
		Return(map[string]string{"main.tf": content}, nil)
	analyze.On("Analyze", mock.Anything, mock.MatchedBy(inputFor("main.tf"))).
		Return(analyzer.Report{Raw: raw}, nil)

	plan := &domain.FixPlan{
		ErrorType:     "syntax",
		Description:   "Close the resource block",
		FixSuggestion: "resource \"aws_s3_bucket\" \"logs\" {}",
		Impact:        "Unknown",
		Confidence:    0.9,
	}
	prov.On("GetFixPlan", mock.Anything, mock.MatchedBy(func(issue domain.LocatedIssue) bool {
		return issue.File == "main.tf" && issue.Line == 1 && issue.Severity == domain.SeverityError
	})).Return(plan)
	vcs.On("CreateReviewComment", mock.Anything, req, mock.MatchedBy(isAnnotation), "main.tf", 1).
		Return(nil)

	prov.On("Summarize", mock.Anything, mock.Anything, mock.Anything).
		Return("## Security Review Summary", nil)
	vcs.On("CreateReviewComment", mock.Anything, req, "## Security Review Summary", "", 0).
		Return(nil)
	vcs.On("CreateStatus", mock.Anything, req, domain.CommitStateFailure, "Security review found 1 issue(s)").
		Return(nil)

	var persisted []domain.ReviewStatus
	recordStatuses(archive, &persisted)

	svc := NewService(vcs, prov, analyze, archive, Settings{MaxParallelFiles: 1})

	// When the review runs
	err := svc.Review(testContext(t), req)

	// Then it completes, the issue carries the plan's suggestion and the
	// failure status reports the count
	require.NoError(t, err)

	rec := svc.Status(7)
	assert.Equal(t, domain.ReviewStatusCompleted, rec.Status)
	require.Len(t, rec.Issues, 1)
	assert.Equal(t, domain.IssueSyntax, rec.Issues[0].Type)
	assert.Equal(t, domain.SeverityError, rec.Issues[0].Severity)
	assert.Equal(t, "Invalid block definition", rec.Issues[0].Message)
	assert.Equal(t, domain.DiagnosticCode, rec.Issues[0].Check)
	assert.Equal(t, plan.FixSuggestion, rec.Issues[0].FixSuggestion)
	assert.Empty(t, rec.Fixes)

	expected := []domain.ReviewStatus{
		domain.ReviewStatusPending,
		domain.ReviewStatusAnalyzing,
		domain.ReviewStatusAnalyzing,
		domain.ReviewStatusCompleted,
	}
	assert.Equal(t, expected, persisted)

	vcs.AssertExpectations(t)
	prov.AssertExpectations(t)
	analyze.AssertExpectations(t)
}

func TestService_Review_PassesWithoutErrorSeverityIssues(t *testing.T) {
	// Given a scanner finding that is only a warning
	vcs := new(mockVCS)
	prov := new(mockProvider)
	analyze := new(mockAnalyzer)
	archive := new(mockArchive)

	req := domain.ChangeRequest{Owner: "octo", Repo: "infra", Number: 8, HeadSHA: "def5678", HeadRef: "feature"}
	content := "resource \"aws_security_group\" \"open\" {\n  ingress {\n    cidr_blocks = [\"0.0.0.0/0\"]\n  }\n}\n"
	finding := domain.LocatedIssue{
		Type:     domain.IssueLogic,
		Severity: domain.SeverityWarning,
		Message:  "Ingress open to the world",
		File:     "network.tf",
		Line:     3,
		Check:    analyzer.CheckOpenIngress,
	}

	vcs.On("CreateStatus", mock.Anything, req, domain.CommitStatePending, "Security review in progress").
		Return(nil)
	vcs.On("ChangedFiles", mock.Anything, req).
		Return(map[string]string{"network.tf": content}, nil)
	analyze.On("Analyze", mock.Anything, mock.MatchedBy(inputFor("network.tf"))).
		Return(analyzer.Report{Findings: []domain.LocatedIssue{finding}}, nil)
	prov.On("GetFixPlan", mock.Anything, mock.Anything).
		Return(&domain.FixPlan{Description: "Restrict the CIDR range", FixSuggestion: "cidr_blocks = [\"10.0.0.0/8\"]"})
	vcs.On("CreateReviewComment", mock.Anything, req, mock.MatchedBy(isAnnotation), "network.tf", 3).
		Return(nil)
	prov.On("Summarize", mock.Anything, mock.Anything, mock.Anything).
		Return("One warning, nothing blocking.", nil)
	vcs.On("CreateReviewComment", mock.Anything, req, "One warning, nothing blocking.", "", 0).
		Return(nil)
	vcs.On("CreateStatus", mock.Anything, req, domain.CommitStateSuccess, "Security review passed").
		Return(nil)
	archive.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	svc := NewService(vcs, prov, analyze, archive, Settings{MaxParallelFiles: 1})

	// When the review runs
	err := svc.Review(testContext(t), req)

	// Then the warning is recorded with source context but the commit passes
	require.NoError(t, err)

	rec := svc.Status(8)
	assert.Equal(t, domain.ReviewStatusCompleted, rec.Status)
	require.Len(t, rec.Issues, 1)
	assert.Equal(t, analyzer.CheckOpenIngress, rec.Issues[0].Check)
	assert.Contains(t, rec.Issues[0].Context.SurroundingCode, "cidr_blocks")

	vcs.AssertExpectations(t)
}

func TestService_Review_AutoFixSubmitsStagedFiles(t *testing.T) {
	// Given auto-fix enabled, one clean file and one file with a finding
	vcs := new(mockVCS)
	prov := new(mockProvider)
	analyze := new(mockAnalyzer)
	archive := new(mockArchive)

	req := domain.ChangeRequest{Owner: "octo", Repo: "infra", Number: 9, HeadSHA: "abc9999", HeadRef: "feature"}
	cleanContent := "module \"vpc\" {\n  source = \"./modules/vpc\"\n}\n"
	netContent := "resource \"aws_security_group\" \"open\" {\n  ingress {\n    from_port = 0\n  }\n}\n"
	fixedNet := "resource \"aws_security_group\" \"open\" {\n  ingress {\n    from_port = 443\n  }\n}\n"
	finding := domain.LocatedIssue{
		Type:     domain.IssueLogic,
		Severity: domain.SeverityWarning,
		Message:  "Ingress allows all ports",
		File:     "network.tf",
		Line:     3,
		Check:    analyzer.CheckOpenIngress,
	}

	vcs.On("CreateStatus", mock.Anything, req, domain.CommitStatePending, "Security review in progress").
		Return(nil)
	vcs.On("ChangedFiles", mock.Anything, req).
		Return(map[string]string{"modules/vpc/main.tf": cleanContent, "network.tf": netContent}, nil)
	analyze.On("Analyze", mock.Anything, mock.MatchedBy(inputFor("modules/vpc/main.tf"))).
		Return(analyzer.Report{}, nil)
	analyze.On("Analyze", mock.Anything, mock.MatchedBy(inputFor("network.tf"))).
		Return(analyzer.Report{Findings: []domain.LocatedIssue{finding}}, nil)
	prov.On("GetFixPlan", mock.Anything, mock.Anything).
		Return(&domain.FixPlan{Description: "Limit the port range", FixSuggestion: "from_port = 443"})
	vcs.On("CreateReviewComment", mock.Anything, req, mock.MatchedBy(isAnnotation), "network.tf", 3).
		Return(nil)

	prov.On("GetFileFix", mock.Anything, "network.tf", netContent,
		mock.MatchedBy(func(issues []domain.LocatedIssue) bool {
			return len(issues) == 1 && issues[0].Check == analyzer.CheckOpenIngress
		})).
		Return(&fixedNet, "Hardened ingress rules")
	vcs.On("SubmitFixes", mock.Anything, req, map[string]string{"network.tf": fixedNet}, fixPRTitle, fixPRBody).
		Return(nil)

	prov.On("Summarize", mock.Anything, mock.Anything, mock.Anything).
		Return("Fixed everything.", nil)
	vcs.On("CreateReviewComment", mock.Anything, req, "Fixed everything.", "", 0).
		Return(nil)
	vcs.On("CreateStatus", mock.Anything, req, domain.CommitStateSuccess, "Security review passed").
		Return(nil)

	var persisted []domain.ReviewStatus
	recordStatuses(archive, &persisted)

	svc := NewService(vcs, prov, analyze, archive, Settings{AutoFix: true, MaxParallelFiles: 1})

	// When the review runs
	err := svc.Review(testContext(t), req)

	// Then the rewritten file is staged, the fix recorded and the issue
	// marked fixed
	require.NoError(t, err)

	rec := svc.Status(9)
	assert.Equal(t, domain.ReviewStatusCompleted, rec.Status)
	require.Len(t, rec.Fixes, 1)
	assert.Equal(t, domain.AppliedFix{FilePath: "network.tf", Summary: "Hardened ingress rules"}, rec.Fixes[0])
	require.Len(t, rec.Issues, 1)
	assert.True(t, rec.Issues[0].Fixed)

	expected := []domain.ReviewStatus{
		domain.ReviewStatusPending,
		domain.ReviewStatusAnalyzing,
		domain.ReviewStatusAnalyzing,
		domain.ReviewStatusAnalyzing,
		domain.ReviewStatusFixing,
		domain.ReviewStatusFixing,
		domain.ReviewStatusCompleted,
	}
	assert.Equal(t, expected, persisted)

	vcs.AssertExpectations(t)
	prov.AssertExpectations(t)
}

func TestService_Review_DownloadFailureReportsErrorStatus(t *testing.T) {
	// Given a change request whose files cannot be downloaded
	vcs := new(mockVCS)
	prov := new(mockProvider)
	analyze := new(mockAnalyzer)
	archive := new(mockArchive)

	req := domain.ChangeRequest{Owner: "octo", Repo: "infra", Number: 10, HeadSHA: "0ff", HeadRef: "feature"}

	vcs.On("CreateStatus", mock.Anything, req, domain.CommitStatePending, "Security review in progress").
		Return(nil)
	vcs.On("ChangedFiles", mock.Anything, req).
		Return(nil, errors.New("api quota exhausted"))
	vcs.On("CreateStatus", mock.Anything, req, domain.CommitStateError, "Security review failed: api quota exhausted").
		Return(nil)

	var persisted []domain.ReviewStatus
	recordStatuses(archive, &persisted)

	svc := NewService(vcs, prov, analyze, archive, Settings{})

	// When the review runs
	err := svc.Review(testContext(t), req)

	// Then the error surfaces in the return value, the commit status and
	// the record
	require.EqualError(t, err, "api quota exhausted")

	rec := svc.Status(10)
	assert.Equal(t, domain.ReviewStatusError, rec.Status)
	assert.Equal(t, "api quota exhausted", rec.Error)
	assert.Equal(t, []domain.ReviewStatus{domain.ReviewStatusPending, domain.ReviewStatusError}, persisted)

	vcs.AssertNumberOfCalls(t, "CreateReviewComment", 0)
	vcs.AssertExpectations(t)
}

func TestService_Review_SummaryFailureIsFatal(t *testing.T) {
	// Given a provider that cannot produce the summary comment
	vcs := new(mockVCS)
	prov := new(mockProvider)
	analyze := new(mockAnalyzer)
	archive := new(mockArchive)

	req := domain.ChangeRequest{Owner: "octo", Repo: "infra", Number: 11, HeadSHA: "abc", HeadRef: "feature"}

	vcs.On("CreateStatus", mock.Anything, req, domain.CommitStatePending, "Security review in progress").
		Return(nil)
	vcs.On("ChangedFiles", mock.Anything, req).
		Return(map[string]string{"main.tf": "# empty\n"}, nil)
	analyze.On("Analyze", mock.Anything, mock.Anything).
		Return(analyzer.Report{}, nil)
	prov.On("Summarize", mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("model offline"))
	vcs.On("CreateStatus", mock.Anything, req, domain.CommitStateError,
		"Security review failed: generate summary: model offline").
		Return(nil)
	archive.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	svc := NewService(vcs, prov, analyze, archive, Settings{MaxParallelFiles: 1})

	// When the review runs
	err := svc.Review(testContext(t), req)

	// Then the run fails with the wrapped summary error
	require.EqualError(t, err, "generate summary: model offline")
	assert.Equal(t, domain.ReviewStatusError, svc.Status(11).Status)
	vcs.AssertExpectations(t)
}

func TestService_Review_AnnotationFailureIsFatal(t *testing.T) {
	// Given a VCS that rejects the inline annotation
	vcs := new(mockVCS)
	prov := new(mockProvider)
	analyze := new(mockAnalyzer)
	archive := new(mockArchive)

	req := domain.ChangeRequest{Owner: "octo", Repo: "infra", Number: 12, HeadSHA: "abc", HeadRef: "feature"}
	raw := "Error: Invalid block definition\n\n  on main.tf line 1:"

	vcs.On("CreateStatus", mock.Anything, req, domain.CommitStatePending, "Security review in progress").
		Return(nil)
	vcs.On("ChangedFiles", mock.Anything, req).
		Return(map[string]string{"main.tf": "resource {}\n"}, nil)
	analyze.On("Analyze", mock.Anything, mock.Anything).
		Return(analyzer.Report{Raw: raw}, nil)
	prov.On("GetFixPlan", mock.Anything, mock.Anything).
		Return(&domain.FixPlan{Description: "Name the resource"})
	vcs.On("CreateReviewComment", mock.Anything, req, mock.MatchedBy(isAnnotation), "main.tf", 1).
		Return(errors.New("comment denied"))
	vcs.On("CreateStatus", mock.Anything, req, domain.CommitStateError,
		"Security review failed: annotate main.tf:1: comment denied").
		Return(nil)
	archive.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	svc := NewService(vcs, prov, analyze, archive, Settings{MaxParallelFiles: 1})

	// When the review runs
	err := svc.Review(testContext(t), req)

	// Then the annotation error fails the run
	require.EqualError(t, err, "annotate main.tf:1: comment denied")
	assert.Equal(t, domain.ReviewStatusError, svc.Status(12).Status)
	vcs.AssertExpectations(t)
}

func TestService_Review_PlanlessIssueIsRecordedWithoutAnnotation(t *testing.T) {
	// Given a provider that cannot plan a fix for the issue
	vcs := new(mockVCS)
	prov := new(mockProvider)
	analyze := new(mockAnalyzer)
	archive := new(mockArchive)

	req := domain.ChangeRequest{Owner: "octo", Repo: "infra", Number: 13, HeadSHA: "abc", HeadRef: "feature"}
	raw := "Error: Invalid block definition\n\n  on main.tf line 1:"

	vcs.On("CreateStatus", mock.Anything, req, domain.CommitStatePending, "Security review in progress").
		Return(nil)
	vcs.On("ChangedFiles", mock.Anything, req).
		Return(map[string]string{"main.tf": "resource {}\n"}, nil)
	analyze.On("Analyze", mock.Anything, mock.Anything).
		Return(analyzer.Report{Raw: raw}, nil)
	prov.On("GetFixPlan", mock.Anything, mock.Anything).Return(nil)
	prov.On("Summarize", mock.Anything, mock.Anything, mock.Anything).
		Return("Summary.", nil)
	vcs.On("CreateReviewComment", mock.Anything, req, "Summary.", "", 0).
		Return(nil)
	vcs.On("CreateStatus", mock.Anything, req, domain.CommitStateFailure, "Security review found 1 issue(s)").
		Return(nil)
	archive.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	svc := NewService(vcs, prov, analyze, archive, Settings{MaxParallelFiles: 1})

	// When the review runs
	err := svc.Review(testContext(t), req)

	// Then the issue is still recorded and only the summary comment is posted
	require.NoError(t, err)
	require.Len(t, svc.Status(13).Issues, 1)
	assert.Empty(t, svc.Status(13).Issues[0].FixSuggestion)
	vcs.AssertNumberOfCalls(t, "CreateReviewComment", 1)
	vcs.AssertExpectations(t)
}

func TestService_Status_UnknownIDIsZero(t *testing.T) {
	svc := NewService(new(mockVCS), new(mockProvider), new(mockAnalyzer), new(mockArchive), Settings{})

	assert.Equal(t, domain.ReviewRecord{}, svc.Status(404))
}

func TestService_Status_ReturnsIsolatedSnapshot(t *testing.T) {
	svc := NewService(new(mockVCS), new(mockProvider), new(mockAnalyzer), new(mockArchive), Settings{})
	svc.initRecord(1)
	svc.appendIssue(1, domain.LocatedIssue{File: "a.tf"})

	rec := svc.Status(1)
	rec.Issues[0].File = "mutated.tf"

	assert.Equal(t, "a.tf", svc.Status(1).Issues[0].File)
}

func TestFinalStatus(t *testing.T) {
	tests := []struct {
		name        string
		issues      []domain.LocatedIssue
		state       domain.CommitState
		description string
	}{
		{
			name:        "no issues",
			issues:      nil,
			state:       domain.CommitStateSuccess,
			description: "Security review passed",
		},
		{
			name:        "warnings only",
			issues:      []domain.LocatedIssue{{Severity: domain.SeverityWarning}, {Severity: domain.SeverityInfo}},
			state:       domain.CommitStateSuccess,
			description: "Security review passed",
		},
		{
			name: "one error counts every issue",
			issues: []domain.LocatedIssue{
				{Severity: domain.SeverityWarning},
				{Severity: domain.SeverityError},
				{Severity: domain.SeverityInfo},
			},
			state:       domain.CommitStateFailure,
			description: "Security review found 3 issue(s)",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			state, description := finalStatus(tc.issues)
			assert.Equal(t, tc.state, state)
			assert.Equal(t, tc.description, description)
		})
	}
}
