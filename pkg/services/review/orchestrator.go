// Package review runs the security review pipeline for one change request:
// fetch files, analyze, classify, plan fixes, annotate, stage remediations
// and report status back to the VCS.
package review

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/exp/maps"
	"golang.org/x/sync/errgroup"

	"github.com/sec-tools/iac-sentinel/pkg/models/domain"
	"github.com/sec-tools/iac-sentinel/pkg/services/analyzer"
	"github.com/sec-tools/iac-sentinel/pkg/services/classify"
	"github.com/sec-tools/iac-sentinel/pkg/services/diagnostics"
	"github.com/sec-tools/iac-sentinel/pkg/services/provider"
	"github.com/sec-tools/iac-sentinel/pkg/store/github"
	"github.com/sec-tools/iac-sentinel/pkg/store/review"
)

type Orchestrator interface {
	// Review runs the full pipeline for a change request. Errors are also
	// reflected in the record and the commit status before being returned.
	Review(ctx context.Context, req domain.ChangeRequest) error
	// Status returns a snapshot of the run for the given change request
	// number. Unknown ids yield a zero record.
	Status(id int) domain.ReviewRecord
}

type Settings struct {
	AutoFix          bool
	RunTimeout       time.Duration
	MaxParallelFiles int
}

type Service struct {
	vcs      github.Service
	provider provider.FixPlanProvider
	analyze  analyzer.Analyzer
	classify *classify.Classifier
	archive  review.Store
	settings Settings
	now      func() time.Time

	mu    sync.Mutex
	runs  map[int]*domain.ReviewRecord
	locks map[int]*sync.Mutex
}

func NewService(vcs github.Service, p provider.FixPlanProvider, a analyzer.Analyzer, archive review.Store, settings Settings) *Service {
	return &Service{
		vcs:      vcs,
		provider: p,
		analyze:  a,
		classify: classify.New(),
		archive:  archive,
		settings: settings,
		now:      time.Now,
		runs:     make(map[int]*domain.ReviewRecord),
		locks:    make(map[int]*sync.Mutex),
	}
}

func (s *Service) Review(ctx context.Context, req domain.ChangeRequest) error {
	// reviews of the same change request queue, different ones run freely
	lock := s.lockFor(req.Number)
	lock.Lock()
	defer lock.Unlock()

	if s.settings.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.settings.RunTimeout)
		defer cancel()
	}

	logger := zerolog.Ctx(ctx).With().Int("review_id", req.Number).Logger()
	ctx = logger.WithContext(ctx)

	s.initRecord(req.Number)
	s.persist(ctx, req.Number)

	if err := s.vcs.CreateStatus(ctx, req, domain.CommitStatePending, "Security review in progress"); err != nil {
		return s.fail(ctx, req, err)
	}

	files, err := s.vcs.ChangedFiles(ctx, req)
	if err != nil {
		return s.fail(ctx, req, err)
	}
	logger.Info().Int("files", len(files)).Msg("downloaded change request files")

	s.setStatus(req.Number, domain.ReviewStatusAnalyzing)
	s.persist(ctx, req.Number)

	if err := s.analyzeFiles(ctx, req, files); err != nil {
		return s.fail(ctx, req, err)
	}

	if s.settings.AutoFix && s.hasIssues(req.Number) {
		s.setStatus(req.Number, domain.ReviewStatusFixing)
		s.persist(ctx, req.Number)

		staged := s.generateFixes(ctx, req.Number, files)
		if len(staged) > 0 {
			if err := s.vcs.SubmitFixes(ctx, req, staged, fixPRTitle, fixPRBody); err != nil {
				return s.fail(ctx, req, err)
			}
		}
	}

	rec := s.Status(req.Number)
	summary, err := s.provider.Summarize(ctx, rec.Issues, rec.Fixes)
	if err != nil {
		return s.fail(ctx, req, fmt.Errorf("generate summary: %w", err))
	}
	if err := s.vcs.CreateReviewComment(ctx, req, summary, "", 0); err != nil {
		return s.fail(ctx, req, err)
	}

	state, description := finalStatus(rec.Issues)
	if err := s.vcs.CreateStatus(ctx, req, state, description); err != nil {
		return s.fail(ctx, req, err)
	}

	s.setStatus(req.Number, domain.ReviewStatusCompleted)
	s.persist(ctx, req.Number)
	logger.Info().Int("issues", len(rec.Issues)).Int("fixes", len(rec.Fixes)).Msg("review completed")
	return nil
}

func (s *Service) Status(id int) domain.ReviewRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[id]
	if !ok {
		return domain.ReviewRecord{}
	}
	return rec.Clone()
}

// analyzeFiles fans out per file, bounded by MaxParallelFiles. The first
// failing file cancels the rest.
func (s *Service) analyzeFiles(ctx context.Context, req domain.ChangeRequest, files map[string]string) error {
	g, gctx := errgroup.WithContext(ctx)
	if s.settings.MaxParallelFiles > 0 {
		g.SetLimit(s.settings.MaxParallelFiles)
	}

	paths := maps.Keys(files)
	sort.Strings(paths)
	for _, path := range paths {
		path := path
		g.Go(func() error {
			return s.analyzeFile(gctx, req, path, files[path])
		})
	}
	return g.Wait()
}

func (s *Service) analyzeFile(ctx context.Context, req domain.ChangeRequest, path, content string) error {
	dir, err := materialize(path, content)
	if err != nil {
		return fmt.Errorf("materialize %s: %w", path, err)
	}
	defer os.RemoveAll(dir)

	report, err := s.analyze.Analyze(ctx, analyzer.Input{Dir: dir, Files: map[string]string{path: content}})
	if err != nil {
		return fmt.Errorf("analyze %s: %w", path, err)
	}

	issues := make([]domain.LocatedIssue, 0)
	for _, d := range diagnostics.Parse(report.Raw) {
		issues = append(issues, s.classify.Classify(ctx, d, content))
	}
	for _, finding := range report.Findings {
		issues = append(issues, s.classify.Enrich(ctx, finding, content))
	}

	for _, issue := range issues {
		plan := s.provider.GetFixPlan(ctx, issue)
		if plan != nil {
			issue.FixSuggestion = plan.FixSuggestion
			if err := s.vcs.CreateReviewComment(ctx, req, annotationBody(issue, plan), issue.File, issue.Line); err != nil {
				return fmt.Errorf("annotate %s:%d: %w", issue.File, issue.Line, err)
			}
		} else {
			zerolog.Ctx(ctx).Warn().Str("file", issue.File).Int("line", issue.Line).
				Msg("no fix plan, skipping annotation")
		}
		s.appendIssue(req.Number, issue)
	}

	s.persist(ctx, req.Number)
	return nil
}

// generateFixes asks the provider for whole-file rewrites of every file
// with issues. Failures skip the file; the review carries on with what it
// could fix.
func (s *Service) generateFixes(ctx context.Context, id int, files map[string]string) map[string]string {
	staged := map[string]string{}

	paths := maps.Keys(files)
	sort.Strings(paths)
	for _, path := range paths {
		fileIssues := s.issuesForFile(id, path)
		if len(fileIssues) == 0 {
			continue
		}

		fixed, summary := s.provider.GetFileFix(ctx, path, files[path], fileIssues)
		if fixed == nil {
			zerolog.Ctx(ctx).Warn().Str("file", path).Str("reason", summary).Msg("file fix unavailable")
			continue
		}

		staged[path] = *fixed
		s.appendFix(id, domain.AppliedFix{FilePath: path, Summary: summary})
	}

	s.persist(ctx, id)
	return staged
}

func (s *Service) fail(ctx context.Context, req domain.ChangeRequest, err error) error {
	zerolog.Ctx(ctx).Error().Err(err).Msg("review failed")

	description := fmt.Sprintf("Security review failed: %s", err)
	if serr := s.vcs.CreateStatus(ctx, req, domain.CommitStateError, description); serr != nil {
		zerolog.Ctx(ctx).Warn().Err(serr).Msg("could not report error status")
	}

	s.setError(req.Number, err.Error())
	s.persist(ctx, req.Number)
	return err
}

func finalStatus(issues []domain.LocatedIssue) (domain.CommitState, string) {
	hasError := false
	for _, issue := range issues {
		if issue.Severity == domain.SeverityError {
			hasError = true
			break
		}
	}
	if hasError {
		return domain.CommitStateFailure, fmt.Sprintf("Security review found %d issue(s)", len(issues))
	}
	return domain.CommitStateSuccess, "Security review passed"
}

func (s *Service) lockFor(id int) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

func (s *Service) initRecord(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.runs[id] = &domain.ReviewRecord{
		ID:        id,
		Status:    domain.ReviewStatusPending,
		Issues:    []domain.LocatedIssue{},
		Fixes:     []domain.AppliedFix{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *Service) setStatus(id int, status domain.ReviewStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.runs[id]; ok {
		rec.Status = status
		rec.UpdatedAt = s.now()
	}
}

func (s *Service) setError(id int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.runs[id]; ok {
		rec.Status = domain.ReviewStatusError
		rec.Error = message
		rec.UpdatedAt = s.now()
	}
}

func (s *Service) appendIssue(id int, issue domain.LocatedIssue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.runs[id]; ok {
		rec.Issues = append(rec.Issues, issue)
		rec.UpdatedAt = s.now()
	}
}

// appendFix records the staged fix and marks the file's issues as fixed.
func (s *Service) appendFix(id int, fix domain.AppliedFix) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[id]
	if !ok {
		return
	}
	rec.Fixes = append(rec.Fixes, fix)
	for i := range rec.Issues {
		if rec.Issues[i].File == fix.FilePath {
			rec.Issues[i].Fixed = true
		}
	}
	rec.UpdatedAt = s.now()
}

func (s *Service) hasIssues(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[id]
	return ok && len(rec.Issues) > 0
}

func (s *Service) issuesForFile(id int, path string) []domain.LocatedIssue {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[id]
	if !ok {
		return nil
	}
	var out []domain.LocatedIssue
	for _, issue := range rec.Issues {
		if issue.File == path {
			out = append(out, issue)
		}
	}
	return out
}

// persist mirrors the current record into the archive. Archive failures are
// logged, never fatal to the run.
func (s *Service) persist(ctx context.Context, id int) {
	rec := s.Status(id)
	if rec.Status == "" {
		return
	}
	if err := s.archive.Upsert(ctx, rec); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int("review_id", id).Msg("archive write failed")
	}
}

func materialize(path, content string) (string, error) {
	dir, err := os.MkdirTemp("", "iac-sentinel-*")
	if err != nil {
		return "", err
	}
	full := filepath.Join(dir, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	return dir, nil
}
