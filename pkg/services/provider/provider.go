package provider

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sec-tools/iac-sentinel/pkg/models/domain"
	"github.com/sec-tools/iac-sentinel/pkg/store/cache"
)

// FixPlanProvider is the contract every AI backend satisfies. GetFixPlan and
// GetFileFix degrade to nil results on failure so a review run can continue
// past a single bad completion; Summarize surfaces its error because a run
// without a summary is reported as failed.
type FixPlanProvider interface {
	Name() string
	GetFixPlan(ctx context.Context, issue domain.LocatedIssue) *domain.FixPlan
	GetFileFix(ctx context.Context, path, content string, issues []domain.LocatedIssue) (*string, string)
	Summarize(ctx context.Context, issues []domain.LocatedIssue, fixes []domain.AppliedFix) (string, error)
}

// completer is the narrow seam between the parsing layer and a concrete
// backend. Implementations exchange a system and user prompt for raw
// completion text.
type completer interface {
	Name() string
	complete(ctx context.Context, system, user string) (string, error)
}

const systemPrompt = "You are a security expert AI assistant."

// Service wraps a completer with prompt construction, response parsing and
// optional completion memoization.
type Service struct {
	backend completer
	cache   cache.Cache
}

func newService(backend completer, c cache.Cache) *Service {
	return &Service{backend: backend, cache: c}
}

func (s *Service) Name() string { return s.backend.Name() }

func (s *Service) GetFixPlan(ctx context.Context, issue domain.LocatedIssue) *domain.FixPlan {
	prompt := fixPlanPrompt(issue)
	raw, err := s.completeCached(ctx, cache.CategoryFixPlan, prompt)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("file", issue.File).Int("line", issue.Line).
			Msg("fix plan completion failed")
		return nil
	}
	plan := parseFixPlan(raw, issue)
	if plan == nil {
		zerolog.Ctx(ctx).Warn().Str("file", issue.File).Int("line", issue.Line).
			Msg("fix plan response was not valid JSON")
	}
	return plan
}

func (s *Service) GetFileFix(ctx context.Context, path, content string, issues []domain.LocatedIssue) (*string, string) {
	prompt := fileFixPrompt(path, content, issues)
	raw, err := s.completeCached(ctx, cache.CategoryFileFix, prompt)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("file", path).Msg("file fix completion failed")
		return nil, "Error generating fix"
	}
	return parseFileFix(raw)
}

func (s *Service) Summarize(ctx context.Context, issues []domain.LocatedIssue, fixes []domain.AppliedFix) (string, error) {
	raw, err := s.backend.complete(ctx, systemPrompt, summaryPrompt(issues, fixes))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

// completeCached memoizes completions by backend name and prompt so repeated
// reviews of the same diagnostics skip the round trip.
func (s *Service) completeCached(ctx context.Context, category cache.Category, prompt string) (string, error) {
	if s.cache == nil {
		return s.backend.complete(ctx, systemPrompt, prompt)
	}

	key := cache.Key(s.backend.Name(), prompt)
	if cached, ok := s.cache.Get(ctx, category, key); ok {
		return string(cached), nil
	}

	raw, err := s.backend.complete(ctx, systemPrompt, prompt)
	if err != nil {
		return "", err
	}
	if err := s.cache.Set(ctx, category, key, []byte(raw)); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("completion cache write failed")
	}
	return raw, nil
}

type wireChange struct {
	File    string  `json:"file"`
	Line    float64 `json:"line"`
	Content string  `json:"content"`
}

type wireFixPlan struct {
	Description   string       `json:"description"`
	Changes       []wireChange `json:"changes"`
	Confidence    float64      `json:"confidence"`
	Reasoning     string       `json:"reasoning"`
	Explanation   string       `json:"explanation"`
	Impact        string       `json:"impact"`
	FixSuggestion string       `json:"fix_suggestion"`
	BestPractices []string     `json:"best_practices"`
}

type wireFileFix struct {
	FixedContent   string `json:"fixed_content"`
	ChangesSummary string `json:"changes_summary"`
}

// parseFixPlan decodes a completion into a FixPlan, filling defaults for
// missing fields. Returns nil when the payload is not valid JSON.
func parseFixPlan(raw string, issue domain.LocatedIssue) *domain.FixPlan {
	var wire wireFixPlan
	if err := json.Unmarshal([]byte(stripFences(raw)), &wire); err != nil {
		return nil
	}

	plan := &domain.FixPlan{
		ErrorType:     string(issue.Type),
		Description:   wire.Description,
		Confidence:    clamp01(wire.Confidence),
		Reasoning:     wire.Reasoning,
		FixSuggestion: wire.FixSuggestion,
		Impact:        wire.Impact,
		BestPractices: wire.BestPractices,
	}
	if plan.Description == "" {
		plan.Description = wire.Explanation
	}
	if plan.Description == "" {
		plan.Description = "No description provided"
	}
	if plan.Reasoning == "" {
		plan.Reasoning = "No reasoning provided"
	}
	if plan.Impact == "" {
		plan.Impact = "Unknown"
	}
	if plan.FixSuggestion == "" {
		plan.FixSuggestion = plan.Description
	}

	for _, c := range wire.Changes {
		line := int(c.Line)
		if line < 1 {
			continue
		}
		file := c.File
		if file == "" {
			file = issue.File
		}
		plan.Changes = append(plan.Changes, domain.ChangeHunk{File: file, Line: line, Content: c.Content})
	}
	return plan
}

// parseFileFix decodes a whole-file rewrite completion. Any decode failure
// degrades to a nil content with an error summary so the caller skips the file.
func parseFileFix(raw string) (*string, string) {
	var wire wireFileFix
	if err := json.Unmarshal([]byte(stripFences(raw)), &wire); err != nil {
		return nil, "Error generating fix"
	}
	if wire.FixedContent == "" {
		return nil, "Error generating fix"
	}
	summary := wire.ChangesSummary
	if summary == "" {
		summary = "Applied security fixes"
	}
	return &wire.FixedContent, summary
}

// stripFences peels a markdown code fence off a completion, tolerating a
// language tag on the opening fence.
func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if i := strings.Index(text, "\n"); i >= 0 {
		first := strings.TrimSpace(text[:i])
		if first == "" || !strings.ContainsAny(first, "{[") {
			text = text[i+1:]
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
