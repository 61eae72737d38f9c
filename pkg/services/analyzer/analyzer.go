// Package analyzer runs validation tools and content scanners over a set of
// infrastructure files and collects their findings.
package analyzer

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/sec-tools/iac-sentinel/pkg/models/domain"
)

// Input is the material an analyzer works on. Dir points at a scratch
// workspace holding the same files on disk; it is empty when no workspace
// was materialized.
type Input struct {
	Dir   string
	Files map[string]string
}

// Report carries analyzer output in two forms: raw tool text destined for
// the diagnostics parser, and findings that are already structured.
type Report struct {
	Raw      string
	Findings []domain.LocatedIssue
}

type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, in Input) (Report, error)
}

// Multi fans input out to a list of analyzers and merges their reports.
// A failing analyzer is logged and skipped.
type Multi struct {
	analyzers []Analyzer
}

func NewMulti(analyzers ...Analyzer) *Multi {
	return &Multi{analyzers: analyzers}
}

func (m *Multi) Name() string { return "multi" }

func (m *Multi) Analyze(ctx context.Context, in Input) (Report, error) {
	var merged Report
	for _, a := range m.analyzers {
		report, err := a.Analyze(ctx, in)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("analyzer", a.Name()).Msg("analyzer failed, skipping")
			continue
		}
		if report.Raw != "" {
			if merged.Raw != "" {
				merged.Raw += "\n\n"
			}
			merged.Raw += report.Raw
		}
		merged.Findings = append(merged.Findings, report.Findings...)
	}
	return merged, nil
}
