package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/sec-tools/iac-sentinel/pkg/guard"
	"github.com/sec-tools/iac-sentinel/pkg/models/domain"
	"github.com/sec-tools/iac-sentinel/pkg/runtime/terminal/export"
	"github.com/sec-tools/iac-sentinel/pkg/services/analyzer"
	"github.com/sec-tools/iac-sentinel/pkg/services/classify"
	"github.com/sec-tools/iac-sentinel/pkg/services/diagnostics"
	"github.com/sec-tools/iac-sentinel/pkg/services/provider"
)

const (
	runTimeout = 60 * time.Second

	// commandBudget caps invocations per minute, matching the webhook budget.
	commandBudget = 100
)

type ValidateCmd struct {
	providerName string
	analyze      analyzer.Analyzer
	providers    provider.Registry
	providerCfg  provider.Config
	classify     *classify.Classifier
	reporter     *export.Reporter
}

func NewValidateCmd(
	analyze analyzer.Analyzer,
	providers provider.Registry,
	cfg provider.Config,
	reporter *export.Reporter,
) *cobra.Command {
	vc := &ValidateCmd{
		analyze:     analyze,
		providers:   providers,
		providerCfg: cfg,
		classify:    classify.New(),
		reporter:    reporter,
	}
	limiter := guard.NewKeyedLimiter(commandBudget)
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Analyze an infrastructure file for security issues",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secured := guard.Wrap(limiter, "validate", func(sanitized []string) error {
				return vc.run(cmd, sanitized)
			})
			return secured(args)
		},
	}

	cmd.Flags().StringVar(&vc.providerName, "provider", "",
		"AI provider for fix suggestions (openai, bedrock, fake); empty skips suggestions")

	return cmd
}

func (vc *ValidateCmd) run(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), runTimeout)
	defer cancel()

	path := args[0]
	issues, _, err := collectIssues(ctx, vc.analyze, vc.classify, path)
	if err != nil {
		return err
	}

	if vc.providerName != "" && len(issues) > 0 {
		p, err := vc.providers.Create(ctx, vc.providerName, vc.providerCfg)
		if err != nil {
			return fmt.Errorf("failed to create provider %q: %w", vc.providerName, err)
		}
		for i, issue := range issues {
			if plan := p.GetFixPlan(ctx, issue); plan != nil {
				issues[i].FixSuggestion = plan.FixSuggestion
			}
		}
	}

	if err := vc.reporter.Issues(path, issues); err != nil {
		return err
	}

	if hasBlocking(issues) {
		return fmt.Errorf("validation failed: %d issue(s) found", len(issues))
	}
	return nil
}

func hasBlocking(issues []domain.LocatedIssue) bool {
	for _, issue := range issues {
		if issue.Severity == domain.SeverityError {
			return true
		}
	}
	return false
}

// collectIssues runs the analyzers over one local file and classifies the
// output the same way the review pipeline does.
func collectIssues(
	ctx context.Context,
	analyze analyzer.Analyzer,
	classifier *classify.Classifier,
	path string,
) ([]domain.LocatedIssue, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	content := string(raw)

	report, err := analyze.Analyze(ctx, analyzer.Input{
		Dir:   filepath.Dir(path),
		Files: map[string]string{path: content},
	})
	if err != nil {
		return nil, "", fmt.Errorf("analysis failed for %s: %w", path, err)
	}

	issues := make([]domain.LocatedIssue, 0)
	for _, d := range diagnostics.Parse(report.Raw) {
		issues = append(issues, classifier.Classify(ctx, d, content))
	}
	for _, finding := range report.Findings {
		issues = append(issues, classifier.Enrich(ctx, finding, content))
	}

	return issues, content, nil
}
