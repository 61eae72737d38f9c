package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sec-tools/iac-sentinel/pkg/guard"
	"github.com/sec-tools/iac-sentinel/pkg/runtime/terminal/export"
	"github.com/sec-tools/iac-sentinel/pkg/services/analyzer"
	"github.com/sec-tools/iac-sentinel/pkg/services/classify"
	"github.com/sec-tools/iac-sentinel/pkg/services/patch"
	"github.com/sec-tools/iac-sentinel/pkg/services/provider"
)

type FixCmd struct {
	providerName string
	apply        bool
	out          string
	analyze      analyzer.Analyzer
	providers    provider.Registry
	providerCfg  provider.Config
	classify     *classify.Classifier
	reporter     *export.Reporter
}

func NewFixCmd(
	analyze analyzer.Analyzer,
	providers provider.Registry,
	cfg provider.Config,
	reporter *export.Reporter,
) *cobra.Command {
	fc := &FixCmd{
		analyze:     analyze,
		providers:   providers,
		providerCfg: cfg,
		classify:    classify.New(),
		reporter:    reporter,
	}
	limiter := guard.NewKeyedLimiter(commandBudget)
	cmd := &cobra.Command{
		Use:   "fix <file>",
		Short: "Generate security fixes and optionally apply them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secured := guard.Wrap(limiter, "fix", func(sanitized []string) error {
				return fc.run(cmd, sanitized)
			})
			return secured(args)
		},
	}

	cmd.Flags().StringVar(&fc.providerName, "provider", "bedrock",
		"AI provider generating the fixes (openai, bedrock, fake)")
	cmd.Flags().BoolVar(&fc.apply, "apply", false, "Write the fixed content back to disk")
	cmd.Flags().StringVar(&fc.out, "out", "", "Destination for the fixed file (defaults to in-place)")

	return cmd
}

func (fc *FixCmd) run(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), runTimeout)
	defer cancel()

	path := args[0]
	issues, content, err := collectIssues(ctx, fc.analyze, fc.classify, path)
	if err != nil {
		return err
	}
	if len(issues) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No security issues found in %s\n", path)
		return nil
	}

	p, err := fc.providers.Create(ctx, fc.providerName, fc.providerCfg)
	if err != nil {
		return fmt.Errorf("failed to create provider %q: %w", fc.providerName, err)
	}

	// Plans only replace whole lines, so earlier patches never shift the
	// line numbers later ones target.
	current := content
	applied := 0
	for _, issue := range issues {
		plan := p.GetFixPlan(ctx, issue)
		if plan == nil || len(plan.Changes) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No fix available for %s:%d (%s)\n", issue.File, issue.Line, issue.Message)
			continue
		}

		patchText := patch.Generate(path, current, plan.Changes)
		if patchText == "" {
			continue
		}

		if err := fc.reporter.Diff(patchText); err != nil {
			return err
		}

		if fc.apply {
			next, ok := patch.Apply(current, patchText)
			if !ok {
				continue
			}
			current = next
			applied++
		}
	}

	if !fc.apply {
		return nil
	}
	if applied == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No fixes applied to %s\n", path)
		return nil
	}

	dest := fc.out
	if dest == "" {
		dest = path
	}
	if err := os.WriteFile(dest, []byte(current), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Applied %d fix(es) to %s\n", applied, dest)

	return nil
}
