package terminal

import (
	"context"
	"io"
	"os"

	"github.com/sec-tools/iac-sentinel/pkg/runtime/terminal/commands"
	"github.com/sec-tools/iac-sentinel/pkg/runtime/terminal/export"

	"github.com/sec-tools/iac-sentinel/pkg/services/analyzer"
	"github.com/sec-tools/iac-sentinel/pkg/services/provider"
	"github.com/spf13/cobra"
)

// CLI represents the command-line interface
type CLI struct {
	providers provider.Registry
	analyzer  analyzer.Analyzer
	config    provider.Config
	reporter  *export.Reporter
	rootCmd   *cobra.Command
}

// Options contain configuration for the CLI
type Options struct {
	Providers provider.Registry
	Provider  provider.Config
	Analyzer  analyzer.Analyzer
	Output    io.Writer
}

// NewCLI creates a new CLI instance
func NewCLI(opts Options) *CLI {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	cli := &CLI{
		providers: opts.Providers,
		analyzer:  opts.Analyzer,
		config:    opts.Provider,
		reporter:  export.NewReporter(opts.Output),
	}

	cli.rootCmd = cli.newRootCmd()
	return cli
}

// ExecuteContext runs the root command; commands pick their logger up from
// the context.
func (cli *CLI) ExecuteContext(ctx context.Context) error {
	return cli.rootCmd.ExecuteContext(ctx)
}

func (cli *CLI) newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sentinel",
		Short: "Security review tool for infrastructure code",
	}

	cmd.AddCommand(commands.NewValidateCmd(cli.analyzer, cli.providers, cli.config, cli.reporter))
	cmd.AddCommand(commands.NewFixCmd(cli.analyzer, cli.providers, cli.config, cli.reporter))

	return cmd
}
