package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/sec-tools/iac-sentinel/pkg/runtime/terminal"
	"github.com/sec-tools/iac-sentinel/pkg/services/analyzer"
	"github.com/sec-tools/iac-sentinel/pkg/services/config"
	"github.com/sec-tools/iac-sentinel/pkg/services/provider"
)

func main() {
	_ = godotenv.Load()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	settings, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cli := terminal.NewCLI(terminal.Options{
		Providers: provider.DefaultRegistry(),
		Provider: provider.Config{
			OpenAIAPIKey:   settings.OpenAIAPIKey,
			OpenAIModel:    settings.OpenAIModel,
			Temperature:    0.7,
			BedrockModelID: settings.BedrockModelID,
			AWSRegion:      settings.AWSRegion,
		},
		Analyzer: analyzer.NewMulti(analyzer.NewTerraform(), analyzer.NewSecScan()),
		Output:   os.Stdout,
	})

	if err := cli.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
