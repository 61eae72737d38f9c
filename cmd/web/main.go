package main

import (
	"context"
	"fmt"
	"net"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sec-tools/iac-sentinel/pkg/server"
	"github.com/sec-tools/iac-sentinel/pkg/services/analyzer"
	"github.com/sec-tools/iac-sentinel/pkg/services/config"
	"github.com/sec-tools/iac-sentinel/pkg/services/provider"
	reviewsvc "github.com/sec-tools/iac-sentinel/pkg/services/review"
	"github.com/sec-tools/iac-sentinel/pkg/store/cache"
	"github.com/sec-tools/iac-sentinel/pkg/store/github"
	reviewstore "github.com/sec-tools/iac-sentinel/pkg/store/review"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "web",
		Short: "Start the security review web server",
		RunE:  runServer,
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Error loading .env file: %v\n", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(cmd.Context())

	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	completions, err := buildCache(ctx, settings)
	if err != nil {
		return err
	}

	backend, err := provider.DefaultRegistry().Create(ctx, settings.AIProvider, provider.Config{
		OpenAIAPIKey:   settings.OpenAIAPIKey,
		OpenAIModel:    settings.OpenAIModel,
		Temperature:    0.7,
		BedrockModelID: settings.BedrockModelID,
		AWSRegion:      settings.AWSRegion,
		Cache:          completions,
	})
	if err != nil {
		return fmt.Errorf("failed to create provider %q: %w", settings.AIProvider, err)
	}

	db, err := reviewstore.NewDB(reviewstore.Settings{Path: settings.ArchivePath})
	if err != nil {
		return fmt.Errorf("failed to open review archive: %w", err)
	}
	archive, err := reviewstore.NewStore(db)
	if err != nil {
		return fmt.Errorf("failed to create review store: %w", err)
	}

	reviewer := reviewsvc.NewService(
		github.NewClient(settings.GithubToken, settings.StatusContext),
		backend,
		analyzer.NewMulti(analyzer.NewTerraform(), analyzer.NewSecScan()),
		archive,
		reviewsvc.Settings{
			AutoFix:          settings.AutoFix,
			RunTimeout:       settings.RunTimeout,
			MaxParallelFiles: settings.MaxParallelFiles,
		},
	)

	logger.Info().Str("provider", backend.Name()).Bool("auto_fix", settings.AutoFix).
		Msg("security review pipeline configured")

	api := server.NewWebAPI(server.Config{
		Addr: net.JoinHostPort(settings.ServerHost, settings.ServerPort),
		Dependencies: server.Dependencies{
			Reviewer:      reviewer,
			Archive:       archive,
			WebhookSecret: settings.GithubWebhookSecret,
			Logger:        logger,
		},
	})

	return api.Start()
}

// buildCache picks the completion cache tier: S3 when a bucket is
// configured, in-process memory otherwise.
func buildCache(ctx context.Context, settings *config.Settings) (cache.Cache, error) {
	if settings.CacheBucket == "" {
		return cache.NewMemory(nil), nil
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if settings.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(settings.AWSRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return cache.NewS3(s3.NewFromConfig(awsCfg), settings.CacheBucket, nil), nil
}
