package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings is the full runtime configuration, sourced from the environment
// (plus whatever godotenv loaded into it).
type Settings struct {
	GithubToken         string        `mapstructure:"github_token"`
	GithubWebhookSecret string        `mapstructure:"github_webhook_secret"`
	AIProvider          string        `mapstructure:"ai_provider"`
	OpenAIAPIKey        string        `mapstructure:"openai_api_key"`
	OpenAIModel         string        `mapstructure:"openai_model"`
	AWSRegion           string        `mapstructure:"aws_region"`
	BedrockModelID      string        `mapstructure:"bedrock_model_id"`
	AutoFix             bool          `mapstructure:"auto_fix"`
	ArchivePath         string        `mapstructure:"archive_path"`
	CacheBucket         string        `mapstructure:"cache_bucket"`
	ServerHost          string        `mapstructure:"server_host"`
	ServerPort          string        `mapstructure:"server_port"`
	RunTimeout          time.Duration `mapstructure:"run_timeout"`
	MaxParallelFiles    int           `mapstructure:"max_parallel_files"`
	StatusContext       string        `mapstructure:"status_context"`
}

var settingsKeys = []string{
	"github_token",
	"github_webhook_secret",
	"ai_provider",
	"openai_api_key",
	"openai_model",
	"aws_region",
	"bedrock_model_id",
	"auto_fix",
	"archive_path",
	"cache_bucket",
	"server_host",
	"server_port",
	"run_timeout",
	"max_parallel_files",
	"status_context",
}

func Load() (*Settings, error) {
	v := viper.New()
	for _, key := range settingsKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	v.SetDefault("ai_provider", "bedrock")
	v.SetDefault("openai_model", "gpt-4-turbo-preview")
	v.SetDefault("bedrock_model_id", "anthropic.claude-3-sonnet-20240229-v1:0")
	v.SetDefault("auto_fix", false)
	v.SetDefault("archive_path", "security_reviews.db")
	v.SetDefault("server_host", "0.0.0.0")
	v.SetDefault("server_port", "8000")
	v.SetDefault("run_timeout", "10m")
	v.SetDefault("max_parallel_files", 4)
	v.SetDefault("status_context", "security-review")

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	return &settings, nil
}

// Validate checks the keys the web server cannot run without.
func (s *Settings) Validate() error {
	var missing []string
	if s.GithubToken == "" {
		missing = append(missing, "GITHUB_TOKEN")
	}
	if s.GithubWebhookSecret == "" {
		missing = append(missing, "GITHUB_WEBHOOK_SECRET")
	}
	if s.AIProvider == "openai" && s.OpenAIAPIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}
