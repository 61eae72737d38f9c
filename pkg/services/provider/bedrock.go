package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
)

const defaultBedrockModelID = "anthropic.claude-3-sonnet-20240229-v1:0"

type bedrockAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

type bedrock struct {
	api     bedrockAPI
	modelID string
}

// NewBedrock builds a FixPlanProvider backed by Anthropic models on AWS
// Bedrock. Credentials come from the default AWS credential chain.
func NewBedrock(ctx context.Context, cfg Config) (FixPlanProvider, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	modelID := cfg.BedrockModelID
	if modelID == "" {
		modelID = defaultBedrockModelID
	}
	backend := &bedrock{api: bedrockruntime.NewFromConfig(awsCfg), modelID: modelID}
	return newService(backend, cfg.Cache), nil
}

func (b *bedrock) Name() string { return "bedrock" }

func (b *bedrock) complete(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(anthropicRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        4096,
		System:           system,
		Messages: []anthropicMessage{
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	var content string
	err = retryWithBackoff(ctx, 3, func() error {
		out, err := b.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(b.modelID),
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
			Body:        body,
		})
		if err != nil {
			return classifyBedrockError(err)
		}

		var result anthropicResponse
		if err := json.Unmarshal(out.Body, &result); err != nil {
			return &Error{Kind: ErrMalformed, Message: err.Error()}
		}

		var parts []string
		for _, block := range result.Content {
			if block.Type == "text" {
				parts = append(parts, block.Text)
			}
		}
		if len(parts) == 0 {
			return &Error{Kind: ErrMalformed, Message: "no text content in response"}
		}
		content = strings.Join(parts, "")
		return nil
	})

	return content, err
}

func classifyBedrockError(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return &Error{Kind: ErrUnavailable, Message: err.Error()}
	}
	switch apiErr.ErrorCode() {
	case "ThrottlingException", "TooManyRequestsException":
		return &Error{Kind: ErrRateLimit, Message: apiErr.ErrorMessage()}
	case "AccessDeniedException", "UnrecognizedClientException", "ExpiredTokenException":
		return &Error{Kind: ErrAuth, Message: apiErr.ErrorMessage()}
	case "ValidationException":
		return &Error{Kind: ErrMalformed, Message: apiErr.ErrorMessage()}
	default:
		return &Error{Kind: ErrUnavailable, Message: apiErr.ErrorMessage()}
	}
}

type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	System           string             `json:"system,omitempty"`
	Messages         []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
