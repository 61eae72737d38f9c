package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultOpenAIURL   = "https://api.openai.com/v1/chat/completions"
	defaultOpenAIModel = "gpt-4-turbo-preview"
)

type openAI struct {
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	client      *http.Client
}

// NewOpenAI builds a FixPlanProvider backed by the OpenAI chat completions
// API.
func NewOpenAI(cfg Config) (FixPlanProvider, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("openai: api key is not set")
	}
	backend := &openAI{
		apiKey:      cfg.OpenAIAPIKey,
		model:       cfg.OpenAIModel,
		baseURL:     cfg.OpenAIBaseURL,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: 120 * time.Second},
	}
	if backend.model == "" {
		backend.model = defaultOpenAIModel
	}
	if backend.baseURL == "" {
		backend.baseURL = defaultOpenAIURL
	}
	if backend.temperature == 0 {
		backend.temperature = 0.7
	}
	return newService(backend, cfg.Cache), nil
}

func (o *openAI) Name() string { return "openai" }

func (o *openAI) complete(ctx context.Context, system, user string) (string, error) {
	body := chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   4096,
		Temperature: o.temperature,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	var content string
	err = retryWithBackoff(ctx, 3, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

		httpResp, err := o.client.Do(httpReq)
		if err != nil {
			return &Error{Kind: ErrUnavailable, Message: err.Error()}
		}
		defer httpResp.Body.Close()

		respBody, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		if err := classifyStatus(httpResp.StatusCode, respBody); err != nil {
			return err
		}

		var result chatResponse
		if err := json.Unmarshal(respBody, &result); err != nil {
			return &Error{Kind: ErrMalformed, Message: err.Error()}
		}
		if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
			return &Error{Kind: ErrMalformed, Message: "no completion text in response"}
		}

		content = result.Choices[0].Message.Content
		return nil
	})

	return content, err
}

func classifyStatus(status int, body []byte) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusTooManyRequests:
		return &Error{Kind: ErrRateLimit, Status: status, Message: "rate limited"}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{Kind: ErrAuth, Status: status, Message: string(body)}
	case status >= 500:
		return &Error{Kind: ErrUnavailable, Status: status, Message: string(body)}
	default:
		return &Error{Kind: ErrMalformed, Status: status, Message: string(body)}
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}
