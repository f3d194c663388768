package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"ContentPipeline/internal/config"
	"ContentPipeline/internal/domain"
)

// Client wraps the OpenAI-compatible chat API shared by every generation stage.
type Client struct {
	api       *openai.Client
	model     string
	maxTokens int
	timeout   time.Duration
	limiter   *rate.Limiter
}

// NewClient builds a client from configuration.
func NewClient(cfg config.LLMConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm api key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Client{
		api:       openai.NewClientWithConfig(clientConfig),
		model:     model,
		maxTokens: cfg.MaxTokens,
		timeout:   timeout,
		limiter:   rate.NewLimiter(limit, 1),
	}, nil
}

// Complete sends one system+user exchange and returns the trimmed answer.
// Quota exhaustion is reported as domain.ErrQuotaExceeded.
func (c *Client) Complete(ctx context.Context, system, user string, temperature float32) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("llm rate limit: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   c.maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// classify tags quota exhaustion so the orchestrator can abort the batch.
// Plain rate limiting (429 without a quota marker) stays an ordinary error.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := strings.ToLower(fmt.Sprint(apiErr.Code))
		if code == "insufficient_quota" || strings.EqualFold(apiErr.Type, "insufficient_quota") ||
			(apiErr.HTTPStatusCode == http.StatusTooManyRequests && mentionsQuota(apiErr.Message)) ||
			apiErr.HTTPStatusCode == http.StatusPaymentRequired {
			return fmt.Errorf("%w: %w", domain.ErrQuotaExceeded, err)
		}
		return fmt.Errorf("llm api: %w", err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == http.StatusPaymentRequired ||
			(reqErr.HTTPStatusCode == http.StatusTooManyRequests && mentionsQuota(string(reqErr.Body))) {
			return fmt.Errorf("%w: %w", domain.ErrQuotaExceeded, err)
		}
	}
	return fmt.Errorf("llm request: %w", err)
}

func mentionsQuota(text string) bool {
	text = strings.ToLower(text)
	return strings.Contains(text, "quota") || strings.Contains(text, "billing")
}
