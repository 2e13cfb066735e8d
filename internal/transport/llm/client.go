// Package llm is the chat-completion client used by contract analysis.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kindred-ai/matchengine/internal/domain"
	"github.com/kindred-ai/matchengine/internal/metrics"
)

// Client calls an OpenAI-compatible chat completion API.
type Client struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	maxRetries  int
	logger      *zap.Logger
}

// Config holds the chat completion client settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	MaxRetries  int
	Logger      *zap.Logger
}

// NewClient creates a chat completion client.
func NewClient(cfg *Config) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		maxRetries:  cfg.MaxRetries,
		logger:      cfg.Logger,
	}
}

// Complete sends a system+user prompt pair and returns the full completion
// text. Transient failures are retried with the same backoff policy as the
// embedding client; final failures wrap ErrLLMProviderError.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt); err != nil {
				return "", fmt.Errorf("completion retry aborted: %w", err)
			}
		}

		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			lastErr = err
			metrics.LLMRequestsTotal.WithLabelValues(c.model, "error").Inc()
			if isRetryable(err) && attempt < c.maxRetries {
				c.logger.Warn("Chat completion failed, retrying",
					zap.Int("attempt", attempt+1), zap.Error(err))
				continue
			}
			return "", wrapLLMError(err)
		}

		if len(resp.Choices) == 0 {
			metrics.LLMRequestsTotal.WithLabelValues(c.model, "error").Inc()
			return "", fmt.Errorf("empty completion response: %w", domain.ErrLLMProviderError)
		}

		metrics.LLMRequestsTotal.WithLabelValues(c.model, "success").Inc()
		return resp.Choices[0].Message.Content, nil
	}

	return "", wrapLLMError(lastErr)
}

// Stream sends a system+user prompt pair and invokes onChunk for each delta
// as it arrives, returning the accumulated text once the stream ends. Parsing
// of the accumulated text is the caller's job; partial output is for display
// only.
func (c *Client) Stream(ctx context.Context, system, user string, onChunk func(delta string)) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Stream:      true,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(c.model, "error").Inc()
		return "", wrapLLMError(err)
	}
	defer stream.Close()

	var full []byte
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			metrics.LLMRequestsTotal.WithLabelValues(c.model, "error").Inc()
			return "", wrapLLMError(err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full = append(full, delta...)
		if onChunk != nil {
			onChunk(delta)
		}
	}

	metrics.LLMRequestsTotal.WithLabelValues(c.model, "success").Inc()
	return string(full), nil
}

// isRetryable reports whether a completion error is transient: 429 or 5xx.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}

	return true
}

func wrapLLMError(err error) error {
	wrap := domain.ErrLLMProviderError

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("completion API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("completion API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), wrap)
	}

	return fmt.Errorf("completion request failed: %v: %w", err, wrap)
}

func sleepBackoff(ctx context.Context, attempt int) error {
	d := 200 * time.Millisecond << (attempt - 1)
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
