// Package openai is the embedding provider client for OpenAI-compatible APIs.
package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kindred-ai/matchengine/internal/domain"
	"github.com/kindred-ai/matchengine/internal/metrics"
)

// Embedder is an embedding provider using the OpenAI-compatible API.
type Embedder struct {
	client        *openai.Client
	model         openai.EmbeddingModel
	dimensions    int
	provider      string
	maxRetries    int
	maxInputChars int
	logger        *zap.Logger
}

// Config holds the embedding provider settings.
type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	Dimensions    int
	Provider      string
	MaxRetries    int
	MaxInputChars int
	Logger        *zap.Logger
}

// NewEmbedder creates an OpenAI-compatible embedding provider.
func NewEmbedder(cfg *Config) *Embedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Embedder{
		client:        openai.NewClientWithConfig(clientCfg),
		model:         openai.EmbeddingModel(cfg.Model),
		dimensions:    cfg.Dimensions,
		provider:      cfg.Provider,
		maxRetries:    cfg.MaxRetries,
		maxInputChars: cfg.MaxInputChars,
		logger:        cfg.Logger,
	}
}

// Embed implements domain.Embedder. Over-long input is truncated rather than
// rejected (queries are user-authored, length cannot be controlled upstream).
// Transient provider failures are retried with capped exponential backoff;
// after the retry budget the error surfaces wrapped in ErrEmbeddingProviderError.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if text == "" {
		return domain.EmbeddingResult{}, fmt.Errorf("%w: empty text", domain.ErrInvalidInput)
	}
	text = truncate(text, e.maxInputChars)

	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt); err != nil {
				return domain.EmbeddingResult{}, fmt.Errorf("embedding retry aborted: %w", err)
			}
		}

		start := time.Now()
		resp, err := e.client.CreateEmbeddings(ctx, req)
		duration := time.Since(start)

		if err != nil {
			lastErr = err
			metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, string(e.model), "error").Inc()
			metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, string(e.model), "api_error").Inc()
			if isRetryable(err) && attempt < e.maxRetries {
				e.logger.Warn("Embedding request failed, retrying",
					zap.Int("attempt", attempt+1), zap.Error(err))
				continue
			}
			return domain.EmbeddingResult{}, wrapProviderError(err)
		}

		if len(resp.Data) == 0 {
			metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, string(e.model), "error").Inc()
			metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, string(e.model), "empty_response").Inc()
			return domain.EmbeddingResult{}, fmt.Errorf("empty embedding response: %w", domain.ErrEmbeddingProviderError)
		}

		vec := resp.Data[0].Embedding
		if e.dimensions > 0 && len(vec) != e.dimensions {
			// A silently padded or truncated vector would corrupt every
			// downstream similarity comparison. Fail loudly.
			metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, string(e.model), "dim_mismatch").Inc()
			return domain.EmbeddingResult{}, fmt.Errorf(
				"provider returned %d dimensions, expected %d: %w",
				len(vec), e.dimensions, domain.ErrVectorDimMismatch,
			)
		}

		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, string(e.model), "success").Inc()
		metrics.EmbeddingRequestDuration.WithLabelValues(e.provider, string(e.model)).Observe(duration.Seconds())

		totalTokens := resp.Usage.TotalTokens
		promptTokens := resp.Usage.PromptTokens
		if totalTokens > 0 {
			metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, string(e.model), "prompt").Add(float64(promptTokens))
			metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, string(e.model), "total").Add(float64(totalTokens))
		}

		return domain.EmbeddingResult{
			Embedding:    vec,
			PromptTokens: promptTokens,
			TotalTokens:  totalTokens,
		}, nil
	}

	return domain.EmbeddingResult{}, wrapProviderError(lastErr)
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// isRetryable reports whether an API error is transient: timeouts, 429, 5xx.
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

	// Transport-level failure (connection reset, timeout).
	return true
}

// wrapProviderError wraps all provider failures with domain.ErrEmbeddingProviderError
// for correct 502 mapping.
func wrapProviderError(err error) error {
	wrap := domain.ErrEmbeddingProviderError

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("embedding API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("embedding API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("embedding request failed: %v: %w", err, wrap)
}

// sleepBackoff waits 200ms * 2^(attempt-1), capped at 2s, honoring ctx.
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

// truncate bounds input to limit runes, prefix-based and deterministic.
func truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
