package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kindred-ai/matchengine/internal/domain"
	"github.com/kindred-ai/matchengine/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Register()
	m.Run()
}

type embeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type embeddingResponse struct {
	Data  []embeddingData `json:"data"`
	Model string          `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

func newTestEmbedder(t *testing.T, baseURL string, dims, maxRetries, maxChars int) *Embedder {
	t.Helper()
	return NewEmbedder(&Config{
		APIKey:        "test-key",
		BaseURL:       baseURL,
		Model:         "text-embedding-3-small",
		Dimensions:    dims,
		Provider:      "openai",
		MaxRetries:    maxRetries,
		MaxInputChars: maxChars,
		Logger:        zap.NewNop(),
	})
}

func embeddingsHandler(t *testing.T, dims int, usage bool) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected Authorization header: %q", got)
		}
		vec := make([]float32, dims)
		for i := range vec {
			vec[i] = 0.01
		}
		resp := embeddingResponse{
			Data:  []embeddingData{{Embedding: vec, Index: 0}},
			Model: "text-embedding-3-small",
		}
		if usage {
			resp.Usage.PromptTokens = 7
			resp.Usage.TotalTokens = 7
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func TestEmbed_Success(t *testing.T) {
	srv := httptest.NewServer(embeddingsHandler(t, 4, true))
	defer srv.Close()

	e := newTestEmbedder(t, srv.URL, 4, 2, 0)
	result, err := e.Embed(context.Background(), "friendly medium sized dog")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 4 {
		t.Fatalf("expected 4 dimensions, got %d", len(result.Embedding))
	}
	if result.TotalTokens != 7 {
		t.Fatalf("expected TotalTokens=7, got %d", result.TotalTokens)
	}
}

func TestEmbed_EmptyText(t *testing.T) {
	e := newTestEmbedder(t, "http://unreachable.invalid", 4, 0, 0)
	_, err := e.Embed(context.Background(), "")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(embeddingsHandler(t, 3, false))
	defer srv.Close()

	e := newTestEmbedder(t, srv.URL, 1536, 0, 0)
	_, err := e.Embed(context.Background(), "some text")
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestEmbed_RetryBudgetExhausted(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
	}))
	defer srv.Close()

	e := newTestEmbedder(t, srv.URL, 4, 2, 0)
	_, err := e.Embed(context.Background(), "some text")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts (1 + 2 retries), got %d", calls)
	}
}

func TestEmbed_RetrySucceedsAfterTransientFailure(t *testing.T) {
	var calls int
	ok := embeddingsHandler(t, 4, false)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
			return
		}
		ok(w, r)
	}))
	defer srv.Close()

	e := newTestEmbedder(t, srv.URL, 4, 2, 0)
	result, err := e.Embed(context.Background(), "some text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 4 {
		t.Fatalf("expected 4 dimensions, got %d", len(result.Embedding))
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestEmbed_NoRetryOnBadRequest(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid input"}}`))
	}))
	defer srv.Close()

	e := newTestEmbedder(t, srv.URL, 4, 2, 0)
	_, err := e.Embed(context.Background(), "some text")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("client errors must not be retried, got %d attempts", calls)
	}
}

func TestEmbed_TruncatesLongInput(t *testing.T) {
	var gotInput string
	ok := embeddingsHandler(t, 4, false)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && len(req.Input) > 0 {
			gotInput = req.Input[0]
		}
		ok(w, r)
	}))
	defer srv.Close()

	e := newTestEmbedder(t, srv.URL, 4, 0, 10)
	long := strings.Repeat("a", 100)
	if _, err := e.Embed(context.Background(), long); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(gotInput) != 10 {
		t.Fatalf("expected input truncated to 10 chars, got %d", len(gotInput))
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  string
	}{
		{"under limit", "short", 10, "short"},
		{"at limit", "exact", 5, "exact"},
		{"over limit", "truncate me", 8, "truncate"},
		{"zero disables", "anything", 0, "anything"},
		{"multibyte", "日本語テキスト", 3, "日本語"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncate(tt.text, tt.limit); got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.text, tt.limit, got, tt.want)
			}
		})
	}
}
