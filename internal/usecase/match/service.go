// Package match runs the full semantic matching pipeline: compile the
// structured input into prose, embed it, query the similarity index, and
// explain and re-rank the hits.
package match

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kindred-ai/matchengine/internal/domain"
	"github.com/kindred-ai/matchengine/internal/domain/match"
	"github.com/kindred-ai/matchengine/internal/index"
	"github.com/kindred-ai/matchengine/internal/metrics"
	"github.com/kindred-ai/matchengine/internal/profile"
)

// degradedMessage is returned in place of results when the embedding provider
// is down. Callers see an empty, flagged result set rather than an error.
const degradedMessage = "matching is temporarily unavailable, please try again"

// Config bounds the pipeline.
type Config struct {
	DefaultTopK         int
	SimilarityThreshold float64
	RerankEpsilon       float64
	ContractTextBudget  int
}

// Service orchestrates the match pipeline over one embedder and one index.
type Service struct {
	embedder Embedder
	searcher Searcher
	cfg      Config
	logger   *zap.Logger
}

// NewService creates the match pipeline service.
func NewService(embedder Embedder, searcher Searcher, cfg Config, logger *zap.Logger) *Service {
	return &Service{
		embedder: embedder,
		searcher: searcher,
		cfg:      cfg,
		logger:   logger,
	}
}

// Match runs the pipeline for quiz answers against the breed corpus.
// topK <= 0 falls back to the configured default. A metadata filter, when
// given, is applied before ranking so the top-K is drawn from the filtered
// set. An unavailable embedding provider yields a degraded empty Set, not an
// error.
func (s *Service) Match(ctx context.Context, answers profile.Answers, topK int, filter index.Filter) (match.Set, error) {
	profileText := profile.Compile(answers)
	if profileText == "" {
		return match.Set{}, fmt.Errorf("%w: empty quiz answers", domain.ErrInvalidInput)
	}

	return s.run(ctx, profileText, domain.CorpusBreeds, topK, filter, func(hits []index.Hit) []match.Result {
		return rerank(answers, hits, s.cfg.RerankEpsilon)
	})
}

// SearchRisks ranks the risk-definition corpus against a free-text query.
// Reasons come from the risk record's own metadata (severity, category), not
// from quiz rules.
func (s *Service) SearchRisks(ctx context.Context, query string, topK int) (match.Set, error) {
	text := profile.CompileFreeText(query, s.cfg.ContractTextBudget)
	if text == "" {
		return match.Set{}, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}

	return s.run(ctx, text, domain.CorpusRiskDefinitions, topK, nil, riskResults)
}

func (s *Service) run(
	ctx context.Context,
	text string,
	corpus domain.Corpus,
	topK int,
	filter index.Filter,
	explain func(hits []index.Hit) []match.Result,
) (match.Set, error) {
	if topK <= 0 {
		topK = s.cfg.DefaultTopK
	}

	embedded, err := s.embedder.Embed(ctx, text)
	if err != nil {
		if errors.Is(err, domain.ErrEmbeddingProviderError) {
			s.logger.Warn("Embedding provider unavailable, degrading match",
				zap.String("corpus", string(corpus)), zap.Error(err))
			metrics.MatchRequestsTotal.WithLabelValues(string(corpus), "degraded").Inc()
			return match.Set{
				Profile:  text,
				Degraded: true,
				Message:  degradedMessage,
			}, nil
		}
		metrics.MatchRequestsTotal.WithLabelValues(string(corpus), "error").Inc()
		return match.Set{}, fmt.Errorf("embed profile: %w", err)
	}

	hits, err := s.searcher.Query(index.Query{
		Vector:    embedded.Embedding,
		Corpus:    corpus,
		TopK:      topK,
		Threshold: s.cfg.SimilarityThreshold,
		Filter:    filter,
	})
	if err != nil {
		metrics.MatchRequestsTotal.WithLabelValues(string(corpus), "error").Inc()
		return match.Set{}, fmt.Errorf("query index: %w", err)
	}

	metrics.MatchRequestsTotal.WithLabelValues(string(corpus), "success").Inc()
	return match.Set{
		Results: explain(hits),
		Profile: text,
	}, nil
}

// riskResults annotates risk hits from their stored severity and category.
// Hits arrive pre-sorted from the index; ranks follow that order.
func riskResults(hits []index.Hit) []match.Result {
	results := make([]match.Result, len(hits))
	for i, h := range hits {
		var reasons []string
		meta := h.Record.Metadata()
		if severity, ok := meta.GetNumber("severity"); ok {
			reasons = append(reasons, fmt.Sprintf("Severity %d/10", int(severity)))
		}
		if category, ok := meta.GetString("category"); ok {
			reasons = append(reasons, "Category: "+category)
		}
		results[i] = match.Result{
			RecordID:   h.Record.ID(),
			Similarity: h.Similarity,
			Reasons:    reasons,
			Rank:       i + 1,
		}
	}
	return results
}
