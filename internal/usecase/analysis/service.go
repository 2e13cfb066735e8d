package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kindred-ai/matchengine/internal/domain"
	"github.com/kindred-ai/matchengine/internal/domain/metadata"
	domrecord "github.com/kindred-ai/matchengine/internal/domain/record"
	"github.com/kindred-ai/matchengine/internal/index"
	"github.com/kindred-ai/matchengine/internal/profile"
	"github.com/kindred-ai/matchengine/internal/repository/record"
)

const analysisCachePrefix = "matchengine:analysis:"

// Config bounds the analysis pipeline.
type Config struct {
	// TextBudget bounds the contract excerpt used for retrieval and for the
	// stored example preview.
	TextBudget int
	// AnalysisTTL bounds the report cache lifetime.
	AnalysisTTL time.Duration
	// RiskContextK is how many risk definitions feed the prompt.
	RiskContextK int
	// ExampleContextK is how many past analyses feed the prompt.
	ExampleContextK int
	// EmbedModel is the embedding model identity stamped on stored examples.
	EmbedModel string
}

// Options toggles per-request behavior.
type Options struct {
	UseCache bool
	UseRAG   bool
}

// Service audits contracts: retrieve risk knowledge, call the LLM, parse,
// cache, and feed the result back into the example corpus.
type Service struct {
	embedder  Embedder
	completer Completer
	searcher  Searcher
	examples  ExampleSearcher
	store     Store
	indexer   IndexWriter
	cache     Cache
	cfg       Config
	logger    *zap.Logger
}

// NewService wires the analysis pipeline.
func NewService(
	embedder Embedder,
	completer Completer,
	searcher Searcher,
	examples ExampleSearcher,
	store Store,
	indexer IndexWriter,
	cache Cache,
	cfg Config,
	logger *zap.Logger,
) *Service {
	return &Service{
		embedder:  embedder,
		completer: completer,
		searcher:  searcher,
		examples:  examples,
		store:     store,
		indexer:   indexer,
		cache:     cache,
		cfg:       cfg,
		logger:    logger,
	}
}

// Analyze audits one contract. The boolean result reports a cache hit.
// Parse failures yield a Report carrying the raw model text, not an error;
// an LLM outage after successful retrieval yields a heuristic degraded
// Report. Both skip the cache and example-store side effects.
func (s *Service) Analyze(ctx context.Context, text string, opts Options) (Report, bool, error) {
	return s.analyze(ctx, text, opts, nil)
}

// AnalyzeStream is Analyze with incremental delivery of raw model output.
// Chunks are display-only; the report is parsed once the stream completes.
func (s *Service) AnalyzeStream(ctx context.Context, text string, opts Options, onChunk func(delta string)) (Report, bool, error) {
	return s.analyze(ctx, text, opts, onChunk)
}

func (s *Service) analyze(ctx context.Context, text string, opts Options, onChunk func(delta string)) (Report, bool, error) {
	if strings.TrimSpace(text) == "" {
		return Report{}, false, fmt.Errorf("%w: empty contract text", domain.ErrInvalidInput)
	}

	key := cacheKey(text)
	if opts.UseCache {
		if rep, ok := s.fromCache(ctx, key); ok {
			return rep, true, nil
		}
	}

	var (
		vector   []float32
		riskHits []index.Hit
		ragCtx   string
	)
	if opts.UseRAG {
		vector, riskHits, ragCtx = s.retrieve(ctx, text)
	}

	userPrompt := buildAnalysisUserPrompt(text, ragCtx)

	var raw string
	var err error
	if onChunk != nil {
		raw, err = s.completer.Stream(ctx, analysisSystemPrompt, userPrompt, onChunk)
	} else {
		raw, err = s.completer.Complete(ctx, analysisSystemPrompt, userPrompt)
	}
	if err != nil {
		if errors.Is(err, domain.ErrLLMProviderError) && len(riskHits) > 0 {
			s.logger.Warn("LLM unavailable, returning heuristic analysis", zap.Error(err))
			return heuristicReport(riskHits), false, nil
		}
		return Report{}, false, fmt.Errorf("analyze contract: %w", err)
	}

	rep, err := parseReport(raw)
	if err != nil {
		s.logger.Warn("Analysis output unparsed, returning raw text", zap.Error(err))
		return rep, false, nil
	}

	s.toCache(ctx, key, rep)
	s.storeExample(ctx, text, vector, &rep)
	return rep, false, nil
}

// Rewrite produces a mitigated replacement for one clause.
func (s *Service) Rewrite(ctx context.Context, clauseText, riskType, guidance string) (string, error) {
	if strings.TrimSpace(clauseText) == "" {
		return "", fmt.Errorf("%w: empty clause text", domain.ErrInvalidInput)
	}

	out, err := s.completer.Complete(ctx, rewriteSystemPrompt, buildRewriteUserPrompt(clauseText, riskType, guidance))
	if err != nil {
		return "", fmt.Errorf("rewrite clause: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// retrieve embeds a bounded excerpt and gathers the RAG context. Retrieval is
// best-effort: any failure logs and returns what was gathered so far; the
// analysis proceeds with a thinner prompt.
func (s *Service) retrieve(ctx context.Context, text string) ([]float32, []index.Hit, string) {
	excerpt := profile.CompileFreeText(text, s.cfg.TextBudget)

	embedded, err := s.embedder.Embed(ctx, excerpt)
	if err != nil {
		s.logger.Warn("Retrieval embedding failed, analyzing without context", zap.Error(err))
		return nil, nil, ""
	}

	riskHits, err := s.searcher.Query(index.Query{
		Vector: embedded.Embedding,
		Corpus: domain.CorpusRiskDefinitions,
		TopK:   s.cfg.RiskContextK,
	})
	if err != nil {
		s.logger.Warn("Risk retrieval failed", zap.Error(err))
	}

	var exampleHits []record.SimilarHit
	if s.cfg.ExampleContextK > 0 {
		exampleHits, err = s.examples.SearchSimilar(ctx, domain.CorpusContractExamples, embedded.Embedding, s.cfg.ExampleContextK)
		if err != nil {
			s.logger.Warn("Example retrieval failed", zap.Error(err))
		}
	}

	return embedded.Embedding, riskHits, buildRAGContext(riskHits, exampleHits)
}

// storeExample feeds the finished analysis back into the example corpus so
// future audits retrieve it. Failures are logged, never surfaced.
func (s *Service) storeExample(ctx context.Context, text string, vector []float32, rep *Report) {
	preview := profile.CompileFreeText(text, s.cfg.TextBudget)

	if vector == nil {
		embedded, err := s.embedder.Embed(ctx, preview)
		if err != nil {
			s.logger.Warn("Skipping example store, embedding failed", zap.Error(err))
			return
		}
		vector = embedded.Embedding
	}

	id := "contract_" + shaPrefix(text)
	meta := metadata.Map{
		"risks_found":   metadata.StringList(rep.RiskTypes()...),
		"overall_score": metadata.Number(float64(rep.OverallRiskScore)),
	}

	rec, err := domrecord.New(id, domain.CorpusContractExamples, preview, meta)
	if err != nil {
		s.logger.Warn("Skipping example store, invalid record", zap.Error(err))
		return
	}
	rec = rec.WithEmbedding(vector, s.cfg.EmbedModel)
	rec = rec.WithSourceTag("analysis:" + uuid.NewString())

	if err := s.store.Upsert(ctx, rec); err != nil {
		s.logger.Warn("Failed to persist analyzed example", zap.String("id", id), zap.Error(err))
		return
	}
	if err := s.indexer.Upsert(rec); err != nil {
		s.logger.Warn("Failed to index analyzed example", zap.String("id", id), zap.Error(err))
	}
}

// heuristicReport summarizes the retrieved risk definitions when the LLM is
// down: no clause locations, severity from stored metadata.
func heuristicReport(riskHits []index.Hit) Report {
	rep := Report{
		Summary:  "Automated analysis is temporarily unavailable. The clauses most similar to known risk patterns are listed below; review them manually.",
		Degraded: true,
	}

	var total int
	for _, h := range riskHits {
		meta := h.Record.Metadata()
		severity := flexInt(5)
		if n, ok := meta.GetNumber("severity"); ok {
			severity = clamp(flexInt(n), 1, 10)
		}
		name, _ := meta.GetString("display_name")
		if name == "" {
			name = h.Record.ID()
		}
		rep.Risks = append(rep.Risks, Risk{
			Type:        h.Record.ID(),
			Severity:    severity,
			Explanation: name + " patterns resemble this contract (similarity " + fmt.Sprintf("%.2f", h.Similarity) + ")",
		})
		total += int(severity)
	}
	if len(rep.Risks) > 0 {
		rep.OverallRiskScore = clamp(flexInt(total*10/len(rep.Risks)), 1, 100)
	}
	return rep
}

func (s *Service) fromCache(ctx context.Context, key string) (Report, bool) {
	if s.cache == nil {
		return Report{}, false
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil || len(data) == 0 {
		return Report{}, false
	}
	var rep Report
	if err := json.Unmarshal(data, &rep); err != nil {
		s.logger.Warn("Corrupt cached analysis", zap.String("key", key), zap.Error(err))
		return Report{}, false
	}
	return rep, true
}

func (s *Service) toCache(ctx context.Context, key string, rep Report) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(rep)
	if err != nil {
		return
	}
	if err := s.cache.SetWithTTL(ctx, key, data, s.cfg.AnalysisTTL); err != nil {
		s.logger.Warn("Failed to cache analysis", zap.String("key", key), zap.Error(err))
	}
}

func cacheKey(text string) string {
	return analysisCachePrefix + shaPrefix(text)
}

// shaPrefix is the 16-hex-char content hash used for cache keys and example
// record ids.
func shaPrefix(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])[:16]
}
