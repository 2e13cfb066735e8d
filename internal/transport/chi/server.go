// Package chi exposes the match engine over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	chirouter "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kindred-ai/matchengine/internal/domain"
	dommatch "github.com/kindred-ai/matchengine/internal/domain/match"
	"github.com/kindred-ai/matchengine/internal/domain/metadata"
	domrecord "github.com/kindred-ai/matchengine/internal/domain/record"
	"github.com/kindred-ai/matchengine/internal/index"
	"github.com/kindred-ai/matchengine/internal/logger"
	"github.com/kindred-ai/matchengine/internal/profile"
	"github.com/kindred-ai/matchengine/internal/usecase/analysis"
	healthuc "github.com/kindred-ai/matchengine/internal/usecase/health"
)

// Matcher runs the semantic match pipeline.
type Matcher interface {
	Match(ctx context.Context, answers profile.Answers, topK int, filter index.Filter) (dommatch.Set, error)
	SearchRisks(ctx context.Context, query string, topK int) (dommatch.Set, error)
}

// Analyzer audits contract text.
type Analyzer interface {
	Analyze(ctx context.Context, text string, opts analysis.Options) (analysis.Report, bool, error)
	AnalyzeStream(ctx context.Context, text string, opts analysis.Options, onChunk func(delta string)) (analysis.Report, bool, error)
	Rewrite(ctx context.Context, clauseText, riskType, guidance string) (string, error)
}

// Catalog reads the stored corpora.
type Catalog interface {
	ListByCorpus(ctx context.Context, corpus domain.Corpus) ([]domrecord.Record, error)
	CountByCorpus(ctx context.Context) (map[domain.Corpus]int, error)
}

// HealthService aggregates component checks.
type HealthService interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the HTTP handlers.
type Server struct {
	matcher       Matcher
	analyzer      Analyzer
	catalog       Catalog
	health        HealthService
	indexSize     func() int
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. indexSize reports the live index
// record count for /stats.
func NewServer(
	matcher Matcher,
	analyzer Analyzer,
	catalog Catalog,
	health HealthService,
	indexSize func() int,
	logger *zap.Logger,
) *Server {
	s := &Server{
		matcher:   matcher,
		analyzer:  analyzer,
		catalog:   catalog,
		health:    health,
		indexSize: indexSize,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrRecordNotFound, http.StatusNotFound, "record_not_found"),
		sentinelHandler(domain.ErrCorpusUnknown, http.StatusBadRequest, "corpus_unknown"),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, "vector_dim_mismatch"),
		sentinelHandler(domain.ErrInvalidMetadata, http.StatusBadRequest, "invalid_metadata"),
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, "invalid_input"),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, "embedding_provider_error"),
		sentinelHandler(domain.ErrLLMProviderError, http.StatusBadGateway, "llm_provider_error"),
	}
	return s
}

// Mount registers all routes on the router.
func (s *Server) Mount(r chirouter.Router) {
	r.Route("/api/v1", func(r chirouter.Router) {
		r.Post("/match", s.handleMatch)
		r.Get("/breeds", s.handleListBreeds)
		r.Post("/risks/search", s.handleSearchRisks)
		r.Post("/contracts/analyze", s.handleAnalyze)
		r.Post("/contracts/analyze/stream", s.handleAnalyzeStream)
		r.Post("/contracts/rewrite", s.handleRewrite)
		r.Get("/stats", s.handleStats)
	})
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
}

type quizAnswers struct {
	LivingSituation       string   `json:"living_situation"`
	ActivityLevel         string   `json:"activity_level"`
	Experience            string   `json:"experience"`
	SizePreference        string   `json:"size_preference"`
	ExerciseCommitment    string   `json:"exercise_commitment"`
	GroomingTolerance     string   `json:"grooming_tolerance"`
	SheddingTolerance     string   `json:"shedding_tolerance"`
	FamilySituation       string   `json:"family_situation"`
	TemperamentPreference []string `json:"temperament_preference"`
	TrainingCommitment    string   `json:"training_commitment"`
}

func (q quizAnswers) toDomain() profile.Answers {
	return profile.Answers{
		LivingSituation:       q.LivingSituation,
		ActivityLevel:         q.ActivityLevel,
		Experience:            q.Experience,
		SizePreference:        q.SizePreference,
		ExerciseCommitment:    q.ExerciseCommitment,
		GroomingTolerance:     q.GroomingTolerance,
		SheddingTolerance:     q.SheddingTolerance,
		FamilySituation:       q.FamilySituation,
		TemperamentPreference: q.TemperamentPreference,
		TrainingCommitment:    q.TrainingCommitment,
	}
}

type matchRequest struct {
	QuizAnswers quizAnswers `json:"quiz_answers"`
	TopK        int         `json:"top_k"`
	// SizeFilter restricts candidates by size_category before ranking.
	SizeFilter string `json:"size_filter,omitempty"`
}

type matchEntry struct {
	RecordID   string   `json:"record_id"`
	Similarity float64  `json:"similarity"`
	Reasons    []string `json:"match_reasons"`
	Rank       int      `json:"rank"`
}

type matchResponse struct {
	Matches     []matchEntry `json:"matches"`
	UserProfile string       `json:"user_profile"`
	Degraded    bool         `json:"degraded,omitempty"`
	Message     string       `json:"message,omitempty"`
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	var filter index.Filter
	if req.SizeFilter != "" {
		want := req.SizeFilter
		filter = func(rec *domrecord.Record) bool {
			size, ok := rec.Metadata().GetString("size_category")
			return ok && size == want
		}
	}

	set, err := s.matcher.Match(r.Context(), req.QuizAnswers.toDomain(), req.TopK, filter)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, matchSetToResponse(set))
}

type riskSearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

func (s *Server) handleSearchRisks(w http.ResponseWriter, r *http.Request) {
	var req riskSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	set, err := s.matcher.SearchRisks(r.Context(), req.Query, req.TopK)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, matchSetToResponse(set))
}

type breedEntry struct {
	ID          string       `json:"id"`
	Description string       `json:"description"`
	Metadata    metadata.Map `json:"metadata,omitempty"`
}

func (s *Server) handleListBreeds(w http.ResponseWriter, r *http.Request) {
	recs, err := s.catalog.ListByCorpus(r.Context(), domain.CorpusBreeds)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]breedEntry, len(recs))
	for i := range recs {
		items[i] = recordToBreed(&recs[i])
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"breeds": items,
		"count":  len(items),
	})
}

type analyzeRequest struct {
	Text     string `json:"text"`
	UseCache *bool  `json:"use_cache,omitempty"`
	UseRAG   *bool  `json:"use_rag,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAnalyzeRequest(w, r)
	if !ok {
		return
	}

	rep, fromCache, err := s.analyzer.Analyze(r.Context(), req.Text, analyzeOptions(req))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"analysis":   rep,
		"from_cache": fromCache,
	})
}

// handleAnalyzeStream streams raw model output as SSE data events, then a
// final "result" event with the parsed report.
func (s *Server) handleAnalyzeStream(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAnalyzeRequest(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	rep, fromCache, err := s.analyzer.AnalyzeStream(r.Context(), req.Text, analyzeOptions(req), func(delta string) {
		writeSSE(w, "chunk", delta)
		flusher.Flush()
	})
	if err != nil {
		s.logger.Warn("Analysis stream failed", zap.Error(err))
		writeSSE(w, "error", safeDomainMessage(err))
		flusher.Flush()
		return
	}

	final, _ := json.Marshal(map[string]any{
		"analysis":   rep,
		"from_cache": fromCache,
	})
	writeSSE(w, "result", string(final))
	flusher.Flush()
}

type rewriteRequest struct {
	ClauseText string `json:"clause_text"`
	RiskType   string `json:"risk_type"`
	Context    string `json:"context"`
}

func (s *Server) handleRewrite(w http.ResponseWriter, r *http.Request) {
	var req rewriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	out, err := s.analyzer.Rewrite(r.Context(), req.ClauseText, req.RiskType, req.Context)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"rewritten_text": out})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.catalog.CountByCorpus(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	total := 0
	byCorpus := make(map[string]int, len(counts))
	for corpus, n := range counts {
		byCorpus[string(corpus)] = n
		total += n
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"corpora":         byCorpus,
		"total_records":   total,
		"indexed_records": s.indexSize(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

func decodeAnalyzeRequest(w http.ResponseWriter, r *http.Request) (analyzeRequest, bool) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return analyzeRequest{}, false
	}
	return req, true
}

// analyzeOptions defaults use_cache and use_rag to true when omitted.
func analyzeOptions(req analyzeRequest) analysis.Options {
	opts := analysis.Options{UseCache: true, UseRAG: true}
	if req.UseCache != nil {
		opts.UseCache = *req.UseCache
	}
	if req.UseRAG != nil {
		opts.UseRAG = *req.UseRAG
	}
	return opts
}

func matchSetToResponse(set dommatch.Set) matchResponse {
	entries := make([]matchEntry, len(set.Results))
	for i, res := range set.Results {
		entries[i] = matchEntry{
			RecordID:   res.RecordID,
			Similarity: res.Similarity,
			Reasons:    res.Reasons,
			Rank:       res.Rank,
		}
	}
	return matchResponse{
		Matches:     entries,
		UserProfile: set.Profile,
		Degraded:    set.Degraded,
		Message:     set.Message,
	}
}

func recordToBreed(rec *domrecord.Record) breedEntry {
	return breedEntry{
		ID:          rec.ID(),
		Description: rec.Text(),
		Metadata:    rec.Metadata(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}

func writeSSE(w http.ResponseWriter, event, data string) {
	_, _ = w.Write([]byte("event: " + event + "\ndata: " + data + "\n\n"))
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrRecordNotFound,
		domain.ErrCorpusUnknown,
		domain.ErrVectorDimMismatch,
		domain.ErrModelMismatch,
		domain.ErrInvalidMetadata,
		domain.ErrInvalidInput,
		domain.ErrEmbeddingProviderError,
		domain.ErrLLMProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	logger.FromContext(r.Context()).Error("unhandled domain error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
