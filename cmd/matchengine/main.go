package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/kindred-ai/matchengine/internal/config"
	dbRedis "github.com/kindred-ai/matchengine/internal/db/redis"
	"github.com/kindred-ai/matchengine/internal/domain"
	"github.com/kindred-ai/matchengine/internal/index"
	logpkg "github.com/kindred-ai/matchengine/internal/logger"
	"github.com/kindred-ai/matchengine/internal/metrics"
	"github.com/kindred-ai/matchengine/internal/repository/embcache"
	recordrepo "github.com/kindred-ai/matchengine/internal/repository/record"
	chiTransport "github.com/kindred-ai/matchengine/internal/transport/chi"
	"github.com/kindred-ai/matchengine/internal/transport/llm"
	openaiEmb "github.com/kindred-ai/matchengine/internal/transport/openai"
	analysisuc "github.com/kindred-ai/matchengine/internal/usecase/analysis"
	healthuc "github.com/kindred-ai/matchengine/internal/usecase/health"
	ingestuc "github.com/kindred-ai/matchengine/internal/usecase/ingest"
	matchuc "github.com/kindred-ai/matchengine/internal/usecase/match"
	"github.com/kindred-ai/matchengine/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting matchengine API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("embed_model", cfg.Embedding.Model),
		zap.String("llm_model", cfg.LLM.Model),
	)

	ctx := context.Background()

	// Durable record store (Postgres + pgvector)
	pool, err := pgxpool.New(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("Failed to create database pool", zap.Error(err))
	}
	defer pool.Close()

	readyCtx, cancelReady := context.WithTimeout(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second)
	if err := pool.Ping(readyCtx); err != nil {
		cancelReady()
		logger.Fatal("Database not ready", zap.Error(err))
	}
	cancelReady()

	repo := recordrepo.NewRepo(pool, cfg.Embedding.Dimensions)
	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to ensure schema", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Key-value cache (optional — the engine runs without it, uncached)
	var cache *dbRedis.Store
	if len(cfg.Cache.Addrs) > 0 {
		cache, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create cache store", zap.Error(err))
		}
		defer cache.Close()

		if err := cache.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Cache not ready", zap.Error(err))
		}
		logger.Info("Connected to cache")
	}

	// Register metrics explicitly (no init())
	metrics.Register()
	metrics.RegisterHTTP()

	// Build embedder chain — composition root
	embedder := buildEmbedder(cfg, cache, logger)
	logger.Info("Embedder created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	llmClient := llm.NewClient(&llm.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		MaxRetries:  cfg.Embedding.MaxRetries,
		Logger:      logger,
	})

	// In-memory similarity index, hydrated from the durable store
	idx := index.New(cfg.Embedding.Dimensions, cfg.Embedding.Model)

	ingestSvc := ingestuc.NewService(embedder, repo, idx, logger)

	counts, err := repo.CountByCorpus(ctx)
	if err != nil {
		logger.Fatal("Failed to inspect corpora", zap.Error(err))
	}
	if counts[domain.CorpusRiskDefinitions] == 0 {
		batch, err := ingestSvc.SeedRiskDefinitions(ctx)
		if err != nil {
			logger.Fatal("Failed to seed risk taxonomy", zap.Error(err))
		}
		if n := batch.Failed(); n > 0 {
			logger.Warn("Some risk definitions failed to seed", zap.Int("failed", n))
		}
	}

	indexed, err := ingestSvc.Reload(ctx)
	if err != nil {
		logger.Fatal("Failed to hydrate index", zap.Error(err))
	}
	logger.Info("Index hydrated", zap.Int("records", indexed))

	// Use case services
	matchSvc := matchuc.NewService(embedder, idx, matchuc.Config{
		DefaultTopK:         cfg.Match.DefaultTopK,
		SimilarityThreshold: cfg.Match.SimilarityThreshold,
		RerankEpsilon:       cfg.Match.RerankEpsilon,
		ContractTextBudget:  cfg.Match.ContractTextBudget,
	}, logger)

	var analysisCache analysisuc.Cache
	if cache != nil {
		analysisCache = cache
	}
	analysisSvc := analysisuc.NewService(
		embedder, llmClient, idx, repo, repo, idx, analysisCache,
		analysisuc.Config{
			TextBudget:      cfg.Match.ContractTextBudget,
			AnalysisTTL:     time.Duration(cfg.Cache.AnalysisTTL) * time.Second,
			RiskContextK:    cfg.Match.DefaultTopK,
			ExampleContextK: 2,
			EmbedModel:      cfg.Embedding.Model,
		},
		logger,
	)

	var cachePinger healthuc.CachePinger
	if cache != nil {
		cachePinger = cache
	}
	healthSvc := healthuc.New(repo, cachePinger, newEmbeddingHealthChecker(embedder))

	// Create chi server
	server := chiTransport.NewServer(matchSvc, analysisSvc, repo, healthSvc, idx.Len, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Mount(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached.
func buildEmbedder(cfg config.Config, cache *dbRedis.Store, logger *zap.Logger) domain.Embedder {
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:        cfg.Embedding.APIKey,
		BaseURL:       cfg.Embedding.BaseURL,
		Model:         cfg.Embedding.Model,
		Dimensions:    cfg.Embedding.Dimensions,
		Provider:      "openai",
		MaxRetries:    cfg.Embedding.MaxRetries,
		MaxInputChars: cfg.Embedding.MaxInputChars,
		Logger:        logger,
	})

	if cache == nil {
		return base
	}
	ttl := time.Duration(cfg.Cache.EmbedTTLSec) * time.Second
	return embcache.New(base, cache, ttl, metrics.EmbeddingCacheTotal, logger)
}

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
