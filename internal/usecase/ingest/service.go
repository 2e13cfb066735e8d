// Package ingest builds, embeds, persists, and indexes corpus records.
// Ingestion validates metadata up front so query-time code never sees
// malformed attributes.
package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kindred-ai/matchengine/internal/domain"
	"github.com/kindred-ai/matchengine/internal/domain/metadata"
	"github.com/kindred-ai/matchengine/internal/domain/record"
)

// embedConcurrency bounds parallel provider calls during a batch.
const embedConcurrency = 4

// Item is one source row to ingest.
type Item struct {
	ID        string
	Corpus    domain.Corpus
	Text      string
	Meta      metadata.Map
	SourceTag string
}

// ItemResult reports the outcome for one item. Err is nil on success.
type ItemResult struct {
	ID  string
	Err error
}

// BatchResult is the per-item outcome of one ingestion run. One item failing
// does not fail the batch.
type BatchResult struct {
	BatchID string
	Results []ItemResult
}

// Failed returns the number of items that did not ingest.
func (b *BatchResult) Failed() int {
	n := 0
	for _, r := range b.Results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// Service ingests records: validate, embed, persist, index.
type Service struct {
	embedder Embedder
	repo     Repo
	index    Index
	logger   *zap.Logger
}

// NewService wires the ingestion pipeline.
func NewService(embedder Embedder, repo Repo, index Index, logger *zap.Logger) *Service {
	return &Service{
		embedder: embedder,
		repo:     repo,
		index:    index,
		logger:   logger,
	}
}

// IngestBatch processes items concurrently: each is validated, embedded,
// persisted, and made searchable. Duplicate IDs resolve last-writer-wins.
// The returned BatchResult carries one entry per input item in input order.
func (s *Service) IngestBatch(ctx context.Context, items []Item) (BatchResult, error) {
	batch := BatchResult{
		BatchID: uuid.NewString(),
		Results: make([]ItemResult, len(items)),
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			err := s.ingestOne(ctx, item)
			mu.Lock()
			batch.Results[i] = ItemResult{ID: item.ID, Err: err}
			mu.Unlock()
			if err != nil {
				s.logger.Warn("Item failed to ingest",
					zap.String("batch_id", batch.BatchID),
					zap.String("id", item.ID),
					zap.Error(err))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return batch, fmt.Errorf("ingest batch %s: %w", batch.BatchID, err)
	}

	s.logger.Info("Batch ingested",
		zap.String("batch_id", batch.BatchID),
		zap.Int("total", len(items)),
		zap.Int("failed", batch.Failed()))
	return batch, nil
}

func (s *Service) ingestOne(ctx context.Context, item Item) error {
	rec, err := record.New(item.ID, item.Corpus, item.Text, item.Meta)
	if err != nil {
		return fmt.Errorf("build record: %w", err)
	}

	embedded, err := s.embedder.Embed(ctx, rec.Text())
	if err != nil {
		return fmt.Errorf("embed record: %w", err)
	}

	rec = rec.WithEmbedding(embedded.Embedding, s.index.Model())
	if item.SourceTag != "" {
		rec = rec.WithSourceTag(item.SourceTag)
	}

	if err := s.repo.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("persist record: %w", err)
	}
	if err := s.index.Upsert(rec); err != nil {
		return fmt.Errorf("index record: %w", err)
	}
	return nil
}

// Reload hydrates the in-memory index from the durable store, atomically
// replacing the whole snapshot. Records without an embedding are skipped;
// records embedded by a foreign model fail the reload rather than silently
// mixing vector spaces.
func (s *Service) Reload(ctx context.Context) (int, error) {
	all, err := s.repo.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load records: %w", err)
	}

	indexable := make([]record.Record, 0, len(all))
	for _, rec := range all {
		if len(rec.Vector()) == 0 {
			s.logger.Warn("Skipping record without embedding", zap.String("id", rec.ID()))
			continue
		}
		indexable = append(indexable, rec)
	}

	if err := s.index.Swap(indexable); err != nil {
		return 0, fmt.Errorf("swap index: %w", err)
	}

	s.logger.Info("Index reloaded",
		zap.Int("indexed", len(indexable)),
		zap.Int("skipped", len(all)-len(indexable)))
	return len(indexable), nil
}

// SeedRiskDefinitions ingests the built-in risk taxonomy, skipping nothing:
// re-seeding overwrites in place (last-writer-wins), so it is idempotent.
func (s *Service) SeedRiskDefinitions(ctx context.Context) (BatchResult, error) {
	return s.IngestBatch(ctx, riskSeedItems())
}
