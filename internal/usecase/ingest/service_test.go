package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kindred-ai/matchengine/internal/domain"
	"github.com/kindred-ai/matchengine/internal/domain/metadata"
	"github.com/kindred-ai/matchengine/internal/domain/record"
)

type mockEmbedder struct {
	mu     sync.Mutex
	err    error
	failOn map[string]bool
	calls  int
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	if m.failOn[text] {
		return domain.EmbeddingResult{}, domain.ErrEmbeddingProviderError
	}
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2}}, nil
}

type mockRepo struct {
	mu       sync.Mutex
	upserted map[string]record.Record
	all      []record.Record
	listErr  error
}

func (m *mockRepo) Upsert(_ context.Context, rec record.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upserted == nil {
		m.upserted = make(map[string]record.Record)
	}
	m.upserted[rec.ID()] = rec
	return nil
}

func (m *mockRepo) ListAll(_ context.Context) ([]record.Record, error) {
	return m.all, m.listErr
}

type mockIndex struct {
	mu       sync.Mutex
	upserted []record.Record
	swapped  []record.Record
	swapErr  error
}

func (m *mockIndex) Swap(records []record.Record) error {
	if m.swapErr != nil {
		return m.swapErr
	}
	m.swapped = records
	return nil
}

func (m *mockIndex) Upsert(rec record.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserted = append(m.upserted, rec)
	return nil
}

func (m *mockIndex) Model() string { return "text-embedding-3-small" }

func newTestService() (*Service, *mockEmbedder, *mockRepo, *mockIndex) {
	emb := &mockEmbedder{}
	repo := &mockRepo{}
	idx := &mockIndex{}
	return NewService(emb, repo, idx, zap.NewNop()), emb, repo, idx
}

func breedItem(id string) Item {
	return Item{
		ID:     id,
		Corpus: domain.CorpusBreeds,
		Text:   id + " is a friendly breed",
		Meta: metadata.Map{
			"size_category": metadata.String("Medium"),
		},
		SourceTag: "seed:breeds",
	}
}

func TestIngestBatch_AllSucceed(t *testing.T) {
	svc, _, repo, idx := newTestService()

	items := []Item{breedItem("beagle"), breedItem("poodle"), breedItem("husky")}
	batch, err := svc.IngestBatch(context.Background(), items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if batch.BatchID == "" {
		t.Fatal("expected a batch id")
	}
	if batch.Failed() != 0 {
		t.Fatalf("expected no failures, got %d", batch.Failed())
	}
	if len(repo.upserted) != 3 || len(idx.upserted) != 3 {
		t.Fatalf("expected 3 records persisted and indexed, got %d / %d", len(repo.upserted), len(idx.upserted))
	}

	rec := repo.upserted["beagle"]
	if rec.EmbedModel() != "text-embedding-3-small" {
		t.Fatalf("record missing model identity: %q", rec.EmbedModel())
	}
	if rec.SourceTag() != "seed:breeds" {
		t.Fatalf("record missing source tag: %q", rec.SourceTag())
	}
	if len(rec.Vector()) == 0 {
		t.Fatal("record missing embedding")
	}
}

func TestIngestBatch_OneItemFailureIsIsolated(t *testing.T) {
	svc, emb, repo, _ := newTestService()
	emb.failOn = map[string]bool{"poodle is a friendly breed": true}

	items := []Item{breedItem("beagle"), breedItem("poodle")}
	batch, err := svc.IngestBatch(context.Background(), items)
	if err != nil {
		t.Fatalf("batch must not fail on one bad item: %v", err)
	}
	if batch.Failed() != 1 {
		t.Fatalf("expected 1 failure, got %d", batch.Failed())
	}
	if batch.Results[0].Err != nil || batch.Results[1].Err == nil {
		t.Fatalf("results out of order: %+v", batch.Results)
	}
	if _, ok := repo.upserted["beagle"]; !ok {
		t.Fatal("healthy item must still be persisted")
	}
	if _, ok := repo.upserted["poodle"]; ok {
		t.Fatal("failed item must not be persisted")
	}
}

func TestIngestBatch_InvalidItemReported(t *testing.T) {
	svc, emb, _, _ := newTestService()

	items := []Item{{ID: "bad id!", Corpus: domain.CorpusBreeds, Text: "text"}}
	batch, err := svc.IngestBatch(context.Background(), items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if batch.Failed() != 1 {
		t.Fatalf("expected validation failure, got %+v", batch.Results)
	}
	if emb.calls != 0 {
		t.Fatal("invalid items must not reach the embedder")
	}
}

func TestReload_SkipsUnembedded(t *testing.T) {
	svc, _, repo, idx := newTestService()

	embedded := record.Reconstruct("a", domain.CorpusBreeds, "text", []float32{0.1, 0.2}, "text-embedding-3-small", nil, "", time.Time{}, time.Time{})
	bare := record.Reconstruct("b", domain.CorpusBreeds, "text", nil, "", nil, "", time.Time{}, time.Time{})
	repo.all = []record.Record{embedded, bare}

	n, err := svc.Reload(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 indexed record, got %d", n)
	}
	if len(idx.swapped) != 1 || idx.swapped[0].ID() != "a" {
		t.Fatalf("unexpected snapshot: %v", idx.swapped)
	}
}

func TestReload_SwapFailurePropagates(t *testing.T) {
	svc, _, repo, idx := newTestService()
	repo.all = []record.Record{
		record.Reconstruct("a", domain.CorpusBreeds, "text", []float32{0.1}, "other-model", nil, "", time.Time{}, time.Time{}),
	}
	idx.swapErr = domain.ErrModelMismatch

	if _, err := svc.Reload(context.Background()); !errors.Is(err, domain.ErrModelMismatch) {
		t.Fatalf("expected model mismatch to propagate, got %v", err)
	}
}

func TestSeedRiskDefinitions(t *testing.T) {
	svc, _, repo, _ := newTestService()

	batch, err := svc.SeedRiskDefinitions(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if batch.Failed() != 0 {
		t.Fatalf("seed must not fail: %+v", batch.Results)
	}
	if len(repo.upserted) != len(riskTaxonomy) {
		t.Fatalf("expected %d risk definitions, got %d", len(riskTaxonomy), len(repo.upserted))
	}

	rec, ok := repo.upserted["indemnification"]
	if !ok {
		t.Fatal("indemnification definition missing")
	}
	if rec.Corpus() != domain.CorpusRiskDefinitions {
		t.Fatalf("wrong corpus: %s", rec.Corpus())
	}
	if name, _ := rec.Metadata().GetString("display_name"); name != "Indemnification" {
		t.Fatalf("unexpected display name: %q", name)
	}
	if indicators, ok := rec.Metadata().GetList("key_indicators"); !ok || len(indicators) != 4 {
		t.Fatalf("unexpected indicators: %v", indicators)
	}
}

