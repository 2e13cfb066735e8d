package ingest

import (
	"context"

	"github.com/kindred-ai/matchengine/internal/domain"
	"github.com/kindred-ai/matchengine/internal/domain/record"
)

// Embedder converts text to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Repo persists records durably.
type Repo interface {
	Upsert(ctx context.Context, rec record.Record) error
	ListAll(ctx context.Context) ([]record.Record, error)
}

// Index is the live query structure kept in sync with the repo.
type Index interface {
	Swap(records []record.Record) error
	Upsert(rec record.Record) error
	Model() string
}
