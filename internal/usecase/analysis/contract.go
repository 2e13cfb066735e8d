package analysis

import (
	"context"
	"time"

	"github.com/kindred-ai/matchengine/internal/domain"
	domrecord "github.com/kindred-ai/matchengine/internal/domain/record"
	"github.com/kindred-ai/matchengine/internal/index"
	"github.com/kindred-ai/matchengine/internal/repository/record"
)

// Embedder converts text to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Completer is the chat-completion boundary.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Stream(ctx context.Context, system, user string, onChunk func(delta string)) (string, error)
}

// Searcher answers in-memory nearest-neighbor queries (risk definitions).
type Searcher interface {
	Query(q index.Query) ([]index.Hit, error)
}

// ExampleSearcher ranks stored records by similarity directly in the database
// (past analyzed contracts).
type ExampleSearcher interface {
	SearchSimilar(ctx context.Context, corpus domain.Corpus, vector []float32, limit int) ([]record.SimilarHit, error)
}

// Store persists analyzed contracts as new corpus records.
type Store interface {
	Upsert(ctx context.Context, rec domrecord.Record) error
}

// IndexWriter makes a stored record immediately searchable.
type IndexWriter interface {
	Upsert(rec domrecord.Record) error
}

// Cache holds finished reports keyed by contract text hash.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
