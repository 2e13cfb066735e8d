package match

import (
	"context"

	"github.com/kindred-ai/matchengine/internal/domain"
	"github.com/kindred-ai/matchengine/internal/index"
)

// Embedder converts text to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Searcher answers nearest-neighbor queries over the record corpus.
type Searcher interface {
	Query(q index.Query) ([]index.Hit, error)
}
