// Package record defines the embeddable corpus entity.
package record

import (
	"fmt"
	"regexp"
	"time"

	"github.com/kindred-ai/matchengine/internal/domain"
	"github.com/kindred-ai/matchengine/internal/domain/metadata"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// MaxTextSize is the maximum canonical text size in bytes.
const MaxTextSize = 65536 // 64KB

// Record is the record aggregate (immutable value object). The embedding is
// derived from Text by exactly one model; EmbedModel records which one.
type Record struct {
	id         string
	corpus     domain.Corpus
	text       string
	vector     []float32
	embedModel string
	meta       metadata.Map
	sourceTag  string
	createdAt  time.Time
	updatedAt  time.Time
}

// New validates and creates a Record without an embedding.
// ID: ^[a-zA-Z0-9_-]+$, 1-256 chars. Text: non-empty, max 64KB.
func New(id string, corpus domain.Corpus, text string, meta metadata.Map) (Record, error) {
	if id == "" {
		return Record{}, fmt.Errorf("record ID is required")
	}
	if len(id) > 256 {
		return Record{}, fmt.Errorf("record ID too long (max 256)")
	}
	if !idRegex.MatchString(id) {
		return Record{}, fmt.Errorf("record ID must be alphanumeric with underscores and hyphens")
	}
	if !corpus.IsValid() {
		return Record{}, fmt.Errorf("%w: %q", domain.ErrCorpusUnknown, corpus)
	}
	if text == "" {
		return Record{}, fmt.Errorf("text is required")
	}
	if len(text) > MaxTextSize {
		return Record{}, fmt.Errorf("text too large (max %d bytes)", MaxTextSize)
	}
	if err := meta.Validate(); err != nil {
		return Record{}, fmt.Errorf("%w: %w", domain.ErrInvalidMetadata, err)
	}

	return Record{
		id:     id,
		corpus: corpus,
		text:   text,
		meta:   meta.Clone(),
	}, nil
}

// Reconstruct creates a Record without validation (storage hydration).
func Reconstruct(
	id string, corpus domain.Corpus, text string,
	vector []float32, embedModel string, meta metadata.Map,
	sourceTag string, createdAt, updatedAt time.Time,
) Record {
	return Record{
		id: id, corpus: corpus, text: text,
		vector: vector, embedModel: embedModel, meta: meta,
		sourceTag: sourceTag, createdAt: createdAt, updatedAt: updatedAt,
	}
}

// ID returns the record identifier.
func (r *Record) ID() string { return r.id }

// Corpus returns the corpus discriminator.
func (r *Record) Corpus() domain.Corpus { return r.corpus }

// Text returns the canonical descriptive text the embedding was derived from.
func (r *Record) Text() string { return r.text }

// Vector returns the embedding vector.
func (r *Record) Vector() []float32 { return r.vector }

// EmbedModel returns the embedding model identity, empty until embedded.
func (r *Record) EmbedModel() string { return r.embedModel }

// Metadata returns the typed attribute map.
func (r *Record) Metadata() metadata.Map { return r.meta }

// SourceTag returns the provenance tag (seed dataset, analysis id, ...).
func (r *Record) SourceTag() string { return r.sourceTag }

// CreatedAt returns the creation timestamp.
func (r *Record) CreatedAt() time.Time { return r.createdAt }

// UpdatedAt returns the last update timestamp.
func (r *Record) UpdatedAt() time.Time { return r.updatedAt }

// WithEmbedding returns a copy with the vector and model identity set.
func (r *Record) WithEmbedding(vector []float32, model string) Record {
	c := *r
	c.vector = vector
	c.embedModel = model
	return c
}

// WithSourceTag returns a copy with the provenance tag set.
func (r *Record) WithSourceTag(tag string) Record {
	c := *r
	c.sourceTag = tag
	return c
}
