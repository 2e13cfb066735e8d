// Package index implements the in-memory similarity index: a brute-force
// cosine scan over an immutable record snapshot. Writers publish a new
// snapshot via copy-on-write, so concurrent readers never observe a
// partially-updated record set.
package index

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/kindred-ai/matchengine/internal/domain"
	"github.com/kindred-ai/matchengine/internal/domain/record"
)

// Hit is one raw nearest-neighbor result.
type Hit struct {
	Record     record.Record
	Similarity float64
}

// Filter is a metadata predicate applied before the top-K cutoff.
type Filter func(r *record.Record) bool

// Query describes one nearest-neighbor lookup. Corpus is mandatory: every
// query is scoped to a single corpus to prevent cross-corpus contamination.
type Query struct {
	Vector    []float32
	Corpus    domain.Corpus
	TopK      int
	Threshold float64
	Filter    Filter
}

type snapshot struct {
	records []record.Record // sorted by ID for deterministic iteration
}

// Index answers top-K cosine similarity queries over pre-embedded records.
// A single embedding model identity is enforced per index.
type Index struct {
	dims  int
	model string

	mu   sync.Mutex // serializes writers
	snap atomic.Pointer[snapshot]
}

// New creates an empty index bound to one embedding model identity.
func New(dims int, model string) *Index {
	idx := &Index{dims: dims, model: model}
	idx.snap.Store(&snapshot{})
	return idx
}

// Dimensions returns the expected vector dimensionality.
func (i *Index) Dimensions() int { return i.dims }

// Model returns the embedding model identity.
func (i *Index) Model() string { return i.model }

// Len returns the number of indexed records.
func (i *Index) Len() int {
	return len(i.snap.Load().records)
}

// Swap replaces the entire record set atomically. Records with a foreign
// embedding model or wrong dimensionality are rejected before anything is
// published, so a failed swap leaves the previous snapshot intact.
func (i *Index) Swap(records []record.Record) error {
	next := make([]record.Record, len(records))
	copy(next, records)

	for idx := range next {
		if err := i.validate(&next[idx]); err != nil {
			return err
		}
	}

	sort.Slice(next, func(a, b int) bool { return next[a].ID() < next[b].ID() })

	i.mu.Lock()
	defer i.mu.Unlock()
	i.snap.Store(&snapshot{records: next})
	return nil
}

// Upsert inserts or replaces one record by ID (last-writer-wins).
func (i *Index) Upsert(rec record.Record) error {
	if err := i.validate(&rec); err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	cur := i.snap.Load().records
	next := make([]record.Record, 0, len(cur)+1)
	replaced := false
	for _, r := range cur {
		if r.ID() == rec.ID() {
			next = append(next, rec)
			replaced = true
			continue
		}
		next = append(next, r)
	}
	if !replaced {
		next = append(next, rec)
		sort.Slice(next, func(a, b int) bool { return next[a].ID() < next[b].ID() })
	}

	i.snap.Store(&snapshot{records: next})
	return nil
}

// Query returns up to TopK records of the query corpus whose cosine similarity
// to the query vector is >= Threshold, sorted by similarity descending with
// ties broken by ID ascending. The metadata filter is applied before the
// top-K cutoff. An empty index yields an empty slice, never an error.
func (i *Index) Query(q Query) ([]Hit, error) {
	if len(q.Vector) != i.dims {
		return nil, domain.ErrVectorDimMismatch
	}
	if !q.Corpus.IsValid() {
		return nil, domain.ErrCorpusUnknown
	}
	topK := q.TopK
	if topK <= 0 {
		return []Hit{}, nil
	}

	records := i.snap.Load().records

	hits := make([]Hit, 0, topK)
	for idx := range records {
		r := &records[idx]
		if r.Corpus() != q.Corpus {
			continue
		}
		if q.Filter != nil && !q.Filter(r) {
			continue
		}
		sim := Cosine(q.Vector, r.Vector())
		if sim < q.Threshold {
			continue
		}
		hits = append(hits, Hit{Record: *r, Similarity: sim})
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Similarity != hits[b].Similarity {
			return hits[a].Similarity > hits[b].Similarity
		}
		return hits[a].Record.ID() < hits[b].Record.ID()
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (i *Index) validate(r *record.Record) error {
	if len(r.Vector()) != i.dims {
		return domain.ErrVectorDimMismatch
	}
	if r.EmbedModel() != "" && r.EmbedModel() != i.model {
		return domain.ErrModelMismatch
	}
	return nil
}

// Cosine computes dot(a,b) / (|a| * |b|) in float64. Zero-norm vectors have
// similarity 0 with anything by policy, never NaN.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		av := float64(a[i])
		bv := float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
