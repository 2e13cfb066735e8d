// Package record persists corpus records in Postgres with pgvector embeddings.
// The table is the durable source of truth; the in-memory index is rebuilt from
// it at startup.
package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/kindred-ai/matchengine/internal/domain"
	"github.com/kindred-ai/matchengine/internal/domain/metadata"
	"github.com/kindred-ai/matchengine/internal/domain/record"
)

// Repo stores records in the match_records table.
type Repo struct {
	pool *pgxpool.Pool
	dims int
}

// NewRepo creates a record repository over an existing pool.
// dims fixes the vector column width and must match the embedding model.
func NewRepo(pool *pgxpool.Pool, dims int) *Repo {
	return &Repo{pool: pool, dims: dims}
}

// EnsureSchema creates the pgvector extension and the records table if absent.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS match_records (
			id          TEXT PRIMARY KEY,
			corpus      TEXT NOT NULL,
			content     TEXT NOT NULL,
			embedding   vector(%d),
			embed_model TEXT NOT NULL DEFAULT '',
			metadata    JSONB NOT NULL DEFAULT '{}',
			source_tag  TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, r.dims),
		`CREATE INDEX IF NOT EXISTS match_records_corpus_idx ON match_records (corpus)`,
	}
	for _, stmt := range stmts {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Upsert writes a record, overwriting any existing row with the same id
// (last-writer-wins).
func (r *Repo) Upsert(ctx context.Context, rec record.Record) error {
	metaJSON, err := json.Marshal(rec.Metadata())
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
		INSERT INTO match_records (id, corpus, content, embedding, embed_model, metadata, source_tag, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (id)
		DO UPDATE SET corpus = EXCLUDED.corpus,
		              content = EXCLUDED.content,
		              embedding = EXCLUDED.embedding,
		              embed_model = EXCLUDED.embed_model,
		              metadata = EXCLUDED.metadata,
		              source_tag = EXCLUDED.source_tag,
		              updated_at = NOW()`

	var vec any
	if rec.Vector() != nil {
		vec = pgvector.NewVector(rec.Vector())
	}

	if _, err := r.pool.Exec(ctx, query,
		rec.ID(), string(rec.Corpus()), rec.Text(), vec,
		rec.EmbedModel(), metaJSON, rec.SourceTag(),
	); err != nil {
		return fmt.Errorf("upsert record %s: %w", rec.ID(), err)
	}
	return nil
}

// Get retrieves a record by id.
func (r *Repo) Get(ctx context.Context, id string) (record.Record, error) {
	query := `
		SELECT id, corpus, content, embedding, embed_model, metadata, source_tag, created_at, updated_at
		FROM match_records
		WHERE id = $1`

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return record.Record{}, fmt.Errorf("record %s: %w", id, domain.ErrRecordNotFound)
		}
		return record.Record{}, fmt.Errorf("get record %s: %w", id, err)
	}
	return rec, nil
}

// ListByCorpus returns all records in a corpus, ordered by id.
func (r *Repo) ListByCorpus(ctx context.Context, corpus domain.Corpus) ([]record.Record, error) {
	query := `
		SELECT id, corpus, content, embedding, embed_model, metadata, source_tag, created_at, updated_at
		FROM match_records
		WHERE corpus = $1
		ORDER BY id`

	rows, err := r.pool.Query(ctx, query, string(corpus))
	if err != nil {
		return nil, fmt.Errorf("list corpus %s: %w", corpus, err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// ListAll returns every stored record, ordered by id.
func (r *Repo) ListAll(ctx context.Context) ([]record.Record, error) {
	query := `
		SELECT id, corpus, content, embedding, embed_model, metadata, source_tag, created_at, updated_at
		FROM match_records
		ORDER BY id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// CountByCorpus returns the number of records per corpus.
func (r *Repo) CountByCorpus(ctx context.Context) (map[domain.Corpus]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT corpus, COUNT(*) FROM match_records GROUP BY corpus`)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Corpus]int)
	for rows.Next() {
		var corpus string
		var n int
		if err := rows.Scan(&corpus, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[domain.Corpus(corpus)] = n
	}
	return counts, rows.Err()
}

// SimilarHit is a record with its cosine similarity to a query vector.
type SimilarHit struct {
	Record     record.Record
	Similarity float64
}

// SearchSimilar ranks a corpus by cosine similarity to the query vector,
// directly in Postgres. Ties on similarity break by id ascending.
func (r *Repo) SearchSimilar(ctx context.Context, corpus domain.Corpus, vector []float32, limit int) ([]SimilarHit, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT id, corpus, content, embedding, embed_model, metadata, source_tag, created_at, updated_at,
		       1 - (embedding <=> $1) AS similarity
		FROM match_records
		WHERE corpus = $2 AND embedding IS NOT NULL
		ORDER BY embedding <=> $1, id
		LIMIT $3`

	rows, err := r.pool.Query(ctx, query, pgvector.NewVector(vector), string(corpus), limit)
	if err != nil {
		return nil, fmt.Errorf("search corpus %s: %w", corpus, err)
	}
	defer rows.Close()

	var hits []SimilarHit
	for rows.Next() {
		var (
			id, corp, content, embedModel, sourceTag string
			vec                                      *pgvector.Vector
			metaJSON                                 []byte
			createdAt, updatedAt                     time.Time
			similarity                               float64
		)
		if err := rows.Scan(&id, &corp, &content, &vec, &embedModel, &metaJSON, &sourceTag, &createdAt, &updatedAt, &similarity); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		rec, err := hydrate(id, corp, content, vec, embedModel, metaJSON, sourceTag, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		hits = append(hits, SimilarHit{Record: rec, Similarity: similarity})
	}
	return hits, rows.Err()
}

// Ping checks database connectivity.
func (r *Repo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (record.Record, error) {
	var (
		id, corpus, content, embedModel, sourceTag string
		vec                                        *pgvector.Vector
		metaJSON                                   []byte
		createdAt, updatedAt                       time.Time
	)
	if err := row.Scan(&id, &corpus, &content, &vec, &embedModel, &metaJSON, &sourceTag, &createdAt, &updatedAt); err != nil {
		return record.Record{}, err
	}
	return hydrate(id, corpus, content, vec, embedModel, metaJSON, sourceTag, createdAt, updatedAt)
}

func collectRecords(rows pgx.Rows) ([]record.Record, error) {
	var recs []record.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func hydrate(
	id, corpus, content string, vec *pgvector.Vector,
	embedModel string, metaJSON []byte, sourceTag string,
	createdAt, updatedAt time.Time,
) (record.Record, error) {
	var meta metadata.Map
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &meta); err != nil {
			return record.Record{}, fmt.Errorf("unmarshal metadata for %s: %w", id, err)
		}
	}

	var vector []float32
	if vec != nil {
		vector = vec.Slice()
	}

	return record.Reconstruct(
		id, domain.Corpus(corpus), content,
		vector, embedModel, meta,
		sourceTag, createdAt, updatedAt,
	), nil
}
