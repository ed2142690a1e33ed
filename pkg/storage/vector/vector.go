// Package vector implements the Embedding/vector store collaborator C9's
// deep phase hands vectorization jobs to: an Embedder turns record text
// into a float vector, and a Store persists it keyed by record id. Two
// Store implementations are provided — an in-memory one for tests and a
// Postgres-backed one for production — behind the same interface so the
// pipeline never depends on which backend is wired in.
package vector

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xksnk/selfology-core/pkg/shared/errors"
)

// Embedder computes a fixed-width embedding for a piece of text. The
// concrete implementation wired in production calls out to whichever
// provider the AI Router's Client already talks to; tests substitute a
// deterministic stub.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Record is what gets stored: one embedding per analyzed source, keyed by
// the analysis record id it was computed from.
type Record struct {
	RecordID  int64
	SourceRef string
	Embedding []float64
	Model     string
}

// Store persists and retrieves embeddings.
type Store interface {
	Upsert(ctx context.Context, rec Record) error
	Get(ctx context.Context, recordID int64) (Record, bool, error)
}

// InMemoryStore is a Store backed by a guarded map, used in unit tests and
// as a fallback when no database is configured.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[int64]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[int64]Record)}
}

func (s *InMemoryStore) Upsert(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[rec.RecordID] = rec
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, recordID int64) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[recordID]
	return rec, ok, nil
}

// PGStore persists embeddings to the record_embeddings table through a
// pgx connection pool — used directly rather than through sqlx because the
// float8 array round-trip is a straight pgx type-map, no row-scanning
// convenience needed.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Upsert(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO record_embeddings (record_id, source_ref, embedding, model, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (record_id) DO UPDATE SET
			source_ref = EXCLUDED.source_ref,
			embedding  = EXCLUDED.embedding,
			model      = EXCLUDED.model,
			updated_at = NOW()
	`, rec.RecordID, rec.SourceRef, rec.Embedding, rec.Model)
	if err != nil {
		return errors.DatabaseError("upsert record embedding", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, recordID int64) (Record, bool, error) {
	var rec Record
	rec.RecordID = recordID
	err := s.pool.QueryRow(ctx, `
		SELECT source_ref, embedding, model FROM record_embeddings WHERE record_id = $1
	`, recordID).Scan(&rec.SourceRef, &rec.Embedding, &rec.Model)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, errors.DatabaseError("get record embedding", err)
	}
	return rec, true, nil
}
