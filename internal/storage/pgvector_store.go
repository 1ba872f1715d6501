package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/ragworks/rag-engine/internal/ragerr"
)

// PGVectorStore persists embeddings in Postgres with the pgvector
// extension. Upserts are keyed by chunk_id; the vector column dimension is
// fixed at table creation and changing it requires a migration.
type PGVectorStore struct {
	db        *sql.DB
	dimension int
}

// PGVectorConfig holds connection and schema settings.
type PGVectorConfig struct {
	DSN             string
	Dimension       int
	MaxOpenConns    int
	MaxIdleConns    int
}

// NewPGVectorStore opens the database and ensures the schema exists.
func NewPGVectorStore(cfg PGVectorConfig) (*PGVectorStore, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, ragerr.NewStorage("open postgres: " + err.Error())
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	store := &PGVectorStore{db: db, dimension: cfg.Dimension}
	if err := store.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *PGVectorStore) ensureSchema() error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS embeddings (
			embedding_id UUID PRIMARY KEY,
			chunk_id UUID NOT NULL UNIQUE,
			document_id UUID NOT NULL,
			chunk_index INT NOT NULL,
			content TEXT NOT NULL,
			vector vector(%d) NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			quality_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			embedding_model TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, s.dimension),
		`CREATE INDEX IF NOT EXISTS embeddings_document_idx ON embeddings (document_id, chunk_index)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return ragerr.NewStorage("ensure schema: " + err.Error())
		}
	}
	return nil
}

// StoreEmbedding implements VectorStore. Upserts by chunk_id.
func (s *PGVectorStore) StoreEmbedding(ctx context.Context, e Embedding) error {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return ragerr.NewStorage("marshal metadata: " + err.Error())
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO embeddings (
			embedding_id, chunk_id, document_id, chunk_index, content,
			vector, metadata, quality_score, embedding_model
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (chunk_id) DO UPDATE SET
			content = EXCLUDED.content,
			vector = EXCLUDED.vector,
			metadata = EXCLUDED.metadata,
			quality_score = EXCLUDED.quality_score,
			embedding_model = EXCLUDED.embedding_model,
			updated_at = NOW()`,
		e.EmbeddingID, e.ChunkID, e.DocumentID, e.ChunkIndex, e.Content,
		pgvector.NewVector(e.Vector), metadata, e.QualityScore, e.EmbeddingModel,
	)
	if err != nil {
		return ragerr.NewStorage("store embedding: " + err.Error())
	}
	return nil
}

// StoreEmbeddingsBatch implements VectorStore.
func (s *PGVectorStore) StoreEmbeddingsBatch(ctx context.Context, embeddings []Embedding) (BatchResult, error) {
	var result BatchResult
	for _, e := range embeddings {
		if len(e.Vector) != s.dimension {
			result.FailedCount++
			result.Failures = append(result.Failures, BatchFailure{
				ChunkID: e.ChunkID,
				Error:   fmt.Sprintf("vector dimension %d does not match store dimension %d", len(e.Vector), s.dimension),
			})
			continue
		}
		if err := s.StoreEmbedding(ctx, e); err != nil {
			result.FailedCount++
			result.Failures = append(result.Failures, BatchFailure{
				ChunkID: e.ChunkID,
				Error:   err.Error(),
			})
			continue
		}
		result.StoredCount++
	}
	return result, nil
}

const embeddingColumns = `embedding_id, chunk_id, document_id, chunk_index, content,
	vector, metadata, quality_score, embedding_model, created_at, updated_at`

// SearchBySimilarity implements VectorStore using cosine distance ordering.
func (s *PGVectorStore) SearchBySimilarity(ctx context.Context, queryVec []float32, topK int, filters map[string]interface{}) ([]ScoredEmbedding, error) {
	if len(queryVec) != s.dimension {
		return nil, nil
	}

	query := `SELECT ` + embeddingColumns + `, 1 - (vector <=> $1) AS similarity
		FROM embeddings`
	args := []interface{}{pgvector.NewVector(queryVec)}

	if len(filters) > 0 {
		metadata, err := json.Marshal(filters)
		if err != nil {
			return nil, ragerr.NewStorage("marshal filters: " + err.Error())
		}
		query += ` WHERE metadata @> $2`
		args = append(args, metadata)
	}

	query += fmt.Sprintf(` ORDER BY vector <=> $1, created_at LIMIT %d`, topK)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ragerr.NewStorage("similarity search: " + err.Error())
	}
	defer rows.Close()

	var out []ScoredEmbedding
	for rows.Next() {
		var (
			se       ScoredEmbedding
			vec      pgvector.Vector
			metadata []byte
		)
		if err := rows.Scan(
			&se.EmbeddingID, &se.ChunkID, &se.DocumentID, &se.ChunkIndex, &se.Content,
			&vec, &metadata, &se.QualityScore, &se.EmbeddingModel, &se.CreatedAt, &se.UpdatedAt,
			&se.Similarity,
		); err != nil {
			return nil, ragerr.NewStorage("scan embedding: " + err.Error())
		}
		se.Vector = vec.Slice()
		if err := json.Unmarshal(metadata, &se.Metadata); err != nil {
			return nil, ragerr.NewStorage("unmarshal metadata: " + err.Error())
		}
		if se.Similarity <= 0 {
			continue
		}
		out = append(out, se)
	}
	return out, rows.Err()
}

// SearchByDocument implements VectorStore.
func (s *PGVectorStore) SearchByDocument(ctx context.Context, documentID uuid.UUID) ([]Embedding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+embeddingColumns+` FROM embeddings
		 WHERE document_id = $1 ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, ragerr.NewStorage("search by document: " + err.Error())
	}
	defer rows.Close()

	var out []Embedding
	for rows.Next() {
		e, err := scanEmbedding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CheckDuplicateContent implements VectorStore.
func (s *PGVectorStore) CheckDuplicateContent(ctx context.Context, content string) (*Embedding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+embeddingColumns+` FROM embeddings
		 WHERE content = $1 ORDER BY created_at LIMIT 1`, content)
	if err != nil {
		return nil, ragerr.NewStorage("duplicate check: " + err.Error())
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	e, err := scanEmbedding(rows)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Count implements VectorStore.
func (s *PGVectorStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&count); err != nil {
		return 0, ragerr.NewStorage("count embeddings: " + err.Error())
	}
	return count, nil
}

// Ping checks connectivity for health reporting.
func (s *PGVectorStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements VectorStore.
func (s *PGVectorStore) Close() error {
	return s.db.Close()
}

func scanEmbedding(rows *sql.Rows) (Embedding, error) {
	var (
		e        Embedding
		vec      pgvector.Vector
		metadata []byte
	)
	if err := rows.Scan(
		&e.EmbeddingID, &e.ChunkID, &e.DocumentID, &e.ChunkIndex, &e.Content,
		&vec, &metadata, &e.QualityScore, &e.EmbeddingModel, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return e, ragerr.NewStorage("scan embedding: " + err.Error())
	}
	e.Vector = vec.Slice()
	if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
		return e, ragerr.NewStorage("unmarshal metadata: " + err.Error())
	}
	return e, nil
}
