// Package storage provides the persistence layer: vector stores for
// embeddings, job stores for ingestion state, and artifact stores for
// debug diagnostics. Each concern has an in-memory reference
// implementation plus a SQL-backed alternative.
package storage

import (
	"time"

	"github.com/google/uuid"
)

// Embedding is a persisted chunk vector with provenance.
type Embedding struct {
	EmbeddingID    uuid.UUID              `json:"embedding_id"`
	ChunkID        uuid.UUID              `json:"chunk_id"`
	DocumentID     uuid.UUID              `json:"document_id"`
	ChunkIndex     int                    `json:"chunk_index"`
	Content        string                 `json:"content"`
	Vector         []float32              `json:"vector"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	QualityScore   float64                `json:"quality_score"`
	EmbeddingModel string                 `json:"embedding_model"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// BatchFailure describes one chunk that failed to persist.
type BatchFailure struct {
	ChunkID uuid.UUID `json:"chunk_id"`
	Error   string    `json:"error"`
}

// BatchResult summarizes a batch store operation.
type BatchResult struct {
	StoredCount int            `json:"stored_count"`
	FailedCount int            `json:"failed_count"`
	Failures    []BatchFailure `json:"failures,omitempty"`
}
