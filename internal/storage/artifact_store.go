package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ragworks/rag-engine/internal/ragerr"
)

// Artifact is one debug artifact captured at a pipeline stage.
type Artifact struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// ArtifactStore persists debug artifacts keyed by trace ID.
type ArtifactStore interface {
	Store(ctx context.Context, traceID, artifactType string, data map[string]interface{}) error
	GetByTraceID(ctx context.Context, traceID string) ([]Artifact, error)
	// CleanupOldArtifacts deletes artifacts older than the retention
	// window, returning the number removed.
	CleanupOldArtifacts(ctx context.Context, retention time.Duration) (int, error)
	Close() error
}

// MemoryArtifactStore keeps artifacts in process memory.
type MemoryArtifactStore struct {
	mu        sync.RWMutex
	artifacts map[string][]Artifact
}

// NewMemoryArtifactStore creates an empty artifact store.
func NewMemoryArtifactStore() *MemoryArtifactStore {
	return &MemoryArtifactStore{artifacts: make(map[string][]Artifact)}
}

// Store implements ArtifactStore.
func (s *MemoryArtifactStore) Store(ctx context.Context, traceID, artifactType string, data map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.artifacts[traceID] = append(s.artifacts[traceID], Artifact{
		Type:      artifactType,
		Data:      data,
		Timestamp: time.Now(),
	})
	return nil
}

// GetByTraceID implements ArtifactStore. Returns artifacts in insertion
// order; an unknown trace yields an empty slice.
func (s *MemoryArtifactStore) GetByTraceID(ctx context.Context, traceID string) ([]Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Artifact, len(s.artifacts[traceID]))
	copy(out, s.artifacts[traceID])
	return out, nil
}

// CleanupOldArtifacts implements ArtifactStore.
func (s *MemoryArtifactStore) CleanupOldArtifacts(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-retention)
	deleted := 0
	for traceID, list := range s.artifacts {
		kept := list[:0]
		for _, a := range list {
			if a.Timestamp.Before(cutoff) {
				deleted++
				continue
			}
			kept = append(kept, a)
		}
		if len(kept) == 0 {
			delete(s.artifacts, traceID)
		} else {
			s.artifacts[traceID] = kept
		}
	}
	return deleted, nil
}

// Close implements ArtifactStore.
func (s *MemoryArtifactStore) Close() error {
	return nil
}

// PostgresArtifactStore persists artifacts in Postgres for querying
// across processes.
type PostgresArtifactStore struct {
	db *sql.DB
}

// NewPostgresArtifactStore opens the database and ensures the table exists.
func NewPostgresArtifactStore(dsn string) (*PostgresArtifactStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, ragerr.NewStorage("open postgres: " + err.Error())
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS debug_artifacts (
		id BIGSERIAL PRIMARY KEY,
		trace_id TEXT NOT NULL,
		artifact_type TEXT NOT NULL,
		artifact_data JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		db.Close()
		return nil, ragerr.NewStorage("ensure artifact schema: " + err.Error())
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS debug_artifacts_trace_idx
		ON debug_artifacts (trace_id, created_at)`); err != nil {
		db.Close()
		return nil, ragerr.NewStorage("ensure artifact index: " + err.Error())
	}

	return &PostgresArtifactStore{db: db}, nil
}

// Store implements ArtifactStore.
func (s *PostgresArtifactStore) Store(ctx context.Context, traceID, artifactType string, data map[string]interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return ragerr.NewStorage("marshal artifact: " + err.Error())
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO debug_artifacts
		(trace_id, artifact_type, artifact_data) VALUES ($1, $2, $3)`,
		traceID, artifactType, payload)
	if err != nil {
		return ragerr.NewStorage("store artifact: " + err.Error())
	}
	return nil
}

// GetByTraceID implements ArtifactStore.
func (s *PostgresArtifactStore) GetByTraceID(ctx context.Context, traceID string) ([]Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT artifact_type, artifact_data, created_at
		FROM debug_artifacts WHERE trace_id = $1 ORDER BY created_at`, traceID)
	if err != nil {
		return nil, ragerr.NewStorage("query artifacts: " + err.Error())
	}
	defer rows.Close()

	out := []Artifact{}
	for rows.Next() {
		var (
			a       Artifact
			payload []byte
		)
		if err := rows.Scan(&a.Type, &payload, &a.Timestamp); err != nil {
			return nil, ragerr.NewStorage("scan artifact: " + err.Error())
		}
		if err := json.Unmarshal(payload, &a.Data); err != nil {
			return nil, ragerr.NewStorage("unmarshal artifact: " + err.Error())
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CleanupOldArtifacts implements ArtifactStore.
func (s *PostgresArtifactStore) CleanupOldArtifacts(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, nil
	}
	result, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM debug_artifacts WHERE created_at < NOW() - INTERVAL '%d seconds'`,
		int(retention.Seconds())))
	if err != nil {
		return 0, ragerr.NewStorage("cleanup artifacts: " + err.Error())
	}
	deleted, _ := result.RowsAffected()
	if deleted < 0 {
		deleted = 0
	}
	return int(deleted), nil
}

// Close implements ArtifactStore.
func (s *PostgresArtifactStore) Close() error {
	return s.db.Close()
}
