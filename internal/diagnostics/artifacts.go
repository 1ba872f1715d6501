// Package diagnostics captures per-trace pipeline artifacts (queries,
// retrieved chunks, prompts, responses, citations) for debugging.
package diagnostics

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ragworks/rag-engine/internal/observability"
	"github.com/ragworks/rag-engine/internal/storage"
)

// maxArtifactBytes caps a single artifact's serialized size. Oversized
// artifacts are replaced by a truncation record carrying the leading
// bytes of the original payload, so the store never holds unbounded
// entries.
const maxArtifactBytes = 256 * 1024

// ArtifactLogger writes debug artifacts to an ArtifactStore. A disabled
// logger is a no-op, so call sites never need to branch.
type ArtifactLogger struct {
	enabled bool
	store   storage.ArtifactStore
	logger  *observability.Logger
}

// NewArtifactLogger creates a logger. When enabled is false or store is
// nil, Log does nothing.
func NewArtifactLogger(enabled bool, store storage.ArtifactStore, logger *observability.Logger) *ArtifactLogger {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &ArtifactLogger{
		enabled: enabled && store != nil,
		store:   store,
		logger:  logger,
	}
}

// Enabled reports whether artifact capture is active.
func (a *ArtifactLogger) Enabled() bool { return a.enabled }

// Log stores one artifact under traceID. Failures are logged, never
// propagated; artifact capture must not break the request path.
func (a *ArtifactLogger) Log(ctx context.Context, traceID, artifactType string, data map[string]interface{}) {
	if !a.enabled || traceID == "" {
		return
	}

	payload, err := json.Marshal(data)
	if err != nil {
		a.logger.Warn().
			Str("trace_id", traceID).
			Str("artifact_type", artifactType).
			Err(err).
			Msg("artifact_marshal_failed")
		return
	}
	if len(payload) > maxArtifactBytes {
		a.logger.Warn().
			Str("trace_id", traceID).
			Str("artifact_type", artifactType).
			Int("size_bytes", len(payload)).
			Msg("artifact_truncated")
		data = map[string]interface{}{
			"truncated":           true,
			"original_size_bytes": len(payload),
			"payload":             string(payload[:maxArtifactBytes]),
		}
	}

	if err := a.store.Store(ctx, traceID, artifactType, data); err != nil {
		a.logger.Warn().
			Str("trace_id", traceID).
			Str("artifact_type", artifactType).
			Err(err).
			Msg("artifact_store_failed")
	}
}

// GetByTraceID returns all artifacts captured for a trace.
func (a *ArtifactLogger) GetByTraceID(ctx context.Context, traceID string) ([]storage.Artifact, error) {
	if !a.enabled {
		return nil, nil
	}
	return a.store.GetByTraceID(ctx, traceID)
}

// StartCleanup launches a background loop that removes artifacts older
// than retention every interval. It stops when ctx is cancelled.
func (a *ArtifactLogger) StartCleanup(ctx context.Context, interval, retention time.Duration) {
	if !a.enabled || interval <= 0 || retention <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := a.store.CleanupOldArtifacts(ctx, retention)
				if err != nil {
					a.logger.Warn().Err(err).Msg("artifact_cleanup_failed")
					continue
				}
				if deleted > 0 {
					a.logger.Info().Int("deleted", deleted).Msg("artifact_cleanup_completed")
				}
			}
		}
	}()
}
