package diagnostics

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragworks/rag-engine/internal/storage"
)

func TestArtifactLogger_RoundTrip(t *testing.T) {
	store := storage.NewMemoryArtifactStore()
	logger := NewArtifactLogger(true, store, nil)
	ctx := context.Background()

	require.True(t, logger.Enabled())

	logger.Log(ctx, "trace-1", "query", map[string]interface{}{"query": "hello"})
	logger.Log(ctx, "trace-1", "response", map[string]interface{}{"answer": "hi"})
	logger.Log(ctx, "trace-2", "query", map[string]interface{}{"query": "other"})

	artifacts, err := logger.GetByTraceID(ctx, "trace-1")
	require.NoError(t, err)
	require.Len(t, artifacts, 2)
	assert.Equal(t, "query", artifacts[0].Type)
	assert.Equal(t, "response", artifacts[1].Type)
	assert.Equal(t, "hello", artifacts[0].Data["query"])
}

func TestArtifactLogger_Disabled(t *testing.T) {
	store := storage.NewMemoryArtifactStore()
	logger := NewArtifactLogger(false, store, nil)
	ctx := context.Background()

	assert.False(t, logger.Enabled())
	logger.Log(ctx, "trace-1", "query", map[string]interface{}{"query": "dropped"})

	stored, err := store.GetByTraceID(ctx, "trace-1")
	require.NoError(t, err)
	assert.Empty(t, stored)

	// A nil store disables the logger even when enabled is requested.
	assert.False(t, NewArtifactLogger(true, nil, nil).Enabled())
}

func TestArtifactLogger_EmptyTraceSkipped(t *testing.T) {
	store := storage.NewMemoryArtifactStore()
	logger := NewArtifactLogger(true, store, nil)

	logger.Log(context.Background(), "", "query", map[string]interface{}{"query": "no trace"})

	stored, err := store.GetByTraceID(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestArtifactLogger_TruncatesOversized(t *testing.T) {
	store := storage.NewMemoryArtifactStore()
	logger := NewArtifactLogger(true, store, nil)
	ctx := context.Background()

	logger.Log(ctx, "trace-big", "prompt", map[string]interface{}{
		"payload": strings.Repeat("x", maxArtifactBytes+1),
	})

	stored, err := store.GetByTraceID(ctx, "trace-big")
	require.NoError(t, err)
	require.Len(t, stored, 1)

	assert.Equal(t, true, stored[0].Data["truncated"])
	assert.Greater(t, stored[0].Data["original_size_bytes"], maxArtifactBytes)
	assert.Len(t, stored[0].Data["payload"], maxArtifactBytes)
}
