package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)

	// Mismatched or empty vectors score zero.
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{1}))
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 0}))
}

func storedEmbedding(docID uuid.UUID, chunkIndex int, content string, vec []float32, metadata map[string]interface{}) Embedding {
	return Embedding{
		EmbeddingID: uuid.New(),
		ChunkID:     uuid.New(),
		DocumentID:  docID,
		ChunkIndex:  chunkIndex,
		Content:     content,
		Vector:      vec,
		Metadata:    metadata,
	}
}

func TestMemoryVectorStore_SearchOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryVectorStore()
	docID := uuid.New()

	near := storedEmbedding(docID, 0, "near", []float32{1, 0.1}, nil)
	far := storedEmbedding(docID, 1, "far", []float32{0.3, 1}, nil)
	exact := storedEmbedding(docID, 2, "exact", []float32{1, 0}, nil)
	for _, e := range []Embedding{near, far, exact} {
		require.NoError(t, store.StoreEmbedding(ctx, e))
	}

	hits, err := store.SearchBySimilarity(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "exact", hits[0].Content)
	assert.Equal(t, "near", hits[1].Content)
	assert.Equal(t, "far", hits[2].Content)
	assert.Greater(t, hits[0].Similarity, hits[1].Similarity)
}

func TestMemoryVectorStore_TopKAndNonPositiveExcluded(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryVectorStore()
	docID := uuid.New()

	require.NoError(t, store.StoreEmbedding(ctx, storedEmbedding(docID, 0, "a", []float32{1, 0}, nil)))
	require.NoError(t, store.StoreEmbedding(ctx, storedEmbedding(docID, 1, "b", []float32{0.9, 0.1}, nil)))
	// Orthogonal and opposite vectors never match.
	require.NoError(t, store.StoreEmbedding(ctx, storedEmbedding(docID, 2, "c", []float32{0, 1}, nil)))
	require.NoError(t, store.StoreEmbedding(ctx, storedEmbedding(docID, 3, "d", []float32{-1, 0}, nil)))
	// A vector of the wrong dimension scores zero and is excluded.
	require.NoError(t, store.StoreEmbedding(ctx, storedEmbedding(docID, 4, "e", []float32{1, 0, 0}, nil)))

	hits, err := store.SearchBySimilarity(ctx, []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].Content)

	hits, err = store.SearchBySimilarity(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestMemoryVectorStore_Filters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryVectorStore()
	docID := uuid.New()

	require.NoError(t, store.StoreEmbedding(ctx, storedEmbedding(docID, 0, "en chunk", []float32{1, 0},
		map[string]interface{}{"language": "en", "source_file": "a.txt"})))
	require.NoError(t, store.StoreEmbedding(ctx, storedEmbedding(docID, 1, "fr chunk", []float32{1, 0},
		map[string]interface{}{"language": "fr", "source_file": "a.txt"})))

	hits, err := store.SearchBySimilarity(ctx, []float32{1, 0}, 10,
		map[string]interface{}{"language": "fr"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "fr chunk", hits[0].Content)

	// All filter entries must match.
	hits, err = store.SearchBySimilarity(ctx, []float32{1, 0}, 10,
		map[string]interface{}{"language": "fr", "source_file": "b.txt"})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemoryVectorStore_UpsertPreservesCreatedAt(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryVectorStore()

	e := storedEmbedding(uuid.New(), 0, "v1", []float32{1, 0}, nil)
	require.NoError(t, store.StoreEmbedding(ctx, e))

	first, err := store.CheckDuplicateContent(ctx, "v1")
	require.NoError(t, err)
	require.NotNil(t, first)

	e.Content = "v2"
	require.NoError(t, store.StoreEmbedding(ctx, e))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	updated, err := store.CheckDuplicateContent(ctx, "v2")
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, first.CreatedAt, updated.CreatedAt)
	assert.False(t, updated.UpdatedAt.Before(first.UpdatedAt))
}

func TestMemoryVectorStore_BatchReportsFailures(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryVectorStore()
	docID := uuid.New()

	good := storedEmbedding(docID, 0, "good", []float32{1, 0}, nil)
	bad := storedEmbedding(docID, 1, "bad", nil, nil)

	result, err := store.StoreEmbeddingsBatch(ctx, []Embedding{good, bad})
	require.NoError(t, err)
	assert.Equal(t, 1, result.StoredCount)
	assert.Equal(t, 1, result.FailedCount)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, bad.ChunkID, result.Failures[0].ChunkID)
}

func TestMemoryVectorStore_SearchByDocumentOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryVectorStore()
	docID := uuid.New()
	otherDoc := uuid.New()

	// Insert out of chunk order.
	require.NoError(t, store.StoreEmbedding(ctx, storedEmbedding(docID, 2, "third", []float32{1}, nil)))
	require.NoError(t, store.StoreEmbedding(ctx, storedEmbedding(docID, 0, "first", []float32{1}, nil)))
	require.NoError(t, store.StoreEmbedding(ctx, storedEmbedding(otherDoc, 1, "other", []float32{1}, nil)))
	require.NoError(t, store.StoreEmbedding(ctx, storedEmbedding(docID, 1, "second", []float32{1}, nil)))

	out, err := store.SearchByDocument(ctx, docID)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "first", out[0].Content)
	assert.Equal(t, "second", out[1].Content)
	assert.Equal(t, "third", out[2].Content)
}

func TestMemoryVectorStore_CheckDuplicateContent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryVectorStore()

	hit, err := store.CheckDuplicateContent(ctx, "nothing stored")
	require.NoError(t, err)
	assert.Nil(t, hit)

	e := storedEmbedding(uuid.New(), 0, "stored content", []float32{1}, nil)
	require.NoError(t, store.StoreEmbedding(ctx, e))

	hit, err = store.CheckDuplicateContent(ctx, "stored content")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, e.ChunkID, hit.ChunkID)
}
