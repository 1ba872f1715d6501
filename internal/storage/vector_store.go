package storage

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// VectorStore persists embeddings and serves similarity search.
type VectorStore interface {
	// StoreEmbedding upserts a single embedding.
	StoreEmbedding(ctx context.Context, e Embedding) error
	// StoreEmbeddingsBatch upserts many embeddings, reporting per-chunk
	// failures without aborting the batch.
	StoreEmbeddingsBatch(ctx context.Context, embeddings []Embedding) (BatchResult, error)
	// SearchBySimilarity returns up to topK embeddings matching every
	// filter, ranked by descending cosine similarity. Results with
	// similarity <= 0 or mismatched dimension are excluded.
	SearchBySimilarity(ctx context.Context, queryVec []float32, topK int, filters map[string]interface{}) ([]ScoredEmbedding, error)
	// SearchByDocument returns all embeddings of a document in
	// chunk-index order.
	SearchByDocument(ctx context.Context, documentID uuid.UUID) ([]Embedding, error)
	// CheckDuplicateContent returns the first stored embedding whose
	// content exactly matches, or nil.
	CheckDuplicateContent(ctx context.Context, content string) (*Embedding, error)
	// Count returns the number of stored embeddings.
	Count(ctx context.Context) (int, error)
	// Close releases resources.
	Close() error
}

// ScoredEmbedding pairs a stored embedding with its similarity to a query.
type ScoredEmbedding struct {
	Embedding
	Similarity float64 `json:"similarity"`
}

// CosineSimilarity computes dot(a,b)/(|a|*|b|), or 0 for mismatched or
// zero-norm vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// MemoryVectorStore is the in-memory reference implementation.
type MemoryVectorStore struct {
	mu sync.RWMutex
	// byID preserves upsert semantics keyed by embedding ID; order keeps
	// insertion order for deterministic tie-breaking.
	byID  map[uuid.UUID]*Embedding
	order []uuid.UUID
}

// NewMemoryVectorStore creates an empty in-memory store.
func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{byID: make(map[uuid.UUID]*Embedding)}
}

// StoreEmbedding implements VectorStore. Upserts are keyed by EmbeddingID.
func (s *MemoryVectorStore) StoreEmbedding(ctx context.Context, e Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeLocked(e)
}

func (s *MemoryVectorStore) storeLocked(e Embedding) error {
	now := time.Now()
	if existing, ok := s.byID[e.EmbeddingID]; ok {
		e.CreatedAt = existing.CreatedAt
		e.UpdatedAt = now
		*existing = e
		return nil
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	stored := e
	s.byID[e.EmbeddingID] = &stored
	s.order = append(s.order, e.EmbeddingID)
	return nil
}

// StoreEmbeddingsBatch implements VectorStore.
func (s *MemoryVectorStore) StoreEmbeddingsBatch(ctx context.Context, embeddings []Embedding) (BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result BatchResult
	for _, e := range embeddings {
		if len(e.Vector) == 0 {
			result.FailedCount++
			result.Failures = append(result.Failures, BatchFailure{
				ChunkID: e.ChunkID,
				Error:   "empty vector",
			})
			continue
		}
		if err := s.storeLocked(e); err != nil {
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

// SearchBySimilarity implements VectorStore.
func (s *MemoryVectorStore) SearchBySimilarity(ctx context.Context, queryVec []float32, topK int, filters map[string]interface{}) ([]ScoredEmbedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type candidate struct {
		scored ScoredEmbedding
		pos    int
	}

	var candidates []candidate
	for pos, id := range s.order {
		e := s.byID[id]
		if !matchesFilters(e.Metadata, filters) {
			continue
		}
		sim := CosineSimilarity(queryVec, e.Vector)
		if sim <= 0 {
			continue
		}
		candidates = append(candidates, candidate{
			scored: ScoredEmbedding{Embedding: *e, Similarity: sim},
			pos:    pos,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].scored.Similarity != candidates[j].scored.Similarity {
			return candidates[i].scored.Similarity > candidates[j].scored.Similarity
		}
		return candidates[i].pos < candidates[j].pos
	})

	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}

	out := make([]ScoredEmbedding, len(candidates))
	for i, c := range candidates {
		out[i] = c.scored
	}
	return out, nil
}

// SearchByDocument implements VectorStore.
func (s *MemoryVectorStore) SearchByDocument(ctx context.Context, documentID uuid.UUID) ([]Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Embedding
	for _, id := range s.order {
		e := s.byID[id]
		if e.DocumentID == documentID {
			out = append(out, *e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ChunkIndex < out[j].ChunkIndex
	})
	return out, nil
}

// CheckDuplicateContent implements VectorStore.
func (s *MemoryVectorStore) CheckDuplicateContent(ctx context.Context, content string) (*Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.order {
		e := s.byID[id]
		if e.Content == content {
			copy := *e
			return &copy, nil
		}
	}
	return nil, nil
}

// Count implements VectorStore.
func (s *MemoryVectorStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), nil
}

// Close implements VectorStore.
func (s *MemoryVectorStore) Close() error {
	return nil
}

// matchesFilters reports whether metadata satisfies every filter entry.
func matchesFilters(metadata, filters map[string]interface{}) bool {
	for key, want := range filters {
		got, ok := metadata[key]
		if !ok || got != want {
			return false
		}
	}
	return true
}
