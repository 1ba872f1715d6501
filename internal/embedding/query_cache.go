package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/ragworks/rag-engine/internal/cache"
)

// DefaultQueryCacheTTL is how long query embeddings stay cached.
const DefaultQueryCacheTTL = 24 * time.Hour

// QueryCache caches query embeddings keyed by model and query text.
// Vectors are copied on get and set so callers cannot mutate cached state.
type QueryCache struct {
	client cache.Client
	model  string
	ttl    time.Duration
}

// NewQueryCache creates a query embedding cache over any cache.Client.
func NewQueryCache(client cache.Client, model string, ttl time.Duration) *QueryCache {
	if ttl <= 0 {
		ttl = DefaultQueryCacheTTL
	}
	return &QueryCache{client: client, model: model, ttl: ttl}
}

// Get returns the cached vector for queryText, or nil on miss.
func (c *QueryCache) Get(ctx context.Context, queryText string) []float32 {
	data, err := c.client.Get(ctx, c.key(queryText))
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			return nil
		}
		return nil
	}

	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		return nil
	}
	return vec
}

// Set stores a copy of the vector for queryText.
func (c *QueryCache) Set(ctx context.Context, queryText string, vec []float32) {
	data, err := json.Marshal(vec)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.key(queryText), data, c.ttl)
}

func (c *QueryCache) key(queryText string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + queryText))
	return cache.Key("qemb", hex.EncodeToString(sum[:]))
}
