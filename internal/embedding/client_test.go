package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragworks/rag-engine/internal/ragerr"
)

func TestMockClient_Deterministic(t *testing.T) {
	m := NewMockClient(64)

	a, err := m.EmbedQuery(context.Background(), "hello world")
	require.NoError(t, err)
	b, err := m.EmbedQuery(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := m.EmbedQuery(context.Background(), "different text")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestMockClient_UnitNorm(t *testing.T) {
	m := NewMockClient(128)

	vec, err := m.EmbedQuery(context.Background(), "normalize me")
	require.NoError(t, err)
	require.Len(t, vec, 128)

	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSq), 1e-4)
}

func TestMockClient_EmptyQuery(t *testing.T) {
	m := NewMockClient(8)
	_, err := m.EmbedQuery(context.Background(), "")
	assert.Error(t, err)
}

func TestMockClient_BatchOrder(t *testing.T) {
	m := NewMockClient(16)

	vecs, err := m.EmbedBatch(context.Background(), []string{"one", "two", "one"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, vecs[0], vecs[2])
	assert.NotEqual(t, vecs[0], vecs[1])
}

func TestIsRetryable(t *testing.T) {
	retryable := ragerr.NewEmbedding("x").WithDetail("provider_status", 503)
	assert.True(t, IsRetryable(retryable))

	rateLimited := ragerr.NewEmbedding("x").WithDetail("provider_status", 429)
	assert.True(t, IsRetryable(rateLimited))

	badRequest := ragerr.NewEmbedding("x").WithDetail("provider_status", 401)
	assert.False(t, IsRetryable(badRequest))

	// Unclassified transport failures retry.
	assert.True(t, IsRetryable(assert.AnError))
}

func embeddingPayload(dim, count int) map[string]interface{} {
	data := make([]map[string]interface{}, count)
	for i := 0; i < count; i++ {
		vec := make([]float32, dim)
		vec[0] = float32(i + 1)
		data[i] = map[string]interface{}{"embedding": vec, "index": i}
	}
	return map[string]interface{}{"data": data}
}

func TestOpenAIClient_RetriesOn429(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(embeddingPayload(4, 1))
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{
		BaseURL:     server.URL,
		APIKey:      "test",
		Model:       "test-model",
		MaxRetries:  3,
		BaseBackoff: time.Millisecond,
	}, nil)

	vec, err := client.EmbedQuery(context.Background(), "retry me")
	require.NoError(t, err)
	assert.Equal(t, float32(1), vec[0])
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOpenAIClient_PermanentOn400(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{
		BaseURL:     server.URL,
		APIKey:      "test",
		Model:       "test-model",
		MaxRetries:  3,
		BaseBackoff: time.Millisecond,
	}, nil)

	_, err := client.EmbedQuery(context.Background(), "reject me")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "client errors must not retry")

	e := ragerr.AsError(err)
	require.NotNil(t, e)
	assert.Equal(t, 400, e.StatusCode)
}

func TestOpenAIClient_BatchesInputs(t *testing.T) {
	var batchSizes []int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		batchSizes = append(batchSizes, len(req.Input))
		_ = json.NewEncoder(w).Encode(embeddingPayload(4, len(req.Input)))
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{
		BaseURL:   server.URL,
		APIKey:    "test",
		Model:     "test-model",
		BatchSize: 2,
	}, nil)

	texts := []string{"a", "b", "c", "d", "e"}
	vecs, err := client.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, vecs, 5)
	assert.Equal(t, []int{2, 2, 1}, batchSizes)
}
