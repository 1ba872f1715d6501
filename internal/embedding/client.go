// Package embedding provides vector embedding clients for documents and
// queries, with batching, retry, and caching.
package embedding

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ragworks/rag-engine/internal/observability"
	"github.com/ragworks/rag-engine/internal/ragerr"
)

// Client generates embeddings for texts.
type Client interface {
	// EmbedBatch embeds texts in provider-sized batches, returning one
	// vector per input in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Model returns the provider model identifier.
	Model() string
	// Dimension returns the vector dimension.
	Dimension() int
}

// OpenAIConfig holds settings for the OpenAI-compatible embeddings API.
type OpenAIConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	Dimension      int
	BatchSize      int
	MaxRetries     int
	BaseBackoff    time.Duration
	RequestTimeout time.Duration
}

// OpenAIClient calls an OpenAI-compatible /embeddings endpoint.
type OpenAIClient struct {
	cfg    OpenAIConfig
	http   *http.Client
	logger *observability.Logger
}

// NewOpenAIClient creates a client with defaults applied.
func NewOpenAIClient(cfg OpenAIConfig, logger *observability.Logger) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &OpenAIClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger,
	}
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// EmbedBatch implements Client. Inputs are sent in batches of at most
// BatchSize; each batch is retried with exponential backoff on retryable
// provider errors.
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := c.embedWithRetries(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// EmbedQuery implements Client.
func (c *OpenAIClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ragerr.NewBadRequest("query text cannot be empty")
	}
	vectors, err := c.embedWithRetries(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Model implements Client.
func (c *OpenAIClient) Model() string { return c.cfg.Model }

// Dimension implements Client.
func (c *OpenAIClient) Dimension() int { return c.cfg.Dimension }

// embedWithRetries runs one provider call with exponential backoff.
// HTTP 429 and 5xx are retryable; other 4xx request errors are not.
func (c *OpenAIClient) embedWithRetries(ctx context.Context, batch []string) ([][]float32, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.BaseBackoff
	policy.Multiplier = 2.0
	policy.RandomizationFactor = 0

	var vectors [][]float32
	attempt := 0

	operation := func() error {
		attempt++
		result, err := c.embedOnce(ctx, batch)
		if err != nil {
			if !IsRetryable(err) {
				return backoff.Permanent(err)
			}
			c.logger.Warn().
				Int("attempt", attempt).
				Int("batch_size", len(batch)).
				Err(err).
				Msg("embedding_batch_retry")
			return err
		}
		vectors = result
		return nil
	}

	wrapped := backoff.WithMaxRetries(backoff.WithContext(policy, ctx), uint64(c.cfg.MaxRetries))
	if err := backoff.Retry(operation, wrapped); err != nil {
		if e := ragerr.AsError(err); e != nil {
			return nil, e
		}
		return nil, ragerr.NewEmbedding("embedding provider failed: " + err.Error())
	}
	return vectors, nil
}

func (c *OpenAIClient) embedOnce(ctx context.Context, batch []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{Input: batch, Model: c.cfg.Model})
	if err != nil {
		return nil, ragerr.NewEmbedding("marshal request: " + err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, ragerr.NewEmbedding("build request: " + err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, ragerr.NewEmbedding("provider call failed: " + err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		e := ragerr.NewEmbedding(fmt.Sprintf("provider returned status %d", resp.StatusCode))
		e.StatusCode = providerStatusToLocal(resp.StatusCode)
		return nil, e.WithDetail("provider_status", resp.StatusCode).
			WithDetail("provider_body", string(payload))
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, ragerr.NewEmbedding("decode response: " + err.Error())
	}
	if len(parsed.Data) != len(batch) {
		return nil, ragerr.NewEmbedding(fmt.Sprintf(
			"provider returned %d embeddings for %d inputs", len(parsed.Data), len(batch)))
	}

	vectors := make([][]float32, len(batch))
	for _, item := range parsed.Data {
		if item.Index < 0 || item.Index >= len(batch) {
			return nil, ragerr.NewEmbedding("provider returned out-of-range index")
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

// providerStatusToLocal maps a provider HTTP status to the status we
// surface. Rate limits and server errors become 503; request errors 400.
func providerStatusToLocal(status int) int {
	switch {
	case status == 429 || status >= 500:
		return 503
	case status >= 400:
		return 400
	default:
		return 503
	}
}

// IsRetryable reports whether a provider error should be retried:
// provider 429/500/502/503/504 and unclassified transport failures are
// retryable, request errors (4xx other than 429) are not.
func IsRetryable(err error) bool {
	e := ragerr.AsError(err)
	if e == nil {
		return true // unclassified transient failure
	}
	if status, ok := e.Details["provider_status"].(int); ok {
		switch status {
		case 429, 500, 502, 503, 504:
			return true
		default:
			return false
		}
	}
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// MockClient produces deterministic hash-based vectors for tests and
// development without a provider.
type MockClient struct {
	ModelName string
	Dim       int
}

// NewMockClient creates a mock embedder with the given dimension.
func NewMockClient(dimension int) *MockClient {
	if dimension <= 0 {
		dimension = 1536
	}
	return &MockClient{ModelName: "mock-embedding", Dim: dimension}
}

// EmbedBatch implements Client.
func (m *MockClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = m.vectorFor(text)
	}
	return out, nil
}

// EmbedQuery implements Client.
func (m *MockClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ragerr.NewBadRequest("query text cannot be empty")
	}
	return m.vectorFor(text), nil
}

// Model implements Client.
func (m *MockClient) Model() string { return m.ModelName }

// Dimension implements Client.
func (m *MockClient) Dimension() int { return m.Dim }

// vectorFor derives a unit-norm vector from the SHA-256 of text, so equal
// texts always embed identically.
func (m *MockClient) vectorFor(text string) []float32 {
	seed := sha256.Sum256([]byte(text))
	vec := make([]float32, m.Dim)

	var sumSq float64
	for i := range vec {
		offset := (i * 4) % (len(seed) - 4)
		raw := binary.BigEndian.Uint32(seed[offset : offset+4])
		// Spread values into [-1, 1), perturbed by index to avoid repeats.
		v := float64(raw^uint32(i*2654435761))/float64(math.MaxUint32)*2 - 1
		vec[i] = float32(v)
		sumSq += v * v
	}

	norm := float32(math.Sqrt(sumSq))
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}
