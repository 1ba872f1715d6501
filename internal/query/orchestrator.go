package query

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ragworks/rag-engine/internal/embedding"
	"github.com/ragworks/rag-engine/internal/generation"
	"github.com/ragworks/rag-engine/internal/guardrails"
	"github.com/ragworks/rag-engine/internal/observability"
	"github.com/ragworks/rag-engine/internal/storage"
)

// ArtifactSink receives debug artifacts from the pipeline. A nil sink
// disables artifact capture.
type ArtifactSink interface {
	Log(ctx context.Context, traceID, artifactType string, data map[string]interface{})
}

// Orchestrator runs the retrieval and answer pipelines.
type Orchestrator struct {
	validator guardrails.InputValidator
	embedder  embedding.Client
	cache     *embedding.QueryCache
	store     storage.VectorStore
	prompts   *PromptBuilder
	generator generation.Client
	artifacts ArtifactSink
	logger    *observability.Logger

	defaultTimeoutSeconds int
}

// Options configures optional orchestrator collaborators.
type Options struct {
	// Cache is the query embedding cache; nil disables caching.
	Cache *embedding.QueryCache
	// Artifacts is the debug artifact sink; nil disables capture.
	Artifacts ArtifactSink
	// DefaultTimeoutSeconds is the pipeline deadline used when the
	// request carries none.
	DefaultTimeoutSeconds int
}

// NewOrchestrator wires the pipeline together.
func NewOrchestrator(
	embedder embedding.Client,
	store storage.VectorStore,
	prompts *PromptBuilder,
	generator generation.Client,
	logger *observability.Logger,
	opts Options,
) *Orchestrator {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if prompts == nil {
		prompts = NewPromptBuilder(generator.Model(), DefaultResponseBudget)
	}
	timeoutSeconds := opts.DefaultTimeoutSeconds
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}
	return &Orchestrator{
		embedder:              embedder,
		cache:                 opts.Cache,
		store:                 store,
		prompts:               prompts,
		generator:             generator,
		artifacts:             opts.Artifacts,
		logger:                logger,
		defaultTimeoutSeconds: timeoutSeconds,
	}
}

// Retrieve embeds the query and returns the top-K similar chunks without
// running generation.
func (o *Orchestrator) Retrieve(ctx context.Context, req RetrieveRequest) (*RetrieveResponse, error) {
	if err := o.validator.ValidateRequest(req.Query, req.TopK); err != nil {
		return nil, err
	}

	queryID := uuid.New()
	log := o.logger.WithContext(ctx).WithOperation("retrieve")

	vec, embedLatencyMS, cacheHit, err := o.embedQuery(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	startSearch := time.Now()
	hits, err := o.store.SearchBySimilarity(ctx, vec, req.TopK, req.Filters)
	if err != nil {
		return nil, err
	}
	retrievalLatencyMS := float64(time.Since(startSearch)) / float64(time.Millisecond)

	chunks := mapHits(hits)

	log.Info().
		Str("query_id", queryID.String()).
		Int("result_count", len(chunks)).
		Bool("cache_hit", cacheHit).
		Float64("embedding_latency_ms", embedLatencyMS).
		Float64("retrieval_latency_ms", retrievalLatencyMS).
		Msg("retrieval_completed")

	return &RetrieveResponse{
		QueryID: queryID,
		Chunks:  chunks,
		Metrics: map[string]interface{}{
			"embedding_latency_ms": embedLatencyMS,
			"retrieval_latency_ms": retrievalLatencyMS,
			"cache_hit":            cacheHit,
		},
	}, nil
}

// Answer runs the full pipeline: validate, embed, retrieve, assemble the
// prompt, generate, and post-process citations. Each stage checks that at
// least a second of the deadline remains before starting.
func (o *Orchestrator) Answer(ctx context.Context, req AnswerRequest) (*AnswerResponse, error) {
	if err := o.validator.ValidateRequest(req.Query, req.TopK); err != nil {
		return nil, err
	}

	queryID := uuid.New()
	traceID := observability.TraceIDFromContext(ctx)
	log := o.logger.WithContext(ctx).WithOperation("answer")

	timeoutSeconds := req.TimeoutSeconds
	if timeoutSeconds <= 0 {
		timeoutSeconds = o.defaultTimeoutSeconds
	}
	tm := guardrails.NewTimeoutManager(timeoutSeconds, o.logger)

	o.logArtifact(ctx, traceID, "query", map[string]interface{}{
		"query_id": queryID.String(),
		"query":    req.Query,
		"top_k":    req.TopK,
		"filters":  req.Filters,
	})

	// Stage 1: embed and retrieve.
	if err := tm.AssertTimeAvailable(time.Second, "stage_1_retrieval", 0); err != nil {
		return nil, err
	}

	vec, embedLatencyMS, cacheHit, err := o.embedQuery(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	startSearch := time.Now()
	hits, err := o.store.SearchBySimilarity(ctx, vec, req.TopK, req.Filters)
	if err != nil {
		return nil, err
	}
	retrievalLatencyMS := float64(time.Since(startSearch)) / float64(time.Millisecond)
	chunks := mapHits(hits)

	o.logArtifact(ctx, traceID, "retrieved_chunks", map[string]interface{}{
		"query_id":             queryID.String(),
		"chunk_count":          len(chunks),
		"chunks":               chunkSummaries(chunks),
		"retrieval_latency_ms": retrievalLatencyMS,
		"cache_hit":            cacheHit,
	})

	// Stage 2: prompt assembly.
	if err := tm.AssertTimeAvailable(time.Second, "stage_2_prompt_construction", 1); err != nil {
		return nil, err
	}

	prompt, err := o.prompts.Build(req.Query, chunks)
	if err != nil {
		return nil, err
	}

	o.logArtifact(ctx, traceID, "prompt", map[string]interface{}{
		"query_id":         queryID.String(),
		"system_message":   prompt.SystemMessage,
		"user_message":     prompt.UserMessage,
		"token_metrics":    prompt.TokenMetrics,
		"chunks_included":  prompt.ChunksIncluded,
		"chunks_truncated": prompt.ChunksTruncated,
	})

	// Stage 3: generation.
	if err := tm.AssertTimeAvailable(time.Second, "stage_3_generation", 2); err != nil {
		return nil, err
	}

	result, err := o.generator.Generate(ctx, []generation.Message{
		{Role: "system", Content: prompt.SystemMessage},
		{Role: "user", Content: prompt.UserMessage},
	}, o.prompts.ResponseBudget)
	if err != nil {
		return nil, err
	}

	o.logArtifact(ctx, traceID, "response", map[string]interface{}{
		"query_id":              queryID.String(),
		"answer":                result.Content,
		"model":                 result.Model,
		"generation_latency_ms": result.LatencyMS,
		"token_usage": map[string]interface{}{
			"prompt_tokens":     result.Usage.PromptTokens,
			"completion_tokens": result.Usage.CompletionTokens,
			"total_tokens":      result.Usage.TotalTokens,
		},
	})

	// Stage 4: answer post-processing.
	if err := tm.AssertTimeAvailable(time.Second, "stage_4_answer_processing", 3); err != nil {
		return nil, err
	}

	startProcess := time.Now()
	processed := ProcessAnswer(result.Content, prompt.CitationMap, chunks)
	processingLatencyMS := float64(time.Since(startProcess)) / float64(time.Millisecond)

	tm.LogStageTiming("stage_1_retrieval", embedLatencyMS+retrievalLatencyMS)
	tm.LogStageTiming("stage_2_prompt_construction", prompt.AssemblyLatencyMS)
	tm.LogStageTiming("stage_3_generation", result.LatencyMS)
	tm.LogStageTiming("stage_4_answer_processing", processingLatencyMS)

	resp := &AnswerResponse{
		QueryID:    queryID,
		Answer:     processed.Answer,
		UsedChunks: processed.UsedChunks,
		Confidence: processed.Confidence,
		Warnings:   processed.Warnings,
		Metadata: AnswerMetadata{
			TotalLatencyMS:            tm.ElapsedMS(),
			EmbeddingLatencyMS:        embedLatencyMS,
			RetrievalLatencyMS:        retrievalLatencyMS,
			PromptAssemblyLatencyMS:   prompt.AssemblyLatencyMS,
			GenerationLatencyMS:       result.LatencyMS,
			AnswerProcessingLatencyMS: processingLatencyMS,
			TotalTokensUsed:           result.Usage.TotalTokens,
			Model:                     result.Model,
			ChunksRetrieved:           len(chunks),
		},
	}
	if req.IncludeSources {
		resp.Citations = processed.Citations
	}

	o.logArtifact(ctx, traceID, "answer", map[string]interface{}{
		"query_id":       queryID.String(),
		"answer":         result.Content,
		"citation_count": len(processed.Citations),
		"used_chunks":    len(processed.UsedChunks),
		"confidence":     processed.Confidence,
		"warnings":       processed.Warnings,
	})

	log.Info().
		Str("query_id", queryID.String()).
		Int("chunks_retrieved", len(chunks)).
		Int("citations", len(processed.Citations)).
		Float64("confidence", processed.Confidence).
		Float64("total_latency_ms", resp.Metadata.TotalLatencyMS).
		Msg("answer_completed")

	return resp, nil
}

// embedQuery returns the query vector, checking the cache first.
func (o *Orchestrator) embedQuery(ctx context.Context, queryText string) (vec []float32, latencyMS float64, cacheHit bool, err error) {
	start := time.Now()

	if o.cache != nil {
		if cached := o.cache.Get(ctx, queryText); cached != nil {
			return cached, float64(time.Since(start)) / float64(time.Millisecond), true, nil
		}
	}

	vec, err = o.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, 0, false, err
	}
	if o.cache != nil {
		o.cache.Set(ctx, queryText, vec)
	}
	return vec, float64(time.Since(start)) / float64(time.Millisecond), false, nil
}

func (o *Orchestrator) logArtifact(ctx context.Context, traceID, artifactType string, data map[string]interface{}) {
	if o.artifacts == nil {
		return
	}
	o.artifacts.Log(ctx, traceID, artifactType, data)
}

func mapHits(hits []storage.ScoredEmbedding) []RetrievedChunk {
	chunks := make([]RetrievedChunk, 0, len(hits))
	for i, hit := range hits {
		chunks = append(chunks, RetrievedChunk{
			ChunkID:         hit.ChunkID,
			DocumentID:      hit.DocumentID,
			Content:         hit.Content,
			SimilarityScore: hit.Similarity,
			Rank:            i + 1,
			Metadata:        hit.Metadata,
			EmbeddingModel:  hit.EmbeddingModel,
		})
	}
	return chunks
}

func chunkSummaries(chunks []RetrievedChunk) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(chunks))
	for _, chunk := range chunks {
		preview := chunk.Content
		if len(preview) > citationPreviewLen {
			preview = preview[:citationPreviewLen]
		}
		out = append(out, map[string]interface{}{
			"chunk_id":         chunk.ChunkID.String(),
			"document_id":      chunk.DocumentID.String(),
			"rank":             chunk.Rank,
			"similarity_score": chunk.SimilarityScore,
			"preview":          preview,
		})
	}
	return out
}
