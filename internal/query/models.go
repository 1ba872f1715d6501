// Package query runs the retrieval and answer pipelines: embed the query,
// search the vector store, assemble a budgeted prompt, generate an answer,
// and post-process citations.
package query

import (
	"github.com/google/uuid"
)

// RetrievedChunk is one similarity-search hit mapped into the pipeline's
// working form. Rank is 1-based, 1 being the best match.
type RetrievedChunk struct {
	ChunkID         uuid.UUID              `json:"chunk_id"`
	DocumentID      uuid.UUID              `json:"document_id"`
	Content         string                 `json:"content"`
	SimilarityScore float64                `json:"similarity_score"`
	Rank            int                    `json:"rank"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	EmbeddingModel  string                 `json:"embedding_model,omitempty"`
}

// RetrieveRequest asks for the top matching chunks without generation.
type RetrieveRequest struct {
	Query   string                 `json:"query"`
	TopK    int                    `json:"top_k"`
	Filters map[string]interface{} `json:"filters,omitempty"`
}

// RetrieveResponse carries search hits plus stage latencies.
type RetrieveResponse struct {
	QueryID uuid.UUID              `json:"query_id"`
	Chunks  []RetrievedChunk       `json:"retrieved_chunks"`
	Metrics map[string]interface{} `json:"metrics"`
}

// AnswerRequest asks for a grounded answer to a query.
type AnswerRequest struct {
	Query          string                 `json:"query"`
	TopK           int                    `json:"top_k"`
	Filters        map[string]interface{} `json:"filters,omitempty"`
	TimeoutSeconds int                    `json:"timeout_seconds,omitempty"`
	IncludeSources bool                   `json:"include_sources"`
	UserID         string                 `json:"user_id,omitempty"`
}

// Citation is a validated [Source N] reference in the answer.
type Citation struct {
	SourceIndex     int       `json:"source_index"`
	ChunkID         uuid.UUID `json:"chunk_id"`
	DocumentID      uuid.UUID `json:"document_id,omitempty"`
	SourceFile      string    `json:"source_file,omitempty"`
	Page            int       `json:"page,omitempty"`
	SimilarityScore float64   `json:"similarity_score"`
	Preview         string    `json:"preview"`
}

// UsedChunk is a chunk that was placed into the prompt context.
type UsedChunk struct {
	ChunkID         uuid.UUID `json:"chunk_id"`
	Rank            int       `json:"rank"`
	SimilarityScore float64   `json:"similarity_score"`
	ContentPreview  string    `json:"content_preview"`
}

// AnswerMetadata aggregates per-stage latencies and token usage.
type AnswerMetadata struct {
	TotalLatencyMS            float64 `json:"total_latency_ms"`
	EmbeddingLatencyMS        float64 `json:"embedding_latency_ms"`
	RetrievalLatencyMS        float64 `json:"retrieval_latency_ms"`
	PromptAssemblyLatencyMS   float64 `json:"prompt_assembly_latency_ms"`
	GenerationLatencyMS       float64 `json:"generation_latency_ms"`
	AnswerProcessingLatencyMS float64 `json:"answer_processing_latency_ms"`
	TotalTokensUsed           int     `json:"total_tokens_used"`
	Model                     string  `json:"model"`
	ChunksRetrieved           int     `json:"chunks_retrieved"`
}

// AnswerResponse is the full generation pipeline output.
type AnswerResponse struct {
	QueryID    uuid.UUID      `json:"query_id"`
	Answer     string         `json:"answer"`
	Citations  []Citation     `json:"citations"`
	UsedChunks []UsedChunk    `json:"used_chunks"`
	Confidence float64        `json:"confidence"`
	Warnings   []string       `json:"warnings,omitempty"`
	Metadata   AnswerMetadata `json:"metadata"`
}
