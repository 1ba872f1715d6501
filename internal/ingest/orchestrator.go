package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ragworks/rag-engine/internal/chunking"
	"github.com/ragworks/rag-engine/internal/config"
	"github.com/ragworks/rag-engine/internal/embedding"
	"github.com/ragworks/rag-engine/internal/extract"
	"github.com/ragworks/rag-engine/internal/observability"
	"github.com/ragworks/rag-engine/internal/ragerr"
	"github.com/ragworks/rag-engine/internal/storage"
)

// Orchestrator drives one ingestion job through extraction, chunking,
// embedding, and storage, recording per-stage metrics on the job.
type Orchestrator struct {
	validator FileValidator
	extractor *extract.Service
	chunker   *chunking.Service
	embedder  embedding.Client
	store     storage.VectorStore
	jobs      storage.JobStore
	logger    *observability.Logger
	cfg       config.IngestionConfig

	sem chan struct{}
}

// NewOrchestrator wires the ingestion pipeline together.
func NewOrchestrator(
	extractor *extract.Service,
	chunker *chunking.Service,
	embedder embedding.Client,
	store storage.VectorStore,
	jobs storage.JobStore,
	cfg config.IngestionConfig,
	logger *observability.Logger,
) *Orchestrator {
	if logger == nil {
		logger = observability.NopLogger()
	}
	maxJobs := cfg.MaxConcurrentJobs
	if maxJobs <= 0 {
		maxJobs = 2
	}
	return &Orchestrator{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		jobs:      jobs,
		logger:    logger,
		cfg:       cfg,
		sem:       make(chan struct{}, maxJobs),
	}
}

// StartJob validates the upload and registers a pending job. The caller
// decides whether to run it synchronously or in the background.
func (o *Orchestrator) StartJob(files []UploadFile) (*storage.IngestionJob, error) {
	if err := o.validator.ValidateBatch(files); err != nil {
		return nil, err
	}

	filenames := make([]string, len(files))
	for i, f := range files {
		filenames[i] = f.Filename
	}
	return o.jobs.CreateJob(uuid.New(), uuid.New(), filenames)
}

// RunAsync executes the job in the background, bounded by the configured
// concurrency limit.
func (o *Orchestrator) RunAsync(ctx context.Context, ingestionID uuid.UUID, files []UploadFile) {
	go func() {
		o.sem <- struct{}{}
		defer func() { <-o.sem }()
		o.Run(ctx, ingestionID, files)
	}()
}

// Run executes the pipeline for an existing job. Stage failures mark the
// job failed with the stage recorded; the returned job reflects the final
// state. Pipeline errors are recorded on the job rather than returned;
// only job-store failures surface as errors.
func (o *Orchestrator) Run(ctx context.Context, ingestionID uuid.UUID, files []UploadFile) (*storage.IngestionJob, error) {
	job, err := o.jobs.GetJob(ingestionID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ragerr.NewNotFound("ingestion job not found")
	}

	log := o.logger.WithContext(ctx).WithOperation("ingest")

	if err := o.jobs.UpdateStatus(ingestionID, storage.JobProcessing, "", ""); err != nil {
		return nil, err
	}

	if len(files) == 0 {
		return o.fail(ingestionID, "extraction", "No files provided for ingestion")
	}

	// Multi-file batches are validated up front but ingested one document
	// per job; the first file carries the document identity.
	first := files[0]

	// Stage 1: extraction.
	t0 := time.Now()
	doc, err := o.extractor.Extract(first.Filename, first.Content, job.DocumentID)
	if err != nil {
		log.Error().Err(err).Str("stage", "extraction").Msg("ingestion_stage_failed")
		return o.fail(ingestionID, "extraction", err.Error())
	}
	extractionMS := float64(time.Since(t0)) / float64(time.Millisecond)
	if err := o.jobs.UpdateMetrics(ingestionID, "extraction", extractionMS, map[string]interface{}{
		"pages": doc.TotalPages,
	}); err != nil {
		return nil, err
	}

	// Stage 2: chunking.
	t0 = time.Now()
	chunkCfg := chunking.ConfigFromTokens(o.cfg.ChunkingStrategy,
		o.cfg.ChunkSizeTokens, o.cfg.ChunkOverlapTokens)
	chunkCfg.MinChunkChars = o.cfg.MinChunkSizeChars
	chunkCfg.MaxChunkChars = o.cfg.MaxChunkSizeChars
	chunkResult, err := o.chunker.ChunkDocument(doc, chunkCfg)
	if err != nil {
		log.Error().Err(err).Str("stage", "chunking").Msg("ingestion_stage_failed")
		return o.fail(ingestionID, "chunking", err.Error())
	}
	chunkingMS := float64(time.Since(t0)) / float64(time.Millisecond)
	if err := o.jobs.UpdateMetrics(ingestionID, "chunking", chunkingMS, map[string]interface{}{
		"chunks":        chunkResult.TotalChunks,
		"skipped_pages": chunkResult.SkippedPages,
	}); err != nil {
		return nil, err
	}
	if err := o.jobs.SetChunksCreated(ingestionID, chunkResult.TotalChunks); err != nil {
		return nil, err
	}

	// Drop chunks whose content is already stored before spending
	// provider calls on them.
	chunks := chunkResult.Chunks
	skippedDuplicates := 0
	if o.cfg.SkipDuplicates {
		kept := chunks[:0]
		for _, chunk := range chunks {
			existing, err := o.store.CheckDuplicateContent(ctx, chunk.Content)
			if err != nil {
				log.Error().Err(err).Str("stage", "embedding").Msg("ingestion_stage_failed")
				return o.fail(ingestionID, "embedding", err.Error())
			}
			if existing != nil {
				skippedDuplicates++
				continue
			}
			kept = append(kept, chunk)
		}
		chunks = kept
	}

	// Stage 3: embedding.
	t0 = time.Now()
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}
	var vectors [][]float32
	if len(texts) > 0 {
		vectors, err = o.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			log.Error().Err(err).Str("stage", "embedding").Msg("ingestion_stage_failed")
			return o.fail(ingestionID, "embedding", err.Error())
		}
	}
	embeddingMS := float64(time.Since(t0)) / float64(time.Millisecond)

	var failures []map[string]interface{}
	qualitySum := 0.0
	tokensEstimate := 0
	records := make([]storage.Embedding, 0, len(chunks))
	now := time.Now()
	for i, chunk := range chunks {
		report := embedding.ValidateVector(vectors[i], o.embedder.Dimension())
		if !report.IsValid {
			failures = append(failures, map[string]interface{}{
				"chunk_id": chunk.ID.String(),
				"issues":   report.Issues,
			})
			continue
		}
		qualitySum += report.QualityScore
		tokensEstimate += chunk.TokenCount
		records = append(records, storage.Embedding{
			EmbeddingID:    uuid.New(),
			ChunkID:        chunk.ID,
			DocumentID:     chunk.DocumentID,
			ChunkIndex:     chunk.ChunkIndex,
			Content:        chunk.Content,
			Vector:         vectors[i],
			Metadata:       chunkMetadata(chunk),
			QualityScore:   chunk.QualityScore,
			EmbeddingModel: o.embedder.Model(),
			CreatedAt:      now,
		})
	}

	avgQuality := 0.0
	if len(records) > 0 {
		avgQuality = qualitySum / float64(len(records))
	}
	embeddingExtra := map[string]interface{}{
		"successful_embeddings":       len(records),
		"failed_embeddings":           len(failures),
		"avg_embedding_quality_score": avgQuality,
		"tokens_used_estimate":        tokensEstimate,
		"skipped_duplicates":          skippedDuplicates,
	}
	if len(failures) > 0 {
		embeddingExtra["embedding_failures"] = failures
	}
	if err := o.jobs.UpdateMetrics(ingestionID, "embedding", embeddingMS, embeddingExtra); err != nil {
		return nil, err
	}

	// Stage 4: storage.
	t0 = time.Now()
	batch, err := o.store.StoreEmbeddingsBatch(ctx, records)
	if err != nil {
		log.Error().Err(err).Str("stage", "storage").Msg("ingestion_stage_failed")
		return o.fail(ingestionID, "storage", err.Error())
	}
	storageMS := float64(time.Since(t0)) / float64(time.Millisecond)
	if err := o.jobs.UpdateMetrics(ingestionID, "storage", storageMS, map[string]interface{}{
		"stored": batch.StoredCount,
		"failed": batch.FailedCount,
	}); err != nil {
		return nil, err
	}

	if err := o.jobs.UpdateStatus(ingestionID, storage.JobCompleted, "", ""); err != nil {
		return nil, err
	}

	log.Info().
		Str("ingestion_id", ingestionID.String()).
		Str("document_id", job.DocumentID.String()).
		Int("pages", doc.TotalPages).
		Int("chunks", chunkResult.TotalChunks).
		Int("stored", batch.StoredCount).
		Int("skipped_duplicates", skippedDuplicates).
		Msg("ingestion_completed")

	return o.jobs.GetJob(ingestionID)
}

func (o *Orchestrator) fail(ingestionID uuid.UUID, stage, message string) (*storage.IngestionJob, error) {
	if err := o.jobs.UpdateStatus(ingestionID, storage.JobFailed, message, stage); err != nil {
		return nil, err
	}
	return o.jobs.GetJob(ingestionID)
}

// chunkMetadata maps chunk metadata into the stored form consumed by
// retrieval and prompt assembly.
func chunkMetadata(chunk chunking.Chunk) map[string]interface{} {
	m := map[string]interface{}{
		"page":             chunk.Metadata.PageNumber,
		"position_in_page": chunk.Metadata.PositionInPage,
	}
	if chunk.Metadata.SourceFilename != "" {
		m["source_file"] = chunk.Metadata.SourceFilename
	}
	if chunk.Metadata.SectionTitle != "" {
		m["section"] = chunk.Metadata.SectionTitle
	}
	if chunk.Metadata.Language != "" {
		m["language"] = chunk.Metadata.Language
	}
	return m
}
