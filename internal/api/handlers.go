package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ragworks/rag-engine/internal/cache"
	"github.com/ragworks/rag-engine/internal/config"
	"github.com/ragworks/rag-engine/internal/diagnostics"
	"github.com/ragworks/rag-engine/internal/ingest"
	"github.com/ragworks/rag-engine/internal/observability"
	"github.com/ragworks/rag-engine/internal/query"
	"github.com/ragworks/rag-engine/internal/ragerr"
	"github.com/ragworks/rag-engine/internal/storage"
)

// Server bundles the handlers' dependencies.
type Server struct {
	cfg       *config.Config
	logger    *observability.Logger
	ingestor  *ingest.Orchestrator
	jobs      storage.JobStore
	queries   *query.Orchestrator
	artifacts *diagnostics.ArtifactLogger
	vectors   storage.VectorStore
	cache     cache.Client

	startTime time.Time
}

// NewServer creates the handler set.
func NewServer(
	cfg *config.Config,
	ingestor *ingest.Orchestrator,
	jobs storage.JobStore,
	queries *query.Orchestrator,
	artifacts *diagnostics.ArtifactLogger,
	vectors storage.VectorStore,
	cacheClient cache.Client,
	logger *observability.Logger,
) *Server {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Server{
		cfg:       cfg,
		logger:    logger,
		ingestor:  ingestor,
		jobs:      jobs,
		queries:   queries,
		artifacts: artifacts,
		vectors:   vectors,
		cache:     cacheClient,
		startTime: time.Now(),
	}
}

// Root describes the service.
func (s *Server) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":     "rag-engine",
		"version":     s.cfg.Version,
		"environment": s.cfg.Environment,
		"endpoints": []string{
			"GET /health",
			"POST /api/ingest/upload",
			"GET /api/ingest/status/{id}",
			"POST /ingest",
			"GET /ingest/status/{id}",
			"POST /api/query",
			"POST /retrieve",
			"GET /api/debug/artifacts",
			"GET /metrics",
		},
	})
}

// Health checks the service dependencies and reports each as
// ok, degraded, or unavailable. An unavailable vector store makes the
// service unhealthy with a 503; a failing cache or an unconfigured
// provider only degrades it.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deps := map[string]string{}

	if _, err := s.vectors.Count(ctx); err != nil {
		deps["vector_store"] = "unavailable"
	} else {
		deps["vector_store"] = "ok"
	}

	checkKey := cache.Key("health", "check")
	if err := s.cache.Set(ctx, checkKey, []byte("ok"), time.Minute); err != nil {
		deps["cache"] = "degraded"
	} else {
		deps["cache"] = "ok"
	}

	deps["embedding"] = providerState(s.cfg.Embedding.Provider, s.cfg.Embedding.APIKey)
	deps["generation"] = providerState(s.cfg.Generation.Provider, s.cfg.Generation.APIKey)

	status := "healthy"
	code := http.StatusOK
	for _, state := range deps {
		if state == "degraded" && status == "healthy" {
			status = "degraded"
		}
		if state == "unavailable" {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, map[string]interface{}{
		"status":         status,
		"version":        s.cfg.Version,
		"environment":    s.cfg.Environment,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"dependencies":   deps,
	})
}

func providerState(provider, apiKey string) string {
	if provider == "mock" || apiKey != "" {
		return "ok"
	}
	return "degraded"
}

// Metrics reports coarse operational counters.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	count, err := s.vectors.Count(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"embeddings_stored": count,
		"uptime_seconds":    int(time.Since(s.startTime).Seconds()),
		"version":           s.cfg.Version,
	})
}

type uploadResponse struct {
	IngestionID string `json:"ingestion_id"`
	DocumentID  string `json:"document_id"`
	Status      string `json:"status"`
	StatusURL   string `json:"status_url"`
}

// Upload accepts a multipart batch and runs ingestion in the background.
func (s *Server) Upload(w http.ResponseWriter, r *http.Request) {
	files, err := readUploadFiles(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	job, err := s.ingestor.StartJob(files)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// Detach from the request context; the job outlives the request.
	traceID := observability.TraceIDFromContext(r.Context())
	bg := observability.ContextWithTraceID(context.Background(), traceID)
	s.ingestor.RunAsync(bg, job.IngestionID, files)

	writeJSON(w, http.StatusAccepted, uploadResponse{
		IngestionID: job.IngestionID.String(),
		DocumentID:  job.DocumentID.String(),
		Status:      string(job.Status),
		StatusURL:   "/api/ingest/status/" + job.IngestionID.String(),
	})
}

// IngestSync runs the full pipeline before responding.
func (s *Server) IngestSync(w http.ResponseWriter, r *http.Request) {
	files, err := readUploadFiles(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	job, err := s.ingestor.StartJob(files)
	if err != nil {
		writeError(w, r, err)
		return
	}

	job, err = s.ingestor.Run(r.Context(), job.IngestionID, files)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobResponse(job))
}

// JobStatus reports the state of one ingestion job.
func (s *Server) JobStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, ragerr.NewBadRequest("invalid ingestion id"))
		return
	}

	job, err := s.jobs.GetJob(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if job == nil {
		writeError(w, r, ragerr.NewNotFound("ingestion job not found"))
		return
	}
	writeJSON(w, http.StatusOK, jobResponse(job))
}

// Query runs the full answer pipeline.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	var req query.AnswerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.TopK == 0 {
		req.TopK = s.cfg.Query.DefaultTopK
	}

	resp, err := s.queries.Answer(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Retrieve runs similarity search without generation.
func (s *Server) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req query.RetrieveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.TopK == 0 {
		req.TopK = s.cfg.Query.DefaultTopK
	}

	resp, err := s.queries.Retrieve(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// DebugArtifacts returns the artifacts captured for a trace. The
// endpoint does not exist when debug capture is disabled, and requires
// the configured token otherwise.
func (s *Server) DebugArtifacts(w http.ResponseWriter, r *http.Request) {
	if s.artifacts == nil || !s.artifacts.Enabled() {
		writeError(w, r, ragerr.NewNotFound("not found"))
		return
	}

	token := r.Header.Get("X-Debug-Token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if s.cfg.Debug.Token == "" || token != s.cfg.Debug.Token {
		writeError(w, r, ragerr.New(http.StatusForbidden, "forbidden", "invalid debug token"))
		return
	}

	traceID := r.URL.Query().Get("trace_id")
	if traceID == "" {
		writeError(w, r, ragerr.NewBadRequest("trace_id query parameter is required"))
		return
	}

	artifacts, err := s.artifacts.GetByTraceID(r.Context(), traceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"trace_id":  traceID,
		"artifacts": artifacts,
	})
}

func jobResponse(job *storage.IngestionJob) map[string]interface{} {
	files := make([]map[string]string, 0, len(job.Filenames))
	for _, name := range job.Filenames {
		files = append(files, map[string]string{
			"filename":  name,
			"mime_type": ingest.MIMEType(name),
		})
	}
	resp := map[string]interface{}{
		"files":            files,
		"ingestion_id":     job.IngestionID.String(),
		"document_id":      job.DocumentID.String(),
		"status":           string(job.Status),
		"filenames":        job.Filenames,
		"chunks_created":   job.ChunksCreated,
		"progress_percent": job.ProgressPercent(),
		"metrics":          job.Metrics,
		"created_at":       job.CreatedAt,
	}
	if job.ErrorMessage != "" {
		resp["error_message"] = job.ErrorMessage
	}
	if job.ErrorStage != "" {
		resp["error_stage"] = job.ErrorStage
	}
	if job.StartedAt != nil {
		resp["started_at"] = job.StartedAt
	}
	if job.CompletedAt != nil {
		resp["completed_at"] = job.CompletedAt
	}
	return resp
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return ragerr.NewBadRequest("invalid JSON body: " + err.Error())
	}
	return nil
}

// readUploadFiles parses a multipart upload into memory, honoring the
// total payload cap while reading.
func readUploadFiles(r *http.Request) ([]ingest.UploadFile, error) {
	if err := r.ParseMultipartForm(ingest.MaxTotalSizeBytes); err != nil {
		return nil, ragerr.NewBadRequest("invalid multipart form: " + err.Error())
	}
	if r.MultipartForm == nil {
		return nil, ragerr.NewBadRequest("multipart form expected")
	}

	var files []ingest.UploadFile
	for _, headers := range r.MultipartForm.File {
		for _, header := range headers {
			f, err := header.Open()
			if err != nil {
				return nil, ragerr.NewBadRequest("read upload: " + err.Error())
			}
			content, err := io.ReadAll(io.LimitReader(f, ingest.MaxFileSizeBytes+1))
			f.Close()
			if err != nil {
				return nil, ragerr.NewBadRequest("read upload: " + err.Error())
			}
			files = append(files, ingest.UploadFile{
				Filename: header.Filename,
				Content:  content,
			})
		}
	}
	return files, nil
}
