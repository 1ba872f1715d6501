package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragworks/rag-engine/internal/cache"
	"github.com/ragworks/rag-engine/internal/chunking"
	"github.com/ragworks/rag-engine/internal/config"
	"github.com/ragworks/rag-engine/internal/diagnostics"
	"github.com/ragworks/rag-engine/internal/embedding"
	"github.com/ragworks/rag-engine/internal/extract"
	"github.com/ragworks/rag-engine/internal/generation"
	"github.com/ragworks/rag-engine/internal/guardrails"
	"github.com/ragworks/rag-engine/internal/ingest"
	"github.com/ragworks/rag-engine/internal/query"
	"github.com/ragworks/rag-engine/internal/storage"
)

type testEnv struct {
	handler http.Handler
	server  *Server
	vectors storage.VectorStore
	jobs    storage.JobStore
}

type envOptions struct {
	debugEnabled bool
	debugToken   string
	limiter      *guardrails.RateLimiter
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Debug.Enabled = opts.debugEnabled
	cfg.Debug.Token = opts.debugToken
	cfg.Embedding.Provider = "mock"
	cfg.Generation.Provider = "mock"

	embedder := embedding.NewMockClient(32)
	generator := generation.NewMockClient()
	vectors := storage.NewMemoryVectorStore()
	jobs := storage.NewMemoryJobStore()
	cacheClient := cache.NewMemoryClient(100)

	artifacts := diagnostics.NewArtifactLogger(opts.debugEnabled, storage.NewMemoryArtifactStore(), nil)

	ingestor := ingest.NewOrchestrator(
		extract.NewService(extract.PDFPipelineConfig{}, nil),
		chunking.NewService(nil),
		embedder, vectors, jobs,
		config.IngestionConfig{
			ChunkSizeTokens:  400,
			ChunkingStrategy: chunking.StrategyRecursive,
		},
		nil,
	)

	var sink query.ArtifactSink
	if artifacts.Enabled() {
		sink = artifacts
	}
	queries := query.NewOrchestrator(embedder, vectors, nil, generator, nil,
		query.Options{Artifacts: sink})

	server := NewServer(cfg, ingestor, jobs, queries, artifacts, vectors, cacheClient, nil)
	return &testEnv{
		handler: NewRouter(server, opts.limiter),
		server:  server,
		vectors: vectors,
		jobs:    jobs,
	}
}

func (env *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func multipartUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("files", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

const uploadText = "Employees accrue twenty vacation days per calendar year. " +
	"Unused days roll over up to a maximum of five."

func TestHealth(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, body["environment"])
	assert.NotEmpty(t, body["timestamp"])

	deps := body["dependencies"].(map[string]interface{})
	assert.Equal(t, "ok", deps["vector_store"])
	assert.Equal(t, "ok", deps["cache"])
	assert.Equal(t, "ok", deps["embedding"])
	assert.Equal(t, "ok", deps["generation"])
}

func TestHealth_DegradedWhenProviderUnconfigured(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.server.cfg.Generation.Provider = "openai"
	env.server.cfg.Generation.APIKey = ""

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "degraded", body["status"])
	deps := body["dependencies"].(map[string]interface{})
	assert.Equal(t, "degraded", deps["generation"])
}

func TestTraceIDHeader(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Trace-ID", "caller-supplied")
	rec = env.do(t, req)
	assert.Equal(t, "caller-supplied", rec.Header().Get("X-Trace-ID"))
}

func TestIngestSyncAndStatus(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	buf, contentType := multipartUpload(t, "handbook.txt", uploadText)
	req := httptest.NewRequest(http.MethodPost, "/ingest", buf)
	req.Header.Set("Content-Type", contentType)

	rec := env.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, float64(100), body["progress_percent"])
	assert.Positive(t, body["chunks_created"])

	ingestionID := body["ingestion_id"].(string)
	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/ingest/status/"+ingestionID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	status := decodeBody(t, rec)
	assert.Equal(t, "completed", status["status"])
}

func TestUploadAccepted(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	buf, contentType := multipartUpload(t, "handbook.txt", uploadText)
	req := httptest.NewRequest(http.MethodPost, "/api/ingest/upload", buf)
	req.Header.Set("Content-Type", contentType)

	rec := env.do(t, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "pending", body["status"])
	assert.Contains(t, body["status_url"], "/api/ingest/status/")
	assert.NotEmpty(t, body["document_id"])

	files := body["files"].([]interface{})
	require.Len(t, files, 1)
	file := files[0].(map[string]interface{})
	assert.Equal(t, "handbook.txt", file["filename"])
	assert.Equal(t, "text/plain", file["mime_type"])

	// The background job finishes shortly after.
	ingestionID := body["ingestion_id"].(string)
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/ingest/status/"+ingestionID, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		status := decodeBody(t, rec)
		if status["status"] == "completed" || status["status"] == "failed" {
			assert.Equal(t, "completed", status["status"])
			break
		}
		require.True(t, time.Now().Before(deadline), "job did not finish in time")
		time.Sleep(10 * time.Millisecond)
	}
}

func TestJobStatusErrors(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/ingest/status/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, httptest.NewRequest(http.MethodGet,
		"/ingest/status/00000000-0000-0000-0000-000000000001", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	body := decodeBody(t, rec)
	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, "not_found", errBody["type"])
	assert.Equal(t, float64(404), errBody["status_code"])
	assert.NotEmpty(t, errBody["trace_id"])
	assert.NotEmpty(t, errBody["timestamp"])
}

func TestIngestRejectsUnsupportedFile(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	buf, contentType := multipartUpload(t, "data.csv", "a,b,c")
	req := httptest.NewRequest(http.MethodPost, "/ingest", buf)
	req.Header.Set("Content-Type", contentType)

	rec := env.do(t, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody(t, rec)
	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, "file_validation_error", errBody["type"])
}

func TestQueryEndToEnd(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	buf, contentType := multipartUpload(t, "handbook.txt", uploadText)
	req := httptest.NewRequest(http.MethodPost, "/ingest", buf)
	req.Header.Set("Content-Type", contentType)
	require.Equal(t, http.StatusOK, env.do(t, req).Code)

	payload := `{"query": "` + uploadText + `", "include_sources": true}`
	req = httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	rec := env.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Contains(t, body["answer"], "[Source 1]")
	assert.NotEmpty(t, body["citations"])
	assert.NotEmpty(t, body["query_id"])
}

func TestQueryValidation(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"query": ""}`))
	req.Header.Set("Content-Type", "application/json")
	rec := env.do(t, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`not json`))
	req.Header.Set("Content-Type", "application/json")
	rec = env.do(t, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRetrieve(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	buf, contentType := multipartUpload(t, "handbook.txt", uploadText)
	req := httptest.NewRequest(http.MethodPost, "/ingest", buf)
	req.Header.Set("Content-Type", contentType)
	require.Equal(t, http.StatusOK, env.do(t, req).Code)

	payload := `{"query": "` + uploadText + `"}`
	req = httptest.NewRequest(http.MethodPost, "/retrieve", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	rec := env.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	chunks := body["retrieved_chunks"].([]interface{})
	require.NotEmpty(t, chunks)
	first := chunks[0].(map[string]interface{})
	assert.Equal(t, float64(1), first["rank"])
}

func TestDebugArtifacts(t *testing.T) {
	env := newTestEnv(t, envOptions{debugEnabled: true, debugToken: "secret"})

	// Run a query under a known trace so artifacts exist.
	payload := `{"query": "anything"}`
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Trace-ID", "trace-debug")
	require.Equal(t, http.StatusOK, env.do(t, req).Code)

	// Missing token is rejected.
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/debug/artifacts?trace_id=trace-debug", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Wrong token is rejected.
	req = httptest.NewRequest(http.MethodGet, "/api/debug/artifacts?trace_id=trace-debug", nil)
	req.Header.Set("X-Debug-Token", "wrong")
	assert.Equal(t, http.StatusForbidden, env.do(t, req).Code)

	// Missing trace_id is a bad request.
	req = httptest.NewRequest(http.MethodGet, "/api/debug/artifacts", nil)
	req.Header.Set("X-Debug-Token", "secret")
	assert.Equal(t, http.StatusBadRequest, env.do(t, req).Code)

	// Valid token and trace return the captured artifacts.
	req = httptest.NewRequest(http.MethodGet, "/api/debug/artifacts?trace_id=trace-debug", nil)
	req.Header.Set("X-Debug-Token", "secret")
	rec = env.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "trace-debug", body["trace_id"])
	artifacts := body["artifacts"].([]interface{})
	assert.Len(t, artifacts, 5)

	// Bearer tokens work too.
	req = httptest.NewRequest(http.MethodGet, "/api/debug/artifacts?trace_id=trace-debug", nil)
	req.Header.Set("Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, env.do(t, req).Code)
}

func TestDebugArtifactsHiddenWhenDisabled(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	req := httptest.NewRequest(http.MethodGet, "/api/debug/artifacts?trace_id=x", nil)
	req.Header.Set("X-Debug-Token", "anything")
	assert.Equal(t, http.StatusNotFound, env.do(t, req).Code)
}

func TestRateLimitReturns429(t *testing.T) {
	env := newTestEnv(t, envOptions{
		limiter: guardrails.NewRateLimiter(2, time.Minute),
	})

	payload := `{"query": "rate limited query"}`
	var rec *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-User-ID", "heavy-user")
		rec = env.do(t, req)
	}

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	body := decodeBody(t, rec)
	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, "rate_limit_error", errBody["type"])

	// The unauthenticated routes are not limited.
	assert.Equal(t, http.StatusOK, env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
}

func TestRootListsEndpoints(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "rag-engine", body["service"])
	assert.NotEmpty(t, body["endpoints"])
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(0), body["embeddings_stored"])
}
