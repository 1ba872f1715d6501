package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ragworks/rag-engine/internal/guardrails"
)

// NewRouter assembles the HTTP routes over the handler set.
func NewRouter(s *Server, limiter *guardrails.RateLimiter) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Trace)
	r.Use(chimiddleware.Recoverer)
	r.Use(CORS([]string{"*"}))

	requestTimeout := s.cfg.Server.WriteTimeout
	if requestTimeout <= 0 {
		requestTimeout = 2 * time.Minute
	}
	r.Use(chimiddleware.Timeout(requestTimeout))

	r.Get("/", s.Root)
	r.Get("/health", s.Health)
	r.Get("/metrics", s.Metrics)

	r.Post("/ingest", s.IngestSync)
	r.Get("/ingest/status/{id}", s.JobStatus)
	r.Post("/retrieve", s.Retrieve)

	r.Route("/api", func(r chi.Router) {
		if limiter != nil {
			r.Use(RateLimit(limiter))
		}
		r.Post("/ingest/upload", s.Upload)
		r.Get("/ingest/status/{id}", s.JobStatus)
		r.Post("/query", s.Query)
		r.Get("/debug/artifacts", s.DebugArtifacts)
	})

	return r
}
