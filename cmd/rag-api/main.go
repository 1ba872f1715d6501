// Package main provides the RAG engine API server entrypoint.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ragworks/rag-engine/internal/api"
	"github.com/ragworks/rag-engine/internal/cache"
	"github.com/ragworks/rag-engine/internal/chunking"
	"github.com/ragworks/rag-engine/internal/config"
	"github.com/ragworks/rag-engine/internal/diagnostics"
	"github.com/ragworks/rag-engine/internal/embedding"
	"github.com/ragworks/rag-engine/internal/extract"
	"github.com/ragworks/rag-engine/internal/generation"
	"github.com/ragworks/rag-engine/internal/guardrails"
	"github.com/ragworks/rag-engine/internal/ingest"
	"github.com/ragworks/rag-engine/internal/observability"
	"github.com/ragworks/rag-engine/internal/query"
	"github.com/ragworks/rag-engine/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		cfgPath = os.Args[2]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("database", cfg.Database.Driver).
		Str("vector", cfg.Vector.Store).
		Str("cache", cfg.Cache.Driver).
		Msg("Starting RAG engine API")

	deps, err := buildDependencies(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize dependencies")
	}
	defer deps.close()

	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	defer cancelCleanup()
	if cfg.Debug.Enabled {
		retention := time.Duration(cfg.Debug.RetentionHours) * time.Hour
		deps.artifacts.StartCleanup(cleanupCtx, time.Hour, retention)
	}

	server := api.NewServer(cfg, deps.ingestor, deps.jobs, deps.queries,
		deps.artifacts, deps.vectors, deps.cache, logger)

	var limiter *guardrails.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = guardrails.NewRateLimiter(cfg.RateLimit.MaxRequests,
			time.Duration(cfg.RateLimit.WindowSeconds)*time.Second)
	}
	router := api.NewRouter(server, limiter)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error().Err(err).Msg("Server error")
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("Forced shutdown failed")
		}
	}

	logger.Info().Msg("Server stopped")
}

// dependencies holds the wired application services.
type dependencies struct {
	cache     cache.Client
	vectors   storage.VectorStore
	jobs      storage.JobStore
	artifacts *diagnostics.ArtifactLogger
	ingestor  *ingest.Orchestrator
	queries   *query.Orchestrator
}

func (d *dependencies) close() {
	d.jobs.Close()
	d.vectors.Close()
	d.cache.Close()
}

func buildDependencies(cfg *config.Config, logger *observability.Logger) (*dependencies, error) {
	// Cache.
	var cacheClient cache.Client
	switch cfg.Cache.Driver {
	case "redis":
		c, err := cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			PoolSize: cfg.Cache.Redis.PoolSize,
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		cacheClient = c
	default:
		cacheClient = cache.NewMemoryClient(cfg.Cache.MaxEntries)
	}

	// Vector store.
	var vectors storage.VectorStore
	switch cfg.Vector.Store {
	case "pgvector":
		v, err := storage.NewPGVectorStore(storage.PGVectorConfig{
			DSN:          cfg.Database.Postgres.DSN,
			Dimension:    cfg.Vector.Dimension,
			MaxOpenConns: cfg.Database.Postgres.MaxOpenConns,
			MaxIdleConns: cfg.Database.Postgres.MaxIdleConns,
		})
		if err != nil {
			return nil, fmt.Errorf("open pgvector store: %w", err)
		}
		vectors = v
	default:
		vectors = storage.NewMemoryVectorStore()
	}

	// Job store.
	var jobs storage.JobStore
	switch cfg.Database.Driver {
	case "sqlite":
		j, err := storage.NewSQLiteJobStore(cfg.Database.SQLite.Path, cfg.Database.SQLite.JournalMode)
		if err != nil {
			return nil, fmt.Errorf("open sqlite job store: %w", err)
		}
		jobs = j
	default:
		jobs = storage.NewMemoryJobStore()
	}

	// Debug artifacts.
	var artifactStore storage.ArtifactStore
	if cfg.Debug.Enabled && cfg.Database.Driver == "postgres" {
		s, err := storage.NewPostgresArtifactStore(cfg.Database.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("open artifact store: %w", err)
		}
		artifactStore = s
	} else {
		artifactStore = storage.NewMemoryArtifactStore()
	}
	artifacts := diagnostics.NewArtifactLogger(cfg.Debug.Enabled, artifactStore, logger)

	// Providers.
	var embedder embedding.Client
	if cfg.Embedding.Provider == "mock" {
		embedder = embedding.NewMockClient(cfg.Embedding.Dimension)
	} else {
		embedder = embedding.NewOpenAIClient(embedding.OpenAIConfig{
			BaseURL:        cfg.Embedding.BaseURL,
			APIKey:         cfg.Embedding.APIKey,
			Model:          cfg.Embedding.Model,
			Dimension:      cfg.Embedding.Dimension,
			BatchSize:      cfg.Embedding.BatchSize,
			MaxRetries:     cfg.Embedding.MaxRetries,
			BaseBackoff:    cfg.Embedding.BaseBackoff,
			RequestTimeout: cfg.Embedding.RequestTimeout,
		}, logger)
	}

	var generator generation.Client
	if cfg.Generation.Provider == "mock" {
		generator = generation.NewMockClient()
	} else {
		generator = generation.NewOpenAIClient(generation.OpenAIConfig{
			BaseURL:        cfg.Generation.BaseURL,
			APIKey:         cfg.Generation.APIKey,
			Model:          cfg.Generation.Model,
			Temperature:    cfg.Generation.Temperature,
			MaxRetries:     cfg.Generation.MaxRetries,
			BaseBackoff:    cfg.Generation.BaseBackoff,
			RequestTimeout: cfg.Generation.RequestTimeout,
		}, logger)
	}

	// Pipelines.
	extractor := extract.NewService(extract.PDFPipelineConfig{
		Tier1Enabled:            cfg.PDF.Tier1Enabled,
		Tier2Enabled:            cfg.PDF.Tier2Enabled,
		Tier3Enabled:            cfg.PDF.Tier3Enabled,
		Tier3BaseURL:            cfg.PDF.Tier3BaseURL,
		Tier3APIKey:             cfg.PDF.Tier3APIKey,
		Tier4Enabled:            cfg.PDF.Tier4Enabled,
		Tier4DPI:                cfg.PDF.Tier4DPI,
		Tier4Lang:               cfg.PDF.Tier4Lang,
		Tier4Timeout:            time.Duration(cfg.PDF.Tier4TimeoutSeconds) * time.Second,
		AutoFallback:            cfg.PDF.AutoFallback,
		ExtractabilityThreshold: cfg.PDF.ExtractabilityThreshold,
		MaxPages:                cfg.PDF.MaxPages,
	}, logger)
	chunker := chunking.NewService(logger)

	ingestor := ingest.NewOrchestrator(extractor, chunker, embedder, vectors,
		jobs, cfg.Ingestion, logger)

	queryCache := embedding.NewQueryCache(cacheClient, cfg.Embedding.Model,
		cfg.Cache.QueryEmbeddingTTL)
	prompts := query.NewPromptBuilder(cfg.Generation.Model, cfg.Query.ResponseBudget)
	queries := query.NewOrchestrator(embedder, vectors, prompts, generator, logger,
		query.Options{
			Cache:                 queryCache,
			Artifacts:             artifacts,
			DefaultTimeoutSeconds: cfg.Query.TimeoutSeconds,
		})

	return &dependencies{
		cache:     cacheClient,
		vectors:   vectors,
		jobs:      jobs,
		artifacts: artifacts,
		ingestor:  ingestor,
		queries:   queries,
	}, nil
}
