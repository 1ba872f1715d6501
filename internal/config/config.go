// Package config provides unified configuration loading for the RAG engine.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the RAG engine.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Vector        VectorConfig        `yaml:"vector"`
	Cache         CacheConfig         `yaml:"cache"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Generation    GenerationConfig    `yaml:"generation"`
	Ingestion     IngestionConfig     `yaml:"ingestion"`
	Query         QueryConfig         `yaml:"query"`
	PDF           PDFConfig           `yaml:"pdf"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Debug         DebugConfig         `yaml:"debug"`
	Observability ObservabilityConfig `yaml:"observability"`
	Environment   string              `yaml:"environment"` // dev, staging, or prod
	Version       string              `yaml:"version"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// DatabaseConfig holds metadata persistence settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // memory, sqlite, or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	JournalMode  string `yaml:"journal_mode"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// VectorConfig holds vector store settings.
type VectorConfig struct {
	Store     string `yaml:"store"` // memory or pgvector
	Dimension int    `yaml:"dimension"`
	IndexType string `yaml:"index_type"`
	Lists     int    `yaml:"lists"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Driver            string        `yaml:"driver"` // memory or redis
	QueryEmbeddingTTL time.Duration `yaml:"query_embedding_ttl"`
	MaxEntries        int           `yaml:"max_entries"`
	Redis             RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider           string        `yaml:"provider"` // openai or mock
	BaseURL            string        `yaml:"base_url"`
	APIKey             string        `yaml:"api_key"`
	Model              string        `yaml:"model"`
	Dimension          int           `yaml:"dimension"`
	BatchSize          int           `yaml:"batch_size"`
	MaxRetries         int           `yaml:"max_retries"`
	BaseBackoff        time.Duration `yaml:"base_backoff"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
}

// GenerationConfig holds completion provider settings.
type GenerationConfig struct {
	Provider       string        `yaml:"provider"` // openai or mock
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`
	MaxTokens      int           `yaml:"max_tokens"`
	Temperature    float64       `yaml:"temperature"`
	MaxRetries     int           `yaml:"max_retries"`
	BaseBackoff    time.Duration `yaml:"base_backoff"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// IngestionConfig holds ingestion pipeline settings.
type IngestionConfig struct {
	ChunkSizeTokens    int    `yaml:"chunk_size_tokens"`
	ChunkOverlapTokens int    `yaml:"chunk_overlap_tokens"`
	ChunkingStrategy   string `yaml:"chunking_strategy"` // recursive or sliding_window
	MinChunkSizeChars  int    `yaml:"min_chunk_size_chars"`
	MaxChunkSizeChars  int    `yaml:"max_chunk_size_chars"`
	MaxConcurrentJobs  int    `yaml:"max_concurrent_jobs"`
	SkipDuplicates     bool   `yaml:"skip_duplicates"`
}

// QueryConfig holds query pipeline settings.
type QueryConfig struct {
	TimeoutSeconds    int `yaml:"timeout_seconds"`
	DefaultTopK       int `yaml:"default_top_k"`
	ResponseBudget    int `yaml:"response_budget"` // tokens reserved for the answer
}

// PDFConfig holds PDF extraction pipeline settings.
type PDFConfig struct {
	Tier1Enabled             bool    `yaml:"tier1_enabled"`
	Tier2Enabled             bool    `yaml:"tier2_enabled"`
	Tier3Enabled             bool    `yaml:"tier3_enabled"`
	Tier3BaseURL             string  `yaml:"tier3_base_url"`
	Tier3APIKey              string  `yaml:"tier3_api_key"`
	Tier4Enabled             bool    `yaml:"tier4_enabled"`
	Tier4DPI                 int     `yaml:"tier4_dpi"`
	Tier4Lang                string  `yaml:"tier4_lang"`
	Tier4TimeoutSeconds      int     `yaml:"tier4_timeout_seconds"`
	AutoFallback             bool    `yaml:"auto_fallback"`
	ExtractabilityThreshold  float64 `yaml:"extractability_threshold"`
	MaxPages                 int     `yaml:"max_pages"`
}

// RateLimitConfig holds per-user rate limiting settings.
type RateLimitConfig struct {
	Enabled       bool `yaml:"enabled"`
	MaxRequests   int  `yaml:"max_requests"`
	WindowSeconds int  `yaml:"window_seconds"`
}

// DebugConfig holds debug artifact settings.
type DebugConfig struct {
	Enabled              bool   `yaml:"enabled"`
	Token                string `yaml:"token"`
	IncludeChunkContent  bool   `yaml:"include_chunk_content"`
	MaxArtifactSizeBytes int    `yaml:"max_artifact_size_bytes"`
	RetentionHours       int    `yaml:"retention_hours"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     60 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "memory",
			SQLite: SQLiteConfig{
				Path:         "/tmp/rag-engine.db",
				MaxOpenConns: 1,
				JournalMode:  "WAL",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Vector: VectorConfig{
			Store:     "memory",
			Dimension: 1536,
			IndexType: "ivfflat",
			Lists:     100,
		},
		Cache: CacheConfig{
			Driver:            "memory",
			QueryEmbeddingTTL: 24 * time.Hour,
			MaxEntries:        10000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
			},
		},
		Embedding: EmbeddingConfig{
			Provider:       "openai",
			BaseURL:        "https://api.openai.com/v1",
			Model:          "text-embedding-3-small",
			Dimension:      1536,
			BatchSize:      100,
			MaxRetries:     3,
			BaseBackoff:    time.Second,
			RequestTimeout: 30 * time.Second,
		},
		Generation: GenerationConfig{
			Provider:       "openai",
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-5-nano",
			MaxTokens:      1500,
			Temperature:    0.2,
			MaxRetries:     3,
			BaseBackoff:    time.Second,
			RequestTimeout: 60 * time.Second,
		},
		Ingestion: IngestionConfig{
			ChunkSizeTokens:    512,
			ChunkOverlapTokens: 50,
			ChunkingStrategy:   "recursive",
			MinChunkSizeChars:  20,
			MaxChunkSizeChars:  8000,
			MaxConcurrentJobs:  2,
			SkipDuplicates:     true,
		},
		Query: QueryConfig{
			TimeoutSeconds: 30,
			DefaultTopK:    10,
			ResponseBudget: 1500,
		},
		PDF: PDFConfig{
			Tier1Enabled:            true,
			Tier2Enabled:            false,
			Tier3Enabled:            false,
			Tier4Enabled:            false,
			Tier4DPI:                300,
			Tier4Lang:               "eng",
			Tier4TimeoutSeconds:     120,
			AutoFallback:            true,
			ExtractabilityThreshold: 0.5,
			MaxPages:                1000,
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			MaxRequests:   60,
			WindowSeconds: 60,
		},
		Debug: DebugConfig{
			Enabled:              false,
			IncludeChunkContent:  true,
			MaxArtifactSizeBytes: 10000,
			RetentionHours:       24,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "debug",
			LogFormat:   "json",
			ServiceName: "rag-engine",
		},
		Environment: "dev",
		Version:     "0.1.0",
	}
}

// applyEnvOverrides applies environment variable overrides onto cfg.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RAG_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("RAG_ENVIRONMENT"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("RAG_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("RAG_POSTGRES_DSN"); v != "" {
		cfg.Database.Postgres.DSN = v
	}
	if v := os.Getenv("RAG_SQLITE_PATH"); v != "" {
		cfg.Database.SQLite.Path = v
	}
	if v := os.Getenv("RAG_VECTOR_STORE"); v != "" {
		cfg.Vector.Store = v
	}
	if v := os.Getenv("RAG_CACHE_DRIVER"); v != "" {
		cfg.Cache.Driver = v
	}
	if v := os.Getenv("RAG_REDIS_ADDR"); v != "" {
		cfg.Cache.Redis.Addr = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = v
		}
		if cfg.Generation.APIKey == "" {
			cfg.Generation.APIKey = v
		}
	}
	if v := os.Getenv("RAG_EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("RAG_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("RAG_GENERATION_PROVIDER"); v != "" {
		cfg.Generation.Provider = v
	}
	if v := os.Getenv("RAG_GENERATION_MODEL"); v != "" {
		cfg.Generation.Model = v
	}
	if v := os.Getenv("RAG_QUERY_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Query.TimeoutSeconds = n
		}
	}
	if v := os.Getenv("RAG_DEBUG_ENABLED"); v != "" {
		cfg.Debug.Enabled = parseBool(v, cfg.Debug.Enabled)
	}
	if v := os.Getenv("RAG_DEBUG_TOKEN"); v != "" {
		cfg.Debug.Token = v
	}
	if v := os.Getenv("RAG_PDF_TIER2_ENABLED"); v != "" {
		cfg.PDF.Tier2Enabled = parseBool(v, cfg.PDF.Tier2Enabled)
	}
	if v := os.Getenv("RAG_PDF_TIER3_ENABLED"); v != "" {
		cfg.PDF.Tier3Enabled = parseBool(v, cfg.PDF.Tier3Enabled)
	}
	if v := os.Getenv("RAG_PDF_TIER3_API_KEY"); v != "" {
		cfg.PDF.Tier3APIKey = v
	}
	if v := os.Getenv("RAG_PDF_TIER4_ENABLED"); v != "" {
		cfg.PDF.Tier4Enabled = parseBool(v, cfg.PDF.Tier4Enabled)
	}
	if v := os.Getenv("RAG_PDF_TIER4_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PDF.Tier4TimeoutSeconds = n
		}
	}
	if v := os.Getenv("RAG_RATE_LIMIT_ENABLED"); v != "" {
		cfg.RateLimit.Enabled = parseBool(v, cfg.RateLimit.Enabled)
	}
	if v := os.Getenv("RAG_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("RAG_LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}

func parseBool(v string, def bool) bool {
	switch v {
	case "1", "true", "yes", "y", "on", "TRUE", "True":
		return true
	case "0", "false", "no", "n", "off", "FALSE", "False":
		return false
	default:
		return def
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.Vector.Store != "memory" && c.Vector.Store != "pgvector" {
		return fmt.Errorf("invalid vector store: %s", c.Vector.Store)
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Vector.Dimension < 1 {
		return fmt.Errorf("vector dimension must be positive: %d", c.Vector.Dimension)
	}

	if c.Ingestion.ChunkSizeTokens < 100 || c.Ingestion.ChunkSizeTokens > 4000 {
		return fmt.Errorf("chunk_size_tokens must be between 100 and 4000")
	}

	if c.Ingestion.ChunkOverlapTokens < 0 || c.Ingestion.ChunkOverlapTokens > 500 {
		return fmt.Errorf("chunk_overlap_tokens must be between 0 and 500")
	}

	if c.Ingestion.ChunkOverlapTokens >= c.Ingestion.ChunkSizeTokens {
		return fmt.Errorf("chunk overlap must be smaller than chunk size")
	}

	if c.Query.TimeoutSeconds < 1 || c.Query.TimeoutSeconds > 120 {
		return fmt.Errorf("query timeout_seconds must be between 1 and 120")
	}

	// The pgvector schema fixes the column dimension, so only the one
	// standardized OpenAI embedding model is accepted.
	if c.Embedding.Provider == "openai" && c.Embedding.Model != "text-embedding-3-small" {
		return fmt.Errorf("unsupported embedding model: %s", c.Embedding.Model)
	}

	if c.Embedding.BatchSize < 1 || c.Embedding.BatchSize > 2048 {
		return fmt.Errorf("embedding batch_size must be between 1 and 2048")
	}

	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		return fmt.Errorf("generation temperature must be between 0 and 2")
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "dev"
}
