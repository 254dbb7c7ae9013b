// Package config provides configuration loading for docqa.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Index      IndexConfig      `koanf:"index"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Chunking   ChunkingConfig   `koanf:"chunking"`
	Retrieval  RetrievalConfig  `koanf:"retrieval"`
	Evaluation EvaluationConfig `koanf:"evaluation"`
	Monitoring MonitoringConfig `koanf:"monitoring"`
	Feedback   FeedbackConfig   `koanf:"feedback"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// IndexConfig configures index persistence.
type IndexConfig struct {
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
	VectorSize int    `koanf:"vector_size"`
	Compress   bool   `koanf:"compress"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"`
	CacheDir string `koanf:"cache_dir"`
}

// ChunkingConfig configures document chunking.
type ChunkingConfig struct {
	ChunkSize    int `koanf:"chunk_size"`
	ChunkOverlap int `koanf:"chunk_overlap"`
}

// RetrievalConfig configures the retrieval and accuracy pipeline.
type RetrievalConfig struct {
	RetrievalK              int      `koanf:"retrieval_k"`
	RerankTopK              int      `koanf:"rerank_top_k"`
	DenseSparseWeight       float64  `koanf:"dense_sparse_weight"`
	KeywordOverlapThreshold float64  `koanf:"keyword_overlap_threshold"`
	FallbackScoreThreshold  float64  `koanf:"fallback_score_threshold"`
	DomainKeywords          []string `koanf:"domain_keywords"`
	// Aliases maps abbreviations to canonical full names; the analyzer
	// expands both directions so either form in a query matches either
	// form in a candidate.
	Aliases map[string]string `koanf:"aliases"`
	// CompletenessFirstTypes lists query types that bypass the keyword
	// overlap filter.
	CompletenessFirstTypes []string `koanf:"completeness_first_types"`
}

// EvaluationConfig configures the answer-quality judge.
type EvaluationConfig struct {
	// JudgeModel enables the model-backed judge when set. Empty means
	// heuristic-only evaluation.
	JudgeModel   string `koanf:"judge_model"`
	JudgeBaseURL string `koanf:"judge_base_url"`
	JudgeAPIKey  string `koanf:"judge_api_key"`
}

// MonitoringConfig configures query metrics collection.
type MonitoringConfig struct {
	MetricsPath string `koanf:"metrics_path"`
	WindowSize  int    `koanf:"window_size"`
}

// FeedbackConfig configures user feedback collection.
type FeedbackConfig struct {
	FeedbackPath string `koanf:"feedback_path"`
	WindowSize   int    `koanf:"window_size"`
}

// TelemetryConfig configures OTLP trace export. Disabled by default;
// most deployments have no collector running.
type TelemetryConfig struct {
	Enabled    bool    `koanf:"enabled"`
	Endpoint   string  `koanf:"endpoint"`
	Protocol   string  `koanf:"protocol"`
	Insecure   bool    `koanf:"insecure"`
	SampleRate float64 `koanf:"sample_rate"`
}

// Validate checks cross-field constraints that defaults cannot fix.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}
	if c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunk overlap %d must be smaller than chunk size %d",
			c.Chunking.ChunkOverlap, c.Chunking.ChunkSize)
	}
	if c.Retrieval.DenseSparseWeight < 0 || c.Retrieval.DenseSparseWeight > 1 {
		return fmt.Errorf("dense/sparse weight must be in [0,1], got %v", c.Retrieval.DenseSparseWeight)
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8088
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Index.Path == "" {
		cfg.Index.Path = "~/.config/docqa/index"
	}
	if cfg.Index.Collection == "" {
		cfg.Index.Collection = "docqa_chunks"
	}
	if cfg.Index.VectorSize == 0 {
		cfg.Index.VectorSize = 384 // bge-small-en-v1.5 dimensions
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "fastembed"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}

	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 500
	}
	if cfg.Chunking.ChunkOverlap == 0 {
		cfg.Chunking.ChunkOverlap = 50
	}

	if cfg.Retrieval.RetrievalK == 0 {
		cfg.Retrieval.RetrievalK = 5
	}
	if cfg.Retrieval.RerankTopK == 0 {
		cfg.Retrieval.RerankTopK = 10
	}
	if cfg.Retrieval.DenseSparseWeight == 0 {
		cfg.Retrieval.DenseSparseWeight = 0.7
	}
	if cfg.Retrieval.KeywordOverlapThreshold == 0 {
		cfg.Retrieval.KeywordOverlapThreshold = 0.03
	}
	if cfg.Retrieval.FallbackScoreThreshold == 0 {
		cfg.Retrieval.FallbackScoreThreshold = 0.1
	}
	if cfg.Retrieval.CompletenessFirstTypes == nil {
		cfg.Retrieval.CompletenessFirstTypes = []string{"summary"}
	}

	if cfg.Monitoring.MetricsPath == "" {
		cfg.Monitoring.MetricsPath = "~/.config/docqa/query_metrics.jsonl"
	}
	if cfg.Monitoring.WindowSize == 0 {
		cfg.Monitoring.WindowSize = 100
	}

	if cfg.Feedback.FeedbackPath == "" {
		cfg.Feedback.FeedbackPath = "~/.config/docqa/user_feedback.jsonl"
	}
	if cfg.Feedback.WindowSize == 0 {
		cfg.Feedback.WindowSize = 1000
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
		// TLS off for the default local collector only.
		cfg.Telemetry.Insecure = true
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
}
