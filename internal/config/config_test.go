package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWithFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "fastembed", cfg.Embeddings.Provider)
	assert.Equal(t, 384, cfg.Index.VectorSize)
	assert.Equal(t, 500, cfg.Chunking.ChunkSize)
	assert.Equal(t, 50, cfg.Chunking.ChunkOverlap)
	assert.Equal(t, 5, cfg.Retrieval.RetrievalK)
	assert.Equal(t, 10, cfg.Retrieval.RerankTopK)
	assert.InDelta(t, 0.7, cfg.Retrieval.DenseSparseWeight, 1e-9)
	assert.InDelta(t, 0.03, cfg.Retrieval.KeywordOverlapThreshold, 1e-9)
	assert.InDelta(t, 0.1, cfg.Retrieval.FallbackScoreThreshold, 1e-9)
	assert.Equal(t, []string{"summary"}, cfg.Retrieval.CompletenessFirstTypes)
	assert.Equal(t, "~/.config/docqa/user_feedback.jsonl", cfg.Feedback.FeedbackPath)
	assert.Equal(t, 1000, cfg.Feedback.WindowSize)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.Endpoint)
	assert.True(t, cfg.Telemetry.Insecure)
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9000
chunking:
  chunk_size: 300
  chunk_overlap: 30
retrieval:
  rerank_top_k: 20
  dense_sparse_weight: 0.5
  aliases:
    WHO: World Health Organization
    EPA: Environmental Protection Agency
embeddings:
  provider: openai
  base_url: http://localhost:8080
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 300, cfg.Chunking.ChunkSize)
	assert.Equal(t, 30, cfg.Chunking.ChunkOverlap)
	assert.Equal(t, 20, cfg.Retrieval.RerankTopK)
	assert.InDelta(t, 0.5, cfg.Retrieval.DenseSparseWeight, 1e-9)
	assert.Equal(t, map[string]string{
		"WHO": "World Health Organization",
		"EPA": "Environmental Protection Agency",
	}, cfg.Retrieval.Aliases)
	assert.Equal(t, "openai", cfg.Embeddings.Provider)
	// Unset fields still get defaults.
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 5, cfg.Retrieval.RetrievalK)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o600))

	t.Setenv("DOCQA_SERVER_PORT", "9100")
	t.Setenv("DOCQA_EMBEDDINGS_BASE_URL", "http://tei:8080")
	t.Setenv("DOCQA_RETRIEVAL_RERANK_TOP_K", "15")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "http://tei:8080", cfg.Embeddings.BaseURL)
	assert.Equal(t, 15, cfg.Retrieval.RerankTopK)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"overlap exceeds size", func(c *Config) {
			c.Chunking.ChunkSize = 100
			c.Chunking.ChunkOverlap = 100
		}},
		{"weight above one", func(c *Config) { c.Retrieval.DenseSparseWeight = 1.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			applyDefaults(&cfg)
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadRejectsOversizedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	big := make([]byte, maxConfigFileSize+1)
	require.NoError(t, os.WriteFile(path, big, 0o600))

	_, err := LoadWithFile(path)
	assert.Error(t, err)
}
