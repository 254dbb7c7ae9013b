// Package embeddings provides embedding generation via multiple providers.
//
// Supports FastEmbed (local ONNX), OpenAI-compatible HTTP services (OpenAI,
// TEI), and a deterministic hashing provider for tests and dependency-free
// operation. Factory pattern enables provider selection at runtime with
// automatic dimension detection for common models.
package embeddings

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider is the interface for embedding providers.
//
// All implementations return L2-normalized vectors so downstream cosine
// similarity reduces to a dot product. Over-long input is truncated to
// the model window, never rejected.
type Provider interface {
	Embedder
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is the provider type: "fastembed", "openai", or "hash".
	Provider string
	// Model is the embedding model name.
	Model string
	// BaseURL is the API URL (only used for the openai provider; works
	// for TEI and other OpenAI-compatible servers).
	BaseURL string
	// APIKey is the API key (optional for TEI).
	APIKey string
	// CacheDir is the model cache directory (only used for FastEmbed).
	CacheDir string
	// Dimension overrides dimension detection (only used for hash and
	// openai providers).
	Dimension int
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "fastembed", "":
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	case "openai", "tei":
		return NewOpenAIProvider(OpenAIConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey,
			Dimension: cfg.Dimension,
		})
	case "hash":
		dim := cfg.Dimension
		if dim == 0 {
			dim = 384
		}
		return NewHashProvider(dim), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// detectDimensionFromModel returns the embedding dimension for a model name.
// Falls back to 384 if the model is unknown.
func detectDimensionFromModel(model string) int {
	if dim, ok := fastEmbedModelDimension(model); ok {
		return dim
	}
	switch {
	case strings.Contains(model, "text-embedding-3-large"):
		return 3072
	case strings.Contains(model, "text-embedding"):
		return 1536
	case strings.Contains(model, "base"):
		return 768
	case strings.Contains(model, "large"):
		return 1024
	default:
		return 384 // safe default for bge-small
	}
}

// normalize scales v to unit L2 length in place and returns it.
// The zero vector is returned unchanged.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}

func normalizeAll(vectors [][]float32) [][]float32 {
	for i := range vectors {
		vectors[i] = normalize(vectors[i])
	}
	return vectors
}
