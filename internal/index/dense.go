// Package index maintains the dense (vector) and sparse (BM25) indices
// over document chunks, kept in lockstep by the Manager.
package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docqa/internal/chunker"
)

// denseTracer for OpenTelemetry instrumentation.
var denseTracer = otel.Tracer("docqa.index.dense")

var (
	// ErrInvalidConfig indicates invalid index configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMissingEmbedding indicates a chunk arrived without its vector.
	ErrMissingEmbedding = errors.New("chunk has no embedding")
)

// Hit is a single scored match from either index. Scores from the two
// indices live on different scales and are only comparable after
// normalization in the retriever.
type Hit struct {
	ID    string
	Score float64
}

// DenseConfig holds configuration for the chromem-backed vector index.
type DenseConfig struct {
	// Path is the directory for persistent storage.
	// Default: "~/.config/docqa/index"
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Collection is the chromem collection name.
	// Default: "docqa_chunks"
	Collection string

	// VectorSize is the expected embedding dimension.
	// Must match the embedder's output dimension. Default: 384.
	VectorSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *DenseConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/docqa/index"
	}
	if c.Collection == "" {
		c.Collection = "docqa_chunks"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// Validate validates the configuration.
func (c *DenseConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// DenseIndex stores chunk vectors in an embedded chromem-go collection.
//
// All embeddings are computed upstream; the collection's embedding
// function is a guard that rejects any accidental on-the-fly embedding
// (chromem would otherwise fall back to the OpenAI API).
type DenseIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	config     DenseConfig
	logger     *zap.Logger
}

// NewDenseIndex opens (or creates) the persistent vector index.
func NewDenseIndex(config DenseConfig, logger *zap.Logger) (*DenseIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	expandedPath, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}

	if err := os.MkdirAll(expandedPath, 0755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", expandedPath, err)
	}

	db, err := chromem.NewPersistentDB(expandedPath, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	collection, err := db.GetOrCreateCollection(config.Collection, nil, rejectEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", config.Collection, err)
	}

	logger.Info("dense index opened",
		zap.String("path", expandedPath),
		zap.String("collection", config.Collection),
		zap.Int("vector_size", config.VectorSize),
		zap.Int("chunks", collection.Count()),
	)

	return &DenseIndex{
		db:         db,
		collection: collection,
		config:     config,
		logger:     logger,
	}, nil
}

// rejectEmbeddingFunc is installed as the collection's embedding
// function. Every write and query supplies a precomputed vector, so a
// call here means a bug upstream.
func rejectEmbeddingFunc(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("dense index requires precomputed embeddings")
}

// expandPath expands ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// Add inserts chunks with their precomputed embeddings.
func (d *DenseIndex) Add(ctx context.Context, chunks []chunker.Chunk) error {
	ctx, span := denseTracer.Start(ctx, "DenseIndex.Add")
	defer span.End()

	span.SetAttributes(attribute.Int("chunk_count", len(chunks)))

	if len(chunks) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(chunks))
	for i, ch := range chunks {
		if len(ch.Embedding) == 0 {
			err := fmt.Errorf("%w: %s", ErrMissingEmbedding, ch.ID)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		docs[i] = chromem.Document{
			ID:      ch.ID,
			Content: ch.Text,
			Metadata: map[string]string{
				"document_id": ch.DocumentID,
				"title":       ch.SourceTitle,
			},
			Embedding: ch.Embedding,
		}
	}

	// Concurrency of 1 since embeddings are precomputed.
	if err := d.collection.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding chunks: %w", err)
	}

	span.SetStatus(codes.Ok, "success")

	d.logger.Debug("added chunks to dense index", zap.Int("count", len(chunks)))
	return nil
}

// Search returns the k nearest chunks to the query vector by cosine
// similarity. An empty index yields an empty slice, never an error; k
// is capped at the index size.
func (d *DenseIndex) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	ctx, span := denseTracer.Start(ctx, "DenseIndex.Search")
	defer span.End()

	span.SetAttributes(attribute.Int("k", k))

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector cannot be empty")
	}

	// chromem requires nResults <= doc count.
	count := d.collection.Count()
	if count == 0 {
		return []Hit{}, nil
	}
	if k > count {
		k = count
	}

	results, err := d.collection.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying dense index: %w", err)
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{ID: r.ID, Score: float64(r.Similarity)}
	}

	span.SetAttributes(attribute.Int("results_count", len(hits)))
	span.SetStatus(codes.Ok, "success")

	return hits, nil
}

// Remove deletes chunks by ID. Unknown IDs are ignored.
func (d *DenseIndex) Remove(ctx context.Context, ids []string) error {
	ctx, span := denseTracer.Start(ctx, "DenseIndex.Remove")
	defer span.End()

	span.SetAttributes(attribute.Int("id_count", len(ids)))

	if len(ids) == 0 {
		return nil
	}

	if err := d.collection.Delete(ctx, nil, nil, ids...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting chunks: %w", err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Count returns the number of indexed chunks.
func (d *DenseIndex) Count() int {
	return d.collection.Count()
}

// Reset drops and recreates the collection. Used when the sidecar and
// the vector store disagree at startup.
func (d *DenseIndex) Reset(ctx context.Context) error {
	if err := d.db.DeleteCollection(d.config.Collection); err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}
	collection, err := d.db.GetOrCreateCollection(d.config.Collection, nil, rejectEmbeddingFunc)
	if err != nil {
		return fmt.Errorf("recreating collection: %w", err)
	}
	d.collection = collection
	return nil
}
