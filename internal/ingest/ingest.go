// Package ingest turns PDF files into embedded, indexed chunks.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/docqa/internal/chunker"
	"github.com/fyrsmithlabs/docqa/internal/embeddings"
	"github.com/fyrsmithlabs/docqa/internal/index"
)

var ingestTracer = otel.Tracer("docqa.ingest")

// ErrNoDocuments is returned when a directory contains no PDF files.
var ErrNoDocuments = errors.New("no pdf documents found")

// Extractor converts a document file into per-page text.
type Extractor func(path string) ([]string, error)

// Ingestor chunks, embeds and indexes documents. Index writes are
// serialized by the manager, so documents can be processed in
// parallel.
type Ingestor struct {
	manager  *index.Manager
	embedder embeddings.Embedder
	chunker  *chunker.Chunker
	extract  Extractor
	logger   *zap.Logger
}

// New creates an Ingestor. extract may be nil, in which case PDF
// extraction is used.
func New(manager *index.Manager, embedder embeddings.Embedder, ch *chunker.Chunker, extract Extractor, logger *zap.Logger) (*Ingestor, error) {
	if manager == nil {
		return nil, errors.New("manager is required")
	}
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if ch == nil {
		return nil, errors.New("chunker is required")
	}
	if extract == nil {
		extract = ExtractPDF
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		manager:  manager,
		embedder: embedder,
		chunker:  ch,
		extract:  extract,
		logger:   logger,
	}, nil
}

// IngestFile extracts, chunks, embeds and indexes a single document.
// Re-ingesting a file replaces its previous chunks.
func (ing *Ingestor) IngestFile(ctx context.Context, path string) (index.DocumentMeta, error) {
	ctx, span := ingestTracer.Start(ctx, "Ingestor.IngestFile")
	defer span.End()
	span.SetAttributes(attribute.String("file", filepath.Base(path)))

	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	docID := DocumentID(title)

	pages, err := ing.extract(path)
	if err != nil {
		return index.DocumentMeta{}, fmt.Errorf("extraction failed for %s: %w", path, err)
	}

	chunks := ing.chunker.PrepareDocuments(pages, title, docID)
	if len(chunks) == 0 {
		return index.DocumentMeta{}, fmt.Errorf("%w: %s", ErrNoText, path)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := ing.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return index.DocumentMeta{}, fmt.Errorf("embedding failed for %s: %w", path, err)
	}
	if len(vectors) != len(chunks) {
		return index.DocumentMeta{}, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}
	chunkIDs := make([]string, len(chunks))
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
		chunkIDs[i] = chunks[i].ID
	}

	meta := index.DocumentMeta{
		DocID:     docID,
		Title:     title,
		Filename:  filepath.Base(path),
		PageCount: len(pages),
		ChunkIDs:  chunkIDs,
	}
	if err := ing.manager.AddDocument(ctx, meta, chunks); err != nil {
		return index.DocumentMeta{}, fmt.Errorf("indexing failed for %s: %w", path, err)
	}

	ing.logger.Info("document ingested",
		zap.String("doc_id", docID),
		zap.Int("pages", len(pages)),
		zap.Int("chunks", len(chunks)),
	)
	span.SetAttributes(attribute.Int("chunks", len(chunks)))
	return meta, nil
}

// IngestDir ingests every PDF file in a directory, up to concurrency
// documents in parallel. The first failure cancels the remaining work.
func (ing *Ingestor) IngestDir(ctx context.Context, dir string, concurrency int) ([]index.DocumentMeta, error) {
	ctx, span := ingestTracer.Start(ctx, "Ingestor.IngestDir")
	defer span.End()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoDocuments, dir)
	}

	if concurrency <= 0 {
		concurrency = 2
	}
	results := make([]index.DocumentMeta, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, path := range paths {
		g.Go(func() error {
			meta, err := ing.IngestFile(ctx, path)
			if err != nil {
				return err
			}
			results[i] = meta
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].DocID < results[j].DocID })
	return results, nil
}

// DocumentID derives a stable identifier from a document title:
// lowercase with non-alphanumeric runs collapsed to single hyphens.
// Re-uploads of the same file map to the same ID and replace the
// earlier version.
func DocumentID(title string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastHyphen = false
		} else if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
