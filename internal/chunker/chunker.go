// Package chunker splits extracted document text into overlapping
// retrieval units with positional metadata.
package chunker

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for chunker configuration.
var (
	// ErrInvalidChunkSize indicates a non-positive chunk size.
	ErrInvalidChunkSize = errors.New("chunk size must be positive")

	// ErrInvalidOverlap indicates an overlap >= chunk size.
	ErrInvalidOverlap = errors.New("overlap must be smaller than chunk size")
)

// Chunk is the atomic retrieval unit: a bounded span of document text
// tagged with its originating page and token-range offsets.
//
// Chunks are immutable after ingestion and are destroyed only when the
// owning document is deleted. IDs are stable for a document's lifetime.
type Chunk struct {
	// ID uniquely identifies the chunk ({documentID}-{sequence}).
	ID string `json:"id"`

	// DocumentID is the owning document.
	DocumentID string `json:"document_id"`

	// Text is the chunk content.
	Text string `json:"text"`

	// Page is the 1-based page the chunk starts on.
	Page int `json:"page"`

	// StartOffset and EndOffset are token offsets into the document's
	// token stream. StartOffset < EndOffset always holds for a chunk
	// produced by this package.
	StartOffset int `json:"start_offset"`
	EndOffset   int `json:"end_offset"`

	// SourceTitle is the human-readable document title, carried for
	// source attribution on answers.
	SourceTitle string `json:"source_title"`

	// Embedding is the L2-normalized vector for the chunk text. Set
	// during indexing, nil before that.
	Embedding []float32 `json:"embedding,omitempty"`
}

// Chunker produces fixed-size overlapping windows over a token stream.
//
// The window start advances by size-overlap tokens; the final partial
// window is kept even when shorter than size. Output is deterministic
// for identical input and parameters, which re-indexing after document
// deletion relies on.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker. size is the window length in tokens, overlap
// the number of tokens shared between consecutive windows.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidChunkSize, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size %d, overlap %d", ErrInvalidOverlap, size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// pageToken is a token annotated with the page it came from.
type pageToken struct {
	text string
	page int
}

// PrepareDocuments chunks page-segmented text into ordered chunks for
// one document. pages holds the extracted text per page (1-based page
// numbers are derived from slice position). Empty input yields zero
// chunks, not an error.
func (c *Chunker) PrepareDocuments(pages []string, title, docID string) []Chunk {
	var stream []pageToken
	for i, page := range pages {
		for _, tok := range strings.Fields(page) {
			stream = append(stream, pageToken{text: tok, page: i + 1})
		}
	}
	if len(stream) == 0 {
		return nil
	}

	step := c.size - c.overlap
	var chunks []Chunk
	for start, seq := 0, 0; start < len(stream); start, seq = start+step, seq+1 {
		end := start + c.size
		if end > len(stream) {
			end = len(stream)
		}

		window := stream[start:end]
		texts := make([]string, len(window))
		for i, t := range window {
			texts[i] = t.text
		}

		chunks = append(chunks, Chunk{
			ID:          fmt.Sprintf("%s-%04d", docID, seq),
			DocumentID:  docID,
			Text:        strings.Join(texts, " "),
			Page:        window[0].page,
			StartOffset: start,
			EndOffset:   end,
			SourceTitle: title,
		})

		if end == len(stream) {
			break
		}
	}
	return chunks
}

// Size returns the configured window size in tokens.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured window overlap in tokens.
func (c *Chunker) Overlap() int { return c.overlap }
