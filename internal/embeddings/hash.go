package embeddings

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
)

// HashProvider generates deterministic pseudo-embeddings by hashing
// tokens into a fixed number of buckets. Vectors for texts sharing
// tokens are similar, which is enough structure for tests and for
// running without a model. Not a substitute for a real model in
// production retrieval quality.
type HashProvider struct {
	dimension int
}

var _ Provider = (*HashProvider)(nil)

// NewHashProvider creates a hashing provider with the given dimension.
func NewHashProvider(dimension int) *HashProvider {
	if dimension <= 0 {
		dimension = 384
	}
	return &HashProvider{dimension: dimension}
}

// EmbedDocuments generates embeddings for multiple texts.
func (p *HashProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = p.embed(t)
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query. Queries and
// documents share the same vector space, so identical text yields
// identical vectors.
func (p *HashProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	return p.embed(text), nil
}

func (p *HashProvider) embed(text string) []float32 {
	v := make([]float32, p.dimension)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		sum := h.Sum32()
		bucket := int(sum % uint32(p.dimension))
		// Top bit decides sign so collisions do not always reinforce.
		if sum&0x80000000 != 0 {
			v[bucket] -= 1
		} else {
			v[bucket] += 1
		}
	}
	return normalize(v)
}

// Dimension returns the configured vector dimension.
func (p *HashProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op.
func (p *HashProvider) Close() error {
	return nil
}
