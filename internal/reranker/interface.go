// Package reranker provides joint query-passage re-ranking of retrieval
// candidates.
package reranker

import (
	"context"

	"github.com/fyrsmithlabs/docqa/internal/retriever"
)

// Reranker re-scores a fused candidate set against the query.
//
// Implementations set RerankScore on each candidate, reorder the set
// descending by it, and truncate to topK. All earlier score fields are
// preserved (score fields are additive, not destructive). Rerank scores
// are only comparable within one query's candidate set.
type Reranker interface {
	// Rerank mutates set in place and advances it to the reranked
	// stage. The set must be at the fused stage.
	Rerank(ctx context.Context, query string, set *retriever.CandidateSet, topK int) error

	// Close releases any resources held by the reranker.
	Close() error
}
