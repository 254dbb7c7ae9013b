package reranker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docqa/internal/chunker"
	"github.com/fyrsmithlabs/docqa/internal/retriever"
)

func fusedSet(query string, candidates ...retriever.Candidate) *retriever.CandidateSet {
	return &retriever.CandidateSet{
		Query:      query,
		Stage:      retriever.StageFused,
		Candidates: candidates,
	}
}

func cand(id, text string, fused float64) retriever.Candidate {
	return retriever.Candidate{
		Chunk:      chunker.Chunk{ID: id, DocumentID: "doc1", Text: text},
		FusedScore: fused,
		Method:     retriever.MethodHybrid,
	}
}

func TestRerankBoostsTermCoverage(t *testing.T) {
	r := NewLexicalReranker()

	// Equal fused scores: coverage decides the order.
	set := fusedSet("solar panel efficiency",
		cand("doc1-0000", "unrelated discussion of cafeteria menus", 0.5),
		cand("doc1-0001", "solar panel efficiency measurements for the array", 0.5),
	)
	require.NoError(t, r.Rerank(context.Background(), set.Query, set, 10))

	assert.Equal(t, retriever.StageReranked, set.Stage)
	require.Len(t, set.Candidates, 2)
	assert.Equal(t, "doc1-0001", set.Candidates[0].Chunk.ID)
	assert.Greater(t, set.Candidates[0].RerankScore, set.Candidates[1].RerankScore)
}

func TestRerankPreservesMetadata(t *testing.T) {
	r := NewLexicalReranker()

	c := cand("doc1-0000", "solar panel text", 0.8)
	c.DenseScore = 0.7
	c.SparseScore = 0.4
	set := fusedSet("solar", c)
	require.NoError(t, r.Rerank(context.Background(), set.Query, set, 10))

	got := set.Candidates[0]
	assert.Equal(t, 0.7, got.DenseScore)
	assert.Equal(t, 0.4, got.SparseScore)
	assert.Equal(t, 0.8, got.FusedScore)
	assert.Equal(t, retriever.MethodHybrid, got.Method)
}

func TestRerankTruncatesToTopK(t *testing.T) {
	r := NewLexicalReranker()

	set := fusedSet("alpha",
		cand("doc1-0000", "alpha one", 0.9),
		cand("doc1-0001", "alpha two", 0.8),
		cand("doc1-0002", "alpha three", 0.7),
	)
	require.NoError(t, r.Rerank(context.Background(), set.Query, set, 2))
	assert.Len(t, set.Candidates, 2)
}

func TestRerankEmptyQueryFallsBackToFusedOrder(t *testing.T) {
	r := NewLexicalReranker()

	set := fusedSet("!!!",
		cand("doc1-0000", "first by fused score", 0.9),
		cand("doc1-0001", "second by fused score", 0.3),
	)
	require.NoError(t, r.Rerank(context.Background(), set.Query, set, 10))
	assert.Equal(t, "doc1-0000", set.Candidates[0].Chunk.ID)
}

func TestRerankRequiresFusedStage(t *testing.T) {
	r := NewLexicalReranker()

	set := fusedSet("query")
	set.Stage = retriever.StageReranked
	err := r.Rerank(context.Background(), set.Query, set, 10)
	assert.ErrorIs(t, err, retriever.ErrStageOrder)
}

func TestRerankNilContext(t *testing.T) {
	r := NewLexicalReranker()
	set := fusedSet("query")
	//nolint:staticcheck // nil context is the behavior under test
	err := r.Rerank(nil, "query", set, 10)
	assert.ErrorIs(t, err, ErrNilContext)
}
