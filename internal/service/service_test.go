package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docqa/internal/accuracy"
	"github.com/fyrsmithlabs/docqa/internal/analyzer"
	"github.com/fyrsmithlabs/docqa/internal/chunker"
	"github.com/fyrsmithlabs/docqa/internal/embeddings"
	"github.com/fyrsmithlabs/docqa/internal/index"
	"github.com/fyrsmithlabs/docqa/internal/monitor"
	"github.com/fyrsmithlabs/docqa/internal/reranker"
	"github.com/fyrsmithlabs/docqa/internal/retriever"
)

const testDim = 64

func testService(t *testing.T, texts ...string) (*Service, *monitor.Collector) {
	t.Helper()

	manager, err := index.NewManager(index.ManagerConfig{
		Dense: index.DenseConfig{Path: t.TempDir(), VectorSize: testDim},
	}, nil)
	require.NoError(t, err)

	provider := embeddings.NewHashProvider(testDim)
	if len(texts) > 0 {
		chunks := make([]chunker.Chunk, len(texts))
		plain := make([]string, len(texts))
		for i, text := range texts {
			chunks[i] = chunker.Chunk{
				ID:          fmt.Sprintf("doc1-%04d", i),
				DocumentID:  "doc1",
				Text:        text,
				Page:        i + 1,
				SourceTitle: "Field Manual",
			}
			plain[i] = text
		}
		vectors, err := provider.EmbedDocuments(context.Background(), plain)
		require.NoError(t, err)
		for i := range chunks {
			chunks[i].Embedding = vectors[i]
		}
		meta := index.DocumentMeta{DocID: "doc1", Title: "Field Manual", PageCount: len(texts)}
		require.NoError(t, manager.AddDocument(context.Background(), meta, chunks))
	}

	a := analyzer.New(analyzer.Config{}, nil)
	r, err := retriever.New(manager, provider, retriever.Config{}, nil)
	require.NoError(t, err)
	acc := accuracy.New(accuracy.Config{}, a.ExpandAliases, nil)

	collector, err := monitor.NewCollector(monitor.Config{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = collector.Close() })

	svc, err := New(a, r, reranker.NewLexicalReranker(), acc, nil, collector, Config{}, nil)
	require.NoError(t, err)
	return svc, collector
}

func TestRetrieveEmptyCorpus(t *testing.T) {
	svc, collector := testService(t)

	result, err := svc.Retrieve(context.Background(), "what is the maintenance interval", nil)
	require.NoError(t, err)
	assert.True(t, result.Empty)
	assert.Empty(t, result.Candidates)
	assert.Empty(t, result.Context)

	recent := collector.Recent(0)
	require.Len(t, recent, 1)
	assert.Equal(t, 0, recent[0].ChunksFinal)
	assert.False(t, recent[0].ErrorOccurred)
}

func TestRetrievePipeline(t *testing.T) {
	svc, collector := testService(t,
		"solar panel efficiency improved to twenty three percent this quarter",
		"solar panel efficiency gains were driven by new cell coatings",
		"solar panel efficiency targets for next year remain unchanged",
		"the cafeteria menu rotates weekly between four options",
	)

	result, err := svc.Retrieve(context.Background(), "how did solar panel efficiency change this quarter", nil)
	require.NoError(t, err)

	require.NotEmpty(t, result.Candidates)
	assert.False(t, result.Empty)
	assert.NotEmpty(t, result.Method)
	for _, c := range result.Candidates {
		assert.Contains(t, c.Chunk.Text, "solar")
	}

	assert.Contains(t, result.Context, "[From: Field Manual | page ")
	assert.Contains(t, result.Context, "solar panel efficiency")

	recent := collector.Recent(0)
	require.Len(t, recent, 1)
	assert.Equal(t, len(result.Candidates), recent[0].ChunksFinal)
	assert.Equal(t, result.Method, recent[0].RetrievalMethod)
	assert.Greater(t, recent[0].ChunksRetrieved, 0)
}

func TestRetrieveRespectsAnalysisTopK(t *testing.T) {
	texts := make([]string, 8)
	for i := range texts {
		texts[i] = fmt.Sprintf("solar panel efficiency report section number %d with shared wording", i)
	}
	svc, _ := testService(t, texts...)

	// A short wh-question classifies as simple, shrinking the target.
	result, err := svc.Retrieve(context.Background(), "what is solar efficiency", nil)
	require.NoError(t, err)
	require.NotEmpty(t, result.Candidates)
	assert.LessOrEqual(t, len(result.Candidates), result.Analysis.TopK)
}

// unavailableReranker models a remote reranker whose backend is down.
type unavailableReranker struct{}

func (unavailableReranker) Rerank(context.Context, string, *retriever.CandidateSet, int) error {
	return errors.New("rerank backend unavailable")
}

func (unavailableReranker) Close() error { return nil }

func TestRetrieveSurvivesRerankerFailure(t *testing.T) {
	svc, collector := testService(t,
		"solar panel efficiency improved to twenty three percent this quarter",
		"solar panel efficiency gains were driven by new cell coatings",
		"the cafeteria menu rotates weekly between four options",
	)
	svc.reranker = unavailableReranker{}

	result, err := svc.Retrieve(context.Background(), "how did solar panel efficiency change this quarter", nil)
	require.NoError(t, err)

	require.NotEmpty(t, result.Candidates)
	assert.NotEmpty(t, result.Method)
	assert.NotEmpty(t, result.Context)

	// The fused scores stand in for rerank scores; no candidate was
	// rerank-scored.
	for _, c := range result.Candidates {
		assert.Contains(t, c.Chunk.Text, "solar")
		assert.Zero(t, c.RerankScore)
	}

	recent := collector.Recent(0)
	require.Len(t, recent, 1)
	assert.False(t, recent[0].ErrorOccurred)
}

func TestPassThrough(t *testing.T) {
	set := &retriever.CandidateSet{
		Stage: retriever.StageFused,
		Candidates: []retriever.Candidate{
			{FusedScore: 0.9}, {FusedScore: 0.5}, {FusedScore: 0.1},
		},
	}

	passThrough(set, retriever.StageReranked, 2)
	assert.Equal(t, retriever.StageReranked, set.Stage)
	require.Len(t, set.Candidates, 2)
	assert.Equal(t, 0.9, set.Candidates[0].FusedScore)

	// Skips all remaining stages at once, never moves backwards.
	passThrough(set, retriever.StageFinal, 0)
	assert.Equal(t, retriever.StageFinal, set.Stage)
	assert.Len(t, set.Candidates, 2)

	passThrough(set, retriever.StageFused, 0)
	assert.Equal(t, retriever.StageFinal, set.Stage)
}

func TestEvaluateRecordsQuality(t *testing.T) {
	svc, collector := testService(t)

	metrics := svc.Evaluate(context.Background(),
		"how did solar panel efficiency change",
		"solar panel efficiency improved to twenty three percent",
		[]string{"solar panel efficiency improved to twenty three percent this quarter"})

	assert.Equal(t, "heuristic", metrics.Judge)
	assert.Greater(t, metrics.Overall, 0.0)

	recent := collector.Recent(0)
	require.Len(t, recent, 1)
	assert.Equal(t, metrics.Overall, recent[0].QualityScore)
	assert.Equal(t, metrics.Confidence, recent[0].ConfidenceScore)
}

func TestFormatContext(t *testing.T) {
	candidates := []retriever.Candidate{
		{Chunk: chunker.Chunk{SourceTitle: "Annual Report", Page: 3, Text: "revenue grew"}},
		{Chunk: chunker.Chunk{DocumentID: "doc2", Page: 1, Text: "costs fell"}},
	}

	got := FormatContext(candidates)
	assert.Contains(t, got, "[From: Annual Report | page 3]\nrevenue grew")
	assert.Contains(t, got, "[From: doc2 | page 1]\ncosts fell")

	assert.Empty(t, FormatContext(nil))
}
