package reranker

import (
	"context"
	"errors"
	"sort"

	"github.com/fyrsmithlabs/docqa/internal/index"
	"github.com/fyrsmithlabs/docqa/internal/retriever"
)

// ErrNilContext is returned when a nil context is passed to Rerank.
var ErrNilContext = errors.New("context cannot be nil")

// LexicalReranker scores candidates jointly against the query by term
// coverage: the fraction of distinct query terms present in the
// passage, blended with the fused score. It keeps some reliance on the
// upstream similarity signal while boosting passages that actually
// contain the query's vocabulary.
type LexicalReranker struct{}

var _ Reranker = (*LexicalReranker)(nil)

// NewLexicalReranker creates a LexicalReranker.
func NewLexicalReranker() *LexicalReranker {
	return &LexicalReranker{}
}

// Rerank sets RerankScore = 0.5*fused + 0.5*coverage, reorders
// descending and truncates to topK. A query with no usable terms falls
// back to the fused ordering.
func (r *LexicalReranker) Rerank(ctx context.Context, query string, set *retriever.CandidateSet, topK int) error {
	if ctx == nil {
		return ErrNilContext
	}
	if err := set.Advance(retriever.StageReranked); err != nil {
		return err
	}
	if topK <= 0 || topK > len(set.Candidates) {
		topK = len(set.Candidates)
	}

	queryTerms := termSet(query)
	for i := range set.Candidates {
		c := &set.Candidates[i]
		coverage := termCoverage(queryTerms, c.Chunk.Text)
		c.RerankScore = 0.5*c.FusedScore + 0.5*coverage
	}

	sort.SliceStable(set.Candidates, func(i, j int) bool {
		a, b := set.Candidates[i], set.Candidates[j]
		if a.RerankScore != b.RerankScore {
			return a.RerankScore > b.RerankScore
		}
		return a.Chunk.ID < b.Chunk.ID
	})
	set.Candidates = set.Candidates[:topK]
	return nil
}

// Close is a no-op.
func (r *LexicalReranker) Close() error {
	return nil
}

func termSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range index.Tokenize(text) {
		set[t] = true
	}
	return set
}

// termCoverage is the fraction of query terms found in the passage.
// Zero query terms yields zero coverage, leaving the fused ordering in
// charge.
func termCoverage(queryTerms map[string]bool, passage string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	passageTerms := termSet(passage)
	hits := 0
	for t := range queryTerms {
		if passageTerms[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTerms))
}
