package retriever

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docqa/internal/analyzer"
)

// TuneCase pairs a query with the chunk IDs a good retrieval should
// surface for it.
type TuneCase struct {
	Query    string
	Relevant []string
}

// TuneDenseWeight grid-searches the dense/sparse fusion weight over
// labeled queries and returns the weight with the best mean
// precision@topK, along with that precision. The configured weight is
// restored before returning; applying the result is the caller's call.
func (r *Retriever) TuneDenseWeight(ctx context.Context, cases []TuneCase, topK int, lo, hi, step float64) (float64, float64, error) {
	if len(cases) == 0 {
		return 0, 0, errors.New("no tuning cases")
	}
	if step <= 0 || lo > hi || lo < 0 || hi > 1 {
		return 0, 0, fmt.Errorf("invalid weight range [%v, %v] step %v", lo, hi, step)
	}
	if topK <= 0 {
		topK = 10
	}

	original := r.config.DenseWeight
	defer func() { r.config.DenseWeight = original }()

	bestWeight, bestScore := original, -1.0
	for w := lo; w <= hi+step/2; w += step {
		r.config.DenseWeight = w

		var total float64
		for _, tc := range cases {
			set, err := r.Retrieve(ctx, tc.Query, analyzer.Analysis{TopK: topK}, nil)
			if err != nil {
				return 0, 0, fmt.Errorf("tuning query %q: %w", tc.Query, err)
			}
			total += precisionAt(set.Candidates, tc.Relevant, topK)
		}
		avg := total / float64(len(cases))
		if avg > bestScore {
			bestWeight, bestScore = w, avg
		}
	}

	r.logger.Info("tuned dense weight",
		zap.Float64("weight", bestWeight),
		zap.Float64("precision", bestScore),
	)
	return bestWeight, bestScore, nil
}

// precisionAt is the fraction of the top k candidates that are
// relevant.
func precisionAt(candidates []Candidate, relevant []string, k int) float64 {
	if len(candidates) == 0 {
		return 0
	}
	want := make(map[string]bool, len(relevant))
	for _, id := range relevant {
		want[id] = true
	}
	if k > len(candidates) {
		k = len(candidates)
	}
	hits := 0
	for _, c := range candidates[:k] {
		if want[c.Chunk.ID] {
			hits++
		}
	}
	return float64(hits) / float64(k)
}
