// Package retriever selects and executes a retrieval strategy for each
// query and returns one fused, ranked candidate list.
package retriever

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/docqa/internal/chunker"
)

// Retrieval method tags carried on candidates for attribution.
const (
	MethodDense          = "dense"
	MethodSparse         = "sparse"
	MethodHybrid         = "hybrid"
	MethodSparseFallback = "sparse_fallback"
)

// Candidate is one chunk moving through the ranking pipeline. Score
// fields are additive: each stage sets its own field and leaves earlier
// fields untouched.
type Candidate struct {
	Chunk chunker.Chunk

	// DenseScore and SparseScore are min-max normalized per query; raw
	// magnitudes from the two indices are not comparable.
	DenseScore  float64
	SparseScore float64

	// FusedScore is the weighted blend of the normalized scores, in
	// [0, 1].
	FusedScore float64

	// RerankScore is set by the reranker; comparable only within one
	// query's candidate set.
	RerankScore float64

	// KeywordOverlap is the query-candidate token Jaccard overlap set
	// by the accuracy pipeline.
	KeywordOverlap float64

	// ClusterID is the DBSCAN cluster assignment (-1 = noise).
	ClusterID int

	// CoherenceScore is the mean pairwise similarity to the other
	// final survivors.
	CoherenceScore float64

	// Method records which strategy or fallback path produced this
	// candidate.
	Method string
}

// Stage tracks a candidate set's position in the ranking pipeline.
type Stage int

const (
	StageRetrieved Stage = iota
	StageFused
	StageReranked
	StageKeywordFiltered
	StageClustered
	StageCoherenceRanked
	StageFinal
)

var stageNames = map[Stage]string{
	StageRetrieved:       "retrieved",
	StageFused:           "fused",
	StageReranked:        "reranked",
	StageKeywordFiltered: "keyword_filtered",
	StageClustered:       "clustered",
	StageCoherenceRanked: "coherence_ranked",
	StageFinal:           "final",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// ErrStageOrder indicates an attempt to run pipeline stages out of
// order.
var ErrStageOrder = errors.New("pipeline stage out of order")

// CandidateSet is one query's candidate list plus its pipeline stage.
// Stages advance strictly one at a time; a stage whose work is skipped
// (the documented clustering skip) still advances the stage marker with
// the candidates passed through unmodified.
type CandidateSet struct {
	Query      string
	Stage      Stage
	Candidates []Candidate
}

// Advance moves the set to the next stage. Only a single forward step
// is legal.
func (cs *CandidateSet) Advance(to Stage) error {
	if to != cs.Stage+1 {
		return fmt.Errorf("%w: %s -> %s", ErrStageOrder, cs.Stage, to)
	}
	cs.Stage = to
	return nil
}

// Len returns the number of candidates.
func (cs *CandidateSet) Len() int {
	return len(cs.Candidates)
}
