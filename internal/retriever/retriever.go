package retriever

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docqa/internal/analyzer"
	"github.com/fyrsmithlabs/docqa/internal/embeddings"
	"github.com/fyrsmithlabs/docqa/internal/index"
)

var retrieverTracer = otel.Tracer("docqa.retriever")

// Config holds retriever tuning parameters.
type Config struct {
	// TopK is the default final candidate target when the query
	// analysis does not recommend one. Default: 5.
	TopK int

	// PoolMultiplier sizes the raw candidate pool relative to the
	// final target so downstream filtering has material to work with.
	// Default: 4.
	PoolMultiplier int

	// DenseWeight is the dense share of the fused score. Default: 0.7.
	DenseWeight float64

	// FallbackThreshold is the minimum acceptable top dense similarity.
	// Below it the retriever re-runs sparse and uses those results
	// instead. Default: 0.1.
	FallbackThreshold float64

	// DomainKeywords feed strategy selection's keyword density signal.
	DomainKeywords []string
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.TopK == 0 {
		c.TopK = 5
	}
	if c.PoolMultiplier == 0 {
		c.PoolMultiplier = 4
	}
	if c.DenseWeight == 0 {
		c.DenseWeight = 0.7
	}
	if c.FallbackThreshold == 0 {
		c.FallbackThreshold = 0.1
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DenseWeight < 0 || c.DenseWeight > 1 {
		return fmt.Errorf("dense weight must be in [0,1], got %v", c.DenseWeight)
	}
	if c.PoolMultiplier < 1 {
		return fmt.Errorf("pool multiplier must be at least 1, got %d", c.PoolMultiplier)
	}
	return nil
}

// Filter restricts retrieval to a subset of the corpus. A nil filter
// or an empty DocumentIDs list means the whole corpus.
type Filter struct {
	DocumentIDs []string
}

func (f *Filter) allows(docID string) bool {
	if f == nil || len(f.DocumentIDs) == 0 {
		return true
	}
	for _, id := range f.DocumentIDs {
		if id == docID {
			return true
		}
	}
	return false
}

// filterHits drops hits whose chunk belongs to a filtered-out document,
// so fallback decisions and normalization only see eligible candidates.
func filterHits(snap *index.Snapshot, hits []index.Hit, filter *Filter) []index.Hit {
	if filter == nil || len(filter.DocumentIDs) == 0 {
		return hits
	}
	out := hits[:0]
	for _, h := range hits {
		ch, ok := snap.Chunk(h.ID)
		if ok && filter.allows(ch.DocumentID) {
			out = append(out, h)
		}
	}
	return out
}

// Retriever executes the selected strategy against an index snapshot
// and produces a fused candidate set.
type Retriever struct {
	manager  *index.Manager
	embedder embeddings.Provider
	config   Config
	logger   *zap.Logger
}

// New creates a Retriever.
func New(manager *index.Manager, embedder embeddings.Provider, config Config, logger *zap.Logger) (*Retriever, error) {
	if manager == nil {
		return nil, fmt.Errorf("index manager is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &Retriever{
		manager:  manager,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}, nil
}

// Retrieve runs strategy selection, search, fusion and fallback for one
// query. The returned set is at StageFused, sorted by fused score
// descending. An empty corpus yields an empty set, never an error.
// filter, when non-nil, restricts candidates to the listed documents.
func (r *Retriever) Retrieve(ctx context.Context, query string, analysis analyzer.Analysis, filter *Filter) (*CandidateSet, error) {
	ctx, span := retrieverTracer.Start(ctx, "Retriever.Retrieve")
	defer span.End()

	target := analysis.TopK
	if target <= 0 {
		target = r.config.TopK
	}
	pool := target * r.config.PoolMultiplier

	snap := r.manager.Snapshot()
	if snap.Empty() {
		r.logger.Debug("retrieve against empty corpus", zap.String("query", query))
		return &CandidateSet{Query: query, Stage: StageFused}, nil
	}

	strategy := SelectStrategy(query, analysis, r.config.DomainKeywords)
	span.SetAttributes(
		attribute.String("strategy", strategy.String()),
		attribute.Int("pool", pool),
	)

	var (
		set *CandidateSet
		err error
	)
	switch strategy {
	case StrategySparse:
		set = r.sparseOnly(snap, query, pool, filter)
	case StrategyDense:
		set, err = r.denseWithFallback(ctx, snap, query, pool, filter, false)
	default:
		set, err = r.denseWithFallback(ctx, snap, query, pool, filter, true)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("candidates", set.Len()))
	span.SetStatus(codes.Ok, "success")

	r.logger.Debug("retrieval complete",
		zap.String("query", query),
		zap.String("strategy", strategy.String()),
		zap.Int("candidates", set.Len()),
	)
	return set, nil
}

// sparseOnly runs pure BM25 retrieval.
func (r *Retriever) sparseOnly(snap *index.Snapshot, query string, pool int, filter *Filter) *CandidateSet {
	hits := filterHits(snap, snap.SearchSparse(query, pool), filter)
	return r.fromSparseHits(snap, query, hits, MethodSparse)
}

// denseWithFallback runs dense retrieval, applies the mandatory sparse
// fallback when the best similarity is below the threshold, and fuses
// with sparse results when hybrid is requested.
//
// The fallback applies to both the dense and hybrid paths: unrelated
// queries against a narrow corpus routinely produce low-similarity
// dense matches that would otherwise surface as false positives.
func (r *Retriever) denseWithFallback(ctx context.Context, snap *index.Snapshot, query string, pool int, filter *Filter, hybrid bool) (*CandidateSet, error) {
	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	denseHits, err := snap.SearchDense(ctx, vector, pool)
	if err != nil {
		return nil, fmt.Errorf("dense search: %w", err)
	}
	denseHits = filterHits(snap, denseHits, filter)

	var topDense float64
	if len(denseHits) > 0 {
		topDense = denseHits[0].Score
	}
	if topDense < r.config.FallbackThreshold {
		r.logger.Info("dense similarity below threshold, falling back to sparse",
			zap.Float64("top_dense", topDense),
			zap.Float64("threshold", r.config.FallbackThreshold),
		)
		hits := filterHits(snap, snap.SearchSparse(query, pool), filter)
		return r.fromSparseHits(snap, query, hits, MethodSparseFallback), nil
	}

	if !hybrid {
		dense := normalizeHits(denseHits)
		set := &CandidateSet{Query: query, Stage: StageRetrieved}
		for _, h := range dense {
			ch, ok := snap.Chunk(h.ID)
			if !ok {
				continue
			}
			set.Candidates = append(set.Candidates, Candidate{
				Chunk:      ch,
				DenseScore: h.Score,
				FusedScore: h.Score,
				Method:     MethodDense,
			})
		}
		finishFusion(set)
		return set, nil
	}

	sparseHits := filterHits(snap, snap.SearchSparse(query, pool), filter)
	return r.fuse(snap, query, denseHits, sparseHits), nil
}

// fromSparseHits builds a fused set from sparse hits only: the fused
// score is the normalized BM25 score.
func (r *Retriever) fromSparseHits(snap *index.Snapshot, query string, hits []index.Hit, method string) *CandidateSet {
	set := &CandidateSet{Query: query, Stage: StageRetrieved}
	for _, h := range normalizeHits(hits) {
		ch, ok := snap.Chunk(h.ID)
		if !ok {
			continue
		}
		set.Candidates = append(set.Candidates, Candidate{
			Chunk:       ch,
			SparseScore: h.Score,
			FusedScore:  h.Score,
			Method:      method,
		})
	}
	finishFusion(set)
	return set
}

// fuse combines normalized dense and sparse scores:
//
//	fused = w*dense + (1-w)*sparse
//
// over the union of both hit sets. A chunk missing from one side
// contributes zero for that side.
func (r *Retriever) fuse(snap *index.Snapshot, query string, denseHits, sparseHits []index.Hit) *CandidateSet {
	dense := make(map[string]float64, len(denseHits))
	for _, h := range normalizeHits(denseHits) {
		dense[h.ID] = h.Score
	}
	sparse := make(map[string]float64, len(sparseHits))
	for _, h := range normalizeHits(sparseHits) {
		sparse[h.ID] = h.Score
	}

	ids := make(map[string]bool, len(dense)+len(sparse))
	for id := range dense {
		ids[id] = true
	}
	for id := range sparse {
		ids[id] = true
	}

	w := r.config.DenseWeight
	set := &CandidateSet{Query: query, Stage: StageRetrieved}
	for id := range ids {
		ch, ok := snap.Chunk(id)
		if !ok {
			continue
		}
		d := dense[id]
		s := sparse[id]
		set.Candidates = append(set.Candidates, Candidate{
			Chunk:       ch,
			DenseScore:  d,
			SparseScore: s,
			FusedScore:  w*d + (1-w)*s,
			Method:      MethodHybrid,
		})
	}
	finishFusion(set)
	return set
}

// finishFusion sorts by fused score (chunk ID breaks ties for
// determinism) and advances the set to StageFused.
func finishFusion(set *CandidateSet) {
	sort.Slice(set.Candidates, func(i, j int) bool {
		a, b := set.Candidates[i], set.Candidates[j]
		if a.FusedScore != b.FusedScore {
			return a.FusedScore > b.FusedScore
		}
		return a.Chunk.ID < b.Chunk.ID
	})
	// Advance cannot fail from StageRetrieved.
	_ = set.Advance(StageFused)
}

// normalizeHits min-max scales scores to [0,1] over the hit set. When
// all scores are equal every hit maps to 1.0, matching the convention
// that a uniform distribution carries no ranking signal but full
// membership signal.
func normalizeHits(hits []index.Hit) []index.Hit {
	if len(hits) == 0 {
		return hits
	}
	minS, maxS := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < minS {
			minS = h.Score
		}
		if h.Score > maxS {
			maxS = h.Score
		}
	}

	out := make([]index.Hit, len(hits))
	if maxS == minS {
		for i, h := range hits {
			out[i] = index.Hit{ID: h.ID, Score: 1.0}
		}
		return out
	}
	for i, h := range hits {
		out[i] = index.Hit{ID: h.ID, Score: (h.Score - minS) / (maxS - minS)}
	}
	return out
}
