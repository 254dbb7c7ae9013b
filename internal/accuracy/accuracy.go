// Package accuracy runs the post-rerank filtering stages: keyword
// overlap, semantic clustering and coherence ranking.
package accuracy

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docqa/internal/analyzer"
	"github.com/fyrsmithlabs/docqa/internal/index"
	"github.com/fyrsmithlabs/docqa/internal/retriever"
)

var accuracyTracer = otel.Tracer("docqa.accuracy")

// Config holds accuracy pipeline tuning parameters.
type Config struct {
	// OverlapThreshold is the minimum query-candidate token Jaccard
	// overlap. Default: 0.03 — the filter only drops near-zero-overlap
	// candidates; anything stricter caused severe recall loss.
	OverlapThreshold float64

	// ClusterEps is the DBSCAN neighborhood radius in cosine distance.
	// Default: 0.35.
	ClusterEps float64

	// ClusterMinPoints is the DBSCAN core-point threshold (the point
	// itself counts). Default: 2.
	ClusterMinPoints int

	// FinalK is the number of candidates surviving the full pipeline.
	// Default: 5.
	FinalK int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.OverlapThreshold == 0 {
		c.OverlapThreshold = 0.03
	}
	if c.ClusterEps == 0 {
		c.ClusterEps = 0.35
	}
	if c.ClusterMinPoints == 0 {
		c.ClusterMinPoints = 2
	}
	if c.FinalK == 0 {
		c.FinalK = 5
	}
}

// AliasExpander rewrites text so abbreviations and their canonical
// forms both count as present. Identity when nil.
type AliasExpander func(string) string

// Pipeline applies the three accuracy stages to a reranked candidate
// set. Every stage degrades gracefully: an inapplicable or failed stage
// passes candidates through unmodified but still advances the stage
// marker.
type Pipeline struct {
	config Config
	expand AliasExpander
	logger *zap.Logger
}

// New creates a Pipeline.
func New(config Config, expand AliasExpander, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if expand == nil {
		expand = func(s string) string { return s }
	}
	return &Pipeline{config: config, expand: expand, logger: logger}
}

// Run executes keyword filtering, clustering and coherence ranking and
// truncates to the final candidate count. The set must be at the
// reranked stage; it ends at the final stage.
func (p *Pipeline) Run(ctx context.Context, set *retriever.CandidateSet, analysis analyzer.Analysis, finalK int) error {
	_, span := accuracyTracer.Start(ctx, "Pipeline.Run")
	defer span.End()

	if finalK <= 0 {
		finalK = p.config.FinalK
	}
	span.SetAttributes(
		attribute.Int("input_candidates", set.Len()),
		attribute.Int("final_k", finalK),
	)

	if err := p.keywordFilter(set, analysis); err != nil {
		return err
	}
	if err := p.clusterFilter(set); err != nil {
		return err
	}
	if err := p.coherenceRank(set); err != nil {
		return err
	}

	if err := set.Advance(retriever.StageFinal); err != nil {
		return err
	}
	if len(set.Candidates) > finalK {
		set.Candidates = set.Candidates[:finalK]
	}

	span.SetAttributes(attribute.Int("final_candidates", set.Len()))
	return nil
}

// keywordFilter drops candidates whose alias-expanded token Jaccard
// overlap with the query falls below the threshold. The overlap value
// is recorded on every candidate, dropped or kept. Bypassed for query
// types where completeness outweighs precision.
func (p *Pipeline) keywordFilter(set *retriever.CandidateSet, analysis analyzer.Analysis) error {
	if err := set.Advance(retriever.StageKeywordFiltered); err != nil {
		return err
	}

	queryTerms := tokenSet(p.expand(set.Query))

	kept := set.Candidates[:0]
	dropped := 0
	for i := range set.Candidates {
		c := set.Candidates[i]
		c.KeywordOverlap = jaccard(queryTerms, tokenSet(p.expand(c.Chunk.Text)))
		if analysis.BypassOverlapFilter || c.KeywordOverlap >= p.config.OverlapThreshold {
			kept = append(kept, c)
		} else {
			dropped++
		}
	}
	set.Candidates = kept

	if dropped > 0 {
		p.logger.Debug("keyword overlap filter dropped candidates",
			zap.Int("dropped", dropped),
			zap.Int("kept", len(kept)),
			zap.Float64("threshold", p.config.OverlapThreshold),
		)
	}
	return nil
}

// clusterFilter groups survivors by embedding similarity and keeps the
// largest cluster when more than one real cluster forms. Skipped (pass
// through) when fewer than 3 candidates remain, when an embedding is
// missing, or when clustering yields only noise.
func (p *Pipeline) clusterFilter(set *retriever.CandidateSet) error {
	if err := set.Advance(retriever.StageClustered); err != nil {
		return err
	}

	if len(set.Candidates) < 3 {
		return nil
	}
	for i := range set.Candidates {
		if len(set.Candidates[i].Chunk.Embedding) == 0 {
			p.logger.Warn("candidate missing embedding, skipping clustering",
				zap.String("chunk_id", set.Candidates[i].Chunk.ID))
			return nil
		}
	}

	dist := func(i, j int) float64 {
		return 1 - cosine(set.Candidates[i].Chunk.Embedding, set.Candidates[j].Chunk.Embedding)
	}
	labels := dbscan(len(set.Candidates), dist, p.config.ClusterEps, p.config.ClusterMinPoints)

	sizes := make(map[int]int)
	for i, label := range labels {
		set.Candidates[i].ClusterID = label
		if label >= 0 {
			sizes[label]++
		}
	}

	if len(sizes) == 0 {
		// All noise: mutually dissimilar candidates carry no majority
		// signal, keep everything.
		return nil
	}
	if len(sizes) == 1 {
		return nil
	}

	largest, largestSize := 0, 0
	for label, size := range sizes {
		if size > largestSize || (size == largestSize && label < largest) {
			largest, largestSize = label, size
		}
	}

	kept := set.Candidates[:0]
	for i := range set.Candidates {
		if labels[i] == largest {
			kept = append(kept, set.Candidates[i])
		}
	}
	p.logger.Debug("clustering kept largest cluster",
		zap.Int("clusters", len(sizes)),
		zap.Int("kept", len(kept)),
		zap.Int("dropped", len(labels)-len(kept)),
	)
	set.Candidates = kept
	return nil
}

// coherenceRank scores each survivor by its mean pairwise similarity to
// the other survivors and sorts descending. Rewards chunks that agree
// with the rest of the selected set over individually relevant but
// contextually isolated ones. Idempotent: ties fall back to rerank
// score, then chunk ID.
func (p *Pipeline) coherenceRank(set *retriever.CandidateSet) error {
	if err := set.Advance(retriever.StageCoherenceRanked); err != nil {
		return err
	}

	n := len(set.Candidates)
	if n < 2 {
		return nil
	}
	for i := range set.Candidates {
		if len(set.Candidates[i].Chunk.Embedding) == 0 {
			return nil
		}
	}

	for i := range set.Candidates {
		var sum float64
		for j := range set.Candidates {
			if i == j {
				continue
			}
			sum += cosine(set.Candidates[i].Chunk.Embedding, set.Candidates[j].Chunk.Embedding)
		}
		set.Candidates[i].CoherenceScore = sum / float64(n-1)
	}

	sort.SliceStable(set.Candidates, func(i, j int) bool {
		a, b := set.Candidates[i], set.Candidates[j]
		if a.CoherenceScore != b.CoherenceScore {
			return a.CoherenceScore > b.CoherenceScore
		}
		if a.RerankScore != b.RerankScore {
			return a.RerankScore > b.RerankScore
		}
		return a.Chunk.ID < b.Chunk.ID
	})
	return nil
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range index.Tokenize(text) {
		set[t] = true
	}
	return set
}

// jaccard is |a ∩ b| / |a ∪ b|; zero when either set is empty.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// cosine of two same-length vectors. Inputs are L2-normalized upstream,
// so this is a plain dot product.
func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
