// Package evaluation grades generated answers against the retrieved
// context across four quality dimensions and derives a confidence
// value. Evaluation never blocks answer delivery: judge failures fall
// back to a heuristic scorer, and a total failure yields neutral
// default metrics.
package evaluation

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docqa/internal/index"
)

var evalTracer = otel.Tracer("docqa.evaluation")

// Metrics holds the quality scores for a single evaluated answer.
// Dimension scores are 0-5; confidence is 0-1.
type Metrics struct {
	Faithfulness float64   `json:"faithfulness"`
	Relevance    float64   `json:"relevance"`
	Completeness float64   `json:"completeness"`
	Clarity      float64   `json:"clarity"`
	Overall      float64   `json:"overall"`
	Confidence   float64   `json:"confidence"`
	Judge        string    `json:"judge"`
	Timestamp    time.Time `json:"timestamp"`
}

// Dimensions holds the four raw dimension scores produced by a judge.
type Dimensions struct {
	Faithfulness float64
	Relevance    float64
	Completeness float64
	Clarity      float64
}

// Judge scores an answer against its query and retrieved context.
type Judge interface {
	// Score returns the four dimension scores, each in [0, 5].
	Score(ctx context.Context, query, answer string, contextChunks []string) (Dimensions, error)
	// Name identifies the judge in metrics output.
	Name() string
}

// defaultMetrics is returned when every judge fails. Neutral midpoint
// scores with low confidence, so downstream alerting still fires on a
// run of failed evaluations.
func defaultMetrics() Metrics {
	return Metrics{
		Faithfulness: 3.0,
		Relevance:    3.0,
		Completeness: 3.0,
		Clarity:      3.0,
		Overall:      3.0,
		Confidence:   0.3,
		Judge:        "default",
		Timestamp:    time.Now().UTC(),
	}
}

// Evaluator runs the primary judge and falls back to the heuristic
// judge on failure. Evaluate never returns an error.
type Evaluator struct {
	primary  Judge
	fallback Judge
	logger   *zap.Logger
}

// NewEvaluator creates an Evaluator. primary may be nil, in which case
// only the heuristic judge runs.
func NewEvaluator(primary Judge, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		primary:  primary,
		fallback: NewHeuristicJudge(),
		logger:   logger,
	}
}

// Evaluate scores an answer. Judge failures degrade from the primary
// judge to the heuristic judge to neutral defaults.
func (e *Evaluator) Evaluate(ctx context.Context, query, answer string, contextChunks []string) Metrics {
	ctx, span := evalTracer.Start(ctx, "Evaluator.Evaluate")
	defer span.End()
	span.SetAttributes(attribute.Int("context_chunks", len(contextChunks)))

	judges := []Judge{e.fallback}
	if e.primary != nil {
		judges = []Judge{e.primary, e.fallback}
	}
	for _, j := range judges {
		dims, err := j.Score(ctx, query, answer, contextChunks)
		if err != nil {
			e.logger.Warn("answer judge failed",
				zap.String("judge", j.Name()),
				zap.Error(err),
			)
			continue
		}
		m := buildMetrics(dims, j.Name())
		span.SetAttributes(
			attribute.String("judge", m.Judge),
			attribute.Float64("overall", m.Overall),
		)
		return m
	}

	e.logger.Error("all answer judges failed, recording default metrics")
	return defaultMetrics()
}

// buildMetrics derives overall and confidence from the dimension
// scores. Overall is the arithmetic mean. Confidence blends score
// magnitude with score consistency: consistent high scores are
// trustworthy, scattered ones are not.
func buildMetrics(d Dimensions, judge string) Metrics {
	scores := []float64{d.Faithfulness, d.Relevance, d.Completeness, d.Clarity}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	overall := sum / float64(len(scores))

	var varSum float64
	for _, s := range scores {
		varSum += (s - overall) * (s - overall)
	}
	std := math.Sqrt(varSum / float64(len(scores)))

	// std ranges over [0, 2.5] for scores in [0, 5].
	confidence := 0.6*(overall/5.0) + 0.4*(1.0-std/2.5)
	confidence = math.Max(0, math.Min(1, confidence))

	return Metrics{
		Faithfulness: d.Faithfulness,
		Relevance:    d.Relevance,
		Completeness: d.Completeness,
		Clarity:      d.Clarity,
		Overall:      overall,
		Confidence:   confidence,
		Judge:        judge,
		Timestamp:    time.Now().UTC(),
	}
}

// HeuristicJudge scores answers by lexical overlap alone. It is the
// always-available fallback when no judging model is reachable, and
// the sole judge in model-free deployments.
type HeuristicJudge struct{}

var _ Judge = (*HeuristicJudge)(nil)

// NewHeuristicJudge creates a HeuristicJudge.
func NewHeuristicJudge() *HeuristicJudge {
	return &HeuristicJudge{}
}

// Name implements Judge.
func (h *HeuristicJudge) Name() string { return "heuristic" }

// Score implements Judge.
//
// Faithfulness rewards answer tokens that appear in the context,
// relevance rewards query tokens echoed in the answer, completeness
// and clarity lean on answer length and structure.
func (h *HeuristicJudge) Score(_ context.Context, query, answer string, contextChunks []string) (Dimensions, error) {
	answerTokens := tokenSet(answer)
	contextTokens := tokenSet(strings.Join(contextChunks, " "))
	queryTokens := tokenSet(query)

	faithfulness := 3.0
	if len(contextTokens) > 0 {
		faithfulness = clampScore(overlapRatio(answerTokens, contextTokens) * 5)
	}

	relevance := clampScore(overlapRatio(queryTokens, answerTokens) * 5)

	answerWords := len(strings.Fields(answer))
	completeness := 3.0
	if answerWords >= 20 {
		completeness++
	}
	if len(contextChunks) > 1 {
		completeness += 0.5
	}

	clarity := 3.0
	if answerWords >= 10 {
		clarity += 0.5
	}
	if answerWords <= 200 {
		clarity += 0.5
	}
	if strings.Count(answer, ".") >= 2 {
		clarity += 0.5
	}

	return Dimensions{
		Faithfulness: faithfulness,
		Relevance:    relevance,
		Completeness: math.Min(5, completeness),
		Clarity:      math.Min(5, clarity),
	}, nil
}

// overlapRatio is the fraction of tokens in a that also occur in b.
func overlapRatio(a, b map[string]bool) float64 {
	if len(a) == 0 {
		return 0
	}
	hits := 0
	for t := range a {
		if b[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(a))
}

// clampScore keeps a dimension score in [1, 5]: even a zero-overlap
// answer earns the floor rather than an absolute zero.
func clampScore(s float64) float64 {
	return math.Max(1, math.Min(5, s))
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range index.Tokenize(text) {
		set[t] = true
	}
	return set
}

// parseDimensions extracts "LABEL: score" lines from a judge model's
// response. Parsing is lenient about casing, whitespace and trailing
// prose; it requires all four dimensions to be present and in range.
func parseDimensions(response string) (Dimensions, bool) {
	scores := make(map[string]float64)
	for _, line := range strings.Split(response, "\n") {
		line = strings.ToUpper(strings.TrimSpace(line))
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		fields := strings.Fields(value)
		if len(fields) == 0 {
			continue
		}
		score, err := strconv.ParseFloat(strings.Trim(fields[0], "[]"), 64)
		if err != nil || score < 0 || score > 5 {
			continue
		}
		switch {
		case strings.HasPrefix(key, "FAITH"):
			scores["faithfulness"] = score
		case strings.HasPrefix(key, "RELEV"):
			scores["relevance"] = score
		case strings.HasPrefix(key, "COMPL"):
			scores["completeness"] = score
		case strings.HasPrefix(key, "CLAR"):
			scores["clarity"] = score
		}
	}
	for _, k := range []string{"faithfulness", "relevance", "completeness", "clarity"} {
		if _, ok := scores[k]; !ok {
			return Dimensions{}, false
		}
	}
	return Dimensions{
		Faithfulness: scores["faithfulness"],
		Relevance:    scores["relevance"],
		Completeness: scores["completeness"],
		Clarity:      scores["clarity"],
	}, true
}
