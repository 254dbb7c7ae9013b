package evaluation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubJudge struct {
	dims Dimensions
	err  error
}

func (s *stubJudge) Score(context.Context, string, string, []string) (Dimensions, error) {
	return s.dims, s.err
}

func (s *stubJudge) Name() string { return "stub" }

var evalFixtureContext = []string{
	"the quarterly report shows solar panel efficiency improved to twenty three percent in the fourth quarter",
	"installation costs fell by twelve percent over the same period",
}

func TestHeuristicFaithfulnessSeparatesHallucination(t *testing.T) {
	h := NewHeuristicJudge()
	ctx := context.Background()

	query := "how did solar panel efficiency change"

	supported, err := h.Score(ctx, query,
		"solar panel efficiency improved to twenty three percent in the fourth quarter",
		evalFixtureContext)
	require.NoError(t, err)

	hallucinated, err := h.Score(ctx, query,
		"the company acquired a wind turbine manufacturer based near brazil last spring",
		evalFixtureContext)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, supported.Faithfulness, 4.0)
	assert.LessOrEqual(t, hallucinated.Faithfulness, 2.0)
}

func TestHeuristicRelevance(t *testing.T) {
	h := NewHeuristicJudge()
	ctx := context.Background()

	onTopic, err := h.Score(ctx, "solar panel efficiency",
		"solar panel efficiency improved this year", nil)
	require.NoError(t, err)

	offTopic, err := h.Score(ctx, "solar panel efficiency",
		"the cafeteria menu was updated on monday", nil)
	require.NoError(t, err)

	assert.Greater(t, onTopic.Relevance, offTopic.Relevance)
}

func TestBuildMetricsOverallAndConfidence(t *testing.T) {
	uniform := buildMetrics(Dimensions{
		Faithfulness: 4, Relevance: 4, Completeness: 4, Clarity: 4,
	}, "stub")
	assert.InDelta(t, 4.0, uniform.Overall, 1e-9)
	assert.InDelta(t, 0.88, uniform.Confidence, 1e-9)

	scattered := buildMetrics(Dimensions{
		Faithfulness: 5, Relevance: 1, Completeness: 5, Clarity: 1,
	}, "stub")
	assert.InDelta(t, 3.0, scattered.Overall, 1e-9)
	assert.Less(t, scattered.Confidence, uniform.Confidence)
	assert.InDelta(t, 0.44, scattered.Confidence, 1e-9)
}

func TestEvaluatePrimaryJudgeWins(t *testing.T) {
	primary := &stubJudge{dims: Dimensions{Faithfulness: 5, Relevance: 5, Completeness: 4, Clarity: 4}}
	e := NewEvaluator(primary, nil)

	m := e.Evaluate(context.Background(), "q", "a", evalFixtureContext)
	assert.Equal(t, "stub", m.Judge)
	assert.InDelta(t, 4.5, m.Overall, 1e-9)
	assert.False(t, m.Timestamp.IsZero())
}

func TestEvaluateFallsBackToHeuristic(t *testing.T) {
	primary := &stubJudge{err: errors.New("model unreachable")}
	e := NewEvaluator(primary, nil)

	m := e.Evaluate(context.Background(), "solar panel efficiency",
		"solar panel efficiency improved to twenty three percent", evalFixtureContext)
	assert.Equal(t, "heuristic", m.Judge)
	assert.Greater(t, m.Overall, 0.0)
}

func TestEvaluateNilPrimaryUsesHeuristic(t *testing.T) {
	e := NewEvaluator(nil, nil)
	m := e.Evaluate(context.Background(), "q", "answer text here", nil)
	assert.Equal(t, "heuristic", m.Judge)
}

func TestEvaluateAllJudgesFailed(t *testing.T) {
	e := &Evaluator{
		primary:  &stubJudge{err: errors.New("down")},
		fallback: &stubJudge{err: errors.New("also down")},
		logger:   zap.NewNop(),
	}

	m := e.Evaluate(context.Background(), "q", "a", nil)
	assert.Equal(t, "default", m.Judge)
	assert.InDelta(t, 3.0, m.Overall, 1e-9)
	assert.InDelta(t, 0.3, m.Confidence, 1e-9)
}

func TestParseDimensions(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     Dimensions
		ok       bool
	}{
		{
			name: "well formed",
			response: "FAITHFULNESS: 4\nRELEVANCE: 5\nCOMPLETENESS: 3\nCLARITY: 4\nOVERALL: 4",
			want: Dimensions{Faithfulness: 4, Relevance: 5, Completeness: 3, Clarity: 4},
			ok:   true,
		},
		{
			name: "lowercase with brackets and prose",
			response: "Here are my scores:\nfaithfulness: [4.5]\nrelevance: 3.0 because it partly answers\ncompleteness: 2\nclarity: 5",
			want: Dimensions{Faithfulness: 4.5, Relevance: 3, Completeness: 2, Clarity: 5},
			ok:   true,
		},
		{
			name:     "missing dimension",
			response: "FAITHFULNESS: 4\nRELEVANCE: 5\nCLARITY: 4",
			ok:       false,
		},
		{
			name:     "out of range ignored",
			response: "FAITHFULNESS: 9\nRELEVANCE: 5\nCOMPLETENESS: 3\nCLARITY: 4",
			ok:       false,
		},
		{
			name:     "no scores",
			response: "I cannot evaluate this answer.",
			ok:       false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseDimensions(tt.response)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestLLMJudgeConfigValidate(t *testing.T) {
	cfg := LLMJudgeConfig{}
	assert.Error(t, cfg.Validate())

	cfg.Model = "llama3"
	assert.NoError(t, cfg.Validate())
}
