package evaluation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrUnparsableResponse is returned when a judge model's response does
// not contain the four expected dimension scores.
var ErrUnparsableResponse = errors.New("could not parse judge response")

const judgePromptTemplate = `You are an expert evaluator tasked with rating the quality of an assistant's answer. Evaluate the answer across four dimensions with scores from 0-5 (where 5 is excellent and 0 is very poor).

QUERY: %s

CONTEXT PROVIDED:
%s

ANSWER TO EVALUATE:
%s

Rate the answer on these dimensions:

1. FAITHFULNESS (0-5): How well is the answer grounded in the provided context?
2. RELEVANCE (0-5): How relevant is the answer to the specific query?
3. COMPLETENESS (0-5): How complete is the answer given the available context?
4. CLARITY (0-5): How clear and understandable is the answer?

Respond in this exact format:
FAITHFULNESS: [score]
RELEVANCE: [score]
COMPLETENESS: [score]
CLARITY: [score]`

// LLMJudgeConfig configures the model-backed judge.
type LLMJudgeConfig struct {
	// BaseURL points at an OpenAI-compatible completion endpoint
	// (Ollama and vLLM both expose one).
	BaseURL string
	// Model is the judge model name.
	Model string
	// APIKey authenticates against the endpoint. Optional for local
	// servers.
	APIKey string
}

// Validate checks the configuration.
func (c *LLMJudgeConfig) Validate() error {
	if c.Model == "" {
		return errors.New("model is required")
	}
	return nil
}

// LLMJudge scores answers by prompting a judging model.
type LLMJudge struct {
	model llms.Model
	name  string
}

var _ Judge = (*LLMJudge)(nil)

// NewLLMJudge creates a judge backed by an OpenAI-compatible endpoint.
func NewLLMJudge(config LLMJudgeConfig) (*LLMJudge, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid judge config: %w", err)
	}

	opts := []openai.Option{openai.WithModel(config.Model)}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}
	token := config.APIKey
	if token == "" {
		// The client requires a token even for local endpoints that
		// ignore authentication.
		token = "placeholder"
	}
	opts = append(opts, openai.WithToken(token))

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create judge model client: %w", err)
	}
	return &LLMJudge{model: model, name: "llm:" + config.Model}, nil
}

// NewLLMJudgeWithModel wraps an existing model client.
func NewLLMJudgeWithModel(model llms.Model, name string) *LLMJudge {
	return &LLMJudge{model: model, name: name}
}

// Name implements Judge.
func (j *LLMJudge) Name() string { return j.name }

// Score implements Judge.
func (j *LLMJudge) Score(ctx context.Context, query, answer string, contextChunks []string) (Dimensions, error) {
	contextText := "No context available"
	if len(contextChunks) > 0 {
		contextText = strings.Join(contextChunks, "\n\n")
	}
	prompt := fmt.Sprintf(judgePromptTemplate, query, contextText, answer)

	response, err := llms.GenerateFromSinglePrompt(ctx, j.model, prompt,
		llms.WithTemperature(0),
	)
	if err != nil {
		return Dimensions{}, fmt.Errorf("judge model call failed: %w", err)
	}

	dims, ok := parseDimensions(response)
	if !ok {
		return Dimensions{}, fmt.Errorf("%w: %q", ErrUnparsableResponse, truncate(response, 200))
	}
	return dims, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
