// Package service orchestrates the query pipeline: analysis,
// retrieval, reranking, accuracy filtering and answer evaluation.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docqa/internal/accuracy"
	"github.com/fyrsmithlabs/docqa/internal/analyzer"
	"github.com/fyrsmithlabs/docqa/internal/evaluation"
	"github.com/fyrsmithlabs/docqa/internal/monitor"
	"github.com/fyrsmithlabs/docqa/internal/reranker"
	"github.com/fyrsmithlabs/docqa/internal/retriever"
)

var serviceTracer = otel.Tracer("docqa.service")

// Config holds pipeline orchestration settings.
type Config struct {
	// RerankTopK is how many fused candidates survive reranking and
	// enter the accuracy pipeline. Default: 10.
	RerankTopK int

	// FinalK caps the final context size when the query analysis does
	// not recommend a target. Default: 5.
	FinalK int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.RerankTopK == 0 {
		c.RerankTopK = 10
	}
	if c.FinalK == 0 {
		c.FinalK = 5
	}
}

// Result is the outcome of one retrieval pipeline run.
type Result struct {
	Query      string                `json:"query"`
	Analysis   analyzer.Analysis     `json:"analysis"`
	Candidates []retriever.Candidate `json:"candidates"`
	// Method is the retrieval method that produced the final set, so
	// callers can surface low-confidence states (such as the sparse
	// fallback) instead of answering with false certainty.
	Method string `json:"method"`
	// Context is the formatted, source-attributed context block handed
	// to the generation stage.
	Context string `json:"context"`
	// Empty reports that no documents have been ingested yet.
	Empty bool `json:"empty"`

	RetrievalTime float64 `json:"retrieval_time_seconds"`
}

// Service wires the pipeline stages together.
type Service struct {
	analyzer  *analyzer.Analyzer
	retriever *retriever.Retriever
	reranker  reranker.Reranker
	accuracy  *accuracy.Pipeline
	evaluator *evaluation.Evaluator
	collector *monitor.Collector
	config    Config
	logger    *zap.Logger
}

// New creates a Service. evaluator and collector may be nil; the
// corresponding operations then degrade (heuristic-only evaluation, no
// monitoring).
func New(a *analyzer.Analyzer, r *retriever.Retriever, rr reranker.Reranker, acc *accuracy.Pipeline, ev *evaluation.Evaluator, col *monitor.Collector, config Config, logger *zap.Logger) (*Service, error) {
	if a == nil {
		return nil, errors.New("analyzer is required")
	}
	if r == nil {
		return nil, errors.New("retriever is required")
	}
	if rr == nil {
		return nil, errors.New("reranker is required")
	}
	if acc == nil {
		return nil, errors.New("accuracy pipeline is required")
	}
	if ev == nil {
		ev = evaluation.NewEvaluator(nil, logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	return &Service{
		analyzer:  a,
		retriever: r,
		reranker:  rr,
		accuracy:  acc,
		evaluator: ev,
		collector: col,
		config:    config,
		logger:    logger,
	}, nil
}

// Retrieve runs the full retrieval pipeline for a query. An empty
// corpus yields an empty result, not an error, so callers can tell the
// user no documents are uploaded yet. docIDs, when non-empty, restricts
// retrieval to the listed documents.
func (s *Service) Retrieve(ctx context.Context, query string, docIDs []string) (Result, error) {
	ctx, span := serviceTracer.Start(ctx, "Service.Retrieve")
	defer span.End()
	start := time.Now()

	analysis := s.analyzer.Analyze(query)
	span.SetAttributes(
		attribute.String("query_type", string(analysis.Type)),
		attribute.String("complexity", string(analysis.Complexity)),
	)

	var filter *retriever.Filter
	if len(docIDs) > 0 {
		filter = &retriever.Filter{DocumentIDs: docIDs}
	}
	set, err := s.retriever.Retrieve(ctx, query, analysis, filter)
	if err != nil {
		s.recordError(query, time.Since(start), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, fmt.Errorf("retrieval failed: %w", err)
	}

	result := Result{Query: query, Analysis: analysis}
	if set.Len() == 0 {
		result.Empty = true
		result.RetrievalTime = time.Since(start).Seconds()
		s.record(monitor.QueryRecord{
			Query:         query,
			TotalTime:     result.RetrievalTime,
			RetrievalTime: result.RetrievalTime,
		})
		return result, nil
	}
	retrieved := set.Len()

	// Ranking stages degrade, they never abort the query: a failed
	// stage logs and passes the candidates through unmodified.
	if err := s.reranker.Rerank(ctx, query, set, s.config.RerankTopK); err != nil {
		s.logger.Warn("reranker failed, keeping fused order",
			zap.String("query", query),
			zap.Error(err),
		)
		span.RecordError(err)
		passThrough(set, retriever.StageReranked, s.config.RerankTopK)
	}

	finalK := analysis.TopK
	if finalK <= 0 {
		finalK = s.config.FinalK
	}
	if err := s.accuracy.Run(ctx, set, analysis, finalK); err != nil {
		s.logger.Warn("accuracy pipeline failed, keeping reranked order",
			zap.String("query", query),
			zap.Error(err),
		)
		span.RecordError(err)
		passThrough(set, retriever.StageFinal, finalK)
	}

	result.Candidates = set.Candidates
	result.Method = resultMethod(set)
	result.Context = FormatContext(set.Candidates)
	result.RetrievalTime = time.Since(start).Seconds()

	s.record(monitor.QueryRecord{
		Query:           query,
		TotalTime:       result.RetrievalTime,
		RetrievalTime:   result.RetrievalTime,
		ChunksRetrieved: retrieved,
		ChunksFinal:     len(result.Candidates),
		RetrievalMethod: result.Method,
	})

	span.SetAttributes(
		attribute.String("method", result.Method),
		attribute.Int("final_chunks", len(result.Candidates)),
	)
	span.SetStatus(codes.Ok, "success")
	return result, nil
}

// Evaluate scores a generated answer and records the quality metrics.
// It never fails: judge errors degrade to heuristic scoring.
func (s *Service) Evaluate(ctx context.Context, query, answer string, contextChunks []string) evaluation.Metrics {
	ctx, span := serviceTracer.Start(ctx, "Service.Evaluate")
	defer span.End()
	start := time.Now()

	metrics := s.evaluator.Evaluate(ctx, query, answer, contextChunks)

	s.record(monitor.QueryRecord{
		Query:           query,
		EvaluationTime:  time.Since(start).Seconds(),
		TotalTime:       time.Since(start).Seconds(),
		QualityScore:    metrics.Overall,
		ConfidenceScore: metrics.Confidence,
	})

	span.SetAttributes(attribute.Float64("overall", metrics.Overall))
	return metrics
}

func (s *Service) record(rec monitor.QueryRecord) {
	if s.collector != nil {
		s.collector.Record(rec)
	}
}

func (s *Service) recordError(query string, elapsed time.Duration, err error) {
	s.record(monitor.QueryRecord{
		Query:         query,
		TotalTime:     elapsed.Seconds(),
		ErrorOccurred: true,
		ErrorMessage:  err.Error(),
	})
}

// passThrough advances a candidate set past a failed ranking stage with
// its candidates unmodified, truncated to k. The failed stage may have
// stopped anywhere before to.
func passThrough(set *retriever.CandidateSet, to retriever.Stage, k int) {
	for set.Stage < to {
		set.Stage++
	}
	if k > 0 && len(set.Candidates) > k {
		set.Candidates = set.Candidates[:k]
	}
}

func resultMethod(set *retriever.CandidateSet) string {
	if len(set.Candidates) == 0 {
		return ""
	}
	return set.Candidates[0].Method
}

// FormatContext renders candidates as a source-attributed context
// block for the generation stage.
func FormatContext(candidates []retriever.Candidate) string {
	if len(candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for i, c := range candidates {
		if i > 0 {
			b.WriteString("\n\n")
		}
		title := c.Chunk.SourceTitle
		if title == "" {
			title = c.Chunk.DocumentID
		}
		fmt.Fprintf(&b, "[From: %s | page %d]\n%s", title, c.Chunk.Page, c.Chunk.Text)
	}
	return b.String()
}
