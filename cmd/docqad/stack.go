package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docqa/internal/accuracy"
	"github.com/fyrsmithlabs/docqa/internal/analyzer"
	"github.com/fyrsmithlabs/docqa/internal/chunker"
	"github.com/fyrsmithlabs/docqa/internal/config"
	"github.com/fyrsmithlabs/docqa/internal/embeddings"
	"github.com/fyrsmithlabs/docqa/internal/evaluation"
	"github.com/fyrsmithlabs/docqa/internal/feedback"
	"github.com/fyrsmithlabs/docqa/internal/index"
	"github.com/fyrsmithlabs/docqa/internal/ingest"
	"github.com/fyrsmithlabs/docqa/internal/logging"
	"github.com/fyrsmithlabs/docqa/internal/monitor"
	"github.com/fyrsmithlabs/docqa/internal/reranker"
	"github.com/fyrsmithlabs/docqa/internal/retriever"
	"github.com/fyrsmithlabs/docqa/internal/service"
	"github.com/fyrsmithlabs/docqa/internal/telemetry"
)

// stack holds the wired pipeline components.
type stack struct {
	cfg       *config.Config
	logger    *zap.Logger
	manager   *index.Manager
	provider  embeddings.Provider
	ingestor  *ingest.Ingestor
	service   *service.Service
	collector *monitor.Collector
	feedback  *feedback.Store
	telemetry *telemetry.Telemetry
}

// buildStack loads config and wires the full pipeline.
func buildStack() (*stack, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.Setup(context.Background(), telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.Endpoint,
		Protocol:       cfg.Telemetry.Protocol,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
		ServiceVersion: version,
	}, logger)
	if err != nil {
		return nil, err
	}

	provider, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider: cfg.Embeddings.Provider,
		Model:    cfg.Embeddings.Model,
		BaseURL:  cfg.Embeddings.BaseURL,
		APIKey:   cfg.Embeddings.APIKey,
		CacheDir: cfg.Embeddings.CacheDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}
	embedder := embeddings.WithRetry(provider, logger)

	manager, err := index.NewManager(index.ManagerConfig{
		Dense: index.DenseConfig{
			Path:       cfg.Index.Path,
			Collection: cfg.Index.Collection,
			VectorSize: cfg.Index.VectorSize,
			Compress:   cfg.Index.Compress,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	ch, err := chunker.New(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	ingestor, err := ingest.New(manager, embedder, ch, nil, logger)
	if err != nil {
		return nil, err
	}

	a := analyzer.New(analyzer.Config{
		KnownTitles:            indexTitles(manager),
		Aliases:                cfg.Retrieval.Aliases,
		CompletenessFirstTypes: cfg.Retrieval.CompletenessFirstTypes,
	}, logger)

	r, err := retriever.New(manager, embedder, retriever.Config{
		TopK:              cfg.Retrieval.RetrievalK,
		DenseWeight:       cfg.Retrieval.DenseSparseWeight,
		FallbackThreshold: cfg.Retrieval.FallbackScoreThreshold,
		DomainKeywords:    cfg.Retrieval.DomainKeywords,
	}, logger)
	if err != nil {
		return nil, err
	}

	acc := accuracy.New(accuracy.Config{
		OverlapThreshold: cfg.Retrieval.KeywordOverlapThreshold,
		FinalK:           cfg.Retrieval.RetrievalK,
	}, a.ExpandAliases, logger)

	var evaluator *evaluation.Evaluator
	if cfg.Evaluation.JudgeModel != "" {
		judge, err := evaluation.NewLLMJudge(evaluation.LLMJudgeConfig{
			BaseURL: cfg.Evaluation.JudgeBaseURL,
			Model:   cfg.Evaluation.JudgeModel,
			APIKey:  cfg.Evaluation.JudgeAPIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create judge: %w", err)
		}
		evaluator = evaluation.NewEvaluator(judge, logger)
	} else {
		evaluator = evaluation.NewEvaluator(nil, logger)
	}

	collector, err := monitor.NewCollector(monitor.Config{
		Path:       cfg.Monitoring.MetricsPath,
		WindowSize: cfg.Monitoring.WindowSize,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics collector: %w", err)
	}

	fb, err := feedback.NewStore(feedback.Config{
		Path:       cfg.Feedback.FeedbackPath,
		WindowSize: cfg.Feedback.WindowSize,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create feedback store: %w", err)
	}

	svc, err := service.New(a, r, reranker.NewLexicalReranker(), acc, evaluator, collector, service.Config{
		RerankTopK: cfg.Retrieval.RerankTopK,
		FinalK:     cfg.Retrieval.RetrievalK,
	}, logger)
	if err != nil {
		return nil, err
	}

	return &stack{
		cfg:       cfg,
		logger:    logger,
		manager:   manager,
		provider:  provider,
		ingestor:  ingestor,
		service:   svc,
		collector: collector,
		feedback:  fb,
		telemetry: tel,
	}, nil
}

// indexTitles collects ingested document titles so the analyzer can
// treat title words in a query as entities.
func indexTitles(manager *index.Manager) []string {
	docs := manager.Snapshot().Documents()
	titles := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.Title != "" {
			titles = append(titles, d.Title)
		}
	}
	return titles
}

// close releases stack resources.
func (s *stack) close() {
	if err := s.collector.Close(); err != nil {
		s.logger.Warn("failed to close metrics collector", zap.Error(err))
	}
	if err := s.feedback.Close(); err != nil {
		s.logger.Warn("failed to close feedback store", zap.Error(err))
	}
	if err := s.provider.Close(); err != nil {
		s.logger.Warn("failed to close embedding provider", zap.Error(err))
	}
	if err := s.telemetry.Shutdown(context.Background()); err != nil {
		s.logger.Warn("failed to flush traces", zap.Error(err))
	}
	_ = logging.Sync(s.logger)
}
