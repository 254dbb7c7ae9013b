package embeddings

import (
	"context"

	"go.uber.org/zap"
)

// retryProvider wraps a Provider and retries a failed model call once
// before surfacing the error. Context cancellation is never retried.
type retryProvider struct {
	inner  Provider
	logger *zap.Logger
}

var _ Provider = (*retryProvider)(nil)

// WithRetry wraps provider with single-retry semantics. A nil logger
// defaults to a no-op logger.
func WithRetry(provider Provider, logger *zap.Logger) Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &retryProvider{inner: provider, logger: logger}
}

func (r *retryProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := r.inner.EmbedDocuments(ctx, texts)
	if err == nil || ctx.Err() != nil {
		return vectors, err
	}

	r.logger.Warn("embedding batch failed, retrying once",
		zap.Int("batch_size", len(texts)),
		zap.Error(err),
	)
	return r.inner.EmbedDocuments(ctx, texts)
}

func (r *retryProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := r.inner.EmbedQuery(ctx, text)
	if err == nil || ctx.Err() != nil {
		return vector, err
	}

	r.logger.Warn("query embedding failed, retrying once", zap.Error(err))
	return r.inner.EmbedQuery(ctx, text)
}

func (r *retryProvider) Dimension() int {
	return r.inner.Dimension()
}

func (r *retryProvider) Close() error {
	return r.inner.Close()
}
