package embeddings

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderUnknown(t *testing.T) {
	_, err := NewProvider(ProviderConfig{Provider: "bogus"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestNewProviderHash(t *testing.T) {
	p, err := NewProvider(ProviderConfig{Provider: "hash", Dimension: 64})
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, 64, p.Dimension())
}

func TestDetectDimensionFromModel(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"BAAI/bge-small-en-v1.5", 384},
		{"BAAI/bge-base-en-v1.5", 768},
		{"text-embedding-3-small", 1536},
		{"text-embedding-3-large", 3072},
		{"some-large-model", 1024},
		{"unknown", 384},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, detectDimensionFromModel(tt.model))
		})
	}
}

func TestNormalize(t *testing.T) {
	v := normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(v[1]), 1e-6)

	zero := normalize([]float32{0, 0, 0})
	assert.Equal(t, []float32{0, 0, 0}, zero)
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestHashProviderDeterministic(t *testing.T) {
	p := NewHashProvider(128)
	ctx := context.Background()

	a, err := p.EmbedQuery(ctx, "quarterly revenue report")
	require.NoError(t, err)
	b, err := p.EmbedQuery(ctx, "quarterly revenue report")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 128)
	assert.InDelta(t, 1.0, vectorNorm(a), 1e-5)
}

func TestHashProviderQueryMatchesDocument(t *testing.T) {
	p := NewHashProvider(128)
	ctx := context.Background()

	docs, err := p.EmbedDocuments(ctx, []string{"alpha beta gamma"})
	require.NoError(t, err)
	q, err := p.EmbedQuery(ctx, "alpha beta gamma")
	require.NoError(t, err)
	assert.Equal(t, docs[0], q)
}

func TestHashProviderSimilarityOrdering(t *testing.T) {
	p := NewHashProvider(256)
	ctx := context.Background()

	q, err := p.EmbedQuery(ctx, "solar panel efficiency")
	require.NoError(t, err)
	docs, err := p.EmbedDocuments(ctx, []string{
		"solar panel efficiency improvements in 2024",
		"recipe for chocolate cake with frosting",
	})
	require.NoError(t, err)

	dot := func(a, b []float32) float64 {
		var s float64
		for i := range a {
			s += float64(a[i]) * float64(b[i])
		}
		return s
	}
	assert.Greater(t, dot(q, docs[0]), dot(q, docs[1]))
}

func TestHashProviderEmptyInput(t *testing.T) {
	p := NewHashProvider(64)
	ctx := context.Background()

	_, err := p.EmbedDocuments(ctx, nil)
	assert.True(t, errors.Is(err, ErrEmptyInput))

	_, err = p.EmbedQuery(ctx, "")
	assert.True(t, errors.Is(err, ErrEmptyInput))
}

// flakyProvider fails a configurable number of calls before succeeding.
type flakyProvider struct {
	inner    Provider
	failures int
}

func (f *flakyProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if f.failures > 0 {
		f.failures--
		return nil, ErrEmbeddingFailed
	}
	return f.inner.EmbedDocuments(ctx, texts)
}

func (f *flakyProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.failures > 0 {
		f.failures--
		return nil, ErrEmbeddingFailed
	}
	return f.inner.EmbedQuery(ctx, text)
}

func (f *flakyProvider) Dimension() int { return f.inner.Dimension() }
func (f *flakyProvider) Close() error   { return f.inner.Close() }

func TestWithRetryRecoversOneFailure(t *testing.T) {
	p := WithRetry(&flakyProvider{inner: NewHashProvider(64), failures: 1}, nil)
	ctx := context.Background()

	v, err := p.EmbedQuery(ctx, "hello world")
	require.NoError(t, err)
	assert.Len(t, v, 64)
}

func TestWithRetrySurfacesPersistentFailure(t *testing.T) {
	p := WithRetry(&flakyProvider{inner: NewHashProvider(64), failures: 2}, nil)
	ctx := context.Background()

	_, err := p.EmbedQuery(ctx, "hello world")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmbeddingFailed))
}

func TestWithRetryDoesNotRetryCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	flaky := &flakyProvider{inner: NewHashProvider(64), failures: 1}
	p := WithRetry(flaky, nil)

	_, err := p.EmbedQuery(ctx, "hello")
	require.Error(t, err)
	// The single failure was consumed and no retry happened.
	assert.Equal(t, 0, flaky.failures)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 5))
	assert.Equal(t, "ab", truncateRunes("abcde", 2))
	assert.Equal(t, "hél", truncateRunes("héllo", 3))
}
