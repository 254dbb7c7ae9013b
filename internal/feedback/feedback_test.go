package feedback

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(rating string, k int, quality float64) Entry {
	return Entry{
		Query:           "how did solar panel efficiency change",
		Rating:          rating,
		RetrievalMethod: "hybrid",
		RetrievalK:      k,
		QualityScore:    quality,
	}
}

func TestRecordFillsIDAndTimestamp(t *testing.T) {
	s, err := NewStore(Config{}, nil)
	require.NoError(t, err)

	got, err := s.Record(entry(RatingPositive, 5, 4.0))
	require.NoError(t, err)
	assert.NotEmpty(t, got.FeedbackID)
	assert.False(t, got.Timestamp.IsZero())

	recent := s.Recent(0)
	require.Len(t, recent, 1)
	assert.Equal(t, got.FeedbackID, recent[0].FeedbackID)
}

func TestRecordRejectsInvalidRating(t *testing.T) {
	s, err := NewStore(Config{}, nil)
	require.NoError(t, err)

	_, err = s.Record(entry("meh", 5, 0))
	assert.ErrorIs(t, err, ErrInvalidRating)
	assert.Empty(t, s.Recent(0))
}

func TestStorePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_feedback.jsonl")

	s1, err := NewStore(Config{Path: path}, nil)
	require.NoError(t, err)
	_, err = s1.Record(entry(RatingPositive, 5, 4.0))
	require.NoError(t, err)
	_, err = s1.Record(entry(RatingNegative, 5, 2.0))
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := NewStore(Config{Path: path}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s2.Close() })

	recent := s2.Recent(0)
	require.Len(t, recent, 2)
	assert.Equal(t, RatingNegative, recent[1].Rating)
}

func TestSummarizeCounts(t *testing.T) {
	s, err := NewStore(Config{}, nil)
	require.NoError(t, err)

	for _, e := range []Entry{
		entry(RatingPositive, 5, 4.0),
		entry(RatingPositive, 5, 5.0),
		entry(RatingNegative, 5, 2.0),
	} {
		_, err := s.Record(e)
		require.NoError(t, err)
	}

	sum := s.Summarize(24 * time.Hour)
	assert.Equal(t, 3, sum.TotalFeedback)
	assert.Equal(t, 2, sum.PositiveCount)
	assert.Equal(t, 1, sum.NegativeCount)
	assert.InDelta(t, 2.0/3.0, sum.PositiveRatio, 1e-9)
	assert.InDelta(t, 11.0/3.0, sum.AvgQualityScore, 1e-9)
}

func TestSummarizeWindowExcludesOldEntries(t *testing.T) {
	s, err := NewStore(Config{}, nil)
	require.NoError(t, err)

	old := entry(RatingNegative, 5, 1.0)
	old.Timestamp = time.Now().UTC().Add(-48 * time.Hour)
	_, err = s.Record(old)
	require.NoError(t, err)
	_, err = s.Record(entry(RatingPositive, 5, 4.0))
	require.NoError(t, err)

	sum := s.Summarize(24 * time.Hour)
	assert.Equal(t, 1, sum.TotalFeedback)
	assert.Equal(t, 0, sum.NegativeCount)
}

func TestSummarizeSuggestsWiderKForPoorGroups(t *testing.T) {
	s, err := NewStore(Config{}, nil)
	require.NoError(t, err)

	// Five consistently negative low-quality answers at k=5.
	for i := 0; i < 5; i++ {
		_, err := s.Record(entry(RatingNegative, 5, 1.5))
		require.NoError(t, err)
	}

	sum := s.Summarize(24 * time.Hour)
	require.Len(t, sum.Suggestions, 1)
	adj := sum.Suggestions[0]
	assert.Equal(t, "retrieval_k", adj.Parameter)
	assert.Equal(t, 5.0, adj.OldValue)
	assert.Equal(t, 7.0, adj.NewValue)
	assert.Zero(t, sum.RecommendedK)
}

func TestSummarizeNarrowsLargeKForPoorGroups(t *testing.T) {
	s, err := NewStore(Config{}, nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := s.Record(entry(RatingNegative, 12, 1.5))
		require.NoError(t, err)
	}

	sum := s.Summarize(24 * time.Hour)
	require.Len(t, sum.Suggestions, 1)
	assert.Equal(t, 12.0, sum.Suggestions[0].OldValue)
	assert.Equal(t, 11.0, sum.Suggestions[0].NewValue)
}

func TestSummarizeRecommendsStrongK(t *testing.T) {
	s, err := NewStore(Config{}, nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := s.Record(entry(RatingPositive, 8, 4.8))
		require.NoError(t, err)
	}

	sum := s.Summarize(24 * time.Hour)
	assert.Empty(t, sum.Suggestions)
	assert.Equal(t, 8, sum.RecommendedK)
}

func TestSummarizeNeedsMinimumSamples(t *testing.T) {
	s, err := NewStore(Config{}, nil)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := s.Record(entry(RatingNegative, 5, 1.0))
		require.NoError(t, err)
	}

	sum := s.Summarize(24 * time.Hour)
	assert.Empty(t, sum.Suggestions)
}
