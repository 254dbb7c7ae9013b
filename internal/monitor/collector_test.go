package monitor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCollector(t *testing.T, config Config) *Collector {
	t.Helper()
	if config.Path == "" {
		config.Path = filepath.Join(t.TempDir(), "query_metrics.jsonl")
	}
	c, err := NewCollector(config, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRecordFillsDefaults(t *testing.T) {
	c := testCollector(t, Config{})

	rec := c.Record(QueryRecord{Query: "solar panel efficiency"})
	assert.NotEmpty(t, rec.QueryID)
	assert.False(t, rec.Timestamp.IsZero())

	recent := c.Recent(0)
	require.Len(t, recent, 1)
	assert.Equal(t, rec.QueryID, recent[0].QueryID)
}

func TestRecentWindowAndOrder(t *testing.T) {
	c := testCollector(t, Config{WindowSize: 3})

	for _, id := range []string{"q1", "q2", "q3", "q4"} {
		c.Record(QueryRecord{QueryID: id})
	}

	recent := c.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "q2", recent[0].QueryID)
	assert.Equal(t, "q4", recent[2].QueryID)

	last := c.Recent(1)
	require.Len(t, last, 1)
	assert.Equal(t, "q4", last[0].QueryID)
}

func TestWindowSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "query_metrics.jsonl")

	first := testCollector(t, Config{Path: path})
	first.Record(QueryRecord{QueryID: "q1", QualityScore: 4.2})
	first.Record(QueryRecord{QueryID: "q2", QualityScore: 3.8})
	require.NoError(t, first.Close())

	second := testCollector(t, Config{Path: path})
	recent := second.Recent(0)
	require.Len(t, recent, 2)
	assert.Equal(t, "q1", recent[0].QueryID)
	assert.Equal(t, 3.8, recent[1].QualityScore)
}

func TestLoadSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "query_metrics.jsonl")
	content := `{"query_id":"q1","quality_score":4.0}` + "\nnot json at all\n" + `{"query_id":"q2","quality_score":3.0}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c := testCollector(t, Config{Path: path})
	recent := c.Recent(0)
	require.Len(t, recent, 2)
	assert.Equal(t, "q1", recent[0].QueryID)
	assert.Equal(t, "q2", recent[1].QueryID)
}

func TestInMemoryOnlyWhenPathEmpty(t *testing.T) {
	c, err := NewCollector(Config{WindowSize: 5}, nil)
	require.NoError(t, err)
	defer c.Close()

	c.Record(QueryRecord{QueryID: "q1"})
	assert.Len(t, c.Recent(0), 1)
}

func TestAlertsEmptyWindow(t *testing.T) {
	c := testCollector(t, Config{})
	assert.Empty(t, c.Alerts())
}

func TestAlertsHealthyWindow(t *testing.T) {
	c := testCollector(t, Config{})
	for i := 0; i < 10; i++ {
		c.Record(QueryRecord{QualityScore: 4.0, ConfidenceScore: 0.8})
	}
	assert.Empty(t, c.Alerts())
}

func TestAlertsLowQuality(t *testing.T) {
	c := testCollector(t, Config{})
	for i := 0; i < 10; i++ {
		c.Record(QueryRecord{QualityScore: 1.5, ConfidenceScore: 0.8})
	}

	alerts := c.Alerts()
	require.NotEmpty(t, alerts)
	assert.Equal(t, "low_quality", alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.InDelta(t, 1.5, alerts[0].Value, 1e-9)
}

func TestAlertsDecliningQuality(t *testing.T) {
	c := testCollector(t, Config{})
	for i := 0; i < 5; i++ {
		c.Record(QueryRecord{QualityScore: 4.5, ConfidenceScore: 0.8})
	}
	for i := 0; i < 5; i++ {
		c.Record(QueryRecord{QualityScore: 3.5, ConfidenceScore: 0.8})
	}

	var types []string
	for _, a := range c.Alerts() {
		types = append(types, a.Type)
	}
	assert.Contains(t, types, "declining_quality")
	assert.NotContains(t, types, "low_quality")
}

func TestAlertsLowConfidence(t *testing.T) {
	c := testCollector(t, Config{})
	for i := 0; i < 5; i++ {
		c.Record(QueryRecord{QualityScore: 4.0, ConfidenceScore: 0.1})
	}

	var types []string
	for _, a := range c.Alerts() {
		types = append(types, a.Type)
	}
	assert.Contains(t, types, "low_confidence")
}

func TestAlertsHighErrorRate(t *testing.T) {
	c := testCollector(t, Config{})
	for i := 0; i < 7; i++ {
		c.Record(QueryRecord{QualityScore: 4.0, ConfidenceScore: 0.8})
	}
	for i := 0; i < 3; i++ {
		c.Record(QueryRecord{ErrorOccurred: true, ErrorMessage: "embedding failure"})
	}

	var got *Alert
	for _, a := range c.Alerts() {
		if a.Type == "high_error_rate" {
			alert := a
			got = &alert
		}
	}
	require.NotNil(t, got)
	assert.Equal(t, "critical", got.Severity)
	assert.InDelta(t, 0.3, got.Value, 1e-9)
}
