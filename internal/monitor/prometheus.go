package monitor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level metrics (registered once)
var (
	metricsOnce       sync.Once
	queriesTotal      *prometheus.CounterVec
	queryDuration     prometheus.Histogram
	retrievalDuration prometheus.Histogram
	answerQuality     prometheus.Histogram
	answerConfidence  prometheus.Histogram
	finalChunks       prometheus.Histogram
)

func initMetrics() {
	metricsOnce.Do(func() {
		queriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docqa_queries_total",
				Help: "Total queries served, by retrieval method and outcome",
			},
			[]string{"method", "status"},
		)

		queryDuration = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docqa_query_duration_seconds",
				Help:    "End-to-end query processing time",
				Buckets: prometheus.DefBuckets,
			},
		)

		retrievalDuration = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docqa_retrieval_duration_seconds",
				Help:    "Retrieval stage time",
				Buckets: prometheus.DefBuckets,
			},
		)

		answerQuality = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docqa_answer_quality_score",
				Help:    "Answer quality scores on the 0-5 scale",
				Buckets: prometheus.LinearBuckets(0, 0.5, 11),
			},
		)

		answerConfidence = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docqa_answer_confidence",
				Help:    "Answer confidence scores on the 0-1 scale",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
		)

		finalChunks = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docqa_final_chunks",
				Help:    "Chunks in the final context per query",
				Buckets: []float64{0, 1, 2, 3, 5, 8, 12, 15},
			},
		)
	})
}

func observeQuery(rec QueryRecord) {
	initMetrics()

	status := "success"
	if rec.ErrorOccurred {
		status = "error"
	}
	method := rec.RetrievalMethod
	if method == "" {
		method = "unknown"
	}
	queriesTotal.WithLabelValues(method, status).Inc()
	queryDuration.Observe(rec.TotalTime)
	retrievalDuration.Observe(rec.RetrievalTime)
	finalChunks.Observe(float64(rec.ChunksFinal))

	if !rec.ErrorOccurred {
		answerQuality.Observe(rec.QualityScore)
		answerConfidence.Observe(rec.ConfidenceScore)
	}
}
