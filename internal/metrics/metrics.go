package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for analysis runs and refresh jobs.
const (
	OutcomeSuccess          = "success"
	OutcomeInsufficientData = "insufficient_data"
	OutcomeUnresolved       = "unresolved_category_data"
	OutcomeNotFound         = "not_found"
	OutcomeError            = "error"
)

var (
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinetrait_analyses_total",
			Help: "Total number of personality analyses by outcome",
		},
		[]string{"outcome"},
	)

	AnalysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cinetrait_analysis_duration_seconds",
			Help:    "Duration of a single analysis including store reads and the result upsert",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	AnalysisConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cinetrait_analysis_confidence",
			Help:    "Confidence of successful analyses",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		},
	)

	AnalysesShared = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cinetrait_analyses_shared_total",
			Help: "Analyze calls answered by a concurrent run for the same user",
		},
	)

	RefreshJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinetrait_refresh_jobs_total",
			Help: "Total number of processed refresh jobs by outcome",
		},
		[]string{"outcome"},
	)

	RatingsUpserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cinetrait_ratings_upserted_total",
			Help: "Total number of rating upserts",
		},
	)
)

// ObserveAnalysis records the outcome of one analysis run. confidence is only
// recorded for successful runs.
func ObserveAnalysis(outcome string, d time.Duration, confidence float64) {
	AnalysesTotal.WithLabelValues(outcome).Inc()
	AnalysisDuration.Observe(d.Seconds())
	if outcome == OutcomeSuccess {
		AnalysisConfidence.Observe(confidence)
	}
}
