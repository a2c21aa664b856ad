package analysis

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// AnalysesTotal counts completed analyses by assigned risk level.
	AnalysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sift",
			Name:      "analyses_total",
			Help:      "Total completed analyses by risk level.",
		},
		[]string{"risk_level"},
	)

	// AnalysisDuration observes end-to-end scoring latency.
	AnalysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sift",
			Name:      "analysis_duration_seconds",
			Help:      "Scoring duration in seconds, including persistence.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
	)

	// RuleHitsTotal counts rule firings by flag.
	RuleHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sift",
			Name:      "analysis_rule_hits_total",
			Help:      "Total rule firings by flag.",
		},
		[]string{"flag"},
	)

	// LookupDegradationsTotal counts history lookups that failed open.
	LookupDegradationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sift",
			Name:      "analysis_lookup_degradations_total",
			Help:      "History lookups that degraded to no bot signal.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		AnalysesTotal,
		AnalysisDuration,
		RuleHitsTotal,
		LookupDegradationsTotal,
	)
}

// observeAnalysis records one completed analysis and its latency.
func observeAnalysis(level string, start time.Time) {
	AnalysesTotal.WithLabelValues(level).Inc()
	AnalysisDuration.Observe(time.Since(start).Seconds())
}
