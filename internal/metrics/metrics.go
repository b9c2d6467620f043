// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AnalysesTotal counts completed analyses by risk band.
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stylobot",
		Name:      "analyses_total",
		Help:      "Completed request analyses by risk band",
	}, []string{"band"})

	// AnalysisDuration tracks end-to-end analysis latency.
	AnalysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "stylobot",
		Name:      "analysis_duration_seconds",
		Help:      "End-to-end analysis latency",
		Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})

	// ContributorDuration tracks per-contributor latency.
	ContributorDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "stylobot",
		Name:      "contributor_duration_seconds",
		Help:      "Per-contributor execution latency",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .5, 1},
	}, []string{"detector"})

	// ContributorFailures counts contributor errors, timeouts and panics.
	ContributorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stylobot",
		Name:      "contributor_failures_total",
		Help:      "Contributor failures by detector and kind",
	}, []string{"detector", "kind"})

	// EarlyExits counts fast-path terminations by verdict.
	EarlyExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stylobot",
		Name:      "early_exits_total",
		Help:      "Analyses terminated early by verdict",
	}, []string{"verdict"})

	// Waves tracks how many waves each analysis needed.
	Waves = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "stylobot",
		Name:      "waves_per_analysis",
		Help:      "Scheduler waves per analysis",
		Buckets:   []float64{1, 2, 3, 4, 5, 6, 8},
	})
)

// ObserveContributor records one contributor execution.
func ObserveContributor(detector string, d time.Duration, failureKind string) {
	ContributorDuration.WithLabelValues(detector).Observe(d.Seconds())
	if failureKind != "" {
		ContributorFailures.WithLabelValues(detector, failureKind).Inc()
	}
}
