// Package metrics holds the Prometheus collectors shared by the pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Wall time of pipeline stage executions.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"stage", "result"},
	)

	StageTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stage_total",
			Help: "Pipeline stage executions by result.",
		},
		[]string{"stage", "result"},
	)

	SearchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acquisition_search_failures_total",
			Help: "Failed clip search attempts by provider and reason.",
		},
		[]string{"provider", "reason"},
	)

	EffectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "effects_attempts_total",
			Help: "Photo effect synthesis attempts by effect and result.",
		},
		[]string{"effect", "result"},
	)

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "worker_queue_depth",
		Help: "Stage requests waiting in the queue.",
	})
)

// ObserveStage records one stage execution. result is ok, skipped or error.
func ObserveStage(stage, result string, took time.Duration) {
	StageTotal.WithLabelValues(stage, result).Inc()
	if result != "skipped" {
		StageDuration.WithLabelValues(stage, result).Observe(took.Seconds())
	}
}

// Result maps an error to a metric label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
