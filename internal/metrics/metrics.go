// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "processing_jobs_submitted_total",
		Help: "Total number of processing jobs accepted at the API",
	})

	JobsByStatus = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processing_jobs_finished_total",
			Help: "Processing jobs reaching a terminal status",
		},
		[]string{"status"},
	)

	JobsAwaitingMapping = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "processing_jobs_awaiting_mapping",
		Help: "Jobs currently paused at the mapping barrier",
	})

	UnitResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processing_unit_results_total",
			Help: "Fan-out unit outcomes by kind and status",
		},
		[]string{"kind", "status"},
	)

	RowsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "processing_rows_dropped_total",
		Help: "Value cells dropped by numeric coercion across all units",
	})

	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "processing_job_duration_seconds",
		Help:    "Wall time of one worker job execution",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
	})
)
