// Package metrics registers the worker pool's prometheus counters and
// gauges, generalizing the teacher's infrastructure/metrics registration
// style to run/dispatch observability.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RunsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exposure_engine_runs_dispatched_total",
			Help: "Number of runs picked up by a dispatcher tick, by run_type.",
		},
		[]string{"run_type"},
	)

	RunsSucceeded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exposure_engine_runs_succeeded_total",
			Help: "Number of runs that completed SUCCEEDED, by run_type.",
		},
		[]string{"run_type"},
	)

	RunsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exposure_engine_runs_failed_total",
			Help: "Number of runs that completed FAILED, by run_type.",
		},
		[]string{"run_type"},
	)

	RunsCancelled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exposure_engine_runs_cancelled_total",
			Help: "Number of runs that completed CANCELLED, by run_type.",
		},
		[]string{"run_type"},
	)

	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exposure_engine_run_duration_seconds",
			Help:    "Run wall-clock duration from RUNNING to terminal state.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"run_type"},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "exposure_engine_worker_queue_depth",
			Help: "Number of QUEUED or RUNNING runs returned by the last poll, by run_type.",
		},
		[]string{"run_type"},
	)

	// WorkerRSSBytes is registered, but nothing in this module sets it, so it
	// reports 0.
	WorkerRSSBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "exposure_engine_worker_rss_bytes",
			Help: "Resident set size of the worker process.",
		},
	)
)

// Register attaches all collectors to reg. Call once per process.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		RunsDispatched,
		RunsSucceeded,
		RunsFailed,
		RunsCancelled,
		RunDuration,
		QueueDepth,
		WorkerRSSBytes,
	)
}
