// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the hive worker.
package observability

import "github.com/prometheus/client_golang/prometheus"

// JobBuckets defines histogram buckets suited for sandboxed job durations,
// ranging from 100ms to 30 minutes.
var JobBuckets = []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 1800}

// WorkerStates lists the values reported by the worker state gauge.
var WorkerStates = []string{"awaiting_response", "running", "stopped"}

var (
	// JobsTotal counts executed jobs by outcome (success, checkpoint, failure, timeout).
	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hive_jobs_total",
			Help: "Executed jobs",
		},
		[]string{"outcome"},
	)

	// JobDuration records wall-clock time of the entry point subprocess.
	JobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hive_job_duration_seconds",
			Help:    "Job duration",
			Buckets: JobBuckets,
		},
	)

	// CoordinatorRequestsTotal counts coordinator round trips by status class
	// ("2xx", "5xx", "error" for transport level failures).
	CoordinatorRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hive_coordinator_requests_total",
			Help: "Coordinator requests",
		},
		[]string{"status"},
	)

	// CoordinatorRetriesTotal counts backoff waits before a retried request.
	CoordinatorRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hive_coordinator_retries_total",
			Help: "Coordinator retries",
		},
	)

	// SessionsReapedTotal counts orphaned session directories removed by the reaper.
	SessionsReapedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hive_sessions_reaped_total",
			Help: "Reaped sessions",
		},
	)

	// OverlayBuildDuration records session tree construction time by isolation mode.
	OverlayBuildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hive_overlay_build_seconds",
			Help:    "Session tree build time",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
		[]string{"mode"},
	)

	// WorkerState is 1 for the state the job loop is currently in and 0 otherwise.
	WorkerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hive_worker_state",
			Help: "Current job loop state",
		},
		[]string{"state"},
	)

	// HTTPRequestsTotal counts requests served by the worker HTTP surface.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hive_http_requests_total",
			Help: "HTTP requests",
		},
		[]string{"method", "status"},
	)

	// HTTPRequestDuration records worker HTTP request duration in seconds.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hive_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: JobBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(
		JobsTotal,
		JobDuration,
		CoordinatorRequestsTotal,
		CoordinatorRetriesTotal,
		SessionsReapedTotal,
		OverlayBuildDuration,
		WorkerState,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// SetWorkerState marks state as current on the WorkerState gauge.
func SetWorkerState(state string) {
	for _, s := range WorkerStates {
		v := 0.0
		if s == state {
			v = 1
		}
		WorkerState.WithLabelValues(s).Set(v)
	}
}
