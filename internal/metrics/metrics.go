// Package metrics exposes Prometheus instrumentation for job executions.
// The poll loop never depends on it; recording failures are invisible.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "manna_job_executions_total",
			Help: "Job execution attempts by job name and terminal status.",
		},
		[]string{"job", "status"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "manna_job_duration_seconds",
			Help:    "Job execution attempt duration.",
			Buckets: prometheus.ExponentialBuckets(0.1, 3, 10),
		},
		[]string{"job"},
	)

	dispatchDue = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "manna_dispatch_due_total",
			Help: "Rules reported due by the dispatch engine.",
		},
		[]string{"rule"},
	)
)

// ObserveExecution records one completed job attempt.
func ObserveExecution(job, status string, duration time.Duration) {
	jobExecutions.WithLabelValues(job, status).Inc()
	jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// ObserveDue records a rule becoming due.
func ObserveDue(rule string) {
	dispatchDue.WithLabelValues(rule).Inc()
}

// Handler serves the metrics endpoint.
func Handler() http.Handler { return promhttp.Handler() }
