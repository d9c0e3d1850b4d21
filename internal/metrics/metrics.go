// Package metrics exposes Prometheus collectors for the tender analyzer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	tasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tender_tasks_total",
			Help: "Total number of acquisition tasks finished, labeled by terminal status.",
		},
		[]string{"status"},
	)

	activeTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tender_active_tasks",
			Help: "Number of acquisition tasks currently running.",
		},
	)

	fetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tender_fetch_attempts_total",
			Help: "Total number of portal fetch attempts, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	analysisBranchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tender_analysis_branches_total",
			Help: "Total number of analysis branches run, labeled by result label and outcome.",
		},
		[]string{"label", "outcome"},
	)

	stagedFiles = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tender_staged_files",
			Help:    "Histogram of technical-specification files staged per task.",
			Buckets: []float64{0, 1, 2, 3},
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTask increments the task counter for a terminal status.
func ObserveTask(status string) {
	tasksTotal.WithLabelValues(status).Inc()
}

// IncActiveTasks increments the running task gauge.
func IncActiveTasks() {
	activeTasks.Inc()
}

// DecActiveTasks decrements the running task gauge.
func DecActiveTasks() {
	activeTasks.Dec()
}

// ObserveFetch counts one fetch attempt outcome (ok, transient, failed, exhausted).
func ObserveFetch(outcome string) {
	fetchAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveBranch counts one finished analysis branch.
func ObserveBranch(label string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	analysisBranchesTotal.WithLabelValues(label, outcome).Inc()
}

// ObserveStagedFiles records how many files a task staged.
func ObserveStagedFiles(n int) {
	stagedFiles.Observe(float64(n))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
