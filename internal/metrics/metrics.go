// Package metrics exposes the process's Prometheus collectors (spec
// SPEC_FULL.md §B: "oracle concurrency gauge, notification tier
// counters, health check latency histogram"). Grounded on the teacher's
// `pkg/metrics` package-level Registry + typed collector pattern.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every orchestratord collector, separate from the
// global Prometheus default registry so diagnostics output only ever
// reports our own collectors.
var Registry = prometheus.NewRegistry()

var (
	oracleInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "orchestratord",
		Subsystem: "oracle",
		Name:      "inflight_queries",
		Help:      "Current number of oracle queries holding a semaphore slot.",
	})

	oracleQueries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestratord",
		Subsystem: "oracle",
		Name:      "queries_total",
		Help:      "Total oracle queries grouped by provider and outcome.",
	}, []string{"provider", "outcome"})

	oracleDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orchestratord",
		Subsystem: "oracle",
		Name:      "query_duration_seconds",
		Help:      "Duration of oracle queries.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"provider"})

	notificationsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestratord",
		Subsystem: "notify",
		Name:      "sent_total",
		Help:      "Total notifications sent grouped by tier.",
	}, []string{"tier"})

	notificationsQueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestratord",
		Subsystem: "notify",
		Name:      "queued_total",
		Help:      "Total notifications queued (quiet hours or batch) grouped by tier.",
	}, []string{"tier"})

	healthCheckDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orchestratord",
		Subsystem: "health",
		Name:      "check_duration_seconds",
		Help:      "Duration of individual service health checks.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"service", "status"})

	healthRestarts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestratord",
		Subsystem: "health",
		Name:      "restarts_total",
		Help:      "Total restart attempts dispatched by the health monitor, grouped by service and outcome.",
	}, []string{"service", "outcome"})
)

func init() {
	Registry.MustRegister(
		oracleInFlight,
		oracleQueries,
		oracleDuration,
		notificationsSent,
		notificationsQueued,
		healthCheckDuration,
		healthRestarts,
	)
}

// Handler returns the promhttp handler serving this registry's
// exposition format, mounted at /metrics by the diagnostics server.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Recorder implements the small recorder-shaped interfaces declared in
// internal/oracle, internal/health, and internal/notify, so those leaf
// packages stay import-free of internal/metrics and internal/metrics
// depends on nothing from them (structural typing avoids an import
// cycle; any type satisfying the narrower interface works as a hook).
type Recorder struct{}

// NewRecorder returns the process-wide metrics Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// OracleQueryStarted implements oracle.MetricsRecorder.
func (r *Recorder) OracleQueryStarted() { oracleInFlight.Inc() }

// OracleQueryFinished implements oracle.MetricsRecorder.
func (r *Recorder) OracleQueryFinished(provider, outcome string, seconds float64) {
	oracleInFlight.Dec()
	oracleQueries.WithLabelValues(provider, outcome).Inc()
	oracleDuration.WithLabelValues(provider).Observe(seconds)
}

// NotificationSent implements notify.MetricsRecorder.
func (r *Recorder) NotificationSent(tier string) {
	notificationsSent.WithLabelValues(tier).Inc()
}

// NotificationQueued implements notify.MetricsRecorder.
func (r *Recorder) NotificationQueued(tier string) {
	notificationsQueued.WithLabelValues(tier).Inc()
}

// HealthCheckObserved implements health.MetricsRecorder.
func (r *Recorder) HealthCheckObserved(service, status string, seconds float64) {
	healthCheckDuration.WithLabelValues(service, status).Observe(seconds)
}

// HealthRestartAttempted implements health.MetricsRecorder.
func (r *Recorder) HealthRestartAttempted(service, outcome string) {
	healthRestarts.WithLabelValues(service, outcome).Inc()
}
