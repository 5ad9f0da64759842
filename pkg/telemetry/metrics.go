package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics provides Prometheus metrics for the engine.
type Metrics struct {
	enabled bool

	// Run metrics
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	// Target metrics
	targetsExecuted *prometheus.CounterVec
	targetDuration  *prometheus.HistogramVec

	// Execution cost
	costUnits *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector. A disabled collector is a
// no-op and safe to call.
func NewMetrics(enabled bool) *Metrics {
	m := &Metrics{enabled: enabled}
	if !enabled {
		return m
	}

	m.registry = prometheus.NewRegistry()

	m.runsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forge",
		Name:      "runs_started_total",
		Help:      "Total recipe application runs started.",
	}, []string{"recipe"})

	m.runsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forge",
		Name:      "runs_completed_total",
		Help:      "Total recipe application runs completed, by status.",
	}, []string{"recipe", "status"})

	m.runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "forge",
		Name:      "run_duration_seconds",
		Help:      "Duration of recipe application runs.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"recipe"})

	m.targetsExecuted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forge",
		Name:      "targets_executed_total",
		Help:      "Total application targets executed, by scope and outcome.",
	}, []string{"recipe", "scope", "outcome"})

	m.targetDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "forge",
		Name:      "target_duration_seconds",
		Help:      "Duration of single-target executions.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"recipe", "scope"})

	m.costUnits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forge",
		Name:      "cost_units_total",
		Help:      "Execution cost units reported by the execution service.",
	}, []string{"recipe"})

	m.registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.targetsExecuted,
		m.targetDuration,
		m.costUnits,
	)

	return m
}

// RecordRunStarted increments the run counter.
func (m *Metrics) RecordRunStarted(recipe string) {
	if !m.enabled {
		return
	}
	m.runsStarted.WithLabelValues(recipe).Inc()
}

// RecordRunCompleted records a finished run with its status and duration.
func (m *Metrics) RecordRunCompleted(recipe, status string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.runsCompleted.WithLabelValues(recipe, status).Inc()
	m.runDuration.WithLabelValues(recipe).Observe(duration.Seconds())
}

// RecordTarget records one target execution.
func (m *Metrics) RecordTarget(recipe, scope, outcome string, duration time.Duration, costUnits float64) {
	if !m.enabled {
		return
	}
	m.targetsExecuted.WithLabelValues(recipe, scope, outcome).Inc()
	m.targetDuration.WithLabelValues(recipe, scope).Observe(duration.Seconds())
	m.costUnits.WithLabelValues(recipe).Add(costUnits)
}

// Serve exposes the metrics endpoint on addr until the server fails.
// Intended to run in a goroutine for long-lived invocations.
func (m *Metrics) Serve(addr string) {
	if !m.enabled {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
	}
}
