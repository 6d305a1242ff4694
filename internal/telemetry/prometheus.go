package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RunMetrics counts top-level executions.
type RunMetrics struct {
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewRunMetrics creates the run metrics in their own registry.
func NewRunMetrics() *RunMetrics {
	registry := prometheus.NewRegistry()
	m := &RunMetrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipegrid_runs_total",
				Help: "Total number of pipe graph executions by status",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipegrid_run_duration_seconds",
				Help:    "Pipe graph execution latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"root_pipe"},
		),
		registry: registry,
	}
	registry.MustRegister(m.runsTotal, m.runDuration)
	return m
}

// Record adds one finished execution.
func (m *RunMetrics) Record(rootPipe, status string, duration time.Duration) {
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(rootPipe).Observe(duration.Seconds())
}

// Registry exposes the underlying registry.
func (m *RunMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the run metrics in the prometheus text format.
func (m *RunMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
