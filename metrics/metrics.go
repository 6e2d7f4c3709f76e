// Package metrics provides Prometheus metrics for the architect.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	GenerationsTotal   *prometheus.CounterVec
	GenerationDuration prometheus.Histogram
	GenerationsActive  prometheus.Gauge
	StoreWritesTotal   *prometheus.CounterVec
	WorkspaceSize      prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		GenerationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "architect_generations_total",
				Help: "Total number of module generation attempts by outcome.",
			},
			[]string{"outcome"},
		),
		GenerationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "architect_generation_duration_seconds",
				Help:    "Duration of generation calls.",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
		),
		GenerationsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "architect_generations_active",
				Help: "1 while a generation call is outstanding.",
			},
		),
		StoreWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "architect_store_writes_total",
				Help: "Total number of persisted document writes by slot and status.",
			},
			[]string{"slot", "status"},
		),
		WorkspaceSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "architect_workspace_projects",
				Help: "Number of projects saved in the workspace.",
			},
		),
		registry: reg,
	}

	reg.MustRegister(m.GenerationsTotal)
	reg.MustRegister(m.GenerationDuration)
	reg.MustRegister(m.GenerationsActive)
	reg.MustRegister(m.StoreWritesTotal)
	reg.MustRegister(m.WorkspaceSize)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordGeneration counts a finished generation and its duration.
func (m *Metrics) RecordGeneration(outcome string, seconds float64) {
	m.GenerationsTotal.WithLabelValues(outcome).Inc()
	m.GenerationDuration.Observe(seconds)
}

// SetGenerating flips the in-flight gauge.
func (m *Metrics) SetGenerating(active bool) {
	if active {
		m.GenerationsActive.Set(1)
		return
	}
	m.GenerationsActive.Set(0)
}

// RecordStoreWrite implements store.Recorder.
func (m *Metrics) RecordStoreWrite(slot, status string) {
	m.StoreWritesTotal.WithLabelValues(slot, status).Inc()
}

func (m *Metrics) SetWorkspaceSize(n int) {
	m.WorkspaceSize.Set(float64(n))
}
