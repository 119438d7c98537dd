package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/korora-tech/dhd/pkg/engine"
)

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Listen  string `json:"listen"`
}

// Metrics implements engine.Metrics on a private Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	atomsFinished *prometheus.CounterVec
	atomDuration  *prometheus.HistogramVec
	runsFinished  *prometheus.CounterVec
	runDuration   prometheus.Histogram
}

// NewMetrics registers the engine's collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		atomsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dhd",
			Name:      "atoms_finished_total",
			Help:      "Atoms finished, by action kind and outcome.",
		}, []string{"kind", "state"}),
		atomDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dhd",
			Name:      "atom_duration_seconds",
			Help:      "Wall time per atom.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dhd",
			Name:      "runs_finished_total",
			Help:      "Runs finished, by overall status.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dhd",
			Name:      "run_duration_seconds",
			Help:      "Wall time per run.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}),
	}
	registry.MustRegister(m.atomsFinished, m.atomDuration, m.runsFinished, m.runDuration)
	return m
}

// AtomFinished records one atom outcome.
func (m *Metrics) AtomFinished(kind string, state engine.NodeState, duration time.Duration) {
	m.atomsFinished.WithLabelValues(kind, string(state)).Inc()
	m.atomDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RunFinished records one run outcome.
func (m *Metrics) RunFinished(status engine.ModuleStatus, duration time.Duration) {
	m.runsFinished.WithLabelValues(string(status)).Inc()
	m.runDuration.Observe(duration.Seconds())
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
