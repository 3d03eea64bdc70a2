// Package metrics exposes engine run, stage and skip counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/andresuchdata/merchops/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "merchops"

// Metrics holds the engine collectors. A nil *Metrics is a valid no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	stageRows     *prometheus.GaugeVec
	skipsTotal    *prometheus.CounterVec
	lastSuccess   prometheus.Gauge
}

// New registers the engine collectors (plus Go and process collectors) on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_runs_total",
			Help:      "Engine runs by final status.",
		}, []string{"status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_stage_duration_seconds",
			Help:      "Wall time of each engine stage.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"stage"}),
		stageRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_stage_rows",
			Help:      "Rows produced by the last run of each stage.",
		}, []string{"stage"}),
		skipsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_skipped_units_total",
			Help:      "Series or item-store pairs left out of an output, by stage and reason.",
		}, []string{"stage", "reason"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_last_success_timestamp_seconds",
			Help:      "Unix time of the last completed run.",
		}),
	}
	m.registry.MustRegister(
		m.runsTotal, m.stageDuration, m.stageRows, m.skipsTotal, m.lastSuccess,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveStage records the duration and output size of a finished stage
func (m *Metrics) ObserveStage(stage string, d time.Duration, rows int) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	m.stageRows.WithLabelValues(stage).Set(float64(rows))
}

// AddSkips adds a stage's skip tally
func (m *Metrics) AddSkips(stage string, skipped domain.SkipCounts) {
	if m == nil {
		return
	}
	for _, reason := range skipped.Reasons() {
		m.skipsTotal.WithLabelValues(stage, string(reason)).Add(float64(skipped[reason]))
	}
}

// RunFinished counts a run by status and stamps successful ones
func (m *Metrics) RunFinished(status string, at time.Time) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
	if status == "completed" {
		m.lastSuccess.Set(float64(at.Unix()))
	}
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
