// Package metrics exposes Prometheus collectors for the conversation engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeCompleted = "completed"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"

	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds the engine collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Registry *prometheus.Registry

	GenerationsTotal   *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	GenerationsActive  prometheus.Gauge
	ChunksFoldedTotal  prometheus.Counter

	PersistenceWritesTotal *prometheus.CounterVec
	TransitionsTotal       *prometheus.CounterVec
}

// NewMetrics creates the collectors on a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{Registry: reg}

	m.GenerationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quill_generations_total",
			Help: "Total number of backend generations by outcome",
		},
		[]string{"outcome"},
	)

	m.GenerationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quill_generation_duration_seconds",
			Help:    "Duration of backend generations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	m.GenerationsActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "quill_generations_active",
			Help: "Number of generations currently streaming",
		},
	)

	m.ChunksFoldedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "quill_chunks_folded_total",
			Help: "Total number of response chunks folded into transcripts",
		},
	)

	m.PersistenceWritesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quill_persistence_writes_total",
			Help: "Total number of conversation persistence writes by status",
		},
		[]string{"status"},
	)

	m.TransitionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quill_dialogue_transitions_total",
			Help: "Total number of dialogue state transitions by target phase",
		},
		[]string{"to"},
	)

	return m
}

func (m *Metrics) GenerationStarted() {
	if m == nil {
		return
	}
	m.GenerationsActive.Inc()
}

func (m *Metrics) GenerationFinished(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.GenerationsActive.Dec()
	m.GenerationsTotal.WithLabelValues(outcome).Inc()
	m.GenerationDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) ChunkFolded() {
	if m == nil {
		return
	}
	m.ChunksFoldedTotal.Inc()
}

func (m *Metrics) PersistenceWrite(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.PersistenceWritesTotal.WithLabelValues(StatusError).Inc()
		return
	}
	m.PersistenceWritesTotal.WithLabelValues(StatusOK).Inc()
}

func (m *Metrics) Transition(to string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(to).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
