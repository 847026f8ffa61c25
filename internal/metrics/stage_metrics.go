// Package metrics records per-stage latency and outcome counts for the
// pipeline, following the teacher's Prometheus registry/handler shape
// but trimmed from full HTTP-request/business-metric coverage down to
// the single ambient concern this engine actually has: how long each
// stage takes and how it resolved.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Config names the metric namespace/subsystem, following the teacher's
// MetricsConfig shape.
type Config struct {
	Namespace string
	Subsystem string
}

func DefaultConfig() Config {
	return Config{Namespace: "chat2sql", Subsystem: "pipeline"}
}

// StageMetrics counts and times pipeline stage executions. A nil
// *StageMetrics is safe to call methods on: RecordStage becomes a
// no-op, so callers that were not given a recorder (tests, one-off
// scripts) never need a conditional at the call site.
type StageMetrics struct {
	stageOutcomesTotal *prometheus.CounterVec
	stageDuration      *prometheus.HistogramVec
	registry           *prometheus.Registry
	logger             *zap.Logger
}

// New builds a StageMetrics registered against its own Prometheus
// registry (not the global default registry), so tests can construct
// as many independent instances as they like without collector
// collisions.
func New(cfg Config, logger *zap.Logger) *StageMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &StageMetrics{
		registry: prometheus.NewRegistry(),
		logger:   logger,
	}

	m.stageOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "stage_outcomes_total",
			Help:      "Total number of pipeline stage completions by outcome",
		},
		[]string{"stage", "outcome"},
	)
	m.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	m.registry.MustRegister(m.stageOutcomesTotal, m.stageDuration)
	return m
}

// RecordStage records one stage's completion. A nil receiver is a
// no-op.
func (m *StageMetrics) RecordStage(stage, outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.stageOutcomesTotal.WithLabelValues(stage, outcome).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// Handler exposes the metrics in Prometheus text format. A nil
// receiver returns a handler that always answers 503, so wiring it
// into a router before a recorder exists fails loudly instead of
// panicking.
func (m *StageMetrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "metrics not configured", http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
