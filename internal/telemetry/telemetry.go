// Package telemetry exposes Prometheus metrics for the pipeline stages and
// the HTTP boundary.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Telemetry owns the metric vectors. A nil *Telemetry is a no-op so tests
// can pass one without registering collectors.
type Telemetry struct {
	stageTotal    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	rateLimited   *prometheus.CounterVec
	signalsTotal  prometheus.Counter
}

// New registers the service collectors on reg (defaulting to the global
// registerer).
func New(reg prometheus.Registerer) *Telemetry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	t := &Telemetry{
		stageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orgpulse_stage_total",
			Help: "Pipeline stage executions by stage and outcome.",
		}, []string{"stage", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orgpulse_stage_duration_seconds",
			Help:    "Pipeline stage wall time.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"stage"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orgpulse_rate_limited_total",
			Help: "Requests rejected by the fixed-window limiter, by scope.",
		}, []string{"scope"}),
		signalsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orgpulse_signals_ingested_total",
			Help: "Signals accepted by the ingest endpoints.",
		}),
	}
	reg.MustRegister(t.stageTotal, t.stageDuration, t.rateLimited, t.signalsTotal)
	return t
}

// StageTimer starts timing one stage execution.
func (t *Telemetry) StageTimer(stage string) *prometheus.Timer {
	if t == nil {
		return prometheus.NewTimer(prometheus.ObserverFunc(func(float64) {}))
	}
	return prometheus.NewTimer(t.stageDuration.WithLabelValues(stage))
}

// StageDone records the outcome of one stage execution.
func (t *Telemetry) StageDone(stage string, ok bool) {
	if t == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	t.stageTotal.WithLabelValues(stage, outcome).Inc()
}

// RateLimited counts a 429 for the given limiter scope.
func (t *Telemetry) RateLimited(scope string) {
	if t == nil {
		return
	}
	t.rateLimited.WithLabelValues(scope).Inc()
}

// SignalIngested counts one accepted signal.
func (t *Telemetry) SignalIngested() {
	if t == nil {
		return
	}
	t.signalsTotal.Inc()
}
