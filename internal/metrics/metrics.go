// Package metrics holds the Prometheus collectors for sync passes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sho7650/social-bridge/internal/core"
)

const namespace = "social_bridge"

// Metrics groups every collector. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	passes       *prometheus.CounterVec
	passDuration *prometheus.HistogramVec
	upserts      *prometheus.CounterVec
	errors       *prometheus.CounterVec
	contention   prometheus.Counter
	lastPass     prometheus.Gauge
}

// New registers the collectors on reg. A nil reg gets a fresh registry with
// the Go runtime and process collectors.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{
		registry: reg,
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_passes_total",
			Help:      "Orchestration passes by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		passDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_pass_duration_seconds",
			Help:      "Wall time of completed orchestration passes.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"trigger"}),
		upserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interactions_upserted_total",
			Help:      "Interaction upserts by platform and result.",
		}, []string{"platform", "result"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_errors_total",
			Help:      "Per-pair sync failures by platform and error kind.",
		}, []string{"platform", "kind"}),
		contention: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_lock_contention_total",
			Help:      "Passes rejected because another pass held the lock.",
		}),
		lastPass: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_pass_completed_timestamp_seconds",
			Help:      "Unix time the last orchestration pass completed.",
		}),
	}
	reg.MustRegister(m.passes, m.passDuration, m.upserts, m.errors, m.contention, m.lastPass)
	return m
}

// PassCompleted records a finished pass
func (m *Metrics) PassCompleted(trigger core.SyncTrigger, d time.Duration, at time.Time) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(string(trigger), "completed").Inc()
	m.passDuration.WithLabelValues(string(trigger)).Observe(d.Seconds())
	m.lastPass.Set(float64(at.Unix()))
}

// PassRejected records a pass refused by the lock
func (m *Metrics) PassRejected(trigger core.SyncTrigger) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(string(trigger), "rejected").Inc()
	m.contention.Inc()
}

// Upserted records one store upsert
func (m *Metrics) Upserted(platform string, result core.UpsertResult) {
	if m == nil {
		return
	}
	m.upserts.WithLabelValues(platform, string(result)).Inc()
}

// Failed records one per-pair failure
func (m *Metrics) Failed(platform string, kind core.ErrorKind) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(platform, string(kind)).Inc()
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
