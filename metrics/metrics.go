// Package metrics holds the Prometheus collectors of the service. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service collectors.
type Metrics struct {
	executions   *prometheus.CounterVec
	execDuration *prometheus.HistogramVec
	blocked      *prometheus.CounterVec
	imported     prometheus.Counter
	rateLimited  *prometheus.CounterVec
	events       *prometheus.CounterVec
	gatherer     prometheus.Gatherer
}

// New creates the collectors and registers them with reg. A nil reg uses a
// fresh private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "request_tree_executions_total",
				Help: "Executed requests by outcome",
			},
			[]string{"outcome"},
		),
		execDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "request_tree_execution_duration_seconds",
				Help:    "Duration of outbound request executions",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
			},
			[]string{"outcome"},
		),
		blocked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "request_tree_blocked_targets_total",
				Help: "Executions rejected by the outbound safety checks",
			},
			[]string{"reason"},
		),
		imported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "request_tree_imported_nodes_total",
			Help: "Nodes created by collection imports",
		}),
		rateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "request_tree_rate_limited_total",
				Help: "Requests rejected by the rate limiter",
			},
			[]string{"class"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "request_tree_events_total",
				Help: "Change events published",
			},
			[]string{"type"},
		),
		gatherer: reg,
	}
	reg.MustRegister(m.executions, m.execDuration, m.blocked, m.imported, m.rateLimited, m.events)
	return m
}

// ObserveExecution records one finished execution.
func (m *Metrics) ObserveExecution(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(outcome).Inc()
	m.execDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// Blocked records a rejected execution target.
func (m *Metrics) Blocked(reason string) {
	if m == nil {
		return
	}
	m.blocked.WithLabelValues(reason).Inc()
}

// Imported adds created nodes to the import counter.
func (m *Metrics) Imported(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.imported.Add(float64(n))
}

// RateLimited records a throttled request.
func (m *Metrics) RateLimited(class string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(class).Inc()
}

// Event records a published change event.
func (m *Metrics) Event(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
