// Package metrics holds the Prometheus collectors of one host. Each host
// owns its own registry so several hosts can live in one process.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Request outcomes.
const (
	OutcomeOK            = "ok"
	OutcomeNotFound      = "not_found"
	OutcomeBindingFailed = "binding_failed"
	OutcomeFailed        = "failed"
	OutcomeRejected      = "rejected"
	OutcomeStatic        = "static"
)

// Collector provides host metrics. A nil *Collector records nothing.
type Collector struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	bindingFailures *prometheus.CounterVec
	taskRuns        *prometheus.CounterVec
	hookFailures    *prometheus.CounterVec
	journalDropped  prometheus.Counter
}

// NewCollector creates a collector under namespace ("opshost" when empty).
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "opshost"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Dispatched requests by route and outcome",
		},
		[]string{"route", "outcome"},
	)
	c.duration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from routing to response hand-off",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"route"},
	)
	c.bindingFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "binding_failures_total",
			Help:      "Requests rejected because a parameter could not be bound",
		},
		[]string{"route"},
	)
	c.taskRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "task_runs_total",
			Help:      "Background task ticks by task and outcome",
		},
		[]string{"task", "outcome"},
	)
	c.hookFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hooks",
			Name:      "failures_total",
			Help:      "Hook invocations that failed and were isolated",
		},
		[]string{"stage"},
	)
	c.journalDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "dropped_total",
			Help:      "Journal entries that were never stored",
		},
	)

	c.registry.MustRegister(
		c.requests,
		c.duration,
		c.bindingFailures,
		c.taskRuns,
		c.hookFailures,
		c.journalDropped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the underlying registry for additional collectors.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the collector in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveRequest records one dispatched request.
func (c *Collector) ObserveRequest(route, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(route, outcome).Inc()
	c.duration.WithLabelValues(route).Observe(elapsed.Seconds())
	if outcome == OutcomeBindingFailed {
		c.bindingFailures.WithLabelValues(route).Inc()
	}
}

// ObserveTask records one scheduler tick.
func (c *Collector) ObserveTask(task, outcome string) {
	if c == nil {
		return
	}
	c.taskRuns.WithLabelValues(task, outcome).Inc()
}

// HookFailed records an isolated hook failure.
func (c *Collector) HookFailed(stage string) {
	if c == nil {
		return
	}
	c.hookFailures.WithLabelValues(stage).Inc()
}

// JournalDropped records a dropped journal entry.
func (c *Collector) JournalDropped() {
	if c == nil {
		return
	}
	c.journalDropped.Inc()
}
