// Package metrics exposes the API's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tableEdits      *prometheus.CounterVec
}

// New registers every collector on a private registry so tests can build
// as many instances as they like.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jobboard",
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status.",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "jobboard",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		tableEdits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jobboard",
				Name:      "table_edits_total",
				Help:      "Confirmed table builder sessions by field and outcome.",
			},
			[]string{"field", "outcome"},
		),
	}
	m.registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.tableEdits,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// TableEdit counts one table builder outcome. Dropped requests have no field.
func (m *Metrics) TableEdit(field, outcome string) {
	if field == "" {
		field = "none"
	}
	m.tableEdits.WithLabelValues(field, outcome).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
