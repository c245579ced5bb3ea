// Package metrics exposes Prometheus collectors for the HTTP API and DOI events.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MarcoPoloResearchLab/pubids/backend/internal/events"
)

const unmatchedRoute = "unmatched"

// Metrics owns a registry and the service collectors registered on it.
type Metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	eventsTotal     *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec
}

// New creates a registry with the Go and process collectors plus the
// service collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pubids_http_requests_total",
				Help: "HTTP requests handled, by method, route and status.",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pubids_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		eventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pubids_doi_events_total",
				Help: "DOI events published, by kind.",
			},
			[]string{"kind"},
		),
		eventsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pubids_doi_events_dropped_total",
				Help: "DOI events dropped because a subscriber buffer was full, by kind.",
			},
			[]string{"kind"},
		),
	}
}

// Middleware records request counts and latency. Routes are labelled with
// the matched route template to keep cardinality bounded.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := c.Request.Method
		m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// CountEvent is an events.Handler counting published events.
func (m *Metrics) CountEvent(_ context.Context, event events.Event) {
	m.eventsTotal.WithLabelValues(string(event.Kind)).Inc()
}

// CountDrop records an event dropped by the dispatcher.
func (m *Metrics) CountDrop(event events.Event) {
	m.eventsDropped.WithLabelValues(string(event.Kind)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
