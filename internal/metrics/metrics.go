// Package metrics exposes the gateway's Prometheus metrics. A Collector owns
// its own registry so tests and multiple servers never share state.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "chargemap"

// Collector records HTTP, fetch, requery, cache and session metrics.
type Collector struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	FetchesTotal    *prometheus.CounterVec
	FetchDuration   prometheus.Histogram
	ViewportsTotal  *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
	ActiveSessions  prometheus.Gauge
}

// New creates a Collector registered on a fresh registry, along with the Go
// runtime and process collectors.
func New(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		FetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chargesite_fetches_total",
			Help:      "Charge site fetches by outcome (success, timeout, error).",
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chargesite_fetch_duration_seconds",
			Help:      "Charge site fetch latency, cache hits included.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		ViewportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "viewport_updates_total",
			Help:      "Viewport updates by whether they triggered a requery.",
		}, []string{"requeried"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "site_cache_lookups_total",
			Help:      "Site cache lookups by result (hit, miss).",
		}, []string{"result"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Map sessions held in memory.",
		}),
	}

	c.registry.MustRegister(
		c.RequestsTotal,
		c.RequestDuration,
		c.FetchesTotal,
		c.FetchDuration,
		c.ViewportsTotal,
		c.CacheLookups,
		c.ActiveSessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RecordRequest records one HTTP request.
func (c *Collector) RecordRequest(method, route, status string, duration time.Duration) {
	c.RequestsTotal.WithLabelValues(method, route, status).Inc()
	c.RequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveFetch records a completed fetch.
func (c *Collector) ObserveFetch(outcome string, duration time.Duration) {
	c.FetchesTotal.WithLabelValues(outcome).Inc()
	c.FetchDuration.Observe(duration.Seconds())
}

// ObserveViewport records a requery decision.
func (c *Collector) ObserveViewport(requeried bool) {
	c.ViewportsTotal.WithLabelValues(strconv.FormatBool(requeried)).Inc()
}

// ObserveCache records a cache lookup.
func (c *Collector) ObserveCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.CacheLookups.WithLabelValues(result).Inc()
}

// SetActiveSessions sets the live session gauge.
func (c *Collector) SetActiveSessions(n int) {
	c.ActiveSessions.Set(float64(n))
}
