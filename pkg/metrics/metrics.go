// Package metrics exposes the service's Prometheus instruments.
//
// Counters:
//   - shramsaathi_http_requests_total{method,route,status}
//   - shramsaathi_application_transitions_total{status}
//   - shramsaathi_acceptance_conflicts_total
//   - shramsaathi_cascade_rejections_total{result}
//   - shramsaathi_chat_messages_persisted_total
//   - shramsaathi_realtime_messages_published_total{kind}
//
// Histogram: shramsaathi_http_request_duration_seconds{method,route}.
// Gauge: shramsaathi_realtime_connections.
//
// Every method is safe on a nil *Collector so components can run without metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the registered instruments.
type Collector struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpLatency   *prometheus.HistogramVec
	transitions   *prometheus.CounterVec
	conflicts     prometheus.Counter
	cascades      *prometheus.CounterVec
	chatPersisted prometheus.Counter
	realtimeConns prometheus.Gauge
	realtimeSent  *prometheus.CounterVec
}

// NewCollector registers every instrument on a fresh registry together with
// the Go runtime and process collectors.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shramsaathi_http_requests_total",
			Help: "Total number of HTTP requests served",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shramsaathi_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shramsaathi_application_transitions_total",
			Help: "Application status transitions, by resulting status",
		}, []string{"status"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shramsaathi_acceptance_conflicts_total",
			Help: "Acceptances refused because another application was already accepted",
		}),
		cascades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shramsaathi_cascade_rejections_total",
			Help: "Pending siblings processed after an acceptance",
		}, []string{"result"}),
		chatPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shramsaathi_chat_messages_persisted_total",
			Help: "Chat messages stored",
		}),
		realtimeConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shramsaathi_realtime_connections",
			Help: "Open realtime websocket connections",
		}),
		realtimeSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shramsaathi_realtime_messages_published_total",
			Help: "Messages fanned out over the realtime hub, by kind",
		}, []string{"kind"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.httpRequests,
		c.httpLatency,
		c.transitions,
		c.conflicts,
		c.cascades,
		c.chatPersisted,
		c.realtimeConns,
		c.realtimeSent,
	)
	return c
}

// Registry exposes the underlying registry, mostly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (c *Collector) RecordTransition(status string) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(status).Inc()
}

func (c *Collector) RecordConflict() {
	if c == nil {
		return
	}
	c.conflicts.Inc()
}

// RecordCascade counts sibling rejections; failed ones are labelled separately.
func (c *Collector) RecordCascade(rejected, failed int) {
	if c == nil {
		return
	}
	c.cascades.WithLabelValues("rejected").Add(float64(rejected))
	c.cascades.WithLabelValues("failed").Add(float64(failed))
}

func (c *Collector) RecordChatPersisted() {
	if c == nil {
		return
	}
	c.chatPersisted.Inc()
}

func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.realtimeConns.Inc()
}

func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.realtimeConns.Dec()
}

func (c *Collector) RecordPublished(kind string) {
	if c == nil {
		return
	}
	c.realtimeSent.WithLabelValues(kind).Inc()
}
