// Package metrics holds the Prometheus collectors exported by a node.
//
// All recording methods are safe on a nil *Metrics so packages can run
// without instrumentation in tests and tools.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector registered by the node.
type Metrics struct {
	StoreWrites      *prometheus.CounterVec
	StoreQueueDepth  prometheus.Gauge
	EventsSkipped    *prometheus.CounterVec
	CatalogCommands  *prometheus.CounterVec
	Votes            *prometheus.CounterVec
	CatalogResources prometheus.Gauge
	SSEClients       prometheus.Gauge
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
	gatherer         prometheus.Gatherer
}

// New creates the collectors and registers them with reg.
// Pass prometheus.NewRegistry() in tests to avoid duplicate registration.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		StoreWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openbay_store_writes_total",
				Help: "Keyed store writes, by outcome (ok, failed, rejected).",
			},
			[]string{"result"},
		),
		StoreQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "openbay_store_write_queue_depth",
				Help: "Writes waiting for the store writer.",
			},
		),
		EventsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openbay_stream_events_skipped_total",
				Help: "Malformed change stream events ignored by a reducer.",
			},
			[]string{"reducer"},
		),
		CatalogCommands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openbay_catalog_commands_total",
				Help: "Catalog commands, by command and result code.",
			},
			[]string{"command", "result"},
		),
		Votes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openbay_votes_total",
				Help: "Votes issued by this node, by effect (up, down, retract).",
			},
			[]string{"effect"},
		),
		CatalogResources: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "openbay_catalog_resources",
				Help: "Records currently held by the resource index.",
			},
		),
		SSEClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "openbay_sse_clients",
				Help: "Connected event stream clients.",
			},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "openbay_api_request_duration_seconds",
				Help:    "HTTP request duration in seconds, by method and status.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "openbay_requests_in_flight",
				Help: "Number of HTTP requests currently being served.",
			},
		),
		gatherer: reg,
	}

	reg.MustRegister(
		m.StoreWrites,
		m.StoreQueueDepth,
		m.EventsSkipped,
		m.CatalogCommands,
		m.Votes,
		m.CatalogResources,
		m.SSEClients,
		m.RequestDuration,
		m.RequestsInFlight,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// WriteResult records the outcome of one store write.
func (m *Metrics) WriteResult(result string) {
	if m == nil {
		return
	}
	m.StoreWrites.WithLabelValues(result).Inc()
}

// QueueDepth records the current write queue length.
func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.StoreQueueDepth.Set(float64(n))
}

// EventSkipped counts a malformed event dropped by reducer.
func (m *Metrics) EventSkipped(reducer string) {
	if m == nil {
		return
	}
	m.EventsSkipped.WithLabelValues(reducer).Inc()
}

// Command counts a catalog command with its result code ("ok" on success).
func (m *Metrics) Command(command, result string) {
	if m == nil {
		return
	}
	m.CatalogCommands.WithLabelValues(command, result).Inc()
}

// Vote counts a vote effect.
func (m *Metrics) Vote(effect string) {
	if m == nil {
		return
	}
	m.Votes.WithLabelValues(effect).Inc()
}

// Resources records the resource index size.
func (m *Metrics) Resources(n int) {
	if m == nil {
		return
	}
	m.CatalogResources.Set(float64(n))
}

// SSEClientsDelta adjusts the connected client gauge.
func (m *Metrics) SSEClientsDelta(delta int) {
	if m == nil {
		return
	}
	m.SSEClients.Add(float64(delta))
}

// Middleware records request duration and in-flight count.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		m.RequestsInFlight.Inc()
		defer m.RequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		// Handlers that never write leave the implicit 200.
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestDuration.
			WithLabelValues(r.Method, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}
