package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jobmate/swipe-service/internal/events"
)

// Metrics holds the HTTP and decision collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	decisions   *prometheus.CounterVec
	rateLimited prometheus.Counter
	received    *prometheus.CounterVec
	gatherer    prometheus.Gatherer
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swipe",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "swipe",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swipe",
			Name:      "decisions_total",
			Help:      "Seeker decisions by action and outcome.",
		}, []string{"action", "outcome"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swipe",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-user rate limiter.",
		}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swipe",
			Name:      "events_received_total",
			Help:      "Events received from the Redis subscription by type.",
		}, []string{"type"}),
		gatherer: reg,
	}
	reg.MustRegister(m.requests, m.latency, m.decisions, m.rateLimited, m.received)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) observe(route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.latency.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) decision(action, outcome string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) limited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// EventReceived counts e by type. It has the events.Handler signature so
// it can be passed to events.Subscribe.
func (m *Metrics) EventReceived(_ context.Context, e events.Event) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(e.Type).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records the status code and latency of every call to next.
func (h *Handler) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	if h.metrics == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next(rec, r)
		h.metrics.observe(route, rec.code, time.Since(start))
	}
}
