// Package metrics exposes Prometheus collectors for HTTP traffic and forum
// operations. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operation outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeDenied = "denied"
	OutcomeError  = "error"
)

type Metrics struct {
	Registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	operations   *prometheus.CounterVec
	logins       *prometheus.CounterVec
	mediaDeletes *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "forum",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests handled.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "forum",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
			},
			[]string{"method", "route"},
		),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "forum",
				Subsystem: "content",
				Name:      "operations_total",
				Help:      "Content operations by outcome.",
			},
			[]string{"operation", "outcome"},
		),
		logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "forum",
				Subsystem: "auth",
				Name:      "logins_total",
				Help:      "Login attempts by result.",
			},
			[]string{"result"},
		),
		mediaDeletes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "forum",
				Subsystem: "media",
				Name:      "deletes_total",
				Help:      "Best-effort media file deletions by result.",
			},
			[]string{"result"},
		),
	}
	m.Registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.operations,
		m.logins,
		m.mediaDeletes,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Operation counts one content operation with its outcome.
func (m *Metrics) Operation(name, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(name, outcome).Inc()
}

// OperationCounter exposes the counter behind Operation for inspection.
func (m *Metrics) OperationCounter(name, outcome string) prometheus.Counter {
	return m.operations.WithLabelValues(name, outcome)
}

// Login counts one login attempt.
func (m *Metrics) Login(success bool) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(strconv.FormatBool(success)).Inc()
}

// MediaDelete counts one best-effort file removal.
func (m *Metrics) MediaDelete(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.mediaDeletes.WithLabelValues(result).Inc()
}

// Instrument records request counts and latency per chi route pattern.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
