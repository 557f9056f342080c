package middleware

import (
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector holds the process-wide request counters. One instance is
// created at startup and shared by the request pipeline and the /metrics
// endpoint; counters are atomics and never reset.
type MetricsCollector struct {
	requests  atomic.Int64
	errors    atomic.Int64
	latencyMs atomic.Int64

	logger   *slog.Logger
	registry *prometheus.Registry
}

// MetricsSnapshot is a point-in-time read of the collector. Averages and
// rates are zero when no requests have completed.
type MetricsSnapshot struct {
	RequestsTotal int64
	ErrorsTotal   int64
	AvgLatencyMs  float64
	ErrorRate     float64
}

func NewMetricsCollector(logger *slog.Logger) *MetricsCollector {
	c := &MetricsCollector{logger: logger}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "requests_total",
		Help: "Total HTTP requests completed.",
	}, func() float64 { return float64(c.requests.Load()) }))
	reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Total HTTP requests completed with a server error status.",
	}, func() float64 { return float64(c.errors.Load()) }))
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "avg_latency_ms",
		Help: "Mean request latency in milliseconds since start.",
	}, func() float64 { return c.Snapshot().AvgLatencyMs }))
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "error_rate",
		Help: "Fraction of requests that completed with a server error.",
	}, func() float64 { return c.Snapshot().ErrorRate }))
	c.registry = reg

	return c
}

// Record finalizes one request. Called exactly once per request from the
// middleware's deferred completion path.
func (c *MetricsCollector) Record(status int, elapsed time.Duration) {
	c.requests.Add(1)
	c.latencyMs.Add(elapsed.Milliseconds())
	if status >= http.StatusInternalServerError {
		c.errors.Add(1)
	}
}

func (c *MetricsCollector) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		RequestsTotal: c.requests.Load(),
		ErrorsTotal:   c.errors.Load(),
	}
	if s.RequestsTotal > 0 {
		s.AvgLatencyMs = float64(c.latencyMs.Load()) / float64(s.RequestsTotal)
		s.ErrorRate = float64(s.ErrorsTotal) / float64(s.RequestsTotal)
	}
	return s
}

// Handler serves the text exposition of the four series on GET /metrics.
func (c *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Middleware wraps every request: starts the timer, captures the final
// status, and on completion records counters and emits one structured log
// line. Runs outermost so the admission and timeout responses are counted
// too.
func (c *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			elapsed := time.Since(start)
			c.Record(rec.status, elapsed)
			c.logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", elapsed.Milliseconds(),
				"request_id", chimw.GetReqID(r.Context()),
			)
		}()
		next.ServeHTTP(rec, r)
	})
}

// statusRecorder captures the status code written by inner layers.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}
