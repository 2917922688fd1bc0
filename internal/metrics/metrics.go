// Package metrics exposes Prometheus counters for the station's activity.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	passesPredicted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aptstation_passes_predicted_total",
			Help: "Total number of passes returned by prediction runs.",
		},
	)

	capturesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aptstation_captures_total",
			Help: "Total number of capture sessions by satellite and outcome.",
		},
		[]string{"satellite", "outcome"},
	)

	captureBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aptstation_capture_bytes_total",
			Help: "Total bytes of audio recorded.",
		},
	)

	variantsDecoded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aptstation_variants_decoded_total",
			Help: "Total decoder invocations by variant kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	forwardsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aptstation_forwards_total",
			Help: "Total display forwarding attempts by outcome.",
		},
		[]string{"outcome"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aptstation_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aptstation_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

func init() {
	prometheus.MustRegister(
		passesPredicted,
		capturesTotal,
		captureBytes,
		variantsDecoded,
		forwardsTotal,
		httpRequestsTotal,
		httpDurationSeconds,
	)
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// PassesPredicted adds n to the prediction counter.
func PassesPredicted(n int) {
	passesPredicted.Add(float64(n))
}

// CaptureFinished records one capture session's outcome and size.
func CaptureFinished(satellite string, ok bool, sizeBytes int64) {
	capturesTotal.WithLabelValues(satellite, outcome(ok)).Inc()
	if sizeBytes > 0 {
		captureBytes.Add(float64(sizeBytes))
	}
}

// VariantDecoded records one decoder invocation.
func VariantDecoded(kind string, ok bool) {
	variantsDecoded.WithLabelValues(kind, outcome(ok)).Inc()
}

// ForwardAttempted records one display transfer attempt.
func ForwardAttempted(ok bool) {
	forwardsTotal.WithLabelValues(outcome(ok)).Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		httpRequestsTotal.WithLabelValues(r.URL.Path, r.Method, strconv.Itoa(rw.statusCode)).Inc()
		httpDurationSeconds.WithLabelValues(r.URL.Path, r.Method).Observe(time.Since(start).Seconds())
	})
}
