package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// httpReqs counts requests by HTTP verb, route group, and status code.
	// The bot route collapses to a single label value so tokens never
	// become label cardinality.
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	// httpLat records request duration in seconds by verb and route group.
	// Status is omitted to keep histogram cardinality low.
	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat)
}

// Metrics instruments requests with Prometheus counters and latencies.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := routeGroup(r.URL.Path)
		httpReqs.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
		httpLat.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func routeGroup(path string) string {
	switch {
	case strings.HasPrefix(path, "/bot"):
		return "/bot"
	case path == "/", path == "/healthz", path == "/metrics":
		return path
	default:
		return "other"
	}
}
