package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// UnmatchedRoute is the path label for requests that matched no route. Raw
// URLs are never used as labels; scanners would blow up the series count.
const UnmatchedRoute = "<unmatched>"

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// No status label on latency.
	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// Clinic payloads are small JSON documents; lists top out well below 1MiB.
	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Size of HTTP responses in bytes.",
			Buckets: prometheus.ExponentialBuckets(128, 4, 8), // 128B..2MiB
		},
		[]string{"method", "path"},
	)

	// errorsTotal is fed by Responder.Respond, labelled by error kind name
	// (ValidationError, ConflictError, ...) and status code.
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of error responses by kind and status.",
		},
		[]string{"kind", "status"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize, errorsTotal)
}

// Metrics instruments every request with Prometheus counters and histograms
// labelled by method and registered route (e.g. /api/v1/appointments/:id/cancel).
// Serve the registry with promhttp.Handler on /metrics.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		method := c.Request.Method
		path := routeLabel(c)
		status := strconv.Itoa(c.Writer.Status())

		httpReqs.WithLabelValues(method, path, status).Inc()
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}

func routeLabel(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return UnmatchedRoute
}
