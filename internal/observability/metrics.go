package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tonus_api",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests processed, labeled by route, method and status.",
	}, []string{"route", "method", "status"})
	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tonus_api",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
	snapshotReplaceCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tonus_api",
		Subsystem: "attributes",
		Name:      "snapshot_replacements_total",
		Help:      "Completed replace-all snapshot writes, labeled by resource.",
	}, []string{"resource"})
)

func init() {
	prometheus.MustRegister(requestCounter, requestDuration, snapshotReplaceCounter)
}

// RecordSnapshotReplaced counts a committed replace-all write for a resource.
func RecordSnapshotReplaced(resource string) {
	snapshotReplaceCounter.WithLabelValues(resource).Inc()
}

// RequestMetrics returns gin middleware observing request counts and latency.
func RequestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		requestCounter.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler exposes the prometheus scrape endpoint as a gin handler.
func MetricsHandler() gin.HandlerFunc {
	handler := promhttp.Handler()
	return func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}
