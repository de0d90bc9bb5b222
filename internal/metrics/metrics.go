// Package metrics provides Prometheus metrics for the appdrop server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appdrop_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "appdrop_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Download proxy metrics
	downloadBytesStreamed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "appdrop_download_bytes_streamed_total",
			Help: "Total bytes streamed to download clients",
		},
	)

	downloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appdrop_downloads_total",
			Help: "Total number of proxied downloads",
		},
		[]string{"status"},
	)

	// Release resolver metrics
	resolveTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appdrop_release_resolve_total",
			Help: "Release asset resolution attempts",
		},
		[]string{"outcome"},
	)

	resolveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "appdrop_release_resolve_duration_seconds",
			Help:    "Release API resolution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Catalog metrics
	catalogRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appdrop_catalog_refreshes_total",
			Help: "Catalog refresh operations",
		},
		[]string{"status"},
	)

	catalogEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "appdrop_catalog_entries",
			Help: "Number of applications in the loaded catalog",
		},
	)

	// Storage metrics
	storageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "appdrop_storage_operation_duration_seconds",
			Help:    "Backing store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	storageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appdrop_storage_operations_total",
			Help: "Total backing store operations",
		},
		[]string{"operation", "status"},
	)

	// Module registry metrics
	moduleInitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appdrop_module_inits_total",
			Help: "Backing module initializations by view",
		},
		[]string{"view", "status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDownload records a proxied download.
func RecordDownload(bytes int64, success bool) {
	downloadBytesStreamed.Add(float64(bytes))
	status := "success"
	if !success {
		status = "error"
	}
	downloadsTotal.WithLabelValues(status).Inc()
}

// RecordResolve records a release resolution attempt.
// Outcome is "matched", "fallback", or "error".
func RecordResolve(outcome string, duration time.Duration) {
	resolveTotal.WithLabelValues(outcome).Inc()
	resolveDuration.Observe(duration.Seconds())
}

// RecordCatalogRefresh records a catalog refresh.
func RecordCatalogRefresh(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	catalogRefreshesTotal.WithLabelValues(status).Inc()
}

// SetCatalogEntries sets the number of applications in the loaded catalog.
func SetCatalogEntries(count int) {
	catalogEntries.Set(float64(count))
}

// RecordStorageOperation records a backing store operation.
func RecordStorageOperation(operation string, duration time.Duration, success bool) {
	storageOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	status := "success"
	if !success {
		status = "error"
	}
	storageOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordModuleInit records a backing module initialization.
func RecordModuleInit(view string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	moduleInitsTotal.WithLabelValues(view, status).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}
