// Package metrics provides Prometheus metrics for the archive server and indexer.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docarchive_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docarchive_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Index builder metrics
	indexBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docarchive_index_build_duration_seconds",
			Help:    "Time to walk the archive root and write the manifest",
			Buckets: prometheus.DefBuckets,
		},
	)

	indexFilesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docarchive_index_files",
			Help: "Number of PDF files in the last built manifest",
		},
	)

	// Manifest metrics
	manifestLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docarchive_manifest_loads_total",
			Help: "Manifest loads by result",
		},
		[]string{"result"},
	)

	manifestEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docarchive_manifest_entries",
			Help: "Number of entries in the currently served manifest",
		},
	)

	// Metadata overlay metrics
	metadataWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docarchive_metadata_writes_total",
			Help: "Fire-and-forget metadata writes by result",
		},
		[]string{"result"},
	)

	metadataStoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docarchive_metadata_store_duration_seconds",
			Help:    "Metadata store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	// Browser model metrics
	viewComputations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docarchive_view_computations_total",
			Help: "Derived archive views computed",
		},
	)

	// Preview metrics
	previewRendersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docarchive_preview_renders_total",
			Help: "Preview renders by result (ok, error, cancelled)",
		},
		[]string{"result"},
	)

	previewRenderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docarchive_preview_render_duration_seconds",
			Help:    "Preview render duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	previewCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docarchive_preview_cache_total",
			Help: "Preview cache lookups by result (hit, miss)",
		},
		[]string{"result"},
	)

	// Auth metrics
	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docarchive_auth_attempts_total",
			Help: "Total authentication attempts",
		},
		[]string{"result"},
	)

	// S3 metrics
	s3OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docarchive_s3_operation_duration_seconds",
			Help:    "S3 operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	s3OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docarchive_s3_operations_total",
			Help: "Total S3 operations",
		},
		[]string{"operation", "status"},
	)

	// Event metrics
	eventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docarchive_event_subscribers",
			Help: "Number of active browser event subscribers",
		},
	)

	eventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docarchive_events_published_total",
			Help: "Total browser events published by type",
		},
		[]string{"type"},
	)

	eventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docarchive_events_dropped_total",
			Help: "Events not delivered to a subscriber whose buffer was full",
		},
		[]string{"type"},
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

// RecordIndexBuild records a finished manifest build.
func RecordIndexBuild(files int, duration time.Duration) {
	indexBuildDuration.Observe(duration.Seconds())
	indexFilesTotal.Set(float64(files))
}

// RecordManifestLoad records a manifest load and the resulting entry count.
func RecordManifestLoad(entries int, success bool) {
	if !success {
		manifestLoadsTotal.WithLabelValues("error").Inc()
		return
	}
	manifestLoadsTotal.WithLabelValues("success").Inc()
	manifestEntries.Set(float64(entries))
}

// RecordMetadataWrite records the outcome of a background metadata write.
func RecordMetadataWrite(success bool) {
	result := "success"
	if !success {
		result = "error"
	}
	metadataWritesTotal.WithLabelValues(result).Inc()
}

// RecordMetadataStoreOp records a metadata store operation duration.
func RecordMetadataStoreOp(backend, operation string, duration time.Duration) {
	metadataStoreDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordViewComputation counts a derived view recomputation.
func RecordViewComputation() {
	viewComputations.Inc()
}

// RecordPreviewRender records a preview render outcome.
func RecordPreviewRender(result string, duration time.Duration) {
	previewRendersTotal.WithLabelValues(result).Inc()
	previewRenderDuration.Observe(duration.Seconds())
}

// RecordPreviewCache records a preview cache lookup.
func RecordPreviewCache(hit bool) {
	result := "hit"
	if !hit {
		result = "miss"
	}
	previewCacheTotal.WithLabelValues(result).Inc()
}

// RecordAuthAttempt records an authentication attempt.
func RecordAuthAttempt(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordS3Operation records an S3 operation.
func RecordS3Operation(operation string, duration time.Duration, success bool) {
	s3OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	status := "success"
	if !success {
		status = "error"
	}
	s3OperationsTotal.WithLabelValues(operation, status).Inc()
}

// SetEventSubscribers sets the number of active event subscribers.
func SetEventSubscribers(count int64) {
	eventSubscribers.Set(float64(count))
}

// RecordEvent records a published browser event.
func RecordEvent(eventType string) {
	eventsPublishedTotal.WithLabelValues(eventType).Inc()
}

// RecordEventDropped records an event a slow subscriber missed.
func RecordEventDropped(eventType string) {
	eventsDroppedTotal.WithLabelValues(eventType).Inc()
}

// routeLabel collapses static file paths so the path label stays bounded.
func routeLabel(path string) string {
	if strings.HasPrefix(path, "/api/") || path == "/healthz" {
		return path
	}
	return "static"
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
		RecordHTTPRequest(r.Method, routeLabel(r.URL.Path), rw.statusCode, time.Since(start))
	})
}
