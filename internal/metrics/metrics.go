// Package metrics provides Prometheus metrics for the oasis server.
package metrics

import (
	"context"
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
			Name: "oasis_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oasis_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Content delivery metrics
	contentBytesDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oasis_content_bytes_delivered_total",
			Help: "Total bytes streamed to clients",
		},
		[]string{"mode"},
	)

	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oasis_deliveries_total",
			Help: "Total content deliveries by mode (full, partial) and outcome",
		},
		[]string{"mode", "status"},
	)

	// Tree access metrics
	searchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "oasis_search_duration_seconds",
			Help:    "Time spent walking the tree for a search",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
	)

	searchResults = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "oasis_search_results",
			Help:    "Number of entries returned by a search",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	searchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oasis_searches_total",
			Help: "Total searches by outcome",
		},
		[]string{"status"},
	)

	pathRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oasis_path_rejections_total",
			Help: "Client paths rejected for escaping the storage root or being malformed",
		},
	)

	// Sharing metrics
	shareLinksIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oasis_share_links_issued_total",
			Help: "Total share links issued",
		},
	)

	shareVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oasis_share_verifications_total",
			Help: "Total share link verifications",
		},
		[]string{"result"},
	)

	// Auth metrics
	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oasis_auth_attempts_total",
			Help: "Total authentication attempts",
		},
		[]string{"result"},
	)

	// Database metrics
	dbConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "oasis_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	// Admission metrics
	rateLimitHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oasis_rate_limit_hits_total",
			Help: "Total rate limit rejections (429s)",
		},
		[]string{"scope"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordDelivery records a finished content delivery.
func RecordDelivery(mode string, bytes int64, success bool) {
	contentBytesDelivered.WithLabelValues(mode).Add(float64(bytes))
	deliveriesTotal.WithLabelValues(mode, status(success)).Inc()
}

// RecordSearch records a search walk.
func RecordSearch(duration time.Duration, results int, success bool) {
	searchDuration.Observe(duration.Seconds())
	if success {
		searchResults.Observe(float64(results))
	}
	searchesTotal.WithLabelValues(status(success)).Inc()
}

// RecordPathRejection records a rejected client path.
func RecordPathRejection() {
	pathRejectionsTotal.Inc()
}

// RecordShareIssued records an issued share link.
func RecordShareIssued() {
	shareLinksIssued.Inc()
}

// RecordShareVerification records a share link check.
func RecordShareVerification(valid bool) {
	result := "valid"
	if !valid {
		result = "invalid"
	}
	shareVerificationsTotal.WithLabelValues(result).Inc()
}

// RecordAuthAttempt records an authentication attempt.
func RecordAuthAttempt(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// SetDBConnectionsOpen sets the number of open database connections.
func SetDBConnectionsOpen(count int) {
	dbConnectionsOpen.Set(float64(count))
}

// RecordRateLimitHit records a rate limit rejection for scope ("user", "share").
func RecordRateLimitHit(scope string) {
	rateLimitHitsTotal.WithLabelValues(scope).Inc()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
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

type routeKey struct{}

// SetRoute labels the current request with its route pattern. Handlers call
// it so metrics never use raw client paths as label values.
func SetRoute(ctx context.Context, pattern string) {
	if p, ok := ctx.Value(routeKey{}).(*string); ok {
		*p = pattern
	}
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		route := "unmatched"
		r = r.WithContext(context.WithValue(r.Context(), routeKey{}, &route))
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, route, rw.statusCode, time.Since(start))
	})
}
