// Package metrics exposes Prometheus collectors for the scrapper service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	poolSessionsInUse          prometheus.Gauge
	poolWaitSeconds            prometheus.Histogram
	cacheLookupsTotal          *prometheus.CounterVec
	cacheWritesTotal           *prometheus.CounterVec
	pipelineRunsTotal          *prometheus.CounterVec
	pipelineDurationSeconds    *prometheus.HistogramVec
	screenshotFallbacksTotal   prometheus.Counter
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"method", "route"},
		)

		poolSessionsInUse = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scrapper_pool_sessions_in_use",
				Help: "Number of browser sessions currently holding a pool slot.",
			},
		)

		poolWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scrapper_pool_wait_seconds",
				Help:    "Time spent waiting for a free session slot.",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60},
			},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrapper_cache_lookups_total",
				Help: "Cache lookups, labeled by result (hit, miss, error).",
			},
			[]string{"result"},
		)

		cacheWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrapper_cache_writes_total",
				Help: "Cache writes, labeled by status.",
			},
			[]string{"status"},
		)

		pipelineRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrapper_pipeline_runs_total",
				Help: "Page processing runs, labeled by endpoint and outcome.",
			},
			[]string{"endpoint", "status"},
		)

		pipelineDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scrapper_pipeline_duration_seconds",
				Help:    "Histogram of page processing durations, labeled by endpoint.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 120},
			},
			[]string{"endpoint"},
		)

		screenshotFallbacksTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scrapper_screenshot_fallbacks_total",
				Help: "Full-page screenshots that fell back to the viewport because the page was too large.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scrapper_rate_limit_delays_seconds",
				Help:    "Histogram of per-domain navigation pacing delays.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)

		routePattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			routePattern = rctx.RoutePattern()
		}
		ObserveHTTPRequest(r.Method, routePattern, rec.statusCode, time.Since(start))
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObservePoolAcquire records how long a caller waited for a session slot.
func ObservePoolAcquire(wait time.Duration) {
	Init()
	poolWaitSeconds.Observe(wait.Seconds())
	poolSessionsInUse.Inc()
}

// ObservePoolRelease marks a session slot as returned.
func ObservePoolRelease() {
	Init()
	poolSessionsInUse.Dec()
}

// ObserveCacheLookup counts a cache read by result ("hit", "miss" or "error").
func ObserveCacheLookup(result string) {
	Init()
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveCacheWrite counts a cache write by status ("ok" or "error").
func ObserveCacheWrite(status string) {
	Init()
	cacheWritesTotal.WithLabelValues(status).Inc()
}

// ObservePipeline records one page processing run.
func ObservePipeline(endpoint, status string, duration time.Duration) {
	Init()
	pipelineRunsTotal.WithLabelValues(endpoint, status).Inc()
	pipelineDurationSeconds.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// ObserveScreenshotFallback counts a viewport fallback capture.
func ObserveScreenshotFallback() {
	Init()
	screenshotFallbacksTotal.Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
