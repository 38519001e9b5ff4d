// Package telemetry exposes Prometheus metrics for the acquisition pipeline.
package telemetry

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permit_fetch_attempts_total",
			Help: "Total fetch attempts, labeled by site and outcome.",
		},
		[]string{"site", "outcome"},
	)

	fetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "permit_fetch_duration_seconds",
			Help:    "Histogram of fetch attempt latencies, labeled by site.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"site"},
	)

	breakerTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permit_breaker_transitions_total",
			Help: "Circuit breaker state transitions, labeled by breaker and new state.",
		},
		[]string{"breaker", "state"},
	)

	breakerShortCircuitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permit_breaker_short_circuits_total",
			Help: "Calls rejected while a breaker was open.",
		},
		[]string{"breaker"},
	)

	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permit_cache_lookups_total",
			Help: "Cache lookups, labeled by cache name and hit/miss.",
		},
		[]string{"cache", "result"},
	)

	rateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "permit_rate_limit_delay_seconds",
			Help:    "Histogram of rate limit wait durations, labeled by system.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"system"},
	)

	supplementationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permit_ai_supplementations_total",
			Help: "AI supplementation attempts, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	fallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "permit_fallback_results_total",
			Help: "Lookups that resolved to the canned fallback dataset.",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests served, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of served HTTP request latencies.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
		},
		[]string{"method", "route"},
	)
)

// SanitizeSite extracts a lowercase hostname for use as a metric label.
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

// ObserveFetchAttempt records one fetch attempt and its latency.
func ObserveFetchAttempt(site, outcome string, duration time.Duration) {
	s := SanitizeSite(site)
	fetchAttemptsTotal.WithLabelValues(s, outcome).Inc()
	fetchDurationSeconds.WithLabelValues(s).Observe(duration.Seconds())
}

// ObserveBreakerTransition records a breaker state change.
func ObserveBreakerTransition(name, state string) {
	breakerTransitionsTotal.WithLabelValues(name, state).Inc()
}

// ObserveBreakerShortCircuit records a fail-fast rejection.
func ObserveBreakerShortCircuit(name string) {
	breakerShortCircuitsTotal.WithLabelValues(name).Inc()
}

// ObserveCacheLookup records a cache hit or miss.
func ObserveCacheLookup(cacheName string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(cacheName, result).Inc()
}

// ObserveRateLimitDelay records how long an admission waited.
func ObserveRateLimitDelay(system string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(system).Observe(duration.Seconds())
}

// ObserveSupplementation records an AI supplementation outcome.
func ObserveSupplementation(outcome string) {
	supplementationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveFallback records a lookup that degraded to the canned dataset.
func ObserveFallback() {
	fallbacksTotal.Inc()
}

// Handler returns the standard Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			routePattern = rctx.RoutePattern()
		}
		httpRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(ww.statusCode)).Inc()
		httpRequestDurationSeconds.WithLabelValues(r.Method, routePattern).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}
