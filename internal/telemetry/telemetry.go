// Package telemetry exposes Prometheus metrics for the fetch pipeline.
package telemetry

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_attempts_total",
			Help: "Total backend fetch attempts, labeled by backend and outcome.",
		},
		[]string{"backend", "outcome"},
	)

	fetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_requests_total",
			Help: "Total orchestrated fetch requests, labeled by result.",
		},
		[]string{"result"},
	)

	cacheOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_cache_ops_total",
			Help: "Cache operations, labeled by tier and result.",
		},
		[]string{"tier", "op", "result"},
	)

	rateLimitDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fetch_rate_limit_delay_seconds",
			Help:    "Histogram of admission wait durations per domain.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)

	rateAdjustmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_rate_adjustments_total",
			Help: "Adaptive rate changes, labeled by domain and direction.",
		},
		[]string{"domain", "direction"},
	)

	selectorDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_selector_decisions_total",
			Help: "Backend selection decisions, labeled by backend and matching rule.",
		},
		[]string{"backend", "rule"},
	)

	activeFetches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fetch_active_requests",
			Help: "Number of fetch orchestrations currently in flight.",
		},
	)

	bytesFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_bytes_total",
			Help: "Total number of bytes fetched, labeled by domain.",
		},
		[]string{"domain"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fetch_http_request_duration_seconds",
			Help:    "API request latency, labeled by method, route and status.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Handler returns the standard Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SanitizeDomain extracts a safe hostname label from a URL or host string.
func SanitizeDomain(raw string) string {
	if !strings.HasPrefix(raw, "http") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveAttempt records one backend attempt.
func ObserveAttempt(backend, outcome string) {
	fetchAttemptsTotal.WithLabelValues(backend, outcome).Inc()
}

// ObserveRequest records one orchestrated request result
// (hit, fetched, exhausted, invalid).
func ObserveRequest(result string) {
	fetchRequestsTotal.WithLabelValues(result).Inc()
}

// ObserveCacheOp records a cache get/set/delete per tier.
func ObserveCacheOp(tier, op, result string) {
	cacheOpsTotal.WithLabelValues(tier, op, result).Inc()
}

// ObserveRateLimitDelay records the duration of an admission wait.
func ObserveRateLimitDelay(domain string, d time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(SanitizeDomain(domain)).Observe(d.Seconds())
}

// ObserveRateAdjustment records an adaptive rate change ("up" or "down").
func ObserveRateAdjustment(domain, direction string) {
	rateAdjustmentsTotal.WithLabelValues(SanitizeDomain(domain), direction).Inc()
}

// ObserveSelection records which rule picked which backend.
func ObserveSelection(backend, rule string) {
	selectorDecisionsTotal.WithLabelValues(backend, rule).Inc()
}

// ObserveBytes records payload size for a completed fetch.
func ObserveBytes(domain string, n int) {
	if n > 0 {
		bytesFetchedTotal.WithLabelValues(SanitizeDomain(domain)).Add(float64(n))
	}
}

// ObserveHTTPRequest records an API request's latency.
func ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	httpRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// IncActiveFetches increments the in-flight gauge.
func IncActiveFetches() { activeFetches.Inc() }

// DecActiveFetches decrements the in-flight gauge.
func DecActiveFetches() { activeFetches.Dec() }
