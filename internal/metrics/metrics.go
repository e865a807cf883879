// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	harvesterPagesTotal             *prometheus.CounterVec
	harvesterBytesTotal             *prometheus.CounterVec
	harvesterFetchAttemptsTotal     *prometheus.CounterVec
	harvesterFetchDurationSeconds   *prometheus.HistogramVec
	harvesterRetryBackoffSeconds    *prometheus.HistogramVec
	harvesterSavesTotal             *prometheus.CounterVec
	harvesterArchivesTotal          *prometheus.CounterVec
	harvesterActiveWorkers          prometheus.Gauge
	harvesterRateLimitDelaysSeconds *prometheus.HistogramVec
	httpRequestsTotal               *prometheus.CounterVec
	httpRequestDurationSeconds      *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		harvesterPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_pages_total",
				Help: "Total number of URLs processed, labeled by site and outcome.",
			},
			[]string{"site", "status"},
		)

		harvesterBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_bytes_total",
				Help: "Total number of markup bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		harvesterFetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_fetch_attempts_total",
				Help: "Total fetch attempts, labeled by transport mode and outcome.",
			},
			[]string{"mode", "outcome"},
		)

		harvesterFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_fetch_duration_seconds",
				Help:    "Histogram of single fetch attempt latencies, labeled by mode.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"mode"},
		)

		harvesterRetryBackoffSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_retry_backoff_seconds",
				Help:    "Histogram of waits between failed fetch attempts.",
				Buckets: []float64{1, 2, 4, 6, 8, 10, 20},
			},
			[]string{"mode"},
		)

		harvesterSavesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_saves_total",
				Help: "Total output files written, labeled by format and status.",
			},
			[]string{"format", "status"},
		)

		harvesterArchivesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_archives_total",
				Help: "Total archive deliveries, labeled by archiver and status.",
			},
			[]string{"archiver", "status"},
		)

		harvesterActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_active_workers",
				Help: "Number of workers currently processing a URL.",
			},
		)

		harvesterRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
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

// ObservePage records the final outcome of one URL.
func ObservePage(rawURL, status string, bytesFetched int) {
	Init()
	site := SanitizeSite(rawURL)
	harvesterPagesTotal.WithLabelValues(site, status).Inc()
	if bytesFetched > 0 {
		harvesterBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveFetchAttempt records one transport attempt.
func ObserveFetchAttempt(mode, outcome string, duration time.Duration) {
	Init()
	harvesterFetchAttemptsTotal.WithLabelValues(mode, outcome).Inc()
	harvesterFetchDurationSeconds.WithLabelValues(mode).Observe(duration.Seconds())
}

// ObserveRetryBackoff records a wait between attempts.
func ObserveRetryBackoff(mode string, wait time.Duration) {
	Init()
	harvesterRetryBackoffSeconds.WithLabelValues(mode).Observe(wait.Seconds())
}

// ObserveSave records an output file write.
func ObserveSave(format, status string) {
	Init()
	harvesterSavesTotal.WithLabelValues(format, status).Inc()
}

// ObserveArchive records a secondary sink delivery.
func ObserveArchive(archiver, status string) {
	Init()
	harvesterArchivesTotal.WithLabelValues(archiver, status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	harvesterActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	harvesterActiveWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	harvesterRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
