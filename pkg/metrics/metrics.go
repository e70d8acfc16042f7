// Package metrics exposes the Prometheus registry the fetch packages register
// into, and the HTTP handler that serves it.
//
// All metrics are defined in their respective packages (client, cache,
// ratelimit) and registered via promauto on the default registerer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the fetch client.
var Registry = prometheus.DefaultRegisterer

// Names lists every metric family the fetch packages register.
var Names = []string{
	// pkg/client
	"fetch_requests_total",
	"fetch_request_duration_seconds",
	"fetch_attempts_total",
	"fetch_errors_total",
	"fetch_retries_total",
	"fetch_retry_backoff_seconds",
	"fetch_retry_exhausted_total",

	// pkg/cache
	"fetch_cache_hits_total",
	"fetch_cache_misses_total",
	"fetch_cache_writes_total",
	"fetch_cache_entries",

	// pkg/ratelimit
	"fetch_ratelimit_remaining",
	"fetch_ratelimit_blocks_total",
	"fetch_ratelimit_throttles_total",
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - fetch_requests_total{outcome} (Counter): Logical calls by outcome
//     (fresh_hit, network, stale, failure, auth_error)
//   - fetch_request_duration_seconds{outcome} (Histogram): Logical call duration
//   - fetch_attempts_total{result} (Counter): Network attempts
//     (success, http_error, transport_error, blocked)
//   - fetch_errors_total{class} (Counter): Failed attempts by class
//     (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - fetch_retries_total{error_class} (Counter): Retries by error class
//   - fetch_retry_backoff_seconds{error_class} (Histogram): Backoff waits
//   - fetch_retry_exhausted_total{error_class} (Counter): Calls that used every attempt
//
// Cache Metrics (pkg/cache):
//   - fetch_cache_hits_total{kind} (Counter): Hits by kind (fresh, stale)
//   - fetch_cache_misses_total (Counter): Lookups without a fresh entry
//   - fetch_cache_writes_total (Counter): Successful responses stored
//   - fetch_cache_entries (Gauge): Entries held across all stores
//
// Rate Limit Metrics (pkg/ratelimit):
//   - fetch_ratelimit_remaining (Gauge): Last advertised upstream budget
//   - fetch_ratelimit_blocks_total (Counter): Attempts blocked locally
//   - fetch_ratelimit_throttles_total (Counter): Attempts delayed locally
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(fetch_cache_hits_total{kind="fresh"}[5m])) /
//   (sum(rate(fetch_cache_hits_total{kind="fresh"}[5m])) + sum(rate(fetch_cache_misses_total[5m])))
//
//   # Stale Fallback Rate
//   rate(fetch_requests_total{outcome="stale"}[5m]) / rate(fetch_requests_total[5m])
//
//   # P95 Call Latency
//   histogram_quantile(0.95, rate(fetch_request_duration_seconds_bucket[5m]))
