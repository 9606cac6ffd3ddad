// Package metrics exposes the Prometheus registry shared by all packages.
// Metrics are defined next to the code that updates them (docapi, cache,
// pagination, export, ratelimit, server) and registered via promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Gatherer is the default Prometheus gatherer that promauto metrics register with.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Remote calls (pkg/docapi):
//   - docapi_requests_total{operation, status} (Counter)
//   - docapi_request_duration_seconds{operation} (Histogram)
//   - docapi_errors_total{class} (Counter): client, server, auth, network
//   - docapi_throttle_wait_seconds (Histogram): outbound throttle wait
//
// Schema cache (pkg/cache):
//   - docapi_schema_cache_hits_total (Counter)
//   - docapi_schema_cache_misses_total (Counter)
//   - docapi_schema_cache_errors_total{operation} (Counter)
//
// Strategies (pkg/pagination):
//   - docapi_export_batches{strategy} (Histogram): batches per run
//   - docapi_export_stops_total{strategy, reason} (Counter)
//
// Exports (pkg/export):
//   - docapi_exports_total{version, strategy, outcome} (Counter)
//   - docapi_export_duration_seconds{version} (Histogram)
//   - docapi_export_fallbacks_total (Counter): V1 scroll to windowed
//   - docapi_export_truncated_total{strategy} (Counter)
//
// Inbound rate limiting (pkg/ratelimit):
//   - docapi_rate_limit_decisions_total{operation, decision} (Counter)
//   - docapi_rate_limit_backend_errors_total (Counter)
//
// HTTP (internal/server):
//   - docapi_http_requests_total{route, status} (Counter)
//   - docapi_http_request_duration_seconds{route} (Histogram)
//
// Example Prometheus Queries:
//
//   # Fallback rate
//   rate(docapi_export_fallbacks_total[5m]) / sum(rate(docapi_exports_total{version="v1"}[5m]))
//
//   # Truncated exports by strategy
//   sum by (strategy) (rate(docapi_export_truncated_total[1h]))
//
//   # P95 remote latency
//   histogram_quantile(0.95, sum by (le, operation) (rate(docapi_request_duration_seconds_bucket[5m])))
//
//   # Schema cache hit rate
//   rate(docapi_schema_cache_hits_total[5m]) /
//   (rate(docapi_schema_cache_hits_total[5m]) + rate(docapi_schema_cache_misses_total[5m]))
