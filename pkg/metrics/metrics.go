// Package metrics exposes the Prometheus registry netpager metrics live in.
// The metrics themselves are defined next to the code that records them
// (pagination, listing, client, ratelimit) and registered through promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all netpager metrics are registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer reads the metrics registered with Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registered metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Paging Metrics (pkg/pagination):
//   - netpager_page_loads_total{load, result} (Counter): finished loads; load is initial or after, result is success, transport or server
//   - netpager_page_load_duration_seconds{load} (Histogram): fetch latency
//   - netpager_retries_total (Counter): failed loads replayed by RetryAllFailed
//   - netpager_invalidations_total (Counter): invalidated fetchers
//
// Listing Metrics (pkg/listing):
//   - netpager_fetchers_created_total (Counter): fetchers created by factories
//   - netpager_stale_results_total{load} (Counter): results dropped because their fetcher was replaced
//   - netpager_items_loaded_total (Counter): items committed to listings
//
// Request Metrics (pkg/client):
//   - netpager_client_requests_total{status} (Counter): requests by HTTP status, network_error or rate_limited
//   - netpager_client_request_duration_seconds (Histogram): request duration
//   - netpager_client_errors_total{class} (Counter): errors by class
//   - netpager_client_retries_total{error_class} (Counter): transport retries
//   - netpager_client_retry_backoff_seconds{error_class} (Histogram): backoff before a retry
//   - netpager_client_retry_exhausted_total{error_class} (Counter): fetches that used up their retries
//
// Rate Limit Metrics (pkg/ratelimit):
//   - netpager_ratelimit_remaining (Gauge): requests left in the window
//   - netpager_ratelimit_blocks_total (Counter): requests blocked on an exhausted budget
//   - netpager_ratelimit_throttles_total (Counter): requests delayed on a low budget
//
// Example Prometheus Queries:
//
//   # Failed load ratio
//   sum(rate(netpager_page_loads_total{result!="success"}[5m])) /
//   sum(rate(netpager_page_loads_total[5m]))
//
//   # P95 page latency
//   histogram_quantile(0.95, rate(netpager_page_load_duration_seconds_bucket[5m]))
//
//   # Budget running low
//   netpager_ratelimit_remaining < 20
