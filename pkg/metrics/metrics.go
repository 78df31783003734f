// Package metrics provides the central Prometheus registry reference for the
// host export tool. Metrics are defined in their respective packages (auth,
// client, tokencache) to maintain modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the exporter.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - vectra_requests_total{endpoint, status} (Counter): Total requests by endpoint and HTTP status
//   - vectra_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - vectra_errors_total{class} (Counter): Errors by class (network, auth, rate_limit, server, client)
//
// Retry Metrics (pkg/client):
//   - vectra_retries_total{error_class} (Counter): Retry attempts by error class
//   - vectra_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - vectra_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Token Metrics (pkg/auth, pkg/tokencache):
//   - vectra_token_exchanges_total{grant, outcome} (Counter): Token endpoint calls
//   - vectra_token_cache_hits_total{backend} (Counter): Token cache hits
//   - vectra_token_cache_misses_total (Counter): Token cache misses
//   - vectra_token_cache_errors_total{operation} (Counter): Token cache operation errors
//
// Example Prometheus Queries:
//
//   # Retry rate by class
//   rate(vectra_retries_total[5m])
//
//   # Token cache hit rate
//   sum(rate(vectra_token_cache_hits_total[5m])) /
//   (sum(rate(vectra_token_cache_hits_total[5m])) + sum(rate(vectra_token_cache_misses_total[5m])))
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(vectra_request_duration_seconds_bucket[5m]))
