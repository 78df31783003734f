package tokencache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks token cache hits by backend
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vectra_token_cache_hits_total",
			Help: "Total number of token cache hits",
		},
		[]string{"backend"}, // "file", "redis"
	)

	// CacheMisses tracks token cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vectra_token_cache_misses_total",
			Help: "Total number of token cache misses",
		},
	)

	// CacheErrors tracks token cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vectra_token_cache_errors_total",
			Help: "Total number of token cache operation errors",
		},
		[]string{"operation"}, // "read", "write"
	)
)
