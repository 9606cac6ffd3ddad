package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks schema cache hits
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docapi_schema_cache_hits_total",
			Help: "Total number of schema cache hits",
		},
	)

	// CacheMisses tracks schema cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docapi_schema_cache_misses_total",
			Help: "Total number of schema cache misses",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docapi_schema_cache_errors_total",
			Help: "Total number of schema cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
