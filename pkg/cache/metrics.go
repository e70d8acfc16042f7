package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by kind ("fresh", "stale")
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_cache_hits_total",
			Help: "Total number of response cache hits",
		},
		[]string{"kind"},
	)

	// CacheMisses tracks lookups that found no usable entry
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fetch_cache_misses_total",
			Help: "Total number of response cache misses",
		},
	)

	// CacheWrites tracks successful responses written to the cache
	CacheWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fetch_cache_writes_total",
			Help: "Total number of response cache writes",
		},
	)

	// CacheEntries tracks the number of entries held across all stores
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fetch_cache_entries",
			Help: "Current number of entries in the response cache",
		},
	)
)
