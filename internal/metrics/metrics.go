package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RotationsTotal counts refresh rotations by outcome: rotated,
	// cache_hit, expired, malformed, not_found, error.
	RotationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_rotations_total",
		Help: "Refresh token rotations by outcome.",
	}, []string{"outcome"})

	SessionCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_session_cache_hits_total",
		Help: "Session lookups served from the cache.",
	})

	SessionCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_session_cache_misses_total",
		Help: "Session lookups that fell through to the principal store.",
	})
)
