// Package metrics exposes gateway counters on the default prometheus
// registry, served under /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueuedTotal counts submissions captured into the durable queue.
	QueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ageo_edge_queued_total",
		Help: "Submissions captured into the offline queue.",
	})

	// SyncedTotal counts records acknowledged by the portal and removed.
	SyncedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ageo_edge_synced_total",
		Help: "Queued submissions delivered and removed.",
	})

	// SyncFailuresTotal counts per-record replay failures.
	SyncFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ageo_edge_sync_failures_total",
		Help: "Replay attempts that failed and left the record queued.",
	})

	// QueuePending tracks the number of records awaiting sync.
	QueuePending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ageo_edge_queue_pending",
		Help: "Records currently awaiting sync.",
	})

	// CacheHits counts cache hits by resource class.
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ageo_edge_cache_hits_total",
		Help: "Responses served from the cache.",
	}, []string{"class"})

	// CacheMisses counts cache misses by resource class.
	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ageo_edge_cache_misses_total",
		Help: "Requests not satisfiable from the cache.",
	}, []string{"class"})
)
