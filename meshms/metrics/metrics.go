// Package metrics registers the prometheus counters the synchroniser
// and discovery passes update.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters one meshms instance updates across
// discovery and synchroniser passes.
type Metrics struct {
	SyncPasses      prometheus.Counter
	SyncClean       prometheus.Counter
	SyncDirty       prometheus.Counter
	Gazumped        prometheus.Counter
	StoreInconsist  prometheus.Counter
	DiscoveryRows   prometheus.Counter
	// PlyRecordsRead is registered and exposed, but no ply reader
	// increments it.
	PlyRecordsRead  prometheus.Counter
}

// New registers a fresh set of counters against reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics
// handler.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SyncPasses: factory.NewCounter(prometheus.CounterOpts{
			Name: "meshms_sync_passes_total",
			Help: "Synchroniser passes completed, across all conversations.",
		}),
		SyncClean: factory.NewCounter(prometheus.CounterOpts{
			Name: "meshms_sync_clean_total",
			Help: "Conversations synced with nothing new to acknowledge.",
		}),
		SyncDirty: factory.NewCounter(prometheus.CounterOpts{
			Name: "meshms_sync_dirty_total",
			Help: "Conversations synced with cursor state that changed.",
		}),
		Gazumped: factory.NewCounter(prometheus.CounterOpts{
			Name: "meshms_gazumped_total",
			Help: "Append or rewrite attempts that lost a version race.",
		}),
		StoreInconsist: factory.NewCounter(prometheus.CounterOpts{
			Name: "meshms_store_inconsistent_total",
			Help: "Append or rewrite attempts the store reported as inconsistent.",
		}),
		DiscoveryRows: factory.NewCounter(prometheus.CounterOpts{
			Name: "meshms_discovery_rows_total",
			Help: "Manifest rows merged into the conversation index by discovery.",
		}),
		PlyRecordsRead: factory.NewCounter(prometheus.CounterOpts{
			Name: "meshms_ply_records_read_total",
			Help: "Records read backwards from any ply by a reader in this process.",
		}),
	}
}
