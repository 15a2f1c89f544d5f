// Package metrics registers the prometheus collectors the client state
// machine exposes: sync-fold latency, counts of changed rooms, and counts
// of dropped events. Registration follows dendrite's sync.Once-guarded
// prometheus.MustRegister convention (internal/httputil/rate_limiting.go)
// so importing this package twice in a test binary never panics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SyncFoldDuration records wall-clock time spent folding one sync
	// response into client state, labeled by outcome ("ok", "error").
	SyncFoldDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gomatrixbase",
			Subsystem: "client",
			Name:      "sync_fold_duration_seconds",
			Help:      "Time spent applying one sync response to client state.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	// RoomsChanged counts rooms reported as changed per sync fold,
	// labeled by bucket.
	RoomsChanged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gomatrixbase",
			Subsystem: "client",
			Name:      "rooms_changed_total",
			Help:      "Total number of rooms reported changed across sync folds.",
		},
		[]string{"bucket"},
	)

	// EventsDropped counts events that failed to deserialize and were
	// skipped rather than applied, labeled by reason ("deserialize").
	// Events that fail to decrypt are not dropped and not counted here.
	EventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gomatrixbase",
			Subsystem: "client",
			Name:      "events_dropped_total",
			Help:      "Total number of events skipped due to deserialization errors.",
		},
		[]string{"reason"},
	)
)

var registerOnce sync.Once

func init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(SyncFoldDuration, RoomsChanged, EventsDropped)
	})
}
