package query

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level metrics, registered once at import time, mirroring
// friggdb.go's promauto counter/histogram family (§1 "Deliberately OUT of
// scope... kept only as an opaque observation interface" — these are
// observations, never used for synchronization or control flow).
var (
	metricChoresRun = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "atombase",
		Name:      "query_chores_run_total",
		Help:      "Total number of (predicate, bin) chores executed.",
	})
	metricCancellations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "atombase",
		Name:      "query_cancellations_total",
		Help:      "Total number of times a query's cancellation token fired.",
	})
	metricQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "atombase",
		Name:      "query_duration_seconds",
		Help:      "Query wall-clock duration by kind (find/aggregate).",
		Buckets:   prometheus.ExponentialBuckets(.0005, 2, 12),
	}, []string{"kind"})
	metricSlotRingFull = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "atombase",
		Name:      "slotring_full_total",
		Help:      "Total number of SlotRing reservation overflows (fatal, cancels the query).",
	})
)

// QueryMetrics is a per-query observation bag shaped like friggdb.go's
// FindMetrics. The Driver neither fills nor returns it; per-query
// observations go to the package-level metrics above.
type QueryMetrics struct {
	ChoresRun     int64
	Cancellations int64
}
