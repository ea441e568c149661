package atombase

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine-level metrics, mirroring friggdb.go's package-level promauto
// family (metricBlockListPollTotal et al.).
var (
	metricInsertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "atombase",
		Name:      "inserts_total",
		Help:      "Total number of successful acquire_insert_buffer/release_insert_buffer pairs.",
	}, []string{"collection"})
	metricReleaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "atombase",
		Name:      "release_errors_total",
		Help:      "Total number of release_insert_buffer calls that failed to find the pointer's bin.",
	}, []string{"collection"})
	metricCollectionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "atombase",
		Name:      "collections",
		Help:      "Number of collections currently registered with the engine.",
	})
	metricQueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "atombase",
		Name:      "queries_total",
		Help:      "Total number of query_find/query_aggregate calls by outcome.",
	}, []string{"kind", "outcome"})
)
