package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/EcommerceGo/taxonomy/internal/store"
)

var (
	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taxonomy_gateway_fetches_total",
			Help: "Upstream fetches by operation and result",
		},
		[]string{"op", "result"},
	)

	fetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taxonomy_gateway_fetch_duration_seconds",
			Help:    "Duration of upstream fetches in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	sharedWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taxonomy_gateway_shared_waits_total",
			Help: "Callers that received a fetch result shared with other callers",
		},
		[]string{"op"},
	)

	discardedResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taxonomy_gateway_discarded_results_total",
			Help: "Fetch results dropped because every caller had gone away",
		},
		[]string{"op"},
	)

	staleResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taxonomy_gateway_stale_results_total",
			Help: "Fetch results skipped because a local write touched the same data while they were in flight",
		},
		[]string{"op"},
	)

	lookupCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taxonomy_gateway_lookup_cache_total",
			Help: "Lookup cache reads by operation and outcome",
		},
		[]string{"op", "outcome"},
	)
)

// RegisterStoreMetrics exposes the size of st on reg.
func RegisterStoreMetrics(reg prometheus.Registerer, st *store.Store) error {
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "taxonomy_store_nodes",
			Help: "Categories held in the local store",
		}, func() float64 { return float64(st.Stats().Nodes) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "taxonomy_store_known_buckets",
			Help: "Parents whose children have been fetched",
		}, func() float64 { return float64(st.Stats().Buckets) }),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
