package planning

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reconciliationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backoffice_reconciliations_total",
		Help: "Number of weekly submission reconciliations computed",
	})

	reconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "backoffice_reconcile_duration_seconds",
		Help:    "Time spent fetching rows and reconciling a week",
		Buckets: prometheus.DefBuckets,
	})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_cache_lookups_total",
		Help: "Cache lookups by cache name and result (hit, miss, expired, stale_set)",
	}, []string{"cache", "result"})

	amendmentTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_amendment_transitions_total",
		Help: "Amendment status changes by target status",
	}, []string{"to"})

	syncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_hierarchy_sync_runs_total",
		Help: "Hierarchy sync runs by outcome",
	}, []string{"status"})
)
