// Package metrics holds all Prometheus metrics for the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Settlement cycle results reported on the cycle counter.
const (
	ResultSettled      = "settled"
	ResultEmpty        = "empty"
	ResultPrecondition = "precondition_violated"
	ResultProofError   = "proof_error"
	ResultStale        = "stale_commitment"
	ResultError        = "error"
)

// Metrics aggregates every instrument the service exposes.
type Metrics struct {
	ActionsAppended  prometheus.Counter
	PendingActions   prometheus.Gauge
	GuardRejections  *prometheus.CounterVec
	SettlementCycles *prometheus.CounterVec
	ActionsSettled   prometheus.Counter
	SettleDuration   prometheus.Histogram
	ProveDuration    prometheus.Histogram
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
}

// New creates and registers all Prometheus metrics on the default registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers all metrics on reg. Tests pass a fresh registry so
// repeated construction never panics on duplicate registration.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActionsAppended: factory.NewCounter(prometheus.CounterOpts{
			Name: "zkns_actions_appended_total",
			Help: "Total pending actions appended to the log",
		}),
		PendingActions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "zkns_pending_actions",
			Help: "Actions currently waiting for settlement",
		}),
		GuardRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zkns_guard_rejections_total",
			Help: "Mutating calls rejected by guard checks, by reason",
		}, []string{"reason"}),
		SettlementCycles: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zkns_settlement_cycles_total",
			Help: "Settlement attempts by result",
		}, []string{"result"}),
		ActionsSettled: factory.NewCounter(prometheus.CounterOpts{
			Name: "zkns_actions_settled_total",
			Help: "Actions folded into an accepted commitment",
		}),
		SettleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "zkns_settlement_duration_seconds",
			Help:    "Wall time of full settlement cycles",
			Buckets: prometheus.DefBuckets,
		}),
		ProveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "zkns_prove_duration_seconds",
			Help:    "Wall time spent in the proof backend",
			Buckets: prometheus.DefBuckets,
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "zkns_resolve_cache_hits_total",
			Help: "Resolve reads served from the cache",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "zkns_resolve_cache_misses_total",
			Help: "Resolve reads that fell through to the state store",
		}),
	}
}
