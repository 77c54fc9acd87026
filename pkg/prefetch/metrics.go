package prefetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	hits       prometheus.Counter
	misses     prometheus.Counter
	expired    prometheus.Counter
	compactions prometheus.Counter
	forcedRetires prometheus.Counter
	disconnects prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &metrics{
		hits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pagestore_smgr",
			Subsystem: "prefetch",
			Name:      "hits_total",
			Help:      "Number of reads served from an already-registered prefetch slot.",
		}),
		misses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pagestore_smgr",
			Subsystem: "prefetch",
			Name:      "misses_total",
			Help:      "Number of reads that required registering a fresh slot.",
		}),
		expired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pagestore_smgr",
			Subsystem: "prefetch",
			Name:      "expired_total",
			Help:      "Number of slots discarded because their effective LSN was too stale to reuse.",
		}),
		compactions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pagestore_smgr",
			Subsystem: "prefetch",
			Name:      "compactions_total",
			Help:      "Number of times the ring's received window was compacted.",
		}),
		forcedRetires: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pagestore_smgr",
			Subsystem: "prefetch",
			Name:      "forced_retires_total",
			Help:      "Number of times registering a new slot force-retired the oldest slot because the ring was full.",
		}),
		disconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pagestore_smgr",
			Subsystem: "prefetch",
			Name:      "disconnects_total",
			Help:      "Number of times HandleDisconnect was invoked.",
		}),
	}
}
