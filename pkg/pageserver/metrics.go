package pageserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	sendRetries   prometheus.Counter
	disconnects   prometheus.Counter
	circuitTrips  prometheus.Counter
	bytesSent     prometheus.Counter
	bytesReceived prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &metrics{
		sendRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pagestore_smgr",
			Subsystem: "pageserver",
			Name:      "send_retries_total",
			Help:      "Number of times Send retried because the transport's outbound buffer rejected the write.",
		}),
		disconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pagestore_smgr",
			Subsystem: "pageserver",
			Name:      "disconnects_total",
			Help:      "Number of times the transport reported a disconnect.",
		}),
		circuitTrips: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pagestore_smgr",
			Subsystem: "pageserver",
			Name:      "circuit_breaker_trips_total",
			Help:      "Number of times the client's circuit breaker opened.",
		}),
		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pagestore_smgr",
			Subsystem: "pageserver",
			Name:      "bytes_sent_total",
			Help:      "Total request bytes handed to the transport.",
		}),
		bytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pagestore_smgr",
			Subsystem: "pageserver",
			Name:      "bytes_received_total",
			Help:      "Total response bytes read from the transport.",
		}),
	}
}
