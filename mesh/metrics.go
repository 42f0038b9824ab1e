package mesh

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports coordinator counters and gauges to a Prometheus
// registry. Optional: a coordinator without metrics skips all updates.
type Metrics struct {
	LiveNodes        prometheus.Gauge
	InboundTransfers prometheus.Gauge

	TransfersCompleted prometheus.Counter
	TransfersFailed    *prometheus.CounterVec

	ChunksSent       prometheus.Counter
	ChunksReceived   prometheus.Counter
	HeartbeatsSent   prometheus.Counter
	EnvelopesDropped prometheus.Counter
}

// NewMetrics registers relay metrics with the given registerer
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		LiveNodes: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "meshrelay",
			Name:      "live_nodes",
			Help:      "Peers currently in the routing table.",
		}),
		InboundTransfers: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "meshrelay",
			Name:      "inbound_transfers",
			Help:      "In-flight inbound reassemblies.",
		}),
		TransfersCompleted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "meshrelay",
			Name:      "transfers_completed_total",
			Help:      "Transfers reassembled and verified.",
		}),
		TransfersFailed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "meshrelay",
			Name:      "transfers_failed_total",
			Help:      "Transfers declared failed, by reason.",
		}, []string{"reason"}),
		ChunksSent: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "meshrelay",
			Name:      "chunks_sent_total",
			Help:      "Chunks dispatched across forwarding paths.",
		}),
		ChunksReceived: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "meshrelay",
			Name:      "chunks_received_total",
			Help:      "Chunks accepted from the radio.",
		}),
		HeartbeatsSent: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "meshrelay",
			Name:      "heartbeats_sent_total",
			Help:      "Heartbeats broadcast.",
		}),
		EnvelopesDropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "meshrelay",
			Name:      "envelopes_dropped_total",
			Help:      "Inbound envelopes dropped as malformed or unknown.",
		}),
	}
}
