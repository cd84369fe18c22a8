package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "slurp"

// Metrics holds the counters shared by the pipeline, hub and sinks.
type Metrics struct {
	RecordsParsed   prometheus.Counter
	BlockErrors     *prometheus.CounterVec
	TruncatedBlocks prometheus.Counter
	SinkWrites      *prometheus.CounterVec
	SinkFailures    *prometheus.CounterVec
	HubDropped      prometheus.Counter
}

// New registers the metrics with reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RecordsParsed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_parsed_total",
			Help:      "Total number of records built from complete blocks.",
		}),
		BlockErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "block_errors_total",
			Help:      "Total number of blocks rejected, by kind.",
		}, []string{"kind"}),
		TruncatedBlocks: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "truncated_blocks_total",
			Help:      "Total number of inputs that ended inside a block.",
		}),
		SinkWrites: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_writes_total",
			Help:      "Total number of records handed to a sink.",
		}, []string{"sink"}),
		SinkFailures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_failures_total",
			Help:      "Total number of records a sink failed to deliver.",
		}, []string{"sink"}),
		HubDropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hub_dropped_total",
			Help:      "Total number of records dropped for slow lossy subscribers.",
		}),
	}
}
