package updates

import "github.com/prometheus/client_golang/prometheus"

var (
	// updatesEnqueued counts every update accepted into a queue.
	updatesEnqueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_updates_enqueued_total",
			Help: "Total number of updates added to per-bot queues.",
		},
	)

	// queueDepth tracks the summed depth of all per-bot queues. Bot ids are
	// deliberately not a label to keep cardinality fixed.
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_update_queue_depth",
			Help: "Current number of queued updates across all bots.",
		},
	)
)

func init() {
	prometheus.MustRegister(updatesEnqueued, queueDepth)
}
