package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(dispatchTotal, dispatchLatencyMs, dispatchQueueDepth)
}

var (
	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboard_dispatch_total",
			Help: "Outbound worker dispatches by outcome (delivered/failed/dropped).",
		},
		[]string{"outcome"},
	)

	dispatchLatencyMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "onboard_dispatch_latency_ms",
		Help:    "Time from enqueue to final dispatch outcome in milliseconds.",
		Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 15000},
	})

	dispatchQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "onboard_dispatch_queue_depth",
		Help: "Dispatches waiting in the outbound queue.",
	})
)

// ObserveDispatch records one dispatch outcome.
func ObserveDispatch(outcome string, elapsed time.Duration) {
	dispatchTotal.WithLabelValues(outcome).Inc()
	dispatchLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

// SetDispatchQueueDepth records the outbound queue length.
func SetDispatchQueueDepth(n int) { dispatchQueueDepth.Set(float64(n)) }
