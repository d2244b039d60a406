package farm

import "github.com/prometheus/client_golang/prometheus"

// Metrics instruments the reward engine's operations.
type Metrics struct {
	opsTotal    *prometheus.CounterVec
	opDuration  *prometheus.HistogramVec
	mintedTotal prometheus.Counter
}

// NewMetrics creates and registers the engine's metrics. A nil registry
// yields metrics that are collected nowhere but still safe to record into.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		opsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yieldfarm",
			Subsystem: "engine",
			Name:      "ops_total",
			Help:      "State-changing operations processed, by operation.",
		}, []string{"op"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "yieldfarm",
			Subsystem: "engine",
			Name:      "op_duration_seconds",
			Help:      "Duration of state-changing operations, by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		mintedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "yieldfarm",
			Subsystem: "engine",
			Name:      "reward_minted_total",
			Help:      "Reward tokens minted, in whole token units.",
		}),
	}
	if registry != nil {
		registry.MustRegister(m.opsTotal, m.opDuration, m.mintedTotal)
	}
	return m
}
