package pool

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus metrics exposed by the consumer pool: the
// same worker-gauge shape as the teacher's internal/orchestrator/metrics.go
// (workersActive/workersCapacity/workersTotal), generalized to this pool's
// autoscale-driven size instead of a fixed worker count.
type Metrics struct {
	poolSize   prometheus.Gauge
	minSize    prometheus.Gauge
	maxSize    prometheus.Gauge
	scaleUps   prometheus.Counter
	scaleDowns prometheus.Counter
}

// NewMetrics creates and registers the pool's Prometheus metrics against
// reg, mirroring internal/coordinator/metrics.go's per-instance registry
// pattern so tests never collide on the global default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		poolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "logqueue_pool_size",
			Help: "Current number of live consumers in the pool",
		}),
		minSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "logqueue_pool_min_size",
			Help: "Configured autoscaler minimum pool size",
		}),
		maxSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "logqueue_pool_max_size",
			Help: "Configured autoscaler maximum pool size",
		}),
		scaleUps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "logqueue_pool_scale_ups_total",
			Help: "Total number of autoscaler scale-up actions",
		}),
		scaleDowns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "logqueue_pool_scale_downs_total",
			Help: "Total number of autoscaler scale-down actions",
		}),
	}

	reg.MustRegister(m.poolSize, m.minSize, m.maxSize, m.scaleUps, m.scaleDowns)
	return m
}
