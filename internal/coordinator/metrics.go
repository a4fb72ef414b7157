package coordinator

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds all Prometheus metrics exposed by the coordinator.
type Metrics struct {
	tasksSubmitted *prometheus.CounterVec
	tasksCompleted prometheus.Counter
	tasksFailed    prometheus.Counter
	tasksRequeued  prometheus.Counter

	queueDepth        prometheus.Gauge
	inFlightGauge     prometheus.Gauge
	activeConsumers   prometheus.Gauge
	backpressureGauge prometheus.Gauge

	getWorkDuration prometheus.Histogram
	monitorDuration prometheus.Histogram
}

// NewMetrics creates and registers the coordinator's Prometheus metrics
// against the given registerer, so multiple coordinators in-process (as in
// tests) don't collide on the global default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tasksSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logqueue_tasks_submitted_total",
				Help: "Total number of log records submitted",
			},
			[]string{"level"},
		),
		tasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "logqueue_tasks_completed_total",
			Help: "Total number of tasks completed",
		}),
		tasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "logqueue_tasks_failed_total",
			Help: "Total number of tasks failed (including retry exhaustion)",
		}),
		tasksRequeued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "logqueue_tasks_requeued_total",
			Help: "Total number of timeout-driven requeues",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "logqueue_backlog_depth",
			Help: "Current number of tasks awaiting assignment",
		}),
		inFlightGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "logqueue_in_flight",
			Help: "Current number of tasks assigned to a consumer",
		}),
		activeConsumers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "logqueue_active_consumers",
			Help: "Number of distinct consumers seen on get_work or a terminal status in the last 30 seconds",
		}),
		backpressureGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "logqueue_backpressure",
			Help: "Backlog depth divided by active consumer count",
		}),
		getWorkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "logqueue_get_work_duration_seconds",
			Help:    "Time spent handling get_work requests",
			Buckets: prometheus.DefBuckets,
		}),
		monitorDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "logqueue_monitor_tick_duration_seconds",
			Help:    "Time spent per monitor loop tick",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.tasksSubmitted,
		m.tasksCompleted,
		m.tasksFailed,
		m.tasksRequeued,
		m.queueDepth,
		m.inFlightGauge,
		m.activeConsumers,
		m.backpressureGauge,
		m.getWorkDuration,
		m.monitorDuration,
	)

	return m
}
