package dashboard

import (
	"time"

	"github.com/ecocode-labs/logqueue/internal/coordinator"
)

// Service adapts a Coordinator's snapshots into the shapes the templates
// render. It never mutates coordinator state.
type Service struct {
	coordinator *coordinator.Coordinator
}

// NewService returns a Service backed by c.
func NewService(c *coordinator.Coordinator) *Service {
	return &Service{coordinator: c}
}

// ConsumerRow is one per-consumer row on the dashboard.
type ConsumerRow struct {
	ID        string
	Processed int
	Failed    int
	LastSeen  time.Time
}

// FailureRow is one entry in the recent-failures table.
type FailureRow struct {
	TaskID string
	Reason string
	Time   time.Time
}

// Overview is the combined stats+metrics view the index page renders.
type Overview struct {
	Submitted       int
	QueueDepth      int
	InFlight        int
	Completed       int
	Failed          int
	Retries         int
	ActiveConsumers int
	Backpressure    float64
	Healthy         bool
	PerConsumer     []ConsumerRow
	RecentFailures  []FailureRow
}

// GetOverview combines Stats and MetricsView into one rendering-friendly
// snapshot. Per spec.md §4.1, these two calls aren't mutually atomic; the
// dashboard is a diagnostic view, not a source of truth.
func (s *Service) GetOverview() Overview {
	stats := s.coordinator.Stats()
	metrics := s.coordinator.MetricsView()

	rows := make([]ConsumerRow, 0, len(stats.PerConsumer))
	for id, cc := range stats.PerConsumer {
		rows = append(rows, ConsumerRow{ID: id, Processed: cc.Processed, Failed: cc.Failed, LastSeen: cc.LastSeen})
	}

	failures := make([]FailureRow, 0, len(stats.Failures))
	for _, f := range stats.Failures {
		failures = append(failures, FailureRow{TaskID: f.TaskID, Reason: f.Reason, Time: f.Time})
	}

	return Overview{
		Submitted:       stats.Submitted,
		QueueDepth:      stats.QueueDepth,
		InFlight:        stats.InFlight,
		Completed:       stats.Completed,
		Failed:          stats.Failed,
		Retries:         stats.Retries,
		ActiveConsumers: metrics.ActiveConsumers,
		Backpressure:    metrics.Backpressure,
		Healthy:         s.coordinator.Health(),
		PerConsumer:     rows,
		RecentFailures:  failures,
	}
}
