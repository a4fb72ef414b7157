// Package coordinator implements the pull-based work queue core: the
// backlog, the in-flight table, the payload store, the request handlers
// that mutate them, and the monitor loop that detects stalled consumers
// and requeues their work.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ecocode-labs/logqueue/pkg/tasks"
)

// ErrUnknownStatus is returned when a status update names a status value
// outside {in_progress, completed, failed}.
var ErrUnknownStatus = errors.New("coordinator: unknown status value")

// consumerCounters are the coordinator's per-consumer view: processed and
// failed counts, derived from terminal status reports, and the time the
// consumer was last seen on get_work or a terminal report. These exist
// alongside (not instead of) the consumer-pool's own counters, and are used
// for the stats snapshot's per_consumer breakdown.
type consumerCounters struct {
	Processed int       `json:"processed"`
	Failed    int       `json:"failed"`
	LastSeen  time.Time `json:"last_seen"`
}

// Coordinator owns the Backlog, in-flight table, and payload store, and
// serves the six request handlers defined in spec.md §4.1. All mutation of
// shared state happens under mu — a single coarse lock is sufficient at the
// throughput this system targets (spec.md §4.2).
type Coordinator struct {
	mu sync.Mutex

	backlog  *backlog
	queued   map[string]*tasks.Task // metadata for ids currently sitting in backlog
	inFlight map[string]*tasks.Task
	payloads map[string]*tasks.LogRecord

	perConsumer map[string]*consumerCounters

	submitted int
	completed int
	failed    int
	retries   int

	config   *Config
	metrics  *Metrics
	failures *failureRing
	registry *prometheus.Registry

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Coordinator with its own Prometheus registry so multiple
// instances (as in tests) never collide on metric names.
func New(config *Config, reg *prometheus.Registry) *Coordinator {
	if config == nil {
		config = DefaultConfig()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &Coordinator{
		backlog:     newBacklog(),
		queued:      make(map[string]*tasks.Task),
		inFlight:    make(map[string]*tasks.Task),
		payloads:    make(map[string]*tasks.LogRecord),
		perConsumer: make(map[string]*consumerCounters),
		config:      config,
		metrics:     NewMetrics(reg),
		failures:    newFailureRing(config.FailureRingSize),
		registry:    reg,
	}
}

// Registry returns the Prometheus registry this coordinator registers its
// metrics against, so cmd/coordinator can expose it on the metrics port.
func (c *Coordinator) Registry() *prometheus.Registry {
	return c.registry
}

// newTaskID renders a 128-bit random value as a hexadecimal string, per
// spec.md §3's recommended task id format.
func newTaskID() string {
	u := uuid.New()
	return fmt.Sprintf("%x", u[:])
}

// Start launches the background monitor loop. It returns once the loop has
// been scheduled; call Stop to shut it down.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.monitorLoop(ctx)
}

// Stop cancels the monitor loop and waits for it to exit.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.done != nil {
		<-c.done
	}
}

// Submit creates a new Task in state QUEUED from record, appends it to the
// backlog tail, and stores the payload. It never rejects for capacity.
func (c *Coordinator) Submit(record tasks.LogRecord) (string, error) {
	if record.Message == "" {
		return "", errors.New("coordinator: record message must not be empty")
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	id := newTaskID()
	task := &tasks.Task{
		ID:        id,
		State:     tasks.StateQueued,
		CreatedAt: time.Now(),
	}

	c.mu.Lock()
	if ok := c.backlog.pushTail(id); !ok {
		c.mu.Unlock()
		if !c.config.NoDebugAsserts {
			panic(fmt.Sprintf("coordinator: duplicate task id %s generated", id))
		}
		return "", fmt.Errorf("coordinator: duplicate task id %s", id)
	}
	c.queued[id] = task
	c.payloads[id] = &record
	c.submitted++
	c.mu.Unlock()

	c.metrics.tasksSubmitted.WithLabelValues(record.Level).Inc()
	slog.Info("task submitted", "event", "task_submitted", "task_id", id, "source", record.Source, "level", record.Level)

	return id, nil
}

// GetWork pops the head of the backlog (if any), assigns it to consumerID,
// and moves it into the in-flight table. At most one consumer can receive
// any given task id between assignment and its next terminal or requeue
// event — the lock around backlog+inFlight guarantees that.
func (c *Coordinator) GetWork(consumerID string, weight float64, currentLoad int) (hasWork bool, taskID string, payload *tasks.LogRecord) {
	start := time.Now()
	defer func() { c.metrics.getWorkDuration.Observe(time.Since(start).Seconds()) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.backlog.popHead()
	if !ok {
		return false, "", nil
	}

	now := time.Now()
	task := c.queued[id]
	delete(c.queued, id)
	if task == nil {
		// Should never happen: every backlog id has a queued metadata entry.
		task = &tasks.Task{ID: id, CreatedAt: now}
	}
	task.State = tasks.StateInProgress
	task.Assignee = consumerID
	task.AssignedAt = now
	task.LastHeartbeat = now
	c.inFlight[id] = task

	record := c.payloads[id]

	c.touchConsumer(consumerID)

	slog.Info("work assigned", "event", "work_assigned", "task_id", id, "consumer_id", consumerID, "weight", weight, "current_load", currentLoad)
	return true, id, record
}

// Status applies a status update from consumerID for taskID. Terminal
// transitions are idempotent — a second terminal report for the same task
// id is a no-op for coordinator state, per spec.md §4.1.
func (c *Coordinator) Status(consumerID, taskID string, status tasks.State, reason string) error {
	switch status {
	case tasks.StateInProgress, tasks.StateCompleted, tasks.StateFailed:
	default:
		return ErrUnknownStatus
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	task, inFlight := c.inFlight[taskID]

	switch status {
	case tasks.StateInProgress:
		if inFlight && task.IsAssignedTo(consumerID) {
			task.LastHeartbeat = time.Now()
		}
		// Stale heartbeat for an already-requeued or completed task: no-op.
		return nil

	case tasks.StateCompleted:
		if inFlight {
			delete(c.inFlight, taskID)
			delete(c.payloads, taskID)
			c.completed++
			c.metrics.tasksCompleted.Inc()
		}
		c.recordConsumerOutcome(consumerID, true)
		slog.Info("task completed", "event", "task_completed", "task_id", taskID, "consumer_id", consumerID)
		return nil

	case tasks.StateFailed:
		if inFlight {
			delete(c.inFlight, taskID)
			delete(c.payloads, taskID)
			c.failed++
			c.metrics.tasksFailed.Inc()
		}
		c.recordConsumerOutcome(consumerID, false)
		c.failures.add(taskID, reason)
		slog.Warn("task failed", "event", "task_failed", "task_id", taskID, "consumer_id", consumerID, "reason", reason)
		return nil
	}

	return nil
}

func (c *Coordinator) touchConsumer(consumerID string) {
	cc, ok := c.perConsumer[consumerID]
	if !ok {
		cc = &consumerCounters{}
		c.perConsumer[consumerID] = cc
	}
	cc.LastSeen = time.Now()
}

func (c *Coordinator) recordConsumerOutcome(consumerID string, success bool) {
	cc, ok := c.perConsumer[consumerID]
	if !ok {
		cc = &consumerCounters{}
		c.perConsumer[consumerID] = cc
	}
	cc.LastSeen = time.Now()
	if success {
		cc.Processed++
	} else {
		cc.Failed++
	}
}

// StatsSnapshot is the read-only view returned by Stats.
type StatsSnapshot struct {
	Submitted   int                          `json:"submitted"`
	QueueDepth  int                          `json:"queue_depth"`
	InFlight    int                          `json:"in_flight"`
	Completed   int                          `json:"completed"`
	Failed      int                          `json:"failed"`
	Retries     int                          `json:"retries"`
	PerConsumer map[string]consumerCounters `json:"per_consumer"`
	Failures    []FailureEntry              `json:"recent_failures"`
}

// Stats returns a read-only snapshot. Each field is individually
// consistent; there's no cross-field atomicity guarantee, per spec.md §4.1.
func (c *Coordinator) Stats() StatsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	per := make(map[string]consumerCounters, len(c.perConsumer))
	for id, cc := range c.perConsumer {
		per[id] = *cc
	}

	return StatsSnapshot{
		Submitted:   c.submitted,
		QueueDepth:  c.backlog.len(),
		InFlight:    len(c.inFlight),
		Completed:   c.completed,
		Failed:      c.failed,
		Retries:     c.retries,
		PerConsumer: per,
		Failures:    c.failures.snapshot(),
	}
}

// MetricsSnapshot is the read-only view returned by MetricsView, fed to the
// autoscaler per spec.md §4.1.
type MetricsSnapshot struct {
	QueueDepth      int     `json:"queue_depth"`
	InFlight        int     `json:"in_flight"`
	ActiveConsumers int     `json:"active_consumers"`
	Backpressure    float64 `json:"backpressure"`
}

// activeConsumerWindow bounds how recently a consumer must have been seen
// (via get_work or a terminal status) to count as "active" for backpressure.
const activeConsumerWindow = 30 * time.Second

// MetricsView computes queue_depth, in_flight, active_consumers, and
// backpressure = queue_depth / max(1, active_consumers).
func (c *Coordinator) MetricsView() MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	depth := c.backlog.len()
	inFlight := len(c.inFlight)

	active := 0
	cutoff := time.Now().Add(-activeConsumerWindow)
	for _, cc := range c.perConsumer {
		if cc.LastSeen.After(cutoff) {
			active++
		}
	}

	denom := active
	if denom < 1 {
		denom = 1
	}
	backpressure := float64(depth) / float64(denom)

	c.metrics.queueDepth.Set(float64(depth))
	c.metrics.inFlightGauge.Set(float64(inFlight))
	c.metrics.activeConsumers.Set(float64(active))
	c.metrics.backpressureGauge.Set(backpressure)

	return MetricsSnapshot{
		QueueDepth:      depth,
		InFlight:        inFlight,
		ActiveConsumers: active,
		Backpressure:    backpressure,
	}
}

// Health always returns true while the process is up; liveness only.
func (c *Coordinator) Health() bool {
	return true
}
