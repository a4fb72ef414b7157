package consumer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ecocode-labs/logqueue/pkg/tasks"
)

// Counters is one consumer's processed/failed tally, reset when the
// consumer is destroyed; the pool is responsible for archiving them.
type Counters struct {
	Processed int
	Failed    int
	StartedAt time.Time
}

// Consumer owns a pull loop and a bounded pool of concurrent task
// executions, per spec.md §4.4. It is consumer-agnostic to the
// coordinator: nothing here registers with the coordinator beyond the
// id carried on each request.
type Consumer struct {
	ID     string
	Weight float64

	client *Client
	config Config

	maxConcurrent int
	slots         chan struct{}

	mu       sync.Mutex
	inFlight map[string]struct{}
	counters Counters
	running  bool

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New returns a Consumer that has not yet been started.
func New(id string, weight float64, client *Client, config Config) *Consumer {
	maxConcurrent := MaxConcurrent(weight)
	return &Consumer{
		ID:            id,
		Weight:        weight,
		client:        client,
		config:        config,
		maxConcurrent: maxConcurrent,
		slots:         make(chan struct{}, maxConcurrent),
		inFlight:      make(map[string]struct{}),
		counters:      Counters{StartedAt: time.Now()},
	}
}

// Start launches the pull loop in the background. It returns immediately.
func (c *Consumer) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.mu.Lock()
	c.running = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.pullLoop(ctx)
}

// Stop requests the pull loop to stop accepting new pulls, then blocks
// until every in-flight task this consumer holds has completed — the
// graceful-stop contract from spec.md §4.4.
func (c *Consumer) Stop() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// Snapshot returns a copy of this consumer's counters and current load,
// safe to read concurrently with the pull loop.
func (c *Consumer) Snapshot() (Counters, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters, len(c.inFlight)
}

func (c *Consumer) currentLoad() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inFlight)
}

// pullLoop implements spec.md §4.4's cooperative loop: check capacity,
// pull, dispatch-and-immediately-retry or sleep.
func (c *Consumer) pullLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if c.currentLoad() >= c.maxConcurrent {
			if !c.sleep(ctx, c.config.PollInterval) {
				return
			}
			continue
		}

		hasWork, taskID, payload, err := c.client.GetWork(ctx, c.ID, c.Weight, c.currentLoad())
		if err != nil {
			slog.Warn("get_work failed", "event", "get_work_error", "consumer_id", c.ID, "error", err)
			if !c.sleep(ctx, c.config.PollInterval) {
				return
			}
			continue
		}
		if !hasWork {
			if !c.sleep(ctx, c.config.PollInterval) {
				return
			}
			continue
		}

		c.dispatch(ctx, taskID, payload)
		// No sleep: a consumer with free slots pulls as fast as the network allows.
	}
}

// sleep waits for d or ctx cancellation, returning false if the context
// was cancelled first.
func (c *Consumer) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// dispatch reserves a slot and runs the per-task worker in the background.
func (c *Consumer) dispatch(ctx context.Context, taskID string, payload *tasks.LogRecord) {
	c.slots <- struct{}{}

	c.mu.Lock()
	c.inFlight[taskID] = struct{}{}
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() { <-c.slots }()
		defer func() {
			c.mu.Lock()
			delete(c.inFlight, taskID)
			c.mu.Unlock()
		}()

		c.runTask(ctx, taskID, payload)
	}()
}

// runTask is the per-task worker from spec.md §4.4: initial heartbeat,
// opaque work with periodic heartbeat refresh, final terminal report.
func (c *Consumer) runTask(ctx context.Context, taskID string, payload *tasks.LogRecord) {
	// detachedCtx: the task's own HTTP reports must still land even if the
	// pull loop's context was cancelled mid-work, so a graceful Stop can
	// drain in-flight work rather than abandon its terminal report.
	detachedCtx := context.Background()

	if err := c.client.Status(detachedCtx, c.ID, taskID, tasks.StateInProgress, ""); err != nil {
		slog.Warn("initial heartbeat failed", "event", "heartbeat_error", "consumer_id", c.ID, "task_id", taskID, "error", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- c.process(payload)
	}()

	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	var workErr error
wait:
	for {
		select {
		case workErr = <-done:
			break wait
		case <-ticker.C:
			if err := c.client.Status(detachedCtx, c.ID, taskID, tasks.StateInProgress, ""); err != nil {
				slog.Warn("heartbeat refresh failed", "event", "heartbeat_error", "consumer_id", c.ID, "task_id", taskID, "error", err)
			}
		}
	}

	c.mu.Lock()
	if workErr != nil {
		c.counters.Failed++
	} else {
		c.counters.Processed++
	}
	c.mu.Unlock()

	if workErr != nil {
		slog.Warn("task failed", "event", "task_work_failed", "consumer_id", c.ID, "task_id", taskID, "error", workErr)
		if err := c.client.Status(detachedCtx, c.ID, taskID, tasks.StateFailed, workErr.Error()); err != nil {
			slog.Warn("failed report failed", "event", "status_report_error", "consumer_id", c.ID, "task_id", taskID, "error", err)
		}
		return
	}

	if err := c.client.Status(detachedCtx, c.ID, taskID, tasks.StateCompleted, ""); err != nil {
		slog.Warn("completed report failed", "event", "status_report_error", "consumer_id", c.ID, "task_id", taskID, "error", err)
	}
}

// process stands in for the consumer's domain-specific analysis. Out of
// scope for the core per spec.md §1; it is treated as an opaque delay.
func (c *Consumer) process(payload *tasks.LogRecord) error {
	time.Sleep(c.config.ProcessingDelay)
	return nil
}
