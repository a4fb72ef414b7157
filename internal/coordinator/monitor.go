package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/ecocode-labs/logqueue/pkg/tasks"
)

const maxRetriesReason = "max retries exceeded"

// monitorLoop is the single background task that detects stalled
// consumers and requeues their work, per spec.md §4.3. It snapshots the
// in-flight keys without holding the lock across the whole tick, then
// re-checks each one under the lock before acting — so a task that
// completes concurrently with the scan simply isn't touched.
func (c *Coordinator) monitorLoop(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.config.MonitorInterval)
	defer ticker.Stop()

	slog.Info("monitor loop started", "event", "monitor_started", "interval", c.config.MonitorInterval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("monitor loop stopped", "event", "monitor_stopped")
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

func (c *Coordinator) tick() {
	start := time.Now()
	defer func() { c.metrics.monitorDuration.Observe(time.Since(start).Seconds()) }()

	c.mu.Lock()
	ids := make([]string, 0, len(c.inFlight))
	for id := range c.inFlight {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.checkAndRequeue(id)
	}

	c.MetricsView()
}

// checkAndRequeue re-checks a single task under the lock and, if it's still
// in-flight and past the heartbeat deadline, requeues or fails it.
func (c *Coordinator) checkAndRequeue(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	task, ok := c.inFlight[id]
	if !ok {
		return // completed, failed, or already requeued since the scan
	}
	if time.Since(task.LastHeartbeat) <= c.config.TaskTimeout {
		return
	}

	delete(c.inFlight, id)

	if task.Retries < c.config.MaxRetries {
		task.State = tasks.StateQueued
		task.Assignee = ""
		task.Retries++
		c.queued[id] = task
		c.backlog.pushHead(id)
		c.retries++

		c.metrics.tasksRequeued.Inc()
		slog.Warn("task requeued after timeout", "event", "task_requeued", "task_id", id, "retries", task.Retries)
		return
	}

	delete(c.payloads, id)
	c.failed++
	c.failures.add(id, maxRetriesReason)
	c.metrics.tasksFailed.Inc()
	slog.Error("task exceeded max retries", "event", "task_retry_exhausted", "task_id", id, "retries", task.Retries)
}
