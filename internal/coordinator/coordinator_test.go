package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ecocode-labs/logqueue/pkg/tasks"
)

func newTestCoordinator(t *testing.T, cfg *Config) *Coordinator {
	t.Helper()
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return New(cfg, prometheus.NewRegistry())
}

func TestSubmitGetWorkStatusRoundTrip(t *testing.T) {
	c := newTestCoordinator(t, nil)

	id, err := c.Submit(tasks.LogRecord{Message: "boom", Level: "error", Source: "api"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id == "" {
		t.Fatal("Submit returned empty task id")
	}

	stats := c.Stats()
	if stats.QueueDepth != 1 {
		t.Fatalf("QueueDepth = %d, want 1", stats.QueueDepth)
	}
	if stats.Submitted != 1 {
		t.Fatalf("Submitted = %d, want 1", stats.Submitted)
	}

	hasWork, taskID, payload := c.GetWork("consumer-1", 0.4, 0)
	if !hasWork {
		t.Fatal("GetWork returned hasWork=false, want true")
	}
	if taskID != id {
		t.Fatalf("GetWork task id = %q, want %q", taskID, id)
	}
	if payload == nil || payload.Message != "boom" {
		t.Fatalf("GetWork payload = %+v, want message %q", payload, "boom")
	}

	stats = c.Stats()
	if stats.QueueDepth != 0 || stats.InFlight != 1 {
		t.Fatalf("after GetWork: queue_depth=%d in_flight=%d, want 0,1", stats.QueueDepth, stats.InFlight)
	}

	if err := c.Status("consumer-1", id, tasks.StateCompleted, ""); err != nil {
		t.Fatalf("Status: %v", err)
	}

	stats = c.Stats()
	if stats.Completed != 1 || stats.InFlight != 0 {
		t.Fatalf("after Status completed: completed=%d in_flight=%d, want 1,0", stats.Completed, stats.InFlight)
	}
}

func TestGetWorkOnEmptyBacklogReturnsNoWork(t *testing.T) {
	c := newTestCoordinator(t, nil)

	hasWork, taskID, payload := c.GetWork("consumer-1", 1.0, 0)
	if hasWork || taskID != "" || payload != nil {
		t.Fatalf("GetWork on empty backlog = (%v, %q, %v), want (false, \"\", nil)", hasWork, taskID, payload)
	}
}

func TestStatusCompletedIsIdempotent(t *testing.T) {
	c := newTestCoordinator(t, nil)

	id, _ := c.Submit(tasks.LogRecord{Message: "m", Level: "info"})
	_, _, _ = c.GetWork("consumer-1", 1.0, 0)

	if err := c.Status("consumer-1", id, tasks.StateCompleted, ""); err != nil {
		t.Fatalf("first Status: %v", err)
	}
	if err := c.Status("consumer-1", id, tasks.StateCompleted, ""); err != nil {
		t.Fatalf("second Status: %v", err)
	}

	stats := c.Stats()
	if stats.Completed != 1 {
		t.Fatalf("Completed = %d after duplicate terminal report, want 1", stats.Completed)
	}
}

func TestStatusFailedIsIdempotent(t *testing.T) {
	c := newTestCoordinator(t, nil)

	id, _ := c.Submit(tasks.LogRecord{Message: "m", Level: "info"})
	_, _, _ = c.GetWork("consumer-1", 1.0, 0)

	if err := c.Status("consumer-1", id, tasks.StateFailed, "boom"); err != nil {
		t.Fatalf("first Status: %v", err)
	}
	if err := c.Status("consumer-1", id, tasks.StateFailed, "boom again"); err != nil {
		t.Fatalf("second Status: %v", err)
	}

	stats := c.Stats()
	if stats.Failed != 1 {
		t.Fatalf("Failed = %d after duplicate terminal report, want 1", stats.Failed)
	}
}

func TestStatusUnknownTaskIDIsNoOp(t *testing.T) {
	c := newTestCoordinator(t, nil)

	if err := c.Status("consumer-1", "does-not-exist", tasks.StateCompleted, ""); err != nil {
		t.Fatalf("Status on unknown task id: %v", err)
	}

	stats := c.Stats()
	if stats.Completed != 0 {
		t.Fatalf("Completed = %d for unknown task id, want 0", stats.Completed)
	}
}

func TestStatusRejectsUnknownStatusValue(t *testing.T) {
	c := newTestCoordinator(t, nil)

	id, _ := c.Submit(tasks.LogRecord{Message: "m", Level: "info"})
	err := c.Status("consumer-1", id, tasks.State("bogus"), "")
	if err != ErrUnknownStatus {
		t.Fatalf("err = %v, want ErrUnknownStatus", err)
	}
}

// TestMonitorRequeuesTimedOutTask exercises the timeout-driven retry path:
// a task left in-flight past TaskTimeout is requeued to the backlog head
// with Retries incremented, preserving its id and creation metadata.
func TestMonitorRequeuesTimedOutTask(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MonitorInterval = 10 * time.Millisecond
	cfg.TaskTimeout = 20 * time.Millisecond
	cfg.MaxRetries = 3
	c := newTestCoordinator(t, cfg)

	id, _ := c.Submit(tasks.LogRecord{Message: "m", Level: "info"})
	_, _, _ = c.GetWork("consumer-1", 1.0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	defer func() {
		cancel()
		c.Stop()
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		stats := c.Stats()
		if stats.QueueDepth == 1 && stats.InFlight == 0 && stats.Retries == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	stats := c.Stats()
	if stats.QueueDepth != 1 {
		t.Fatalf("QueueDepth = %d, want 1 after requeue", stats.QueueDepth)
	}
	if stats.InFlight != 0 {
		t.Fatalf("InFlight = %d, want 0 after requeue", stats.InFlight)
	}
	if stats.Retries != 1 {
		t.Fatalf("Retries = %d, want 1 after one timeout", stats.Retries)
	}

	hasWork, taskID, _ := c.GetWork("consumer-2", 1.0, 0)
	if !hasWork || taskID != id {
		t.Fatalf("GetWork after requeue = (%v, %q), want (true, %q)", hasWork, taskID, id)
	}
}

// TestMonitorFailsTaskAfterMaxRetries exercises the terminal branch of the
// requeue decision: once Retries reaches MaxRetries the task is marked
// failed instead of requeued again, with the fixed reason string.
func TestMonitorFailsTaskAfterMaxRetries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MonitorInterval = 10 * time.Millisecond
	cfg.TaskTimeout = 15 * time.Millisecond
	cfg.MaxRetries = 1
	c := newTestCoordinator(t, cfg)

	id, _ := c.Submit(tasks.LogRecord{Message: "m", Level: "info"})

	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	defer func() {
		cancel()
		c.Stop()
	}()

	var stats StatsSnapshot
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		hasWork, taskID, _ := c.GetWork("consumer-1", 1.0, 0)
		if hasWork && taskID == id {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	for time.Now().Before(deadline) {
		stats = c.Stats()
		if stats.Failed == 1 {
			break
		}
		// Re-assign the task after each requeue so it can time out again.
		c.GetWork("consumer-1", 1.0, 0)
		time.Sleep(10 * time.Millisecond)
	}

	if stats.Failed != 1 {
		t.Fatalf("Failed = %d, want 1 after max retries exhausted", stats.Failed)
	}
	if stats.QueueDepth != 0 || stats.InFlight != 0 {
		t.Fatalf("queue_depth=%d in_flight=%d after exhaustion, want 0,0", stats.QueueDepth, stats.InFlight)
	}

	found := false
	for _, f := range stats.Failures {
		if f.TaskID == id && f.Reason == maxRetriesReason {
			found = true
		}
	}
	if !found {
		t.Fatalf("recent_failures = %+v, want an entry for %q with reason %q", stats.Failures, id, maxRetriesReason)
	}
}

func TestMetricsViewBackpressure(t *testing.T) {
	c := newTestCoordinator(t, nil)

	for i := 0; i < 3; i++ {
		if _, err := c.Submit(tasks.LogRecord{Message: "m", Level: "info"}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	view := c.MetricsView()
	if view.QueueDepth != 3 {
		t.Fatalf("QueueDepth = %d, want 3", view.QueueDepth)
	}
	if view.ActiveConsumers != 0 {
		t.Fatalf("ActiveConsumers = %d, want 0 with nobody having pulled work", view.ActiveConsumers)
	}
	if view.Backpressure != 3 {
		t.Fatalf("Backpressure = %v, want 3 (depth/max(1,active))", view.Backpressure)
	}

	c.GetWork("consumer-1", 1.0, 0)
	view = c.MetricsView()
	if view.ActiveConsumers != 1 {
		t.Fatalf("ActiveConsumers = %d, want 1 after a pull", view.ActiveConsumers)
	}
	if view.Backpressure != 2 {
		t.Fatalf("Backpressure = %v, want 2 (depth=2/active=1)", view.Backpressure)
	}
}

func TestHealthAlwaysTrue(t *testing.T) {
	c := newTestCoordinator(t, nil)
	if !c.Health() {
		t.Fatal("Health() = false, want true")
	}
}
