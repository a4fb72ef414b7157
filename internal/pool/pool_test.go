package pool

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ecocode-labs/logqueue/internal/coordinator"
	"github.com/ecocode-labs/logqueue/pkg/tasks"
)

func newTestCoordinatorServer(t *testing.T) (*httptest.Server, *coordinator.Coordinator) {
	t.Helper()

	cfg := coordinator.DefaultConfig()
	cfg.MonitorInterval = 10 * time.Millisecond
	cfg.TaskTimeout = 100 * time.Millisecond

	c := coordinator.New(cfg, prometheus.NewRegistry())
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	t.Cleanup(func() {
		cancel()
		c.Stop()
	})

	srv := httptest.NewServer(coordinator.NewServer(c).Mux())
	t.Cleanup(srv.Close)

	return srv, c
}

func TestStartWithDefaultWeightPattern(t *testing.T) {
	srv, _ := newTestCoordinatorServer(t)

	cfg := DefaultConfig()
	cfg.CoordinatorURL = srv.URL
	p := New(cfg, prometheus.NewRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Start(ctx, 4, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	if p.Size() != 4 {
		t.Fatalf("Size() = %d, want 4", p.Size())
	}

	stats := p.Stats()
	wantWeights := []float64{0.4, 0.3, 0.2, 0.1}
	for i, want := range wantWeights {
		id := fmt.Sprintf("consumer-%d", i)
		cs, ok := stats.PerConsumer[id]
		if !ok {
			t.Fatalf("missing per-consumer stats for %s", id)
		}
		if cs.Weight != want {
			t.Errorf("consumer %s weight = %v, want %v", id, cs.Weight, want)
		}
	}
}

func TestHappyPathDistribution(t *testing.T) {
	srv, coord := newTestCoordinatorServer(t)

	for i := 0; i < 100; i++ {
		if _, err := coord.Submit(tasks.LogRecord{Message: "m", Level: "info"}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	cfg := DefaultConfig()
	cfg.CoordinatorURL = srv.URL
	cfg.ProcessingDelayMS = 5
	cfg.PollIntervalMS = 5
	p := New(cfg, prometheus.NewRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Start(ctx, 4, []float64{0.4, 0.3, 0.2, 0.1}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	idleCtx, idleCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer idleCancel()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if coord.Stats().Completed >= 100 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err := p.WaitForIdle(idleCtx); err != nil {
		t.Fatalf("WaitForIdle: %v", err)
	}

	stats := coord.Stats()
	if stats.Completed != 100 {
		t.Fatalf("coordinator completed = %d, want 100", stats.Completed)
	}

	dist := p.Distribution()
	if len(dist) != 4 {
		t.Fatalf("len(Distribution()) = %d, want 4", len(dist))
	}
	total := 0
	for _, d := range dist {
		total += d.Processed
	}
	if total != 100 {
		t.Fatalf("sum of distribution processed = %d, want 100", total)
	}
}

func TestScaleDownRemovesMostRecentlyAdded(t *testing.T) {
	srv, _ := newTestCoordinatorServer(t)

	cfg := DefaultConfig()
	cfg.CoordinatorURL = srv.URL
	p := New(cfg, prometheus.NewRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Start(ctx, 2, []float64{0.4, 0.3}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	p.mu.Lock()
	p.addLocked(ctx, 0.5)
	p.addLocked(ctx, 0.5)
	p.mu.Unlock()

	if p.Size() != 4 {
		t.Fatalf("Size() = %d, want 4", p.Size())
	}

	p.mu.Lock()
	lastID := p.members[len(p.members)-1].id
	p.removeLIFOLocked(2)
	p.mu.Unlock()

	if p.Size() != 2 {
		t.Fatalf("Size() = %d, want 2 after removing 2", p.Size())
	}

	stats := p.Stats()
	if _, stillPresent := stats.PerConsumer[lastID]; stillPresent {
		t.Fatalf("most recently added consumer %s should have been removed first", lastID)
	}
}

func TestAutoscalerScaleUpStaysWithinMaxSize(t *testing.T) {
	srv, coord := newTestCoordinatorServer(t)

	for i := 0; i < 200; i++ {
		if _, err := coord.Submit(tasks.LogRecord{Message: "m", Level: "info"}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	cfg := DefaultConfig()
	cfg.CoordinatorURL = srv.URL
	cfg.Autoscaler.MinSize = 2
	cfg.Autoscaler.MaxSize = 4
	cfg.Autoscaler.ScaleUpThreshold = 10
	cfg.Autoscaler.ScaleDownThreshold = 2
	cfg.Autoscaler.ScaleUpStep = 2
	cfg.Autoscaler.CooldownMS = 200
	cfg.Autoscaler.ScaleCheckIntervalMS = 20
	p := New(cfg, prometheus.NewRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Start(ctx, 2, []float64{0.4, 0.3}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	p.StartAutoscaler(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if p.Size() >= 4 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if p.Size() > cfg.Autoscaler.MaxSize {
		t.Fatalf("Size() = %d, exceeds max_size %d", p.Size(), cfg.Autoscaler.MaxSize)
	}
}
