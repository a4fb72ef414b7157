package pool

import (
	"context"
	"log/slog"
	"time"
)

// StartAutoscaler launches the control loop described in spec.md §4.5. It
// returns once the loop has been scheduled; call StopAutoscaler to halt it.
func (p *Pool) StartAutoscaler(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.autoscalerCancel = cancel
	p.autoscalerDone = make(chan struct{})

	go p.autoscaleLoop(ctx)
}

// StopAutoscaler cancels the control loop and waits for it to exit. Safe
// to call even if the loop was never started.
func (p *Pool) StopAutoscaler() {
	if p.autoscalerCancel != nil {
		p.autoscalerCancel()
	}
	if p.autoscalerDone != nil {
		<-p.autoscalerDone
	}
}

func (p *Pool) autoscaleLoop(ctx context.Context) {
	defer close(p.autoscalerDone)

	interval := p.cfg.Autoscaler.scaleCheckInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("autoscaler started", "event", "autoscaler_started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("autoscaler stopped", "event", "autoscaler_stopped")
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick fetches current backlog depth and applies the scale decision from
// spec.md §4.5's step 4/5. Cooldown and clamping are enforced here.
func (p *Pool) tick(ctx context.Context) {
	m, err := p.metrics.fetch(ctx)
	if err != nil {
		slog.Warn("autoscaler metrics fetch failed", "event", "autoscaler_metrics_error", "error", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.lastActionAt.IsZero() && time.Since(p.lastActionAt) < p.cfg.Autoscaler.cooldown() {
		return
	}

	n := len(p.members)
	a := p.cfg.Autoscaler

	switch {
	case m.QueueDepth >= a.ScaleUpThreshold && n < a.MaxSize:
		add := a.ScaleUpStep
		if room := a.MaxSize - n; add > room {
			add = room
		}
		for i := 0; i < add; i++ {
			p.addLocked(ctx, a.ScaleOutWeight)
		}
		p.lastActionAt = time.Now()
		p.scaleUps++
		p.promMetrics.scaleUps.Inc()
		slog.Info("autoscaler scaled up", "event", "autoscaler_scale_up", "added", add, "size", len(p.members), "queue_depth", m.QueueDepth)

	case m.QueueDepth <= a.ScaleDownThreshold && n > a.MinSize:
		remove := a.ScaleDownStep
		if room := n - a.MinSize; remove > room {
			remove = room
		}
		p.removeLIFOLocked(remove)
		p.lastActionAt = time.Now()
		p.scaleDowns++
		p.promMetrics.scaleDowns.Inc()
		slog.Info("autoscaler scaled down", "event", "autoscaler_scale_down", "removed", remove, "size", len(p.members), "queue_depth", m.QueueDepth)
	}
}
