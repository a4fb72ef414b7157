// Package pool owns the dynamic set of consumer runtimes and the
// autoscaler control loop that resizes it against coordinator backlog.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ecocode-labs/logqueue/internal/consumer"
)

// defaultWeightPattern is spec.md §4.5's cyclic default used when Start is
// called without an explicit weight list.
var defaultWeightPattern = []float64{0.4, 0.3, 0.2, 0.1}

// member is one live consumer plus the id it was started with, kept in
// insertion order so scale-down can remove the most recently added first.
type member struct {
	id       string
	consumer *consumer.Consumer
}

// Pool manages a set of consumer.Consumer runtimes against a single
// coordinator, per spec.md §4.5.
type Pool struct {
	mu          sync.Mutex
	cfg         *Config
	client      *consumer.Client
	metrics     *metricsClient
	promMetrics *Metrics
	members     []member // insertion order; LIFO removal pops the tail
	archive     consumer.Counters
	nextSeq     int

	lastActionAt time.Time
	scaleUps     int
	scaleDowns   int

	autoscalerCancel context.CancelFunc
	autoscalerDone   chan struct{}
}

// New returns an unstarted Pool against the coordinator named in cfg,
// registering its Prometheus gauges/counters against reg (its own registry
// in tests, so multiple pools in-process don't collide on metric names).
func New(cfg *Config, reg *prometheus.Registry) *Pool {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	promMetrics := NewMetrics(reg)
	promMetrics.minSize.Set(float64(cfg.Autoscaler.MinSize))
	promMetrics.maxSize.Set(float64(cfg.Autoscaler.MaxSize))
	return &Pool{
		cfg:         cfg,
		client:      consumer.NewClient(cfg.CoordinatorURL),
		metrics:     newMetricsClient(cfg.CoordinatorURL),
		promMetrics: promMetrics,
	}
}

// Start instantiates n consumers with the given weights (a list the same
// length as n, a single-element list applied uniformly, or nil for the
// cyclic default pattern) and starts their pull loops, per spec.md §4.5.
func (p *Pool) Start(ctx context.Context, n int, weights []float64) error {
	if n < 0 {
		return fmt.Errorf("pool: negative consumer count %d", n)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < n; i++ {
		p.addLocked(ctx, p.weightForLocked(i, weights))
	}
	return nil
}

// weightForLocked resolves the weight for the i-th consumer being added,
// given an explicit list (uniform if length 1) or the cyclic default.
func (p *Pool) weightForLocked(i int, weights []float64) float64 {
	switch {
	case len(weights) == 1:
		return weights[0]
	case len(weights) > i:
		return weights[i]
	case len(weights) > 0:
		return weights[i%len(weights)]
	default:
		return defaultWeightPattern[i%len(defaultWeightPattern)]
	}
}

// addLocked constructs, registers, and starts one consumer. Caller holds mu.
func (p *Pool) addLocked(ctx context.Context, weight float64) *consumer.Consumer {
	id := fmt.Sprintf("consumer-%d", p.nextSeq)
	p.nextSeq++

	c := consumer.New(id, weight, p.client, consumer.Config{
		CoordinatorURL:    p.cfg.CoordinatorURL,
		Weight:            weight,
		PollInterval:      p.cfg.pollInterval(),
		HeartbeatInterval: p.cfg.heartbeatInterval(),
		ProcessingDelay:   p.cfg.processingDelay(),
	})
	c.Start(ctx)
	p.members = append(p.members, member{id: id, consumer: c})
	p.promMetrics.poolSize.Set(float64(len(p.members)))

	slog.Info("consumer started", "event", "consumer_started", "consumer_id", id, "weight", weight)
	return c
}

// removeLIFOLocked stops and archives the most recently added n consumers.
// Caller holds mu.
func (p *Pool) removeLIFOLocked(n int) {
	for i := 0; i < n && len(p.members) > 0; i++ {
		last := p.members[len(p.members)-1]
		p.members = p.members[:len(p.members)-1]

		last.consumer.Stop()
		counters, _ := last.consumer.Snapshot()
		p.archive.Processed += counters.Processed
		p.archive.Failed += counters.Failed

		slog.Info("consumer stopped", "event", "consumer_stopped", "consumer_id", last.id,
			"processed", counters.Processed, "failed", counters.Failed)
	}
	p.promMetrics.poolSize.Set(float64(len(p.members)))
}

// Stop gracefully stops every consumer and the autoscaler loop, archiving
// final counters so pool-level totals survive shutdown (spec.md §4.6).
func (p *Pool) Stop() {
	p.StopAutoscaler()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLIFOLocked(len(p.members))
}

// Size returns the current number of live consumers.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.members)
}

// ConsumerStat is one consumer's read-only stats snapshot.
type ConsumerStat struct {
	ID        string  `json:"id"`
	Weight    float64 `json:"weight"`
	Processed int     `json:"processed"`
	Failed    int     `json:"failed"`
}

// Stats is the pool's stats snapshot: per-pool totals (current + archived,
// per spec.md §4.6's accounting invariant) and a per-consumer breakdown.
type Stats struct {
	Size        int                     `json:"size"`
	Processed   int                     `json:"processed"`
	Failed      int                     `json:"failed"`
	PerConsumer map[string]ConsumerStat `json:"per_consumer"`
	ScaleUps    int                     `json:"scale_ups"`
	ScaleDowns  int                     `json:"scale_downs"`
}

// Stats returns a read-only snapshot summing current and archived counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := Stats{
		Size:        len(p.members),
		Processed:   p.archive.Processed,
		Failed:      p.archive.Failed,
		PerConsumer: make(map[string]ConsumerStat, len(p.members)),
		ScaleUps:    p.scaleUps,
		ScaleDowns:  p.scaleDowns,
	}
	for _, m := range p.members {
		counters, _ := m.consumer.Snapshot()
		out.Processed += counters.Processed
		out.Failed += counters.Failed
		out.PerConsumer[m.id] = ConsumerStat{
			ID:        m.id,
			Weight:    m.consumer.Weight,
			Processed: counters.Processed,
			Failed:    counters.Failed,
		}
	}
	return out
}

// Share is one consumer's observed fraction of completed work against its
// weight fraction, grounded in the original AnalyzerPool.get_distribution().
type Share struct {
	ID         string  `json:"id"`
	Weight     float64 `json:"weight"`
	Processed  int     `json:"processed"`
	Share      float64 `json:"share"`
	Deviation  float64 `json:"deviation"`
}

// Distribution compares each live consumer's actual share of completed
// work against its normalized weight fraction.
func (p *Pool) Distribution() []Share {
	p.mu.Lock()
	defer p.mu.Unlock()

	totalWeight := 0.0
	totalProcessed := 0
	type row struct {
		id        string
		weight    float64
		processed int
	}
	rows := make([]row, 0, len(p.members))
	for _, m := range p.members {
		counters, _ := m.consumer.Snapshot()
		rows = append(rows, row{id: m.id, weight: m.consumer.Weight, processed: counters.Processed})
		totalWeight += m.consumer.Weight
		totalProcessed += counters.Processed
	}

	out := make([]Share, 0, len(rows))
	for _, r := range rows {
		weightFraction := 0.0
		if totalWeight > 0 {
			weightFraction = r.weight / totalWeight
		}
		share := 0.0
		if totalProcessed > 0 {
			share = float64(r.processed) / float64(totalProcessed)
		}
		out = append(out, Share{
			ID:        r.id,
			Weight:    weightFraction,
			Processed: r.processed,
			Share:     share,
			Deviation: math.Abs(share - weightFraction),
		})
	}
	return out
}

// WaitForIdle blocks until every live consumer's in-flight set is empty,
// or ctx is cancelled. This is the pool-level completion signal from
// spec.md §4.4.
func (p *Pool) WaitForIdle(ctx context.Context) error {
	for {
		if p.allIdle() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (p *Pool) allIdle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range p.members {
		if _, load := m.consumer.Snapshot(); load > 0 {
			return false
		}
	}
	return true
}
