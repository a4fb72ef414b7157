package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// metricsTimeout mirrors the client-side budget for the autoscaler's
// periodic metrics poll; it must complete well under scale_check_interval.
const metricsTimeout = 5 * time.Second

// metricsClient fetches the coordinator's backlog metrics for the
// autoscaler loop. Kept separate from consumer.Client since it speaks to
// a different, read-only endpoint (GET /metrics) on the pool's behalf.
type metricsClient struct {
	baseURL string
	http    *http.Client
}

func newMetricsClient(baseURL string) *metricsClient {
	return &metricsClient{baseURL: baseURL, http: &http.Client{}}
}

// coordinatorMetrics mirrors the coordinator's GET /metrics response body.
type coordinatorMetrics struct {
	QueueDepth      int     `json:"queue_depth"`
	InFlight        int     `json:"in_flight"`
	ActiveConsumers int     `json:"active_consumers"`
	Backpressure    float64 `json:"backpressure"`
}

func (c *metricsClient) fetch(ctx context.Context) (coordinatorMetrics, error) {
	ctx, cancel := context.WithTimeout(ctx, metricsTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/metrics", nil)
	if err != nil {
		return coordinatorMetrics{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return coordinatorMetrics{}, fmt.Errorf("pool: fetch metrics: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return coordinatorMetrics{}, fmt.Errorf("pool: fetch metrics: coordinator returned %d", resp.StatusCode)
	}

	var m coordinatorMetrics
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return coordinatorMetrics{}, err
	}
	return m, nil
}
