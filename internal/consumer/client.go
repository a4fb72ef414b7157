// Package consumer implements the analyzer side of the work queue: a
// pull loop, a bounded execution pool, and the heartbeat protocol that
// keeps the coordinator informed of in-flight progress.
package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ecocode-labs/logqueue/pkg/tasks"
)

// getWorkTimeout and statusTimeout mirror spec.md §5's per-request HTTP
// budgets: get_work holds a connection open longer since it may poll an
// empty backlog; status is a fire-and-forget heartbeat or terminal report.
const (
	getWorkTimeout = 10 * time.Second
	statusTimeout  = 5 * time.Second
)

// Client talks to the coordinator's HTTP API on behalf of one consumer.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client pointed at the coordinator's base URL
// (e.g. "http://localhost:8000").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{},
	}
}

type getWorkRequest struct {
	ConsumerID   string  `json:"consumer_id"`
	Weight       float64 `json:"weight"`
	CurrentTasks int     `json:"current_tasks"`
}

type getWorkResponse struct {
	HasWork bool             `json:"has_work"`
	TaskID  string           `json:"task_id,omitempty"`
	Payload *tasks.LogRecord `json:"payload,omitempty"`
}

// GetWork polls the coordinator for one unit of work.
func (c *Client) GetWork(ctx context.Context, consumerID string, weight float64, currentTasks int) (bool, string, *tasks.LogRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, getWorkTimeout)
	defer cancel()

	body, err := json.Marshal(getWorkRequest{ConsumerID: consumerID, Weight: weight, CurrentTasks: currentTasks})
	if err != nil {
		return false, "", nil, err
	}

	var resp getWorkResponse
	if err := c.post(ctx, "/get_work", body, &resp); err != nil {
		return false, "", nil, err
	}
	return resp.HasWork, resp.TaskID, resp.Payload, nil
}

type statusRequest struct {
	ConsumerID string `json:"consumer_id"`
	TaskID     string `json:"task_id"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
}

// Status reports consumerID's current view of taskID to the coordinator.
func (c *Client) Status(ctx context.Context, consumerID, taskID string, status tasks.State, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	body, err := json.Marshal(statusRequest{
		ConsumerID: consumerID,
		TaskID:     taskID,
		Status:     string(status),
		Reason:     reason,
	})
	if err != nil {
		return err
	}
	return c.post(ctx, "/status", body, nil)
}

func (c *Client) post(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("consumer: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("consumer: %s: coordinator returned %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
