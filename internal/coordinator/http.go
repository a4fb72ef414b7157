package coordinator

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ecocode-labs/logqueue/pkg/tasks"
)

// Server wraps a Coordinator with the HTTP handlers from spec.md §6.
type Server struct {
	coordinator *Coordinator
}

// NewServer returns a Server bound to coordinator.
func NewServer(c *Coordinator) *Server {
	return &Server{coordinator: c}
}

// Mux builds the request router for the six coordinator endpoints from
// spec.md §6. The Prometheus exposition handler lives on a separate mux
// (see cmd/coordinator) so its wire format never collides with this
// package's JSON /metrics contract.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/submit", allowMethod(http.MethodPost, s.handleSubmit))
	mux.HandleFunc("/get_work", allowMethod(http.MethodPost, s.handleGetWork))
	mux.HandleFunc("/status", allowMethod(http.MethodPost, s.handleStatus))
	mux.HandleFunc("/stats", allowMethod(http.MethodGet, s.handleStats))
	mux.HandleFunc("/metrics", allowMethod(http.MethodGet, s.handleMetrics))
	mux.HandleFunc("/health", allowMethod(http.MethodGet, s.handleHealth))
	return mux
}

// allowMethod wraps h so that any request whose method is not method gets
// 405 Method Not Allowed.
func allowMethod(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h(w, r)
	}
}

type submitRequest struct {
	Message   string         `json:"message"`
	Level     string         `json:"level"`
	Source    string         `json:"source"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type submitResponse struct {
	TaskID string `json:"task_id"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	record := tasks.LogRecord{
		Message:  req.Message,
		Level:    req.Level,
		Source:   req.Source,
		Metadata: req.Metadata,
	}
	if req.Timestamp != nil {
		record.Timestamp = *req.Timestamp
	}

	id, err := s.coordinator.Submit(record)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{TaskID: id})
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

func (s *Server) handleGetWork(w http.ResponseWriter, r *http.Request) {
	var req getWorkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.ConsumerID == "" {
		writeError(w, http.StatusBadRequest, "consumer_id is required")
		return
	}

	hasWork, taskID, payload := s.coordinator.GetWork(req.ConsumerID, req.Weight, req.CurrentTasks)
	writeJSON(w, http.StatusOK, getWorkResponse{HasWork: hasWork, TaskID: taskID, Payload: payload})
}

type statusRequest struct {
	ConsumerID string `json:"consumer_id"`
	TaskID     string `json:"task_id"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
}

type statusResponse struct {
	OK bool `json:"ok"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.ConsumerID == "" || req.TaskID == "" {
		writeError(w, http.StatusBadRequest, "consumer_id and task_id are required")
		return
	}

	state, ok := parseStatus(req.Status)
	if !ok {
		writeError(w, http.StatusBadRequest, "status must be one of in_progress, completed, failed")
		return
	}

	if err := s.coordinator.Status(req.ConsumerID, req.TaskID, state, req.Reason); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{OK: true})
}

func parseStatus(raw string) (tasks.State, bool) {
	switch strings.ToLower(raw) {
	case "in_progress":
		return tasks.StateInProgress, true
	case "completed":
		return tasks.StateCompleted, true
	case "failed":
		return tasks.StateFailed, true
	default:
		return "", false
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coordinator.Stats())
}

// handleMetrics serves spec.md §6's {queue_depth, in_flight,
// active_consumers, backpressure} JSON body, fed to the autoscaler.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coordinator.MetricsView())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": s.coordinator.Health()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
