package coordinator

import (
	"sync"
	"time"
)

// FailureEntry records one terminal failure for diagnostic purposes.
type FailureEntry struct {
	TaskID string    `json:"task_id"`
	Reason string    `json:"reason"`
	Time   time.Time `json:"time"`
}

// failureRing is a bounded ring of recent failures, kept as a slice that
// drops its oldest entry when full: fine for the bounded sizes this system
// deals with.
type failureRing struct {
	mu      sync.Mutex
	entries []FailureEntry
	maxSize int
}

func newFailureRing(maxSize int) *failureRing {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &failureRing{
		entries: make([]FailureEntry, 0, maxSize),
		maxSize: maxSize,
	}
}

func (r *failureRing) add(taskID, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) >= r.maxSize {
		r.entries = r.entries[1:]
	}
	r.entries = append(r.entries, FailureEntry{
		TaskID: taskID,
		Reason: reason,
		Time:   time.Now(),
	})
}

func (r *failureRing) snapshot() []FailureEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]FailureEntry, len(r.entries))
	copy(out, r.entries)
	return out
}
