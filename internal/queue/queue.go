// Package queue orders files for processing work, tracks attempts and
// backoff, and requeues items abandoned by crashed workers.
package queue

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status of a queue item. Terminal items are removed from the queue
// entirely; only the owning session keeps the outcome.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusProcessing Status = "processing"
)

const (
	// PriorityCap bounds automatic priority elevation.
	PriorityCap = 100
	// PriorityBump is added after each failed attempt so retried files
	// are not starved by a steady stream of fresh uploads.
	PriorityBump = 10
)

// DefaultProcessingTimeout is how long an item may sit in processing
// before the reaper treats its worker as crashed.
const DefaultProcessingTimeout = 15 * time.Minute

// Item is one file's place in the processing queue. One-to-one with an
// upload session while queued.
type Item struct {
	FileID       uuid.UUID  `json:"file_id"`
	Priority     int        `json:"priority"`
	Status       Status     `json:"status"`
	Attempts     int        `json:"attempts"`
	MaxAttempts  int        `json:"max_attempts"`
	QueuedAt     time.Time  `json:"queued_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	ErrorDetails string     `json:"error_details,omitempty"`
}

// Stats summarizes queue occupancy for the batch-status endpoint.
type Stats struct {
	Active    int `json:"active"`
	Waiting   int `json:"waiting"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// TimeoutError marks a processing item abandoned past its wall-clock
// budget. The reaper requeues such items with an incremented attempt
// count.
type TimeoutError struct {
	FileID uuid.UUID
	Age    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("processing timed out for %s after %s", e.FileID, e.Age.Round(time.Second))
}

// MaxAttemptsExceededError is terminal: the owning session moves to
// failed and the item leaves the queue. Recovery requires a manual
// reprocess.
type MaxAttemptsExceededError struct {
	FileID   uuid.UUID
	Attempts int
	Cause    string
}

func (e *MaxAttemptsExceededError) Error() string {
	return fmt.Sprintf("file %s failed after %d attempts: %s", e.FileID, e.Attempts, e.Cause)
}

// ErrNotQueued reports an operation against a file with no queue item.
type ErrNotQueued struct {
	FileID uuid.UUID
}

func (e *ErrNotQueued) Error() string {
	return fmt.Sprintf("file %s is not queued", e.FileID)
}
