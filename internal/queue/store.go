package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the durable queue state. DequeueNext and Expire are the
// contended operations and must be atomic: no two workers may claim the
// same item.
type Store interface {
	// Enqueue adds a waiting item. Re-enqueueing an existing file is an
	// error; the item must be removed first.
	Enqueue(ctx context.Context, item *Item) error

	// DequeueNext atomically claims the highest-priority waiting item
	// (FIFO within a priority band) and marks it processing with a
	// start timestamp. Returns nil when the queue is empty.
	DequeueNext(ctx context.Context) (*Item, error)

	// Get returns the item for a file, or *ErrNotQueued.
	Get(ctx context.Context, fileID uuid.UUID) (*Item, error)

	// Release returns a processing item to waiting after a failed
	// attempt, with updated attempts, priority and error details.
	Release(ctx context.Context, fileID uuid.UUID, attempts, priority int, errDetails string) error

	// Remove deletes the item, recording the outcome in the completed
	// or failed counter.
	Remove(ctx context.Context, fileID uuid.UUID, succeeded bool) error

	// Expire atomically flips processing items whose start time is
	// before cutoff back to waiting and returns them as they were when
	// claimed. Attempt and priority accounting stays with the caller.
	Expire(ctx context.Context, cutoff time.Time) ([]*Item, error)

	// Stats reports queue occupancy and historical outcome counters.
	Stats(ctx context.Context) (Stats, error)
}
