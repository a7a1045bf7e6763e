package queue

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/mmsops/mms-ingest/internal/session"
)

// Queue applies the retry policy on top of a Store: bounded attempts,
// priority elevation on failure, and terminal hand-off to the owning
// session's failed phase.
type Queue struct {
	store    Store
	sessions *session.Manager
	timeout  time.Duration
}

// New builds a queue over a store and the session manager that owns
// terminal failures.
func New(store Store, sessions *session.Manager, processingTimeout time.Duration) *Queue {
	if processingTimeout <= 0 {
		processingTimeout = DefaultProcessingTimeout
	}
	return &Queue{store: store, sessions: sessions, timeout: processingTimeout}
}

// Store exposes the underlying store for read paths.
func (q *Queue) Store() Store { return q.store }

// Enqueue adds a file at the given priority (DefaultPriority when out
// of range is the caller's concern; values are clamped to [0,100]).
func (q *Queue) Enqueue(ctx context.Context, fileID uuid.UUID, priority, maxAttempts int) error {
	if priority < 0 {
		priority = 0
	}
	if priority > PriorityCap {
		priority = PriorityCap
	}
	if maxAttempts <= 0 {
		maxAttempts = session.DefaultMaxAttempts
	}
	return q.store.Enqueue(ctx, &Item{
		FileID:      fileID,
		Priority:    priority,
		MaxAttempts: maxAttempts,
	})
}

// DequeueNext claims the next item for a worker. Nil means empty.
func (q *Queue) DequeueNext(ctx context.Context) (*Item, error) {
	return q.store.DequeueNext(ctx)
}

// Complete removes a successfully processed item from the queue. The
// session keeps its own completed phase; the queue forgets the file.
func (q *Queue) Complete(ctx context.Context, fileID uuid.UUID) error {
	return q.store.Remove(ctx, fileID, true)
}

// Fail records a failed attempt. Below the attempt bound the item
// returns to waiting with elevated priority; at the bound the item is
// removed, the session moves to terminal failed, and the returned error
// is a *MaxAttemptsExceededError. errorDetails always holds the most
// recent cause, not the history.
func (q *Queue) Fail(ctx context.Context, fileID uuid.UUID, cause error) error {
	it, err := q.store.Get(ctx, fileID)
	if err != nil {
		return err
	}

	attempts := it.Attempts + 1
	if attempts >= it.MaxAttempts {
		if err := q.store.Remove(ctx, fileID, false); err != nil {
			return err
		}
		if _, err := q.sessions.Fail(ctx, fileID, attempts, cause.Error()); err != nil {
			log.Printf("queue: failed to mark session %s failed: %v", fileID, err)
		}
		return &MaxAttemptsExceededError{FileID: fileID, Attempts: attempts, Cause: cause.Error()}
	}

	return q.store.Release(ctx, fileID, attempts, elevated(it.Priority), cause.Error())
}

// elevated bumps a priority for the next retry, bounded by the cap.
func elevated(priority int) int {
	priority += PriorityBump
	if priority > PriorityCap {
		priority = PriorityCap
	}
	return priority
}

// Reap requeues items stuck in processing past the timeout, applying
// the same attempt accounting and priority elevation as a worker
// failure. Items that blow the attempt bound go terminal here too.
// Returns the number requeued.
func (q *Queue) Reap(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-q.timeout)
	expired, err := q.store.Expire(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, it := range expired {
		age := q.timeout
		if it.StartedAt != nil {
			age = time.Since(*it.StartedAt)
		}
		timeoutErr := &TimeoutError{FileID: it.FileID, Age: age}
		attempts := it.Attempts + 1
		log.Printf("queue: reaped %s (attempt %d/%d): %v", it.FileID, attempts, it.MaxAttempts, timeoutErr)

		if attempts >= it.MaxAttempts {
			if err := q.store.Remove(ctx, it.FileID, false); err != nil {
				return requeued, err
			}
			if _, err := q.sessions.Fail(ctx, it.FileID, attempts, timeoutErr.Error()); err != nil {
				log.Printf("queue: failed to mark session %s failed: %v", it.FileID, err)
			}
			continue
		}
		if err := q.store.Release(ctx, it.FileID, attempts, elevated(it.Priority), timeoutErr.Error()); err != nil {
			return requeued, err
		}
		requeued++
	}
	return requeued, nil
}

// RunReaper loops Reap on an interval until the context is cancelled.
func (q *Queue) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := q.Reap(ctx); err != nil {
				log.Printf("queue: reaper error: %v", err)
			}
		}
	}
}

// Stats reports queue occupancy.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	return q.store.Stats(ctx)
}
