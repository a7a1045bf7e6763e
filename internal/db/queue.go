package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmsops/mms-ingest/internal/queue"
)

// QueueStore implements queue.Store on PostgreSQL. Claims use
// FOR UPDATE SKIP LOCKED so concurrent workers never fight over the
// same row.
type QueueStore struct {
	db *DB
}

// NewQueueStore returns a queue store over the pool.
func NewQueueStore(db *DB) *QueueStore {
	return &QueueStore{db: db}
}

const queueColumns = `file_id, priority, status, attempts, max_attempts, queued_at, started_at, error_details`

func scanItem(row pgx.Row) (*queue.Item, error) {
	var it queue.Item
	err := row.Scan(&it.FileID, &it.Priority, &it.Status, &it.Attempts,
		&it.MaxAttempts, &it.QueuedAt, &it.StartedAt, &it.ErrorDetails)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (st *QueueStore) Enqueue(ctx context.Context, item *queue.Item) error {
	queuedAt := item.QueuedAt
	if queuedAt.IsZero() {
		queuedAt = time.Now().UTC()
	}
	_, err := st.db.pool.Exec(ctx,
		`INSERT INTO processing_queue (file_id, priority, status, attempts, max_attempts, queued_at)
		 VALUES ($1, $2, 'waiting', $3, $4, $5)`,
		item.FileID, item.Priority, item.Attempts, item.MaxAttempts, queuedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue file %s: %w", item.FileID, err)
	}
	return nil
}

func (st *QueueStore) DequeueNext(ctx context.Context) (*queue.Item, error) {
	row := st.db.pool.QueryRow(ctx,
		`UPDATE processing_queue SET status = 'processing', started_at = NOW()
		 WHERE file_id = (
			SELECT file_id FROM processing_queue
			WHERE status = 'waiting'
			ORDER BY priority DESC, queued_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+queueColumns,
	)
	it, err := scanItem(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}
	return it, nil
}

func (st *QueueStore) Get(ctx context.Context, fileID uuid.UUID) (*queue.Item, error) {
	row := st.db.pool.QueryRow(ctx,
		`SELECT `+queueColumns+` FROM processing_queue WHERE file_id = $1`,
		fileID,
	)
	it, err := scanItem(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, &queue.ErrNotQueued{FileID: fileID}
		}
		return nil, fmt.Errorf("failed to get queue item: %w", err)
	}
	return it, nil
}

func (st *QueueStore) Release(ctx context.Context, fileID uuid.UUID, attempts, priority int, errDetails string) error {
	result, err := st.db.pool.Exec(ctx,
		`UPDATE processing_queue
		 SET status = 'waiting', started_at = NULL, attempts = $2, priority = $3, error_details = $4
		 WHERE file_id = $1`,
		fileID, attempts, priority, errDetails,
	)
	if err != nil {
		return fmt.Errorf("failed to release queue item: %w", err)
	}
	if result.RowsAffected() == 0 {
		return &queue.ErrNotQueued{FileID: fileID}
	}
	return nil
}

func (st *QueueStore) Remove(ctx context.Context, fileID uuid.UUID, succeeded bool) error {
	outcome := "failed"
	if succeeded {
		outcome = "completed"
	}

	tx, err := st.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin removal: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `DELETE FROM processing_queue WHERE file_id = $1`, fileID)
	if err != nil {
		return fmt.Errorf("failed to remove queue item: %w", err)
	}
	if result.RowsAffected() == 0 {
		return &queue.ErrNotQueued{FileID: fileID}
	}
	if _, err := tx.Exec(ctx,
		`UPDATE queue_outcomes SET count = count + 1 WHERE outcome = $1`, outcome,
	); err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	return tx.Commit(ctx)
}

func (st *QueueStore) Expire(ctx context.Context, cutoff time.Time) ([]*queue.Item, error) {
	rows, err := st.db.pool.Query(ctx,
		`WITH claimed AS (
			SELECT file_id, priority, status, attempts, max_attempts, queued_at, started_at, error_details
			FROM processing_queue
			WHERE status = 'processing' AND started_at < $1
			FOR UPDATE SKIP LOCKED
		 )
		 UPDATE processing_queue q
		 SET status = 'waiting', started_at = NULL
		 FROM claimed c
		 WHERE q.file_id = c.file_id
		 RETURNING c.file_id, c.priority, c.status, c.attempts, c.max_attempts, c.queued_at, c.started_at, c.error_details`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to expire queue items: %w", err)
	}
	defer rows.Close()

	var expired []*queue.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expired item: %w", err)
		}
		expired = append(expired, it)
	}
	return expired, nil
}

func (st *QueueStore) Stats(ctx context.Context) (queue.Stats, error) {
	var s queue.Stats
	err := st.db.pool.QueryRow(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'waiting')
		 FROM processing_queue`,
	).Scan(&s.Active, &s.Waiting)
	if err != nil {
		return queue.Stats{}, fmt.Errorf("failed to read queue stats: %w", err)
	}

	rows, err := st.db.pool.Query(ctx, `SELECT outcome, count FROM queue_outcomes`)
	if err != nil {
		return queue.Stats{}, fmt.Errorf("failed to read queue outcomes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return queue.Stats{}, fmt.Errorf("failed to scan queue outcome: %w", err)
		}
		switch outcome {
		case "completed":
			s.Completed = count
		case "failed":
			s.Failed = count
		}
	}
	return s, nil
}
