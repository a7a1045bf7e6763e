package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmsops/mms-ingest/internal/session"
)

// SessionStore implements session.Store on PostgreSQL. Transition maps
// to a single conditional UPDATE, so the compare-and-swap guarantee
// comes straight from row-level locking.
type SessionStore struct {
	db *DB
}

// NewSessionStore returns a session store over the pool.
func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db}
}

const sessionColumns = `id, filename, file_size, file_type, upload_token, phase,
	upload_progress, attempts, max_attempts, priority, schema_version,
	business_day, error_details, processed_records, error_records,
	storage_key, auto_encode, created_at, started_at, completed_at, deleted_at`

func scanSession(row pgx.Row) (*session.Session, error) {
	var s session.Session
	err := row.Scan(
		&s.ID, &s.Filename, &s.FileSize, &s.FileType, &s.UploadToken, &s.Phase,
		&s.UploadProgress, &s.Attempts, &s.MaxAttempts, &s.Priority, &s.SchemaVersion,
		&s.BusinessDay, &s.ErrorDetails, &s.ProcessedRecords, &s.ErrorRecords,
		&s.StorageKey, &s.AutoEncode, &s.CreatedAt, &s.StartedAt, &s.CompletedAt, &s.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (st *SessionStore) Create(ctx context.Context, s *session.Session) error {
	_, err := st.db.pool.Exec(ctx,
		`INSERT INTO upload_sessions
			(id, filename, file_size, file_type, upload_token, phase,
			 max_attempts, priority, auto_encode)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.Filename, s.FileSize, s.FileType, s.UploadToken, s.Phase,
		s.MaxAttempts, s.Priority, s.AutoEncode,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (st *SessionStore) Get(ctx context.Context, id uuid.UUID) (*session.Session, error) {
	row := st.db.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM upload_sessions WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	s, err := scanSession(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, &session.ErrSessionNotFound{FileID: id}
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

func (st *SessionStore) List(ctx context.Context, f session.Filter) ([]*session.Session, int, error) {
	where := "WHERE deleted_at IS NULL"
	args := []any{}
	argNum := 1

	if f.Phase != "" {
		where += fmt.Sprintf(" AND phase = $%d", argNum)
		args = append(args, f.Phase)
		argNum++
	}
	if f.FileType != "" {
		where += fmt.Sprintf(" AND file_type = $%d", argNum)
		args = append(args, f.FileType)
		argNum++
	}
	if f.FilenameContains != "" {
		where += fmt.Sprintf(" AND filename ILIKE $%d", argNum)
		args = append(args, "%"+f.FilenameContains+"%")
		argNum++
	}
	if f.BusinessDayFrom != "" {
		where += fmt.Sprintf(" AND business_day >= $%d", argNum)
		args = append(args, f.BusinessDayFrom)
		argNum++
	}
	if f.BusinessDayTo != "" {
		where += fmt.Sprintf(" AND business_day <= $%d AND business_day <> ''", argNum)
		args = append(args, f.BusinessDayTo)
		argNum++
	}

	var total int
	if err := st.db.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM upload_sessions "+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	orderCol := "created_at"
	switch f.SortBy {
	case "name":
		orderCol = "filename"
	case "size":
		orderCol = "file_size"
	}
	direction := "ASC"
	if f.SortDesc {
		direction = "DESC"
	}

	query := fmt.Sprintf("SELECT %s FROM upload_sessions %s ORDER BY %s %s",
		sessionColumns, where, orderCol, direction)
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, f.Limit)
		argNum++
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, f.Offset)
	}

	rows, err := st.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*session.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, total, nil
}

func (st *SessionStore) Transition(ctx context.Context, id uuid.UUID, expected, target session.Phase, u session.Update) (*session.Session, error) {
	sets := []string{"phase = $3"}
	args := []any{id, expected, target}
	argNum := 4

	set := func(col string, v any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, argNum))
		args = append(args, v)
		argNum++
	}
	if u.FileType != nil {
		set("file_type", *u.FileType)
	}
	if u.SchemaVersion != nil {
		set("schema_version", *u.SchemaVersion)
	}
	if u.ErrorDetails != nil {
		set("error_details", *u.ErrorDetails)
	}
	if u.ProcessedRecords != nil {
		set("processed_records", *u.ProcessedRecords)
	}
	if u.ErrorRecords != nil {
		set("error_records", *u.ErrorRecords)
	}
	if u.Attempts != nil {
		set("attempts", *u.Attempts)
	}
	if u.StorageKey != nil {
		set("storage_key", *u.StorageKey)
	}
	if u.BusinessDay != nil {
		// Immutable once set.
		sets = append(sets, fmt.Sprintf("business_day = CASE WHEN business_day = '' THEN $%d ELSE business_day END", argNum))
		args = append(args, *u.BusinessDay)
		argNum++
	}

	switch target {
	case session.PhaseUploading:
		sets = append(sets, "started_at = COALESCE(started_at, NOW())")
	case session.PhaseCompleted, session.PhaseFailed:
		sets = append(sets, "completed_at = NOW()")
	case session.PhaseStarted:
		sets = append(sets, "completed_at = NULL")
	}

	query := fmt.Sprintf(
		`UPDATE upload_sessions SET %s
		 WHERE id = $1 AND phase = $2 AND deleted_at IS NULL
		 RETURNING %s`,
		strings.Join(sets, ", "), sessionColumns)

	s, err := scanSession(st.db.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if err == pgx.ErrNoRows {
			// Missing row or lost race; read back to tell them apart.
			if _, getErr := st.Get(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, &session.StaleTransitionError{FileID: id, Expected: expected, Target: target}
		}
		return nil, fmt.Errorf("failed to transition session: %w", err)
	}
	return s, nil
}

func (st *SessionStore) SetProgress(ctx context.Context, id uuid.UUID, progress int) error {
	result, err := st.db.pool.Exec(ctx,
		`UPDATE upload_sessions SET upload_progress = $2 WHERE id = $1 AND deleted_at IS NULL`,
		id, progress,
	)
	if err != nil {
		return fmt.Errorf("failed to set progress: %w", err)
	}
	if result.RowsAffected() == 0 {
		return &session.ErrSessionNotFound{FileID: id}
	}
	return nil
}

func (st *SessionStore) SoftDelete(ctx context.Context, ids []uuid.UUID) (int, error) {
	result, err := st.db.pool.Exec(ctx,
		`UPDATE upload_sessions SET deleted_at = NOW() WHERE id = ANY($1) AND deleted_at IS NULL`,
		ids,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	return int(result.RowsAffected()), nil
}

func (st *SessionStore) IsDeleted(ctx context.Context, id uuid.UUID) (bool, error) {
	var deleted bool
	err := st.db.pool.QueryRow(ctx,
		`SELECT deleted_at IS NOT NULL FROM upload_sessions WHERE id = $1`,
		id,
	).Scan(&deleted)
	if err != nil {
		if err == pgx.ErrNoRows {
			return true, nil
		}
		return false, fmt.Errorf("failed to check deletion: %w", err)
	}
	return deleted, nil
}
