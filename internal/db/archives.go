package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmsops/mms-ingest/internal/archive"
)

// ArchiveStore implements archive.Store on PostgreSQL.
type ArchiveStore struct {
	db *DB
}

// NewArchiveStore returns an archive store over the pool.
func NewArchiveStore(db *DB) *ArchiveStore {
	return &ArchiveStore{db: db}
}

const archiveColumns = `file_id, archive_filename, archive_path, archive_status,
	step6_status, step6_attempts, step6_note, record_count, business_day, archived_at`

func scanEntry(row pgx.Row) (*archive.Entry, error) {
	var e archive.Entry
	err := row.Scan(&e.FileID, &e.ArchiveFilename, &e.ArchivePath, &e.ArchiveStatus,
		&e.Step6Status, &e.Step6Attempts, &e.Step6Note, &e.RecordCount, &e.BusinessDay, &e.ArchivedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (st *ArchiveStore) Save(ctx context.Context, entry *archive.Entry) error {
	_, err := st.db.pool.Exec(ctx,
		`INSERT INTO archives
			(file_id, archive_filename, archive_path, archive_status,
			 step6_status, step6_attempts, step6_note, record_count, business_day, archived_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (file_id) DO UPDATE SET
			archive_filename = $2, archive_path = $3, archive_status = $4,
			step6_status = $5, step6_attempts = $6, step6_note = $7,
			record_count = $8, business_day = $9, archived_at = $10`,
		entry.FileID, entry.ArchiveFilename, entry.ArchivePath, entry.ArchiveStatus,
		entry.Step6Status, entry.Step6Attempts, entry.Step6Note, entry.RecordCount,
		entry.BusinessDay, entry.ArchivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save archive entry: %w", err)
	}
	return nil
}

func (st *ArchiveStore) Get(ctx context.Context, fileID uuid.UUID) (*archive.Entry, error) {
	row := st.db.pool.QueryRow(ctx,
		`SELECT `+archiveColumns+` FROM archives WHERE file_id = $1`,
		fileID,
	)
	e, err := scanEntry(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, &archive.ErrNotArchived{FileID: fileID}
		}
		return nil, fmt.Errorf("failed to get archive entry: %w", err)
	}
	return e, nil
}

func (st *ArchiveStore) List(ctx context.Context, f archive.Filter) ([]*archive.Entry, error) {
	query := `SELECT ` + archiveColumns + ` FROM archives WHERE 1=1`
	args := []any{}
	argNum := 1

	if f.ArchiveStatus != "" {
		query += fmt.Sprintf(" AND archive_status = $%d", argNum)
		args = append(args, f.ArchiveStatus)
		argNum++
	}
	if f.Step6Status != "" {
		query += fmt.Sprintf(" AND step6_status = $%d", argNum)
		args = append(args, f.Step6Status)
		argNum++
	}
	if f.BusinessDayFrom != "" {
		query += fmt.Sprintf(" AND business_day >= $%d", argNum)
		args = append(args, f.BusinessDayFrom)
		argNum++
	}
	if f.BusinessDayTo != "" {
		query += fmt.Sprintf(" AND business_day <= $%d", argNum)
		args = append(args, f.BusinessDayTo)
		argNum++
	}

	query += " ORDER BY archived_at DESC"
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
		return nil, fmt.Errorf("failed to list archive entries: %w", err)
	}
	defer rows.Close()

	var entries []*archive.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan archive entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (st *ArchiveStore) SetStep6(ctx context.Context, fileID uuid.UUID, status archive.Step6Status, attempts int, note string) error {
	result, err := st.db.pool.Exec(ctx,
		`UPDATE archives SET step6_status = $2, step6_attempts = $3, step6_note = $4 WHERE file_id = $1`,
		fileID, status, attempts, note,
	)
	if err != nil {
		return fmt.Errorf("failed to update step 6 state: %w", err)
	}
	if result.RowsAffected() == 0 {
		return &archive.ErrNotArchived{FileID: fileID}
	}
	return nil
}
