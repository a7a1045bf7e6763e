package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmsops/mms-ingest/internal/decoder"
)

// RecordStore implements pipeline.RecordStore on PostgreSQL. Decoded
// field maps land in a JSONB column; the raw line is kept verbatim for
// audits and re-encoding.
type RecordStore struct {
	db *DB
}

// NewRecordStore returns a record store over the pool.
func NewRecordStore(db *DB) *RecordStore {
	return &RecordStore{db: db}
}

func (st *RecordStore) SaveBatch(ctx context.Context, fileID uuid.UUID, records []*decoder.DecodedRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		fields, err := json.Marshal(r.Fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields for line %d: %w", r.LineNumber, err)
		}
		var fieldErrors []string
		for _, fe := range r.FieldErrors {
			fieldErrors = append(fieldErrors, fe.Error())
		}
		batch.Queue(
			`INSERT INTO decoded_records (file_id, line_number, record_type, raw_line, fields, field_errors, passthrough)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (file_id, line_number)
			 DO UPDATE SET record_type = $3, raw_line = $4, fields = $5, field_errors = $6, passthrough = $7`,
			fileID, r.LineNumber, r.RecordType, r.RawLine, fields, fieldErrors, r.Passthrough,
		)
	}

	results := st.db.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to persist record batch: %w", err)
		}
	}
	return nil
}

func (st *RecordStore) LastLine(ctx context.Context, fileID uuid.UUID) (int, error) {
	var last int
	err := st.db.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(line_number), 0) FROM decoded_records WHERE file_id = $1`,
		fileID,
	).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("failed to read last line: %w", err)
	}
	return last, nil
}

func (st *RecordStore) ListByFile(ctx context.Context, fileID uuid.UUID) ([]*decoder.DecodedRecord, error) {
	rows, err := st.db.pool.Query(ctx,
		`SELECT line_number, record_type, raw_line, fields, field_errors, passthrough
		 FROM decoded_records WHERE file_id = $1 ORDER BY line_number ASC`,
		fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []*decoder.DecodedRecord
	for rows.Next() {
		r := &decoder.DecodedRecord{FileID: fileID}
		var fields []byte
		var fieldErrors []string
		if err := rows.Scan(&r.LineNumber, &r.RecordType, &r.RawLine, &fields, &fieldErrors, &r.Passthrough); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if len(fields) > 0 {
			if err := json.Unmarshal(fields, &r.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields for line %d: %w", r.LineNumber, err)
			}
		}
		for _, msg := range fieldErrors {
			r.FieldErrors = append(r.FieldErrors, fmt.Errorf("%s", msg))
		}
		records = append(records, r)
	}
	return records, nil
}

func (st *RecordStore) DeleteByFile(ctx context.Context, fileID uuid.UUID) error {
	_, err := st.db.pool.Exec(ctx, `DELETE FROM decoded_records WHERE file_id = $1`, fileID)
	if err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	return nil
}
