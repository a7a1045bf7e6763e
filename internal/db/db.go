// Package db provides PostgreSQL-backed implementations of the session,
// queue, record, archive and schema stores.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Migrate creates the tables if they do not exist. Idempotent; run at
// startup by the serve and worker commands.
func (db *DB) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS upload_sessions (
			id UUID PRIMARY KEY,
			filename TEXT NOT NULL,
			file_size BIGINT NOT NULL DEFAULT 0,
			file_type TEXT NOT NULL DEFAULT '',
			upload_token TEXT NOT NULL DEFAULT '',
			phase TEXT NOT NULL,
			upload_progress INT NOT NULL DEFAULT 0,
			attempts INT NOT NULL DEFAULT 0,
			max_attempts INT NOT NULL DEFAULT 3,
			priority INT NOT NULL DEFAULT 50,
			schema_version INT NOT NULL DEFAULT 0,
			business_day TEXT NOT NULL DEFAULT '',
			error_details TEXT NOT NULL DEFAULT '',
			processed_records BIGINT NOT NULL DEFAULT 0,
			error_records BIGINT NOT NULL DEFAULT 0,
			storage_key TEXT NOT NULL DEFAULT '',
			auto_encode BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			deleted_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS processing_queue (
			file_id UUID PRIMARY KEY REFERENCES upload_sessions(id) ON DELETE CASCADE,
			priority INT NOT NULL DEFAULT 50,
			status TEXT NOT NULL DEFAULT 'waiting',
			attempts INT NOT NULL DEFAULT 0,
			max_attempts INT NOT NULL DEFAULT 3,
			queued_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			started_at TIMESTAMPTZ,
			error_details TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS queue_outcomes (
			outcome TEXT PRIMARY KEY,
			count BIGINT NOT NULL DEFAULT 0
		)`,
		`INSERT INTO queue_outcomes (outcome, count) VALUES ('completed', 0), ('failed', 0)
			ON CONFLICT (outcome) DO NOTHING`,
		`CREATE TABLE IF NOT EXISTS decoded_records (
			file_id UUID NOT NULL REFERENCES upload_sessions(id) ON DELETE CASCADE,
			line_number INT NOT NULL,
			record_type TEXT NOT NULL DEFAULT '',
			raw_line TEXT NOT NULL,
			fields JSONB,
			field_errors TEXT[],
			passthrough BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (file_id, line_number)
		)`,
		`CREATE TABLE IF NOT EXISTS archives (
			file_id UUID PRIMARY KEY REFERENCES upload_sessions(id) ON DELETE CASCADE,
			archive_filename TEXT NOT NULL,
			archive_path TEXT NOT NULL,
			archive_status TEXT NOT NULL,
			step6_status TEXT NOT NULL DEFAULT '',
			step6_attempts INT NOT NULL DEFAULT 0,
			step6_note TEXT NOT NULL DEFAULT '',
			record_count BIGINT NOT NULL DEFAULT 0,
			business_day TEXT NOT NULL,
			archived_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS record_schemas (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			file_type TEXT NOT NULL,
			version INT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			document JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (file_type, version)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_phase ON upload_sessions (phase) WHERE deleted_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_queue_claim ON processing_queue (status, priority DESC, queued_at ASC)`,
		`CREATE INDEX IF NOT EXISTS idx_archives_business_day ON archives (business_day)`,
	}

	for _, stmt := range statements {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}
