package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/mmsops/mms-ingest/internal/schema"
)

// SchemaStore persists registered schema documents so the in-memory
// registry can be rebuilt at startup. The registry remains the
// authority at decode time; rows here are the durable source it loads
// from.
type SchemaStore struct {
	db *DB
}

// NewSchemaStore returns a schema store over the pool.
func NewSchemaStore(db *DB) *SchemaStore {
	return &SchemaStore{db: db}
}

func (st *SchemaStore) Save(ctx context.Context, s *schema.Schema) error {
	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal schema %s: %w", s.Name, err)
	}
	_, err = st.db.pool.Exec(ctx,
		`INSERT INTO record_schemas (id, name, file_type, version, is_active, document)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET is_active = $5, document = $6`,
		s.ID, s.Name, s.FileType, s.Version, s.IsActive, doc,
	)
	if err != nil {
		return fmt.Errorf("failed to save schema %s: %w", s.Name, err)
	}
	return nil
}

func (st *SchemaStore) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	result, err := st.db.pool.Exec(ctx,
		`UPDATE record_schemas
		 SET is_active = $2, document = jsonb_set(document, '{is_active}', to_jsonb($2::BOOLEAN))
		 WHERE id = $1`,
		id, active,
	)
	if err != nil {
		return fmt.Errorf("failed to update schema %s: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("schema %s is not registered", id)
	}
	return nil
}

// LoadAll returns every stored schema, oldest version first.
func (st *SchemaStore) LoadAll(ctx context.Context) ([]schema.Schema, error) {
	rows, err := st.db.pool.Query(ctx,
		`SELECT document FROM record_schemas ORDER BY file_type, version ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load schemas: %w", err)
	}
	defer rows.Close()

	var schemas []schema.Schema
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan schema: %w", err)
		}
		var s schema.Schema
		if err := json.Unmarshal(doc, &s); err != nil {
			return nil, fmt.Errorf("failed to unmarshal schema: %w", err)
		}
		schemas = append(schemas, s)
	}
	return schemas, nil
}

// LoadRegistry builds a registry from the stored schemas, falling back
// to the built-in defaults when the table is empty.
func (st *SchemaStore) LoadRegistry(ctx context.Context) (*schema.Registry, error) {
	stored, err := st.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return schema.DefaultRegistry(), nil
	}
	r := schema.NewRegistry()
	for _, s := range stored {
		if _, err := r.Register(s); err != nil {
			return nil, fmt.Errorf("failed to register stored schema %s: %w", s.Name, err)
		}
	}
	return r, nil
}
