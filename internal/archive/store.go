package archive

import (
	"context"

	"github.com/google/uuid"
)

// Filter narrows List. Zero values are ignored. Business-day bounds are
// inclusive YYYY-MM-DD strings.
type Filter struct {
	ArchiveStatus   Status
	Step6Status     Step6Status
	BusinessDayFrom string
	BusinessDayTo   string
	Limit           int
	Offset          int
}

// Store is the durable archive ledger.
type Store interface {
	// Save upserts the entry for entry.FileID.
	Save(ctx context.Context, entry *Entry) error

	// Get returns the entry for a file, or *ErrNotArchived.
	Get(ctx context.Context, fileID uuid.UUID) (*Entry, error)

	// List returns entries matching the filter, newest first.
	List(ctx context.Context, f Filter) ([]*Entry, error)

	// SetStep6 updates only the Step 6 sub-state fields.
	SetStep6(ctx context.Context, fileID uuid.UUID, status Step6Status, attempts int, note string) error
}
