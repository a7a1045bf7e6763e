package session

import (
	"context"

	"github.com/google/uuid"
)

// Update carries the field changes applied atomically with a phase
// transition. Nil pointers leave the stored value untouched.
type Update struct {
	FileType         *string
	SchemaVersion    *int
	ErrorDetails     *string
	ProcessedRecords *int64
	ErrorRecords     *int64
	BusinessDay      *string
	Attempts         *int
	StorageKey       *string
}

// Filter selects sessions for listing. Zero values mean "no
// constraint".
type Filter struct {
	Phase            Phase
	FileType         string
	FilenameContains string
	BusinessDayFrom  string
	BusinessDayTo    string
	SortBy           string // "name", "date" (default), "size"
	SortDesc         bool
	Limit            int
	Offset           int
}

// Store is the durable home of upload sessions. Transition is the only
// mutation the pipeline performs and must be an atomic compare-and-swap
// on (id, expectedPhase): implementations guarantee exactly one winner
// under concurrent callers.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	List(ctx context.Context, f Filter) ([]*Session, int, error)

	// Transition swaps phase from expected to target and applies the
	// update in the same atomic step. Returns *StaleTransitionError if
	// the stored phase is not expected, *ErrSessionNotFound if the
	// session is missing or soft-deleted.
	Transition(ctx context.Context, id uuid.UUID, expected, target Phase, u Update) (*Session, error)

	// SetProgress records chunked-upload progress in [0,100] without a
	// phase change.
	SetProgress(ctx context.Context, id uuid.UUID, progress int) error

	// SoftDelete marks sessions deleted; in-flight workers observe
	// this and abort without transitioning phase.
	SoftDelete(ctx context.Context, ids []uuid.UUID) (int, error)

	// IsDeleted reports soft-deletion status; checked by workers
	// before each persist.
	IsDeleted(ctx context.Context, id uuid.UUID) (bool, error)
}
