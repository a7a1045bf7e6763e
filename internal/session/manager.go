package session

import (
	"context"

	"github.com/google/uuid"
)

// Manager enforces the phase graph and guards on top of a Store. All
// pipeline and API phase changes go through it.
type Manager struct {
	store Store
}

// NewManager wraps a session store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Store exposes the underlying store for read paths.
func (m *Manager) Store() Store { return m.store }

// Start creates a new session in the started phase. autoEncode
// requests the enrichment step immediately after archiving instead of
// waiting for a manual batch.
func (m *Manager) Start(ctx context.Context, filename string, fileSize int64, fileType, uploadToken string, autoEncode bool) (*Session, error) {
	s := &Session{
		ID:          uuid.New(),
		Filename:    filename,
		FileSize:    fileSize,
		FileType:    fileType,
		UploadToken: uploadToken,
		Phase:       PhaseStarted,
		MaxAttempts: DefaultMaxAttempts,
		Priority:    DefaultPriority,
		AutoEncode:  autoEncode,
	}
	if err := m.store.Create(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Advance moves a session from its current phase to target, applying
// the update atomically. Validates the edge and the upload-progress
// guard against the freshly read state; the store's CAS still decides
// the race, so concurrent callers get exactly one winner and the loser
// sees *StaleTransitionError.
func (m *Manager) Advance(ctx context.Context, id uuid.UUID, target Phase, u Update) (*Session, error) {
	cur, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.advanceFrom(ctx, cur, target, u)
}

func (m *Manager) advanceFrom(ctx context.Context, cur *Session, target Phase, u Update) (*Session, error) {
	if !CanTransition(cur.Phase, target) {
		return nil, &ErrIllegalTransition{From: cur.Phase, To: target}
	}
	if cur.Phase == PhaseUploading && target == PhaseUploaded && cur.UploadProgress < 100 {
		return nil, &ErrUploadIncomplete{FileID: cur.ID, Progress: cur.UploadProgress}
	}
	return m.store.Transition(ctx, cur.ID, cur.Phase, target, u)
}

// Fail moves a session to failed from whatever phase it currently
// holds, recording the most recent failure cause. Safe to call from
// any non-failed phase.
func (m *Manager) Fail(ctx context.Context, id uuid.UUID, attempts int, cause string) (*Session, error) {
	cur, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Phase == PhaseFailed {
		return cur, nil
	}
	return m.store.Transition(ctx, id, cur.Phase, PhaseFailed, Update{
		ErrorDetails: &cause,
		Attempts:     &attempts,
	})
}

// Reprocess resets a failed session back to started with attempts
// cleared, making it eligible for re-enqueue at default priority.
func (m *Manager) Reprocess(ctx context.Context, id uuid.UUID) (*Session, error) {
	cur, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Phase != PhaseFailed {
		return nil, &ErrIllegalTransition{From: cur.Phase, To: PhaseStarted}
	}
	zero := 0
	empty := ""
	return m.store.Transition(ctx, id, PhaseFailed, PhaseStarted, Update{
		Attempts:     &zero,
		ErrorDetails: &empty,
	})
}
