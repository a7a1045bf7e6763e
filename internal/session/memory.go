package session

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store with the same CAS semantics as the
// Postgres store. Used by tests and single-process deployments.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

// NewMemoryStore returns an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[uuid.UUID]*Session{}}
}

func (m *MemoryStore) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.DeletedAt != nil {
		return nil, &ErrSessionNotFound{FileID: id}
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) List(_ context.Context, f Filter) ([]*Session, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*Session
	for _, s := range m.sessions {
		if s.DeletedAt != nil {
			continue
		}
		if f.Phase != "" && s.Phase != f.Phase {
			continue
		}
		if f.FileType != "" && s.FileType != f.FileType {
			continue
		}
		if f.FilenameContains != "" && !strings.Contains(strings.ToLower(s.Filename), strings.ToLower(f.FilenameContains)) {
			continue
		}
		if f.BusinessDayFrom != "" && (s.BusinessDay == "" || s.BusinessDay < f.BusinessDayFrom) {
			continue
		}
		if f.BusinessDayTo != "" && (s.BusinessDay == "" || s.BusinessDay > f.BusinessDayTo) {
			continue
		}
		cp := *s
		matched = append(matched, &cp)
	}

	less := func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) }
	switch f.SortBy {
	case "name":
		less = func(i, j int) bool { return matched[i].Filename < matched[j].Filename }
	case "size":
		less = func(i, j int) bool { return matched[i].FileSize < matched[j].FileSize }
	}
	if f.SortDesc {
		inner := less
		less = func(i, j int) bool { return inner(j, i) }
	}
	sort.SliceStable(matched, less)

	total := len(matched)
	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[f.Offset:]
		}
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

func (m *MemoryStore) Transition(_ context.Context, id uuid.UUID, expected, target Phase, u Update) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok || s.DeletedAt != nil {
		return nil, &ErrSessionNotFound{FileID: id}
	}
	if s.Phase != expected {
		return nil, &StaleTransitionError{FileID: id, Expected: expected, Target: target}
	}

	s.Phase = target
	applyUpdate(s, u)
	now := time.Now().UTC()
	switch target {
	case PhaseUploading:
		if s.StartedAt == nil {
			s.StartedAt = &now
		}
	case PhaseCompleted, PhaseFailed:
		s.CompletedAt = &now
	case PhaseStarted:
		// Reprocess: clear the previous run's completion marker.
		s.CompletedAt = nil
	}
	cp := *s
	return &cp, nil
}

func applyUpdate(s *Session, u Update) {
	if u.FileType != nil {
		s.FileType = *u.FileType
	}
	if u.SchemaVersion != nil {
		s.SchemaVersion = *u.SchemaVersion
	}
	if u.ErrorDetails != nil {
		s.ErrorDetails = *u.ErrorDetails
	}
	if u.ProcessedRecords != nil {
		s.ProcessedRecords = *u.ProcessedRecords
	}
	if u.ErrorRecords != nil {
		s.ErrorRecords = *u.ErrorRecords
	}
	if u.BusinessDay != nil && s.BusinessDay == "" {
		// Business day is computed once; reprocessing never changes it.
		s.BusinessDay = *u.BusinessDay
	}
	if u.Attempts != nil {
		s.Attempts = *u.Attempts
	}
	if u.StorageKey != nil {
		s.StorageKey = *u.StorageKey
	}
}

func (m *MemoryStore) SetProgress(_ context.Context, id uuid.UUID, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.DeletedAt != nil {
		return &ErrSessionNotFound{FileID: id}
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	s.UploadProgress = progress
	return nil
}

func (m *MemoryStore) SoftDelete(_ context.Context, ids []uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	deleted := 0
	for _, id := range ids {
		if s, ok := m.sessions[id]; ok && s.DeletedAt == nil {
			s.DeletedAt = &now
			deleted++
		}
	}
	return deleted, nil
}

func (m *MemoryStore) IsDeleted(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return true, nil
	}
	return s.DeletedAt != nil, nil
}
