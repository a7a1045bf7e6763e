package archive

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process archive ledger for tests and single-node
// development.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*Entry
}

// NewMemoryStore returns an empty in-memory archive store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[uuid.UUID]*Entry{}}
}

func (m *MemoryStore) Save(_ context.Context, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.entries[entry.FileID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, fileID uuid.UUID) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[fileID]
	if !ok {
		return nil, &ErrNotArchived{FileID: fileID}
	}
	cp := *e
	return &cp, nil
}

func (m *MemoryStore) List(_ context.Context, f Filter) ([]*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Entry
	for _, e := range m.entries {
		if f.ArchiveStatus != "" && e.ArchiveStatus != f.ArchiveStatus {
			continue
		}
		if f.Step6Status != "" && e.Step6Status != f.Step6Status {
			continue
		}
		if f.BusinessDayFrom != "" && e.BusinessDay < f.BusinessDayFrom {
			continue
		}
		if f.BusinessDayTo != "" && e.BusinessDay > f.BusinessDayTo {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ArchivedAt.After(out[j].ArchivedAt) })

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryStore) SetStep6(_ context.Context, fileID uuid.UUID, status Step6Status, attempts int, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[fileID]
	if !ok {
		return &ErrNotArchived{FileID: fileID}
	}
	e.Step6Status = status
	e.Step6Attempts = attempts
	e.Step6Note = note
	return nil
}
