package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process queue store with the same claim
// semantics as the Postgres store.
type MemoryStore struct {
	mu        sync.Mutex
	items     map[uuid.UUID]*Item
	completed int
	failed    int
}

// NewMemoryStore returns an empty in-memory queue store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[uuid.UUID]*Item{}}
}

func (m *MemoryStore) Enqueue(_ context.Context, item *Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.items[item.FileID]; exists {
		return fmt.Errorf("file %s is already queued", item.FileID)
	}
	cp := *item
	if cp.QueuedAt.IsZero() {
		cp.QueuedAt = time.Now().UTC()
	}
	cp.Status = StatusWaiting
	m.items[item.FileID] = &cp
	return nil
}

func (m *MemoryStore) DequeueNext(_ context.Context) (*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *Item
	for _, it := range m.items {
		if it.Status != StatusWaiting {
			continue
		}
		if best == nil ||
			it.Priority > best.Priority ||
			(it.Priority == best.Priority && it.QueuedAt.Before(best.QueuedAt)) {
			best = it
		}
	}
	if best == nil {
		return nil, nil
	}
	now := time.Now().UTC()
	best.Status = StatusProcessing
	best.StartedAt = &now
	cp := *best
	return &cp, nil
}

func (m *MemoryStore) Get(_ context.Context, fileID uuid.UUID) (*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[fileID]
	if !ok {
		return nil, &ErrNotQueued{FileID: fileID}
	}
	cp := *it
	return &cp, nil
}

func (m *MemoryStore) Release(_ context.Context, fileID uuid.UUID, attempts, priority int, errDetails string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[fileID]
	if !ok {
		return &ErrNotQueued{FileID: fileID}
	}
	it.Status = StatusWaiting
	it.StartedAt = nil
	it.Attempts = attempts
	it.Priority = priority
	it.ErrorDetails = errDetails
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, fileID uuid.UUID, succeeded bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[fileID]; !ok {
		return &ErrNotQueued{FileID: fileID}
	}
	delete(m.items, fileID)
	if succeeded {
		m.completed++
	} else {
		m.failed++
	}
	return nil
}

func (m *MemoryStore) Expire(_ context.Context, cutoff time.Time) ([]*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []*Item
	for _, it := range m.items {
		if it.Status != StatusProcessing || it.StartedAt == nil || !it.StartedAt.Before(cutoff) {
			continue
		}
		cp := *it
		expired = append(expired, &cp)
		it.Status = StatusWaiting
		it.StartedAt = nil
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].QueuedAt.Before(expired[j].QueuedAt) })
	return expired, nil
}

func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{Completed: m.completed, Failed: m.failed}
	for _, it := range m.items {
		switch it.Status {
		case StatusProcessing:
			s.Active++
		case StatusWaiting:
			s.Waiting++
		}
	}
	return s, nil
}
