package pipeline

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/mmsops/mms-ingest/internal/decoder"
)

// RecordStore persists decoded records. Batches are written in
// ascending line order; LastLine is what lets a retried file resume
// where the previous attempt stopped instead of re-decoding from the
// top.
type RecordStore interface {
	// SaveBatch persists a batch of records for one file. Records
	// already present for a line number are replaced, keeping retries
	// idempotent.
	SaveBatch(ctx context.Context, fileID uuid.UUID, records []*decoder.DecodedRecord) error

	// LastLine returns the highest durably recorded line number for a
	// file, 0 when none.
	LastLine(ctx context.Context, fileID uuid.UUID) (int, error)

	// ListByFile returns a file's records in ascending line order.
	ListByFile(ctx context.Context, fileID uuid.UUID) ([]*decoder.DecodedRecord, error)

	// DeleteByFile removes all records for a file.
	DeleteByFile(ctx context.Context, fileID uuid.UUID) error
}

// MemoryRecordStore is an in-process record store for tests and
// single-node development.
type MemoryRecordStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]map[int]*decoder.DecodedRecord
}

// NewMemoryRecordStore returns an empty in-memory record store.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{records: map[uuid.UUID]map[int]*decoder.DecodedRecord{}}
}

func (m *MemoryRecordStore) SaveBatch(_ context.Context, fileID uuid.UUID, records []*decoder.DecodedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byLine, ok := m.records[fileID]
	if !ok {
		byLine = map[int]*decoder.DecodedRecord{}
		m.records[fileID] = byLine
	}
	for _, r := range records {
		byLine[r.LineNumber] = r
	}
	return nil
}

func (m *MemoryRecordStore) LastLine(_ context.Context, fileID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	last := 0
	for line := range m.records[fileID] {
		if line > last {
			last = line
		}
	}
	return last, nil
}

func (m *MemoryRecordStore) ListByFile(_ context.Context, fileID uuid.UUID) ([]*decoder.DecodedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*decoder.DecodedRecord, 0, len(m.records[fileID]))
	for _, r := range m.records[fileID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LineNumber < out[j].LineNumber })
	return out, nil
}

func (m *MemoryRecordStore) DeleteByFile(_ context.Context, fileID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, fileID)
	return nil
}
