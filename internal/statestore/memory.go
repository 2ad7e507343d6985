package statestore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory keeps records in process. It is the default backend and the one
// used by most tests.
type Memory struct {
	mu      sync.Mutex
	records map[string]Record
	now     func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record), now: time.Now}
}

func (m *Memory) Save(ctx context.Context, runID, fingerprint string, data []byte) error {
	if err := validRunID(runID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[runID]; ok {
		return ErrExists
	}
	m.records[runID] = m.record(runID, fingerprint, data)
	return nil
}

func (m *Memory) Load(ctx context.Context, runID string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[runID]
	if !ok {
		return Record{}, ErrNotFound
	}
	r.Data = append([]byte(nil), r.Data...)
	return r, nil
}

func (m *Memory) CompareAndSwap(ctx context.Context, runID, expected, fingerprint string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[runID]
	if !ok {
		return ErrNotFound
	}
	if r.Fingerprint != expected {
		return ErrConflict
	}
	m.records[runID] = m.record(runID, fingerprint, data)
	return nil
}

func (m *Memory) List(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) record(runID, fingerprint string, data []byte) Record {
	return Record{
		RunID:       runID,
		Fingerprint: fingerprint,
		Data:        append([]byte(nil), data...),
		UpdatedAt:   m.now().UTC(),
	}
}
