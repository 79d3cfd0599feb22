package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"meli-stock-audit/internal/model"
)

// MemoryStore implements every repository interface in memory.
// Use this for development and tests; state is lost on restart.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]model.ItemSnapshot
	movements []model.MovementEntry
	archived  []model.MovementEntry
	records   []model.RecordEntry
	errors    []model.ErrorEntry
	notifArch []model.QueuedNotification
	props     map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string]model.ItemSnapshot),
		props:     make(map[string]string),
	}
}

func (m *MemoryStore) Get(ctx context.Context, itemID string) (*model.ItemSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snapshots[itemID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (m *MemoryStore) Upsert(ctx context.Context, snap model.ItemSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snap.ItemID] = snap
	return nil
}

func (m *MemoryStore) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.snapshots)), nil
}

func (m *MemoryStore) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = make(map[string]model.ItemSnapshot)
	return nil
}

func (m *MemoryStore) Append(ctx context.Context, entry model.MovementEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.movements = append(m.movements, entry)
	return nil
}

func (m *MemoryStore) Since(ctx context.Context, since time.Time) ([]model.MovementEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.MovementEntry
	for _, e := range m.movements {
		if e.Timestamp.After(since) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *MemoryStore) Archive(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []model.MovementEntry
	var moved int64
	for _, e := range m.movements {
		if e.Timestamp.Before(cutoff) {
			m.archived = append(m.archived, e)
			moved++
		} else {
			kept = append(kept, e)
		}
	}
	m.movements = kept
	return moved, nil
}

func (m *MemoryStore) AppendRecord(ctx context.Context, entry model.RecordEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, entry)
	return nil
}

func (m *MemoryStore) AppendError(ctx context.Context, entry model.ErrorEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, entry)
	return nil
}

func (m *MemoryStore) ArchiveNotifications(ctx context.Context, items []model.QueuedNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifArch = append(m.notifArch, items...)
	return nil
}

// Movements returns a copy of the live movement log, for tests and
// the admin API in memory mode.
func (m *MemoryStore) Movements() []model.MovementEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.MovementEntry, len(m.movements))
	copy(out, m.movements)
	return out
}

// Records returns a copy of the topic records.
func (m *MemoryStore) Records() []model.RecordEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.RecordEntry, len(m.records))
	copy(out, m.records)
	return out
}

// ArchivedNotifications returns a copy of the notification archive.
func (m *MemoryStore) ArchivedNotifications() []model.QueuedNotification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.QueuedNotification, len(m.notifArch))
	copy(out, m.notifArch)
	return out
}

// Properties exposes the in-memory property map as a PropertyRepository.
func (m *MemoryStore) Properties() PropertyRepository {
	return memProperties{m}
}

type memProperties struct{ s *MemoryStore }

func (p memProperties) Get(ctx context.Context, key string) (string, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	return p.s.props[key], nil
}

func (p memProperties) Set(ctx context.Context, key, value string) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	p.s.props[key] = value
	return nil
}

func (p memProperties) Delete(ctx context.Context, key string) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	delete(p.s.props, key)
	return nil
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error { return nil }

var (
	_ SnapshotRepository = (*MemoryStore)(nil)
	_ MovementRepository = (*MemoryStore)(nil)
	_ RecordRepository   = (*MemoryStore)(nil)
)
