package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRegistry keeps sessions in process. Sessions do not survive a
// restart and are not shared between instances.
type MemoryRegistry struct {
	mu       sync.Mutex
	sessions map[string]Record
	// revoked remembers revoked ids until they would have expired so the
	// same id cannot be created again.
	revoked map[string]time.Time
	now     func() time.Time
}

// NewMemory returns an empty in-process registry.
func NewMemory() *MemoryRegistry {
	return &MemoryRegistry{
		sessions: make(map[string]Record),
		revoked:  make(map[string]time.Time),
		now:      time.Now,
	}
}

func (m *MemoryRegistry) Create(_ context.Context, rec *Record) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if err := prepare(rec, now, uuid.NewString); err != nil {
		return "", err
	}
	if _, ok := m.sessions[rec.ID]; ok {
		return "", ErrExists
	}
	if _, ok := m.revoked[rec.ID]; ok {
		return "", ErrExists
	}
	m.sessions[rec.ID] = *rec
	return rec.ID, nil
}

func (m *MemoryRegistry) Get(_ context.Context, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.sessions[id]
	if !ok || !rec.ExpiresAt.After(m.now()) {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (m *MemoryRegistry) List(_ context.Context, owner string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	out := make([]Record, 0)
	for _, rec := range m.sessions {
		if rec.OwnerSubjectID == owner && rec.ExpiresAt.After(now) {
			out = append(out, rec)
		}
	}
	sortByLastUsed(out)
	return out, nil
}

func (m *MemoryRegistry) Touch(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	rec, ok := m.sessions[id]
	if !ok || !rec.ExpiresAt.After(now) {
		return nil
	}
	rec.LastUsedAt = now
	m.sessions[id] = rec
	return nil
}

func (m *MemoryRegistry) Revoke(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revokeLocked(id)
	return nil
}

func (m *MemoryRegistry) RevokeAllExcept(_ context.Context, owner, keep string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, rec := range m.sessions {
		if rec.OwnerSubjectID == owner && id != keep {
			m.revokeLocked(id)
		}
	}
	return nil
}

func (m *MemoryRegistry) Prune(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var n int64
	for id, rec := range m.sessions {
		if !rec.ExpiresAt.After(now) {
			delete(m.sessions, id)
			n++
		}
	}
	for id, exp := range m.revoked {
		if !exp.After(now) {
			delete(m.revoked, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryRegistry) revokeLocked(id string) {
	rec, ok := m.sessions[id]
	if !ok {
		return
	}
	delete(m.sessions, id)
	m.revoked[id] = rec.ExpiresAt
}

func sortByLastUsed(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].LastUsedAt.Equal(recs[j].LastUsedAt) {
			return recs[i].CreatedAt.After(recs[j].CreatedAt)
		}
		return recs[i].LastUsedAt.After(recs[j].LastUsedAt)
	})
}
