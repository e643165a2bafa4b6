package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	state   *State
	expires time.Time
}

// MemoryStore keeps states in process. Everything is lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates a store whose entries expire ttl after their last
// save. A zero ttl keeps them forever.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryStore) Load(_ context.Context, id string) (*State, error) {
	now := m.now()

	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if e.expiredAt(now) {
		if e, ok = m.evictExpired(id, now); !ok {
			return nil, ErrNotFound
		}
	}
	return e.state.Clone(), nil
}

// evictExpired deletes id if it is still expired at now. A Save may have
// refreshed the entry since it was read; the fresh entry is then returned.
func (m *MemoryStore) evictExpired(id string, now time.Time) (memoryEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return memoryEntry{}, false
	}
	if e.expiredAt(now) {
		delete(m.entries, id)
		return memoryEntry{}, false
	}
	return e, true
}

func (e memoryEntry) expiredAt(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

func (m *MemoryStore) Save(_ context.Context, s *State) error {
	e := memoryEntry{state: s.Clone()}
	if m.ttl > 0 {
		e.expires = m.now().Add(m.ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[s.ID] = e
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

// Len reports how many entries are held, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
