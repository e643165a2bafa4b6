package session

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"
)

const lockShards = 64

// Summary is the public view of a session, without the history.
type Summary struct {
	ID        string    `json:"session_id"`
	Scene     int       `json:"scene"`
	Started   bool      `json:"started"`
	Finished  bool      `json:"finished"`
	Messages  int       `json:"messages"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Manager serializes reads-modify-writes of the same session id. Two
// requests on one story never interleave; different ids proceed in
// parallel unless they hash to the same shard.
type Manager struct {
	store      Store
	maxHistory int
	locks      [lockShards]sync.Mutex
}

// NewManager wraps store. maxHistory <= 0 keeps the whole history.
func NewManager(store Store, maxHistory int) *Manager {
	return &Manager{store: store, maxHistory: maxHistory}
}

func (m *Manager) lock(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &m.locks[h.Sum32()%lockShards]
}

// Update loads the state for id, creating it if needed, applies fn and
// saves the result. Nothing is saved when fn fails.
func (m *Manager) Update(ctx context.Context, id string, fn func(*State) error) (*State, error) {
	mu := m.lock(id)
	mu.Lock()
	defer mu.Unlock()

	st, err := m.store.Load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		st = New(id)
	} else if err != nil {
		return nil, err
	}

	if err := fn(st); err != nil {
		return nil, err
	}

	if m.maxHistory > 0 && len(st.History) > m.maxHistory {
		st.History = append(st.History[:0:0], st.History[len(st.History)-m.maxHistory:]...)
	}
	st.UpdatedAt = time.Now().UTC()

	if err := m.store.Save(ctx, st); err != nil {
		return nil, err
	}
	return st.Clone(), nil
}

// Get returns the state for id or ErrNotFound.
func (m *Manager) Get(ctx context.Context, id string) (*State, error) {
	return m.store.Load(ctx, id)
}

// Status summarizes the state for id.
func (m *Manager) Status(ctx context.Context, id string) (*Summary, error) {
	st, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Summary{
		ID:        st.ID,
		Scene:     st.Scene,
		Started:   st.Started,
		Finished:  st.Finished,
		Messages:  len(st.History),
		UpdatedAt: st.UpdatedAt,
	}, nil
}

// Reset forgets id. Unknown ids return ErrNotFound.
func (m *Manager) Reset(ctx context.Context, id string) error {
	mu := m.lock(id)
	mu.Lock()
	defer mu.Unlock()

	if _, err := m.store.Load(ctx, id); err != nil {
		return err
	}
	return m.store.Delete(ctx, id)
}
