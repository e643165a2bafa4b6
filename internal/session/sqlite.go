package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/intelart/internal/store"
)

// SQLStore keeps states in the sessions table of the local database, so
// stories survive restarts.
type SQLStore struct {
	db  store.Storage
	ttl time.Duration
}

func NewSQLStore(db store.Storage, ttl time.Duration) *SQLStore {
	return &SQLStore{db: db, ttl: ttl}
}

func (s *SQLStore) Load(_ context.Context, id string) (*State, error) {
	data, updated, err := s.db.LoadSession(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if s.ttl > 0 && time.Since(updated) > s.ttl {
		_ = s.db.DeleteSession(id)
		return nil, ErrNotFound
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &st, nil
}

func (s *SQLStore) Save(_ context.Context, st *State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return s.db.SaveSession(st.ID, data)
}

func (s *SQLStore) Delete(_ context.Context, id string) error {
	return s.db.DeleteSession(id)
}
