package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveSession upserts the opaque state for id.
func (s *SQLiteStore) SaveSession(id string, state []byte) error {
	query := `INSERT INTO sessions (id, state, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`
	_, err := s.db.Exec(query, id, state, formatTime(time.Now()))
	return err
}

// LoadSession returns the state for id and when it was last saved.
func (s *SQLiteStore) LoadSession(id string) ([]byte, time.Time, error) {
	var state []byte
	var updated string
	err := s.db.QueryRow(`SELECT state, updated_at FROM sessions WHERE id = ?`, id).Scan(&state, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, time.Time{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return nil, time.Time{}, err
	}
	t, err := parseTime(updated)
	if err != nil {
		return nil, time.Time{}, err
	}
	return state, t, nil
}

func (s *SQLiteStore) DeleteSession(id string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	return err
}
