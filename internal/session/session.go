// Package session keeps per-conversation story state.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/intelart/internal/provider"
)

// ErrNotFound is returned for ids with no stored state.
var ErrNotFound = errors.New("session not found")

// State is the scene tracker of one conversation.
type State struct {
	ID        string             `json:"id"`
	Scene     int                `json:"scene"`
	Started   bool               `json:"started"`
	Finished  bool               `json:"finished"`
	History   []provider.Message `json:"history"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// New returns a fresh state at scene 0.
func New(id string) *State {
	now := time.Now().UTC()
	return &State{
		ID:        id,
		History:   make([]provider.Message, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := *s
	c.History = append(make([]provider.Message, 0, len(s.History)), s.History...)
	return &c
}

// Append adds a message to the history.
func (s *State) Append(role, content string) {
	s.History = append(s.History, provider.Message{Role: role, Content: content})
}

// Store persists states. Implementations return ErrNotFound from Load for
// unknown or expired ids.
type Store interface {
	Load(ctx context.Context, id string) (*State, error)
	Save(ctx context.Context, s *State) error
	Delete(ctx context.Context, id string) error
}
