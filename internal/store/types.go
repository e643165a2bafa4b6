package store

import (
	"errors"
	"time"

	"github.com/felixgeelhaar/intelart/internal/rag"
)

// ErrNotFound is returned when a source or session does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines the interface for persistence
type Storage interface {
	// Training history
	// RecordSource persists the metadata and the extracted text
	RecordSource(src *rag.Source, text []byte) error
	GetSource(id string) (*rag.Source, []byte, error)
	ListSources() ([]*rag.Source, error)
	HasDigest(digest string) (bool, error)
	DeleteSource(id string) error
	ResetSources() error

	// Configuration Management
	SetConfig(key, value string) error
	GetConfig(key string) (string, error)

	// Session state, stored opaque
	SaveSession(id string, state []byte) error
	LoadSession(id string) ([]byte, time.Time, error)
	DeleteSession(id string) error

	// Index exposes the chunk table as a knowledge index
	Index() rag.Index

	Close() error
}
