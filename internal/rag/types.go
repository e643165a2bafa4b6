package rag

import (
	"context"
	"errors"
	"time"
)

// Source kinds.
const (
	KindPDF  = "pdf"
	KindURL  = "url"
	KindText = "text"
)

var (
	// ErrNoText means extraction produced nothing worth indexing.
	ErrNoText = errors.New("no readable text")
	// ErrAlreadyLearned is returned by TrainFile for a document seen before.
	ErrAlreadyLearned = errors.New("source already learned")
)

// Chunk is one indexed piece of a source.
type Chunk struct {
	ID        string
	SourceID  string
	Position  int
	Content   string
	Embedding []float32
}

// Match is a chunk returned by a similarity search.
type Match struct {
	ID       string
	SourceID string
	Content  string
	Score    float32
}

// Source records one training run.
type Source struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Origin    string    `json:"origin"`
	Digest    string    `json:"digest"`
	Chunks    int       `json:"chunks"`
	CreatedAt time.Time `json:"created_at"`
}

// Index is a persistent vector index. Add merges into what is already there.
type Index interface {
	Add(ctx context.Context, chunks []Chunk) error
	Search(ctx context.Context, vector []float32, k int) ([]Match, error)
	Count(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
	Close() error
}

// Embedder turns text into vectors. Every provider.Provider is one.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SourceLog keeps the training history and the raw extracted text.
type SourceLog interface {
	RecordSource(src *Source, text []byte) error
	HasDigest(digest string) (bool, error)
	DeleteSource(id string) error
}
