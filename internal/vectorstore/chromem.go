// Package vectorstore holds the knowledge index backends.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/felixgeelhaar/intelart/internal/rag"
)

const collectionName = "knowledge"

var errNoEmbedding = errors.New("vectorstore: chunks must carry their embedding")

// ChromemIndex stores chunks in an embedded chromem-go database. With a
// path it persists to disk and reloads on open.
type ChromemIndex struct {
	db  *chromem.DB
	mu  sync.RWMutex
	col *chromem.Collection
}

// NewChromem opens the index at path, or an in-memory one when path is empty.
func NewChromem(path string) (*ChromemIndex, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open index %s: %w", path, err)
		}
	}

	col, err := db.GetOrCreateCollection(collectionName, nil, precomputed)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &ChromemIndex{db: db, col: col}, nil
}

func precomputed(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedding
}

// Add stores chunks. Re-adding an ID replaces the chunk.
func (s *ChromemIndex) Add(ctx context.Context, chunks []rag.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		if len(c.Embedding) == 0 {
			return errNoEmbedding
		}
		docs[i] = chromem.Document{
			ID:        c.ID,
			Content:   c.Content,
			Embedding: c.Embedding,
			Metadata: map[string]string{
				"source":   c.SourceID,
				"position": strconv.Itoa(c.Position),
			},
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}
	return nil
}

// Search returns up to k chunks by cosine similarity, best first.
func (s *ChromemIndex) Search(ctx context.Context, vector []float32, k int) ([]rag.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// chromem-go requires nResults <= collection size
	n := s.col.Count()
	if k < n {
		n = k
	}
	if n <= 0 {
		return nil, nil
	}

	results, err := s.col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	matches := make([]rag.Match, len(results))
	for i, r := range results {
		matches[i] = rag.Match{
			ID:       r.ID,
			SourceID: r.Metadata["source"],
			Content:  r.Content,
			Score:    r.Similarity,
		}
	}
	return matches, nil
}

func (s *ChromemIndex) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.col.Count(), nil
}

// Reset drops every chunk, on disk too.
func (s *ChromemIndex) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteCollection(collectionName); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	col, err := s.db.GetOrCreateCollection(collectionName, nil, precomputed)
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	s.col = col
	return nil
}

// Close is a no-op; chromem-go writes through on every add.
func (s *ChromemIndex) Close() error {
	return nil
}
