package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgraph-io/ristretto"
	"go.opentelemetry.io/otel/attribute"

	"github.com/felixgeelhaar/intelart/internal/observe"
)

// Retriever finds the chunks most similar to a question. Question
// embeddings are cached since users tend to repeat themselves.
type Retriever struct {
	embedder Embedder
	index    Index
	cache    *ristretto.Cache
	obs      *observe.Observer
}

func NewRetriever(embedder Embedder, index Index, cacheSize int, obs *observe.Observer) (*Retriever, error) {
	if obs == nil {
		obs = observe.Discard()
	}
	r := &Retriever{embedder: embedder, index: index, obs: obs}
	if cacheSize > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: int64(cacheSize) * 10,
			MaxCost:     int64(cacheSize),
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding cache: %w", err)
		}
		r.cache = cache
	}
	return r, nil
}

// Search returns up to k matches, best first. An empty index yields none.
func (r *Retriever) Search(ctx context.Context, question string, k int) (matches []Match, err error) {
	ctx, span := r.obs.StartSpan(ctx, "rag.search", attribute.Int("k", k))
	defer func() {
		observe.Fail(span, err)
		span.End()
	}()

	if k <= 0 {
		return nil, nil
	}
	n, err := r.index.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	vec, err := r.embed(ctx, question)
	if err != nil {
		return nil, err
	}
	matches, err = r.index.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}
	span.SetAttributes(attribute.Int("matches", len(matches)))
	return matches, nil
}

func (r *Retriever) embed(ctx context.Context, text string) ([]float32, error) {
	if r.cache != nil {
		if v, ok := r.cache.Get(text); ok {
			return v.([]float32), nil
		}
	}
	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}
	if r.cache != nil {
		r.cache.Set(text, vec, 1)
	}
	return vec, nil
}

// Close releases the cache.
func (r *Retriever) Close() {
	if r.cache != nil {
		r.cache.Close()
	}
}

// JoinContext concatenates match contents the way prompts expect them.
func JoinContext(matches []Match) string {
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n\n")
}
