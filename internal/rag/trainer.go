package rag

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/intelart/internal/events"
	"github.com/felixgeelhaar/intelart/internal/guard"
	"github.com/felixgeelhaar/intelart/internal/observe"
)

const embedConcurrency = 4

// Progress receives per-chunk embedding progress. May be nil.
type Progress func(done, total int)

// TrainerDeps wires a Trainer. Sources, Guard, Bus and Fetcher are optional.
type TrainerDeps struct {
	Splitter *Splitter
	Embedder Embedder
	Index    Index
	Sources  SourceLog
	Fetcher  *Fetcher
	Guard    *guard.Guard
	Bus      *events.EventBus
	Observer *observe.Observer
}

// Trainer turns documents into indexed chunks.
type Trainer struct {
	deps TrainerDeps
	// one source at a time, so chunk ids and the source log stay in step
	mu sync.Mutex
}

// Result describes one completed training run.
type Result struct {
	Source      Source
	ChunksAdded int
}

func NewTrainer(deps TrainerDeps) *Trainer {
	if deps.Splitter == nil {
		deps.Splitter = NewSplitter(1000, 150)
	}
	if deps.Fetcher == nil {
		deps.Fetcher = NewFetcher(nil)
	}
	if deps.Observer == nil {
		deps.Observer = observe.Discard()
	}
	return &Trainer{deps: deps}
}

// TrainPDF learns an uploaded PDF.
func (t *Trainer) TrainPDF(ctx context.Context, name string, data []byte, progress Progress) (*Result, error) {
	if t.deps.Guard != nil {
		if v := t.deps.Guard.CheckUpload(name, int64(len(data))); v != nil {
			return nil, v
		}
	}
	text, err := ExtractPDF(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: Le PDF ne contient pas de texte lisible.", ErrNoText)
	}
	return t.train(ctx, KindPDF, name, text, data, progress)
}

// TrainURL scrapes a page and learns its visible text.
func (t *Trainer) TrainURL(ctx context.Context, url string, progress Progress) (*Result, error) {
	url = strings.TrimSpace(url)
	if t.deps.Guard != nil {
		if v := t.deps.Guard.CheckURL(url); v != nil {
			return nil, v
		}
	}
	page, err := t.deps.Fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	text, err := ExtractHTML(bytes.NewReader(page.Body), page.ContentType)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: La page ne contient pas de texte exploitable.", ErrNoText)
	}
	return t.train(ctx, KindURL, url, text, page.Body, progress)
}

// TrainText learns raw text, e.g. from the CLI.
func (t *Trainer) TrainText(ctx context.Context, origin, text string, progress Progress) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoText
	}
	return t.train(ctx, KindText, origin, text, []byte(text), progress)
}

// TrainFile learns a PDF from disk unless an identical file was learned before.
func (t *Trainer) TrainFile(ctx context.Context, path string, progress Progress) (*Result, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if t.deps.Sources != nil {
		known, err := t.deps.Sources.HasDigest(digest(data))
		if err != nil {
			return nil, err
		}
		if known {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyLearned, filepath.Base(path))
		}
	}
	return t.TrainPDF(ctx, filepath.Base(path), data, progress)
}

func (t *Trainer) train(ctx context.Context, kind, origin, text string, raw []byte, progress Progress) (res *Result, err error) {
	ctx, span := t.deps.Observer.StartSpan(ctx, "rag.train",
		attribute.String("kind", kind),
		attribute.String("origin", origin),
	)
	defer func() {
		observe.Fail(span, err)
		span.End()
		if err != nil {
			t.deps.Bus.PublishWithData(events.EventTrainingFailed, "", map[string]interface{}{
				"kind":   kind,
				"origin": origin,
				"error":  err.Error(),
			})
		}
	}()

	pieces := t.deps.Splitter.Split(text)
	if len(pieces) == 0 {
		return nil, ErrNoText
	}
	if t.deps.Guard != nil {
		if v := t.deps.Guard.CheckChunks(len(pieces)); v != nil {
			return nil, v
		}
	}

	src := Source{
		ID:        uuid.NewString(),
		Kind:      kind,
		Origin:    origin,
		Digest:    digest(raw),
		Chunks:    len(pieces),
		CreatedAt: time.Now().UTC(),
	}

	chunks, err := t.embed(ctx, src.ID, pieces, progress)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Record before indexing so a failed Add leaves no orphan chunks.
	if t.deps.Sources != nil {
		if err := t.deps.Sources.RecordSource(&src, []byte(text)); err != nil {
			return nil, fmt.Errorf("failed to record source: %w", err)
		}
	}
	if err := t.deps.Index.Add(ctx, chunks); err != nil {
		if t.deps.Sources != nil {
			if derr := t.deps.Sources.DeleteSource(src.ID); derr != nil {
				err = errors.Join(err, derr)
			}
		}
		return nil, fmt.Errorf("failed to update index: %w", err)
	}

	t.deps.Observer.Log().Info().
		Str("kind", kind).
		Str("origin", origin).
		Int("chunks", len(chunks)).
		Msg("learned new source")
	t.deps.Bus.PublishWithData(events.EventSourceTrained, "", map[string]interface{}{
		"source": src.ID,
		"kind":   kind,
		"origin": origin,
		"chunks": len(chunks),
	})

	return &Result{Source: src, ChunksAdded: len(chunks)}, nil
}

func (t *Trainer) embed(ctx context.Context, sourceID string, pieces []string, progress Progress) ([]Chunk, error) {
	chunks := make([]Chunk, len(pieces))
	var done int
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for i, piece := range pieces {
		g.Go(func() error {
			vec, err := t.deps.Embedder.Embed(gctx, piece)
			if err != nil {
				return fmt.Errorf("failed to embed chunk %d: %w", i, err)
			}
			chunks[i] = Chunk{
				ID:        fmt.Sprintf("%s-%04d", sourceID, i),
				SourceID:  sourceID,
				Position:  i,
				Content:   piece,
				Embedding: vec,
			}
			if progress != nil {
				mu.Lock()
				done++
				progress(done, len(pieces))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return chunks, nil
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
