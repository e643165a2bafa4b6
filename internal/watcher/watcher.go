// Package watcher trains documents dropped into a directory.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/felixgeelhaar/intelart/internal/guard"
	"github.com/felixgeelhaar/intelart/internal/observe"
	"github.com/felixgeelhaar/intelart/internal/rag"
)

// FileTrainer learns a document from disk.
type FileTrainer interface {
	TrainFile(ctx context.Context, path string, progress rag.Progress) (*rag.Result, error)
}

// Watcher trains every accepted file found in Dir at start and every file
// created or rewritten afterwards.
type Watcher struct {
	Dir string
	// Debounce waits for writes to settle before training.
	Debounce time.Duration

	trainer FileTrainer
	guard   *guard.Guard
	obs     *observe.Observer
}

// New creates a watcher. A nil guard accepts only .pdf files.
func New(dir string, trainer FileTrainer, g *guard.Guard, obs *observe.Observer) *Watcher {
	if obs == nil {
		obs = observe.Discard()
	}
	return &Watcher{
		Dir:      dir,
		Debounce: 500 * time.Millisecond,
		trainer:  trainer,
		guard:    g,
		obs:      obs,
	}
}

func (w *Watcher) accepts(path string) bool {
	if w.guard != nil {
		return w.guard.CheckUpload(filepath.Base(path), 0) == nil
	}
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.Dir, 0750); err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.Dir); err != nil {
		return err
	}
	w.obs.Log().Info().Str("dir", w.Dir).Msg("watching for documents")

	w.scan(ctx)

	ready := make(chan string, 16)
	var mu sync.Mutex
	timers := make(map[string]*time.Timer)
	defer func() {
		mu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !w.accepts(event.Name) {
				continue
			}

			path := event.Name
			mu.Lock()
			if t, ok := timers[path]; ok {
				t.Reset(w.Debounce)
			} else {
				timers[path] = time.AfterFunc(w.Debounce, func() {
					mu.Lock()
					delete(timers, path)
					mu.Unlock()
					select {
					case ready <- path:
					case <-ctx.Done():
					}
				})
			}
			mu.Unlock()

		case path := <-ready:
			w.train(ctx, path)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.obs.Log().Warn().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) scan(ctx context.Context) {
	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		w.obs.Log().Warn().Err(err).Str("dir", w.Dir).Msg("failed to scan directory")
		return
	}
	for _, e := range entries {
		if e.IsDir() || !w.accepts(e.Name()) {
			continue
		}
		w.train(ctx, filepath.Join(w.Dir, e.Name()))
	}
}

func (w *Watcher) train(ctx context.Context, path string) {
	res, err := w.trainer.TrainFile(ctx, path, nil)
	switch {
	case errors.Is(err, rag.ErrAlreadyLearned):
		w.obs.Log().Debug().Str("file", path).Msg("already learned")
	case err != nil:
		w.obs.Log().Warn().Err(err).Str("file", path).Msg("failed to learn file")
	default:
		w.obs.Log().Info().Str("file", path).Int("chunks", res.ChunksAdded).Msg("learned file")
	}
}
