package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/felixgeelhaar/intelart/internal/rag"
)

type recordingTrainer struct {
	paths chan string
}

func (r *recordingTrainer) TrainFile(_ context.Context, path string, _ rag.Progress) (*rag.Result, error) {
	r.paths <- filepath.Base(path)
	return &rag.Result{ChunksAdded: 1}, nil
}

func waitFor(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case got := <-ch:
			if got == want {
				return
			}
			t.Errorf("Unexpected file trained: %s", got)
		case <-timeout:
			t.Fatalf("Timed out waiting for %s", want)
		}
	}
}

func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "existing.pdf"), []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}

	tr := &recordingTrainer{paths: make(chan string, 16)}
	w := New(dir, tr, nil, nil)
	w.Debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor(t, tr.paths, "existing.pdf")

	// ignored: wrong extension
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "new.PDF"), []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, tr.paths, "new.PDF")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}
