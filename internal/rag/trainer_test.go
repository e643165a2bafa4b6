package rag

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/intelart/internal/events"
	"github.com/felixgeelhaar/intelart/internal/guard"
	"github.com/felixgeelhaar/intelart/internal/provider"
	"github.com/felixgeelhaar/intelart/internal/rag/ragtest"
)

// memIndex is a brute-force Index for tests.
type memIndex struct {
	mu     sync.Mutex
	chunks []Chunk
}

func (m *memIndex) Add(_ context.Context, chunks []Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, chunks...)
	return nil
}

func (m *memIndex) Search(_ context.Context, vec []float32, k int) ([]Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Match
	for _, c := range m.chunks {
		var dot float32
		for i := range vec {
			if i < len(c.Embedding) {
				dot += vec[i] * c.Embedding[i]
			}
		}
		out = append(out, Match{ID: c.ID, SourceID: c.SourceID, Content: c.Content, Score: dot})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (m *memIndex) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chunks), nil
}

func (m *memIndex) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = nil
	return nil
}

func (m *memIndex) Close() error { return nil }

type memSources struct {
	sources   []Source
	texts     map[string]string
	recordErr error
}

func (m *memSources) RecordSource(src *Source, text []byte) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	if m.texts == nil {
		m.texts = map[string]string{}
	}
	m.sources = append(m.sources, *src)
	m.texts[src.ID] = string(text)
	return nil
}

func (m *memSources) DeleteSource(id string) error {
	for i, s := range m.sources {
		if s.ID == id {
			m.sources = append(m.sources[:i], m.sources[i+1:]...)
			delete(m.texts, id)
			return nil
		}
	}
	return errors.New("unknown source")
}

// brokenIndex refuses every write.
type brokenIndex struct{ memIndex }

func (*brokenIndex) Add(context.Context, []Chunk) error { return errors.New("disk full") }

func (m *memSources) HasDigest(digest string) (bool, error) {
	for _, s := range m.sources {
		if s.Digest == digest {
			return true, nil
		}
	}
	return false, nil
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedder offline")
}

func newTestTrainer(t *testing.T, g *guard.Guard) (*Trainer, *memIndex, *memSources, *events.EventBus) {
	t.Helper()
	idx := &memIndex{}
	src := &memSources{}
	bus := events.NewEventBus()
	tr := NewTrainer(TrainerDeps{
		Splitter: NewSplitter(40, 0),
		Embedder: provider.NewStubProvider(),
		Index:    idx,
		Sources:  src,
		Guard:    g,
		Bus:      bus,
	})
	return tr, idx, src, bus
}

func TestTrainer_TrainText(t *testing.T) {
	tr, idx, sources, bus := newTestTrainer(t, nil)

	var got []events.Event
	bus.Subscribe(events.EventSourceTrained, func(e events.Event) { got = append(got, e) })

	var calls int
	res, err := tr.TrainText(context.Background(), "notes",
		"Les chats dorment beaucoup.\n\nLes chiens aboient la nuit.\n\nLes oiseaux chantent le matin.",
		func(done, total int) { calls++ })
	require.NoError(t, err)

	assert.Equal(t, 3, res.ChunksAdded)
	assert.Equal(t, KindText, res.Source.Kind)
	assert.Equal(t, 3, calls)

	n, _ := idx.Count(context.Background())
	assert.Equal(t, 3, n)
	for i, c := range idx.chunks {
		assert.Equal(t, res.Source.ID, c.SourceID)
		assert.Equal(t, i, c.Position)
		assert.NotEmpty(t, c.Embedding)
	}

	require.Len(t, sources.sources, 1)
	assert.Contains(t, sources.texts[res.Source.ID], "Les chiens")

	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].Data["chunks"])
}

func TestTrainer_TrainPDF(t *testing.T) {
	tr, idx, _, _ := newTestTrainer(t, guard.New(guard.DefaultPolicy))

	data := ragtest.PDF([]string{"Le dragon garde le tresor", "au sommet de la montagne."})
	res, err := tr.TrainPDF(context.Background(), "cours.pdf", data, nil)
	require.NoError(t, err)

	assert.Equal(t, KindPDF, res.Source.Kind)
	assert.Equal(t, "cours.pdf", res.Source.Origin)
	assert.Equal(t, digest(data), res.Source.Digest)
	assert.Greater(t, res.ChunksAdded, 0)

	var all []string
	for _, c := range idx.chunks {
		all = append(all, c.Content)
	}
	assert.Contains(t, strings.Join(all, " "), "dragon")
}

func TestTrainer_TrainPDF_NoText(t *testing.T) {
	tr, idx, _, _ := newTestTrainer(t, nil)

	_, err := tr.TrainPDF(context.Background(), "scan.pdf", ragtest.PDF([]string{}), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoText))
	assert.Contains(t, err.Error(), "Le PDF ne contient pas de texte lisible.")
	assert.Empty(t, idx.chunks)
}

func TestTrainer_TrainPDF_RejectedByGuard(t *testing.T) {
	tr, _, _, _ := newTestTrainer(t, guard.New(guard.DefaultPolicy))

	_, err := tr.TrainPDF(context.Background(), "virus.exe", []byte("MZ"), nil)
	var v *guard.Violation
	require.True(t, errors.As(err, &v))
	assert.Equal(t, "upload_globs", v.Rule)
}

func TestTrainer_RecordFailureLeavesIndexUntouched(t *testing.T) {
	tr, idx, sources, _ := newTestTrainer(t, nil)
	sources.recordErr = errors.New("read-only database")

	_, err := tr.TrainText(context.Background(), "notes", "Les chats dorment beaucoup.", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record source")

	n, _ := idx.Count(context.Background())
	assert.Equal(t, 0, n)
}

func TestTrainer_IndexFailureForgetsSource(t *testing.T) {
	sources := &memSources{}
	tr := NewTrainer(TrainerDeps{
		Splitter: NewSplitter(40, 0),
		Embedder: provider.NewStubProvider(),
		Index:    &brokenIndex{},
		Sources:  sources,
	})

	_, err := tr.TrainText(context.Background(), "notes", "Les chats dorment beaucoup.", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	assert.Empty(t, sources.sources)
	known, _ := sources.HasDigest(digest([]byte("Les chats dorment beaucoup.")))
	assert.False(t, known)
}

func TestTrainer_TrainURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><h1>Atlantide</h1><p>Une cite engloutie.</p><script>x()</script></body></html>"))
	}))
	defer srv.Close()

	tr, idx, _, _ := newTestTrainer(t, guard.New(guard.Policy{}))
	res, err := tr.TrainURL(context.Background(), srv.URL, nil)
	require.NoError(t, err)

	assert.Equal(t, KindURL, res.Source.Kind)
	assert.Equal(t, srv.URL, res.Source.Origin)
	require.NotEmpty(t, idx.chunks)
	assert.Contains(t, idx.chunks[0].Content, "Atlantide")
	for _, c := range idx.chunks {
		assert.NotContains(t, c.Content, "x()")
	}
}

func TestTrainer_TrainURL_DecodesDeclaredCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.Write([]byte("<html><body><p>Caf\xe9 du mus\xe9e</p></body></html>"))
	}))
	defer srv.Close()

	tr, idx, _, _ := newTestTrainer(t, guard.New(guard.Policy{}))
	_, err := tr.TrainURL(context.Background(), srv.URL, nil)
	require.NoError(t, err)

	require.NotEmpty(t, idx.chunks)
	assert.Equal(t, "Café du musée", idx.chunks[0].Content)
}

func TestTrainer_TrainURL_BlockedHost(t *testing.T) {
	hit := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hit = true }))
	defer srv.Close()

	tr, _, _, _ := newTestTrainer(t, guard.New(guard.DefaultPolicy))
	_, err := tr.TrainURL(context.Background(), srv.URL, nil)

	var v *guard.Violation
	require.True(t, errors.As(err, &v))
	assert.Equal(t, "blocked_hosts", v.Rule)
	assert.False(t, hit)
}

func TestTrainer_TrainURL_FetchError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	tr, _, _, _ := newTestTrainer(t, nil)
	_, err := tr.TrainURL(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestTrainer_TrainFile_SkipsKnownDigest(t *testing.T) {
	tr, _, _, _ := newTestTrainer(t, nil)

	path := filepath.Join(t.TempDir(), "lore.pdf")
	require.NoError(t, os.WriteFile(path, ragtest.PDF([]string{"Une histoire de pirates."}), 0o644))

	_, err := tr.TrainFile(context.Background(), path, nil)
	require.NoError(t, err)

	_, err = tr.TrainFile(context.Background(), path, nil)
	assert.True(t, errors.Is(err, ErrAlreadyLearned))
}

func TestTrainer_EmbedFailure(t *testing.T) {
	bus := events.NewEventBus()
	var failed []events.Event
	bus.Subscribe(events.EventTrainingFailed, func(e events.Event) { failed = append(failed, e) })

	idx := &memIndex{}
	tr := NewTrainer(TrainerDeps{Embedder: failingEmbedder{}, Index: idx, Bus: bus})

	_, err := tr.TrainText(context.Background(), "notes", "du texte", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedder offline")
	assert.Empty(t, idx.chunks)
	require.Len(t, failed, 1)
	assert.Equal(t, "notes", failed[0].Data["origin"])
}
