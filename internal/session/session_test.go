package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/intelart/internal/provider"
	"github.com/felixgeelhaar/intelart/internal/store"
)

// storeContract runs the behavior every backend must share.
func storeContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Load(ctx, "absent")
	assert.True(t, errors.Is(err, ErrNotFound))

	st := New("abc")
	st.Scene = 3
	st.Started = true
	st.Append(provider.RoleUser, "je prends l'epee")
	require.NoError(t, s.Save(ctx, st))

	got, err := s.Load(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Scene)
	assert.True(t, got.Started)
	assert.False(t, got.Finished)
	require.Len(t, got.History, 1)
	assert.Equal(t, "je prends l'epee", got.History[0].Content)

	require.NoError(t, s.Delete(ctx, "abc"))
	_, err = s.Load(ctx, "abc")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore(time.Hour))
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)
	st := New("x")
	require.NoError(t, s.Save(ctx, st))

	st.Scene = 9
	got, _ := s.Load(ctx, "x")
	assert.Equal(t, 0, got.Scene)

	got.Append(provider.RoleUser, "hello")
	again, _ := s.Load(ctx, "x")
	assert.Empty(t, again.History)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Save(ctx, New("x")))
	now = now.Add(2 * time.Minute)

	_, err := s.Load(ctx, "x")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_ExpiryKeepsRefreshedEntry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Save(ctx, New("x")))
	stale := now.Add(2 * time.Minute)

	// a Save lands after Load saw the old entry expire
	now = stale
	fresh := New("x")
	fresh.Scene = 4
	require.NoError(t, s.Save(ctx, fresh))

	e, ok := s.evictExpired("x", stale)
	require.True(t, ok)
	assert.Equal(t, 4, e.state.Scene)
	assert.Equal(t, 1, s.Len())

	got, err := s.Load(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, 4, got.Scene)
}

func TestMemoryStore_ConcurrentExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)
	base := time.Now()
	var tick sync.Mutex
	calls := 0
	// every other reading is past the expiry of the previous save
	s.now = func() time.Time {
		tick.Lock()
		defer tick.Unlock()
		calls++
		return base.Add(time.Duration(calls) * 45 * time.Second)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if i%2 == 0 {
					assert.NoError(t, s.Save(ctx, New("x")))
					continue
				}
				if _, err := s.Load(ctx, "x"); err != nil {
					assert.True(t, errors.Is(err, ErrNotFound))
				}
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, s.Len(), 1)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(context.Background(), "redis://"+mr.Addr(), time.Minute)
	require.NoError(t, err)
	defer s.Close()

	storeContract(t, s)
}

func TestRedisStore_TTL(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(ctx, "redis://"+mr.Addr(), time.Minute)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(ctx, New("x")))
	assert.True(t, mr.Exists("session:x"))

	mr.FastForward(2 * time.Minute)
	_, err = s.Load(ctx, "x")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestNewRedisStore_BadURL(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "not a url", time.Minute)
	assert.Error(t, err)
}

func TestSQLStore(t *testing.T) {
	dir := t.TempDir()
	db, err := store.NewSQLiteStore(filepath.Join(dir, "meta.db"), filepath.Join(dir, "artifacts"))
	require.NoError(t, err)
	defer db.Close()

	storeContract(t, NewSQLStore(db, time.Hour))
}

func TestManager_UpdateCreatesAndSaves(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(0), 0)

	st, err := m.Update(ctx, "s1", func(s *State) error {
		s.Scene++
		s.Started = true
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, st.Scene)

	sum, err := m.Status(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", sum.ID)
	assert.Equal(t, 1, sum.Scene)
	assert.True(t, sum.Started)
}

func TestManager_FailedUpdateIsNotSaved(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(0), 0)

	_, err := m.Update(ctx, "s1", func(s *State) error {
		s.Scene = 5
		return errors.New("model down")
	})
	require.Error(t, err)

	_, err = m.Get(ctx, "s1")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestManager_CapsHistory(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(0), 4)

	for i := 0; i < 5; i++ {
		_, err := m.Update(ctx, "s1", func(s *State) error {
			s.Append(provider.RoleUser, fmt.Sprintf("q%d", i))
			s.Append(provider.RoleAssistant, fmt.Sprintf("a%d", i))
			return nil
		})
		require.NoError(t, err)
	}

	st, err := m.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, st.History, 4)
	assert.Equal(t, "q3", st.History[0].Content)
	assert.Equal(t, "a4", st.History[3].Content)
}

func TestManager_SerializesSameSession(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(0), 0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Update(ctx, "shared", func(s *State) error {
				s.Scene++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	st, err := m.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, 50, st.Scene)
}

func TestManager_Reset(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(0), 0)

	assert.True(t, errors.Is(m.Reset(ctx, "nobody"), ErrNotFound))

	_, err := m.Update(ctx, "s1", func(*State) error { return nil })
	require.NoError(t, err)
	require.NoError(t, m.Reset(ctx, "s1"))

	_, err = m.Status(ctx, "s1")
	assert.True(t, errors.Is(err, ErrNotFound))
}
