package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"X402Chat/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newLimiter(store *MemoryStore) (*Limiter, *clock) {
	c := &clock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	return New(store, 100, time.Hour, WithClock(c.now)), c
}

func TestLimiter_HundredAllowedThenLimited(t *testing.T) {
	l, _ := newLimiter(NewMemoryStore())
	ctx := context.Background()

	for i := 1; i <= 100; i++ {
		d, err := l.CheckAndIncrement(ctx, wallet)
		require.NoError(t, err)
		require.Equal(t, models.RateAllowed, d, "call %d", i)
	}

	d, err := l.CheckAndIncrement(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, models.RateLimited, d, "call 101")

	d, _ = l.CheckAndIncrement(ctx, wallet)
	assert.Equal(t, models.RateLimited, d, "call 102")
}

func TestLimiter_WindowResets(t *testing.T) {
	store := NewMemoryStore()
	l, c := newLimiter(store)
	ctx := context.Background()

	for i := 0; i < 101; i++ {
		_, _ = l.CheckAndIncrement(ctx, wallet)
	}

	// exactly one window later is still the same window
	c.advance(time.Hour)
	d, _ := l.CheckAndIncrement(ctx, wallet)
	assert.Equal(t, models.RateLimited, d)

	c.advance(time.Millisecond)
	d, _ = l.CheckAndIncrement(ctx, wallet)
	assert.Equal(t, models.RateAllowed, d)

	w, ok, err := store.Get(ctx, key(wallet))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), w.Count)
	assert.Equal(t, c.now(), w.Start)
}

func TestLimiter_WalletsAreIndependent(t *testing.T) {
	l, _ := newLimiter(NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < 101; i++ {
		_, _ = l.CheckAndIncrement(ctx, wallet)
	}
	d, _ := l.CheckAndIncrement(ctx, "other")
	assert.Equal(t, models.RateAllowed, d)
}

func TestLimiter_ConcurrentIncrementsAreNotLost(t *testing.T) {
	store := NewMemoryStore()
	l, _ := newLimiter(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.CheckAndIncrement(ctx, wallet)
		}()
	}
	wg.Wait()

	w, _, _ := store.Get(ctx, key(wallet))
	assert.Equal(t, int64(50), w.Count)
}

func TestLimiter_Status(t *testing.T) {
	l, c := newLimiter(NewMemoryStore())
	ctx := context.Background()

	remaining, reset, err := l.Status(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, int64(100), remaining)
	assert.Equal(t, c.now().Add(time.Hour), reset)

	start := c.now()
	for i := 0; i < 3; i++ {
		_, _ = l.CheckAndIncrement(ctx, wallet)
	}
	c.advance(time.Minute)

	remaining, reset, err = l.Status(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, int64(97), remaining)
	assert.Equal(t, start.Add(time.Hour), reset)
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (models.RateWindow, bool, error) {
	return models.RateWindow{}, false, errors.New("down")
}

func (brokenStore) IncrementOrReset(context.Context, string, time.Time, time.Duration) (models.RateWindow, error) {
	return models.RateWindow{}, errors.New("down")
}

func TestLimiter_StoreFailureAdmits(t *testing.T) {
	l := New(brokenStore{}, 100, time.Hour)
	d, err := l.CheckAndIncrement(context.Background(), wallet)
	require.NoError(t, err)
	assert.Equal(t, models.RateAllowed, d)
}

func TestMemoryStore_Prune(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, _ = s.IncrementOrReset(ctx, "old", base, time.Hour)
	_, _ = s.IncrementOrReset(ctx, "new", base.Add(3*time.Hour), time.Hour)

	assert.Equal(t, 1, s.Prune(base.Add(time.Hour)))
	_, ok, _ := s.Get(ctx, "old")
	assert.False(t, ok)
	_, ok, _ = s.Get(ctx, "new")
	assert.True(t, ok)
}

func TestMemoryStore_IncrementAfterPruneUsesLiveEntry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base.Add(3 * time.Hour)

	_, _ = s.IncrementOrReset(ctx, "w", base, time.Hour)
	looked := s.lookup("w", false)
	require.NotNil(t, looked)

	// the window is pruned between lookup and lock
	require.Equal(t, 1, s.Prune(base.Add(time.Hour)))
	_, ok := s.increment(looked, now, time.Hour)
	assert.False(t, ok, "pruned entry must not absorb an increment")

	w, err := s.IncrementOrReset(ctx, "w", now, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), w.Count)
	w, err = s.IncrementOrReset(ctx, "w", now, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), w.Count)

	got, ok, _ := s.Get(ctx, "w")
	require.True(t, ok)
	assert.Equal(t, int64(2), got.Count)
}
