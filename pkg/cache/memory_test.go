package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIncrementIsMonotonic(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[int64]bool{}
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := mc.Increment(ctx, "seq")
			assert.NoError(t, err)
			mu.Lock()
			seen[n] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 50)
	n, err := mc.Increment(ctx, "seq")
	require.NoError(t, err)
	assert.Equal(t, int64(51), n)
}

func TestMemorySetGetRoundTrip(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	type snapshot struct {
		ID     uint64   `json:"id"`
		Levels []string `json:"levels"`
	}
	require.NoError(t, mc.Set(ctx, "latest", snapshot{ID: 4, Levels: []string{"1", "2"}}, 0))

	var got snapshot
	require.NoError(t, mc.Get(ctx, "latest", &got))
	assert.Equal(t, snapshot{ID: 4, Levels: []string{"1", "2"}}, got)

	require.NoError(t, mc.Set(ctx, "name", "btc", 0))
	var s string
	require.NoError(t, mc.Get(ctx, "name", &s))
	assert.Equal(t, "btc", s)

	require.NoError(t, mc.Delete(ctx, "name"))
	assert.ErrorIs(t, mc.Get(ctx, "name", &s), ErrCacheMiss)
}

func TestMemoryExpiryAndLock(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	ok, err := mc.TryLock(ctx, "clear", 20*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mc.TryLock(ctx, "clear", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	time.Sleep(40 * time.Millisecond)
	ok, err = mc.TryLock(ctx, "clear", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, mc.Unlock(ctx, "clear"))
	ok, err = mc.TryLock(ctx, "clear", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryEvictsLeastRecentlyUsed(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", "1", 0))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", "2", 0))
	time.Sleep(time.Millisecond)
	var s string
	require.NoError(t, mc.Get(ctx, "a", &s))
	require.NoError(t, mc.Set(ctx, "c", "3", 0))

	assert.ErrorIs(t, mc.Get(ctx, "b", &s), ErrCacheMiss)
	assert.NoError(t, mc.Get(ctx, "a", &s))
}
