package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCache_TTLExpiry(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{now: time.Unix(5000, 0)}
	c := New[string](Config{Name: "permit-data", DefaultTTL: 30 * time.Minute, MaxEntries: 100}, clk)

	c.Set("springfield", "data", 10*time.Minute)

	got, ok := c.Get("springfield")
	require.True(t, ok)
	require.Equal(t, "data", got)

	clk.Advance(10*time.Minute + time.Second)
	_, ok = c.Get("springfield")
	require.False(t, ok)
	// The expired entry was removed, not just hidden.
	require.Equal(t, 0, c.Len())
}

func TestCache_DefaultTTLApplied(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{now: time.Unix(5000, 0)}
	c := New[int](Config{Name: "url-validation", DefaultTTL: 5 * time.Minute, MaxEntries: 200}, clk)

	c.Set("k", 7, 0)
	clk.Advance(4 * time.Minute)
	_, ok := c.Get("k")
	require.True(t, ok)

	clk.Advance(2 * time.Minute)
	_, ok = c.Get("k")
	require.False(t, ok)
}

func TestCache_EvictsOldestAtCapacity(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{now: time.Unix(5000, 0)}
	c := New[int](Config{Name: "jurisdiction", DefaultTTL: time.Hour, MaxEntries: 3}, clk)

	c.Set("a", 1, 0)
	clk.Advance(time.Second)
	c.Set("b", 2, 0)
	clk.Advance(time.Second)
	c.Set("c", 3, 0)
	clk.Advance(time.Second)

	c.Set("d", 4, 0)
	require.Equal(t, 3, c.Len())
	require.False(t, c.Has("a"), "oldest entry should be evicted")
	require.True(t, c.Has("b"))
	require.True(t, c.Has("d"))
}

func TestCache_OverwriteDoesNotEvict(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{now: time.Unix(5000, 0)}
	c := New[int](Config{Name: "jurisdiction", DefaultTTL: time.Hour, MaxEntries: 2}, clk)

	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	c.Set("a", 9, 0)
	require.Equal(t, 2, c.Len())
	got, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, 9, got)
}

func TestCache_DeleteAndClear(t *testing.T) {
	t.Parallel()
	c := New[string](Config{Name: "t", DefaultTTL: time.Hour, MaxEntries: 10}, nil)
	c.Set("x", "1", 0)
	c.Set("y", "2", 0)
	c.Delete("x")
	require.False(t, c.Has("x"))
	c.Clear()
	require.Equal(t, 0, c.Len())
}

func TestCache_ConcurrentAccess(t *testing.T) {
	t.Parallel()
	c := New[int](Config{Name: "t", DefaultTTL: time.Hour, MaxEntries: 50}, nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", n%10)
			c.Set(key, n, 0)
			c.Get(key)
		}(i)
	}
	wg.Wait()
	require.LessOrEqual(t, c.Len(), 10)
}
