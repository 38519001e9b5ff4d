package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWindowLimiter_MinuteBudgetUnderConcurrency(t *testing.T) {
	t.Parallel()
	// Compressed windows so the test runs quickly: 5 admissions per 200ms.
	l := NewWindow(WindowConfig{
		Name:         "vendor-a",
		PerMinute:    5,
		PerHour:      100,
		MinuteWindow: 200 * time.Millisecond,
		HourWindow:   10 * time.Second,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var (
		mu    sync.Mutex
		times []time.Time
		wg    sync.WaitGroup
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(ctx); err != nil {
				return
			}
			mu.Lock()
			times = append(times, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, times, 12)

	// No rolling 200ms window may contain more than 5 admissions. A small
	// tolerance absorbs scheduler skew around window boundaries.
	for _, anchor := range times {
		count := 0
		for _, ts := range times {
			if !ts.Before(anchor) && ts.Sub(anchor) < 190*time.Millisecond {
				count++
			}
		}
		require.LessOrEqual(t, count, 5, "window starting at %v overshot", anchor)
	}
}

func TestWindowLimiter_HourBudgetBlocks(t *testing.T) {
	t.Parallel()
	l := NewWindow(WindowConfig{
		Name:         "vendor-b",
		PerMinute:    10,
		PerHour:      2,
		MinuteWindow: 50 * time.Millisecond,
		HourWindow:   300 * time.Millisecond,
	}, nil)

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))

	// Third admission must wait for the hour window, not the minute window.
	start := time.Now()
	require.NoError(t, l.Acquire(ctx))
	require.GreaterOrEqual(t, time.Since(start), 250*time.Millisecond)
}

func TestWindowLimiter_CancellationUnblocks(t *testing.T) {
	t.Parallel()
	l := NewWindow(WindowConfig{
		Name:         "vendor-c",
		PerMinute:    1,
		PerHour:      1,
		MinuteWindow: time.Minute,
		HourWindow:   time.Hour,
	}, nil)

	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWindowLimiter_CountersResetAfterWindow(t *testing.T) {
	t.Parallel()
	l := NewWindow(WindowConfig{
		Name:         "vendor-d",
		PerMinute:    2,
		PerHour:      100,
		MinuteWindow: 80 * time.Millisecond,
		HourWindow:   10 * time.Second,
	}, nil)

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))
	minute, hour := l.Usage()
	require.Equal(t, 2, minute)
	require.Equal(t, 2, hour)

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, l.Acquire(ctx))
	minute, _ = l.Usage()
	require.Equal(t, 1, minute)
}

func TestDomainLimiter_IndependentHosts(t *testing.T) {
	t.Parallel()
	l := NewDomain(DomainConfig{DefaultRPS: 1, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example.gov/permits"))

	// A different host is not blocked by the first host's bucket.
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.example.gov/permits"))
	require.Less(t, time.Since(start), 100*time.Millisecond)
}
