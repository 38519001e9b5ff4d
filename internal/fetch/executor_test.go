package fetch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExecutor_PermanentFailureAttemptsExactlyNPlusOne(t *testing.T) {
	t.Parallel()
	e := NewExecutor(RetryConfig{
		MaxRetries:     3,
		AttemptTimeout: time.Second,
		BaseDelay:      time.Millisecond,
		MaxDelay:       2 * time.Millisecond,
		Multiplier:     2,
	}, nil)

	calls := 0
	outcome, err := e.Do(context.Background(), "example.gov", func(context.Context) error {
		calls++
		return &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	})
	require.Error(t, err)
	require.Equal(t, 4, calls)
	require.Equal(t, 4, outcome.Attempts)
	require.False(t, outcome.Success)
	require.Equal(t, KindConnection, outcome.ErrKind)
}

func TestExecutor_TerminalErrorNotRetried(t *testing.T) {
	t.Parallel()
	e := NewExecutor(RetryConfig{MaxRetries: 5, BaseDelay: time.Millisecond}, nil)

	calls := 0
	_, err := e.Do(context.Background(), "example.gov", func(context.Context) error {
		calls++
		return &HTTPError{Status: http.StatusNotFound, URL: "https://example.gov"}
	})
	require.Error(t, err)
	require.Equal(t, 1, calls, "4xx other than 429 must not be retried")

	calls = 0
	_, err = e.Do(context.Background(), "example.gov", func(context.Context) error {
		calls++
		return errors.New("something novel")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls, "unknown errors must not be retried")
}

func TestExecutor_RetriesOn429AndServerErrors(t *testing.T) {
	t.Parallel()
	e := NewExecutor(RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}, nil)

	for _, status := range []int{http.StatusInternalServerError, http.StatusBadGateway, http.StatusTooManyRequests} {
		calls := 0
		_, err := e.Do(context.Background(), "example.gov", func(context.Context) error {
			calls++
			return &HTTPError{Status: status, URL: "https://example.gov"}
		})
		require.Error(t, err)
		require.Equal(t, 3, calls, "status %d should be retried", status)
	}
}

func TestExecutor_BackoffWithinJitterBounds(t *testing.T) {
	t.Parallel()
	cfg := RetryConfig{
		MaxRetries: 5,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2,
	}
	e := NewExecutor(cfg, nil)

	for attempt := 1; attempt <= 6; attempt++ {
		ideal := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
		if ideal > float64(cfg.MaxDelay) {
			ideal = float64(cfg.MaxDelay)
		}
		for i := 0; i < 50; i++ {
			d := float64(e.backoff(attempt))
			require.GreaterOrEqual(t, d, 0.9*ideal, "attempt %d", attempt)
			require.LessOrEqual(t, d, 1.1*ideal, "attempt %d", attempt)
		}
	}
}

func TestExecutor_AttemptTimeoutAbortsHungOperation(t *testing.T) {
	t.Parallel()
	e := NewExecutor(RetryConfig{
		MaxRetries:     1,
		AttemptTimeout: 30 * time.Millisecond,
		BaseDelay:      time.Millisecond,
	}, nil)

	start := time.Now()
	outcome, err := e.Do(context.Background(), "slow.gov", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)
	require.Equal(t, KindTimeout, outcome.ErrKind)
	require.Equal(t, 2, outcome.Attempts)
	require.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestExecutor_ParentCancellationStopsRetries(t *testing.T) {
	t.Parallel()
	e := NewExecutor(RetryConfig{MaxRetries: 10, BaseDelay: 50 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := e.Do(ctx, "example.gov", func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return &HTTPError{Status: http.StatusInternalServerError, URL: "https://example.gov"}
	})
	require.Error(t, err)
	require.Less(t, atomic.LoadInt32(&calls), int32(4))
}

func TestExecutor_EventualSuccessThroughStaticFetcher(t *testing.T) {
	t.Parallel()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, "<html><body>Permit Center</body></html>")
	}))
	defer srv.Close()

	fetcher := NewStatic(StaticConfig{})
	e := NewExecutor(RetryConfig{
		MaxRetries:     3,
		AttemptTimeout: 2 * time.Second,
		BaseDelay:      time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
	}, nil)

	var resp Response
	outcome, err := e.Do(context.Background(), srv.URL, func(ctx context.Context) error {
		var fetchErr error
		resp, fetchErr = fetcher.Fetch(ctx, Request{URL: srv.URL})
		return fetchErr
	})
	require.NoError(t, err)
	require.True(t, outcome.Success)
	require.Equal(t, 3, outcome.Attempts)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(resp.Body), "Permit Center")
}

func TestClassify(t *testing.T) {
	t.Parallel()
	require.Equal(t, KindNone, Classify(nil))
	require.Equal(t, KindTimeout, Classify(context.DeadlineExceeded))
	require.Equal(t, KindAbort, Classify(context.Canceled))
	require.Equal(t, KindDNS, Classify(&net.DNSError{Err: "no such host", Name: "nope.gov"}))
	require.Equal(t, KindHTTP, Classify(&HTTPError{Status: 503}))
	require.Equal(t, KindConnection, Classify(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	require.Equal(t, KindUnknown, Classify(errors.New("mystery")))

	require.True(t, Retryable(context.DeadlineExceeded))
	require.True(t, Retryable(&HTTPError{Status: 500}))
	require.True(t, Retryable(&HTTPError{Status: 429}))
	require.False(t, Retryable(&HTTPError{Status: 403}))
	require.False(t, Retryable(errors.New("mystery")))
	require.False(t, Retryable(context.Canceled))
}
