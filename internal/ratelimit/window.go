// Package ratelimit bounds outbound request volume per external system.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/permitdesk/permit-pipeline/internal/clock"
	"github.com/permitdesk/permit-pipeline/internal/telemetry"
)

// WindowConfig bounds admissions for one external system.
type WindowConfig struct {
	// Name labels the system in logs and metrics.
	Name string
	// PerMinute is the admission budget per rolling minute window.
	PerMinute int
	// PerHour is the admission budget per rolling hour window.
	PerHour int
	// MinuteWindow and HourWindow override the window lengths; primarily for
	// tests. Zero means one minute / one hour.
	MinuteWindow time.Duration
	HourWindow   time.Duration
}

// WindowLimiter admits requests only while both the per-minute and per-hour
// budgets have capacity within their rolling windows. Admission timestamps
// are kept in a pruned log, so no rolling window ever overshoots its budget.
// Waiters sleep on a timer until the earliest blocking admission ages out; no
// caller busy-waits. Safe for concurrent use; the check and record happen
// atomically under one mutex.
type WindowLimiter struct {
	mu         sync.Mutex
	cfg        WindowConfig
	clock      clock.Clock
	admissions []time.Time
}

// NewWindow constructs a WindowLimiter. A nil clk uses the system clock.
func NewWindow(cfg WindowConfig, clk clock.Clock) *WindowLimiter {
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = 60
	}
	if cfg.PerHour <= 0 {
		cfg.PerHour = 1000
	}
	if cfg.MinuteWindow <= 0 {
		cfg.MinuteWindow = time.Minute
	}
	if cfg.HourWindow <= 0 {
		cfg.HourWindow = time.Hour
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &WindowLimiter{cfg: cfg, clock: clk}
}

// Acquire blocks until both budgets have capacity, then records one
// admission. It returns early with the context error on cancellation.
func (l *WindowLimiter) Acquire(ctx context.Context) error {
	start := l.clock.Now()
	for {
		wait, ok := l.tryAcquire()
		if ok {
			if waited := l.clock.Now().Sub(start); waited > time.Millisecond {
				telemetry.ObserveRateLimitDelay(l.cfg.Name, waited)
			}
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limit wait for %s: %w", l.cfg.Name, ctx.Err())
		case <-timer.C:
		}
	}
}

// tryAcquire admits immediately when possible; otherwise it returns how long
// to sleep before the earliest blocking admission leaves its window.
func (l *WindowLimiter) tryAcquire() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.pruneLocked(now)

	minuteCount := 0
	minuteCutoff := now.Add(-l.cfg.MinuteWindow)
	for _, ts := range l.admissions {
		if ts.After(minuteCutoff) {
			minuteCount++
		}
	}

	if minuteCount < l.cfg.PerMinute && len(l.admissions) < l.cfg.PerHour {
		l.admissions = append(l.admissions, now)
		return 0, true
	}

	var wait time.Duration
	if len(l.admissions) >= l.cfg.PerHour {
		wait = l.admissions[0].Add(l.cfg.HourWindow).Sub(now)
	} else {
		// Oldest admission still inside the minute window bounds the wait.
		for _, ts := range l.admissions {
			if ts.After(minuteCutoff) {
				wait = ts.Add(l.cfg.MinuteWindow).Sub(now)
				break
			}
		}
	}
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, false
}

// pruneLocked drops admissions older than the hour window.
func (l *WindowLimiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.cfg.HourWindow)
	idx := 0
	for idx < len(l.admissions) && !l.admissions[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		l.admissions = append(l.admissions[:0], l.admissions[idx:]...)
	}
}

// Usage reports admissions currently inside the minute and hour windows.
func (l *WindowLimiter) Usage() (minute, hour int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	l.pruneLocked(now)
	minuteCutoff := now.Add(-l.cfg.MinuteWindow)
	for _, ts := range l.admissions {
		if ts.After(minuteCutoff) {
			minute++
		}
	}
	return minute, len(l.admissions)
}
