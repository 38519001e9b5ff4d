// Package breaker implements a per-dependency circuit breaker.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/permitdesk/permit-pipeline/internal/clock"
	"github.com/permitdesk/permit-pipeline/internal/telemetry"
)

// ErrOpen is returned when a call is rejected because the breaker is open.
var ErrOpen = errors.New("circuit breaker open")

// State captures the breaker state machine position.
type State int

// Breaker states.
const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Config controls when a breaker opens and how long it stays open.
type Config struct {
	// Name labels the guarded dependency in logs and metrics.
	Name string
	// FailureThreshold is the number of consecutive failures that opens the
	// breaker.
	FailureThreshold int
	// ResetTimeout is how long the breaker stays open before admitting one
	// half-open probe.
	ResetTimeout time.Duration
}

// Breaker guards one named dependency. Safe for concurrent use; each breaker
// owns its own mutex so unrelated dependencies never serialize each other.
type Breaker struct {
	mu          sync.Mutex
	cfg         Config
	clock       clock.Clock
	logger      *zap.Logger
	state       State
	failures    int
	lastFailure time.Time
	nextAttempt time.Time
	probing     bool
}

// New constructs a Breaker. Nil clock and logger fall back to system defaults.
func New(cfg Config, clk clock.Clock, logger *zap.Logger) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 60 * time.Second
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{cfg: cfg, clock: clk, logger: logger, state: StateClosed}
}

// State returns the current state, accounting for reset timeout expiry.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && !b.clock.Now().Before(b.nextAttempt) {
		return StateHalfOpen
	}
	return b.state
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Execute runs op under the breaker. While open and before the reset timeout
// it fails fast with ErrOpen without invoking op. After the timeout exactly
// one probe call is admitted; its outcome decides closed versus open.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.admit(); err != nil {
		telemetry.ObserveBreakerShortCircuit(b.cfg.Name)
		return err
	}
	err := op(ctx)
	b.record(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.clock.Now().Before(b.nextAttempt) {
			return fmt.Errorf("%s: %w", b.cfg.Name, ErrOpen)
		}
		b.transitionLocked(StateHalfOpen)
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			// A probe is already in flight; reject until it settles.
			return fmt.Errorf("%s: %w", b.cfg.Name, ErrOpen)
		}
		b.probing = true
		return nil
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	if err == nil {
		if b.state != StateClosed {
			b.transitionLocked(StateClosed)
		}
		b.failures = 0
		return
	}

	b.failures++
	b.lastFailure = b.clock.Now()

	if b.state == StateHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.nextAttempt = b.clock.Now().Add(b.cfg.ResetTimeout)
		b.transitionLocked(StateOpen)
	}
}

func (b *Breaker) transitionLocked(next State) {
	if b.state == next {
		return
	}
	b.logger.Warn("circuit breaker transition",
		zap.String("breaker", b.cfg.Name),
		zap.String("from", b.state.String()),
		zap.String("to", next.String()),
		zap.Int("failures", b.failures),
	)
	b.state = next
	telemetry.ObserveBreakerTransition(b.cfg.Name, next.String())
}
