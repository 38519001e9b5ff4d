package fetch

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/permitdesk/permit-pipeline/internal/telemetry"
)

// RetryConfig controls the executor's retry loop for one dependency.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt, so a
	// permanently failing operation runs MaxRetries+1 times.
	MaxRetries int
	// AttemptTimeout bounds each attempt independently.
	AttemptTimeout time.Duration
	// BaseDelay seeds the exponential backoff.
	BaseDelay time.Duration
	// MaxDelay caps the backoff.
	MaxDelay time.Duration
	// Multiplier grows the delay between attempts.
	Multiplier float64
}

// DefaultRetryConfig returns the settings used when a dependency has none.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		AttemptTimeout: 30 * time.Second,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		Multiplier:     2,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = d.AttemptTimeout
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.Multiplier <= 1 {
		c.Multiplier = d.Multiplier
	}
	return c
}

// Outcome summarizes one logical operation for logging and metrics. It is
// never persisted.
type Outcome struct {
	RequestID string
	Attempts  int
	Elapsed   time.Duration
	ErrKind   ErrKind
	Success   bool
}

// Operation is one attempt of a logical request. The context it receives is
// bounded by the configured attempt timeout.
type Operation func(ctx context.Context) error

// Executor runs operations with per-attempt timeouts and jittered
// exponential backoff between retryable failures. Retries are strictly
// sequential so a struggling dependency never sees overlapping attempts.
type Executor struct {
	cfg    RetryConfig
	logger *zap.Logger
}

// NewExecutor builds an Executor. A nil logger disables attempt logging.
func NewExecutor(cfg RetryConfig, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{cfg: cfg.withDefaults(), logger: logger}
}

// Do executes op until it succeeds, fails terminally, or exhausts the retry
// budget. The site label is only used for logs and metrics. The last error
// is returned alongside the outcome.
func (e *Executor) Do(ctx context.Context, site string, op Operation) (Outcome, error) {
	outcome := Outcome{RequestID: uuid.NewString()}
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxRetries+1; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
		attemptStart := time.Now()
		err := op(attemptCtx)
		cancel()

		attemptDur := time.Since(attemptStart)
		outcome.Attempts = attempt
		kind := Classify(err)

		if err == nil {
			outcome.Success = true
			outcome.ErrKind = KindNone
			outcome.Elapsed = time.Since(start)
			telemetry.ObserveFetchAttempt(site, "success", attemptDur)
			e.logger.Debug("request attempt succeeded",
				zap.String("request_id", outcome.RequestID),
				zap.String("site", site),
				zap.Int("attempt", attempt),
				zap.Duration("duration", attemptDur),
			)
			return outcome, nil
		}

		lastErr = err
		outcome.ErrKind = kind
		telemetry.ObserveFetchAttempt(site, string(kind), attemptDur)
		e.logger.Warn("request attempt failed",
			zap.String("request_id", outcome.RequestID),
			zap.String("site", site),
			zap.Int("attempt", attempt),
			zap.Duration("duration", attemptDur),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)

		if !Retryable(err) || attempt > e.cfg.MaxRetries {
			break
		}
		if ctx.Err() != nil {
			break
		}
		if err := e.sleep(ctx, e.backoff(attempt)); err != nil {
			lastErr = err
			outcome.ErrKind = Classify(err)
			break
		}
	}

	outcome.Elapsed = time.Since(start)
	return outcome, lastErr
}

// backoff computes the delay before the attempt following attempt k, jittered
// by up to ±10% to avoid synchronized retry storms.
func (e *Executor) backoff(attempt int) time.Duration {
	delay := float64(e.cfg.BaseDelay) * math.Pow(e.cfg.Multiplier, float64(attempt-1))
	if delay > float64(e.cfg.MaxDelay) {
		delay = float64(e.cfg.MaxDelay)
	}
	return time.Duration(delay * jitterFactor())
}

// jitterFactor returns a uniform value in [0.9, 1.1].
func jitterFactor() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1000))
	if err != nil {
		return 1
	}
	return 0.9 + float64(n.Int64())/1000*0.2
}

func (e *Executor) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
