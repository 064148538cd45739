package backoff

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sleeper abstracts the inter-attempt wait so policies can be unit tested
// without real sleeping.
type Sleeper interface {
	// Sleep blocks for d or until ctx is cancelled, returning ctx.Err()
	// in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// realSleeper waits on the wall clock.
type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Policy describes a bounded retry loop: up to MaxAttempts attempts with
// Interval between them, optionally growing by Multiplier up to MaxInterval.
// A Policy is a value; Retry never mutates it.
type Policy struct {
	MaxAttempts int
	Interval    time.Duration
	MaxInterval time.Duration
	Multiplier  float64
	Sleeper     Sleeper
}

// Option is a functional option for Policy construction.
type Option func(*Policy)

// WithMaxAttempts sets the total attempt bound. Attempt counting starts
// at 1 and the bound is inclusive: n == 1 means exactly one attempt.
func WithMaxAttempts(n int) Option {
	return func(p *Policy) { p.MaxAttempts = n }
}

// WithInterval sets the delay between attempts.
func WithInterval(d time.Duration) Option {
	return func(p *Policy) { p.Interval = d }
}

// WithMaxInterval caps the grown delay.
func WithMaxInterval(d time.Duration) Option {
	return func(p *Policy) { p.MaxInterval = d }
}

// WithMultiplier sets the per-attempt delay growth factor.
func WithMultiplier(m float64) Option {
	return func(p *Policy) { p.Multiplier = m }
}

// WithSleeper injects the wait implementation, usually a fake in tests.
func WithSleeper(s Sleeper) Option {
	return func(p *Policy) { p.Sleeper = s }
}

// New builds a Policy with defaults suitable for short operational retries.
func New(opts ...Option) Policy {
	p := Policy{
		MaxAttempts: 10,
		Interval:    2 * time.Second,
		MaxInterval: 30 * time.Second,
		Multiplier:  1.0,
		Sleeper:     realSleeper{},
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// InterruptedError reports that the retry loop stopped because the
// wait between attempts was cancelled, not because the attempt bound
// was reached. It unwraps to the cancellation cause.
type InterruptedError struct {
	Attempts int
	Err      error
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("cancelled after %d attempts: %v", e.Attempts, e.Err)
}

func (e *InterruptedError) Unwrap() error { return e.Err }

// FatalError wraps an error to mark it as non-retryable.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }

// Fatal marks an error as fatal; Retry stops immediately on it.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err is marked non-retryable.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// Retry runs operation until it succeeds, returns a fatal error, the
// attempt bound is reached, or ctx is cancelled. The attempt ordinal
// passed to operation starts at 1.
func (p Policy) Retry(ctx context.Context, operation func(attempt int) error) error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("backoff: max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	sleeper := p.Sleeper
	if sleeper == nil {
		sleeper = realSleeper{}
	}

	delay := p.Interval
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := operation(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if IsFatal(err) {
			return fmt.Errorf("fatal error on attempt %d (not retrying): %w", attempt, err)
		}

		if attempt == p.MaxAttempts {
			break
		}

		if err := sleeper.Sleep(ctx, delay); err != nil {
			return &InterruptedError{Attempts: attempt, Err: err}
		}

		if p.Multiplier > 1.0 {
			delay = time.Duration(float64(delay) * p.Multiplier)
			if p.MaxInterval > 0 && delay > p.MaxInterval {
				delay = p.MaxInterval
			}
		}
	}

	return fmt.Errorf("exhausted %d attempts: %w", p.MaxAttempts, lastErr)
}
