// Package retry re-runs operations that fail with transient errors, backing
// off exponentially between attempts. Stores mark transient failures with
// Retryable; anything else stops the loop at once.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

const defaultBaseDelay = 100 * time.Millisecond

// Config controls how often and how patiently Do retries.
type Config struct {
	// Attempts is the total number of calls. Zero retries until ctx is done.
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultConfig suits background metadata writes.
func DefaultConfig() Config {
	return Config{
		Attempts:  4,
		BaseDelay: 200 * time.Millisecond,
		MaxDelay:  5 * time.Second,
	}
}

type transient struct {
	err error
}

func (t *transient) Error() string { return t.err.Error() }
func (t *transient) Unwrap() error { return t.err }

// Retryable marks err as transient. It returns nil for nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &transient{err: err}
}

// IsRetryable reports whether err, or anything it wraps, was marked with
// Retryable.
func IsRetryable(err error) bool {
	var t *transient
	return errors.As(err, &t)
}

// Do calls fn until it succeeds, fails permanently, runs out of attempts or
// ctx is done. It returns fn's last error, or ctx's error if the context
// ended the loop.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !IsRetryable(err) {
			return err
		}
		if cfg.Attempts > 0 && attempt >= cfg.Attempts {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := cfg.delay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// delay doubles BaseDelay per attempt up to MaxDelay, then keeps half of it
// fixed and randomizes the other half.
func (c Config) delay(attempt int) time.Duration {
	d := c.BaseDelay
	if d <= 0 {
		d = defaultBaseDelay
	}
	for i := 1; i < attempt; i++ {
		if c.MaxDelay > 0 && d >= c.MaxDelay {
			break
		}
		d *= 2
	}
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	half := d / 2
	return half + time.Duration(rand.Int64N(int64(d-half)+1))
}
