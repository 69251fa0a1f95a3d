// Package retry re-runs operations that fail with transient errors, backing
// off exponentially with jitter between attempts.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// ErrExhausted is returned (wrapping the last error) when every attempt
// failed with a retryable error.
var ErrExhausted = errors.New("retries exhausted")

// Config contains retry configuration.
type Config struct {
	// MaxRetries is the number of retries after the first attempt
	// (0 = a single attempt).
	MaxRetries int
	// InitialInterval is the wait before the first retry (default: 50ms).
	InitialInterval time.Duration
	// MaxInterval caps the wait between attempts (default: 1s).
	MaxInterval time.Duration
	// Multiplier grows the interval after each retry (default: 2.0).
	Multiplier float64
	// JitterFactor is the random ± fraction applied to each interval
	// (default: 0.1).
	JitterFactor float64
}

// DefaultConfig returns the defaults used for storage operations.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.1,
	}
}

// Operation is the function to be retried.
type Operation func(ctx context.Context) error

// Classifier reports whether err is worth another attempt.
type Classifier func(err error) bool

// Retrier runs operations under a Config.
type Retrier struct {
	config    Config
	retryable Classifier
	sleep     func(ctx context.Context, d time.Duration) error
}

// New creates a Retrier.  Zero fields of config take their defaults.  Only
// errors for which retryable returns true are retried; everything else is
// returned from the failing attempt unchanged.
func New(config Config, retryable Classifier) *Retrier {
	def := DefaultConfig()
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.InitialInterval <= 0 {
		config.InitialInterval = def.InitialInterval
	}
	if config.MaxInterval <= 0 {
		config.MaxInterval = def.MaxInterval
	}
	if config.Multiplier <= 0 {
		config.Multiplier = def.Multiplier
	}
	if config.JitterFactor < 0 {
		config.JitterFactor = 0
	}
	if config.JitterFactor > 1 {
		config.JitterFactor = 1
	}
	if retryable == nil {
		retryable = func(error) bool { return false }
	}
	return &Retrier{config: config, retryable: retryable, sleep: sleepCtx}
}

// Do runs op until it succeeds, fails permanently, the context ends or the
// retry budget is spent.  In the last case the returned error wraps both
// ErrExhausted and the final attempt's error.
func (r *Retrier) Do(ctx context.Context, op Operation) error {
	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !r.retryable(err) {
			return err
		}
		lastErr = err
		if attempt == r.config.MaxRetries {
			break
		}
		if err := r.sleep(ctx, r.interval(attempt)); err != nil {
			return lastErr
		}
	}
	return &exhaustedError{attempts: r.config.MaxRetries + 1, err: lastErr}
}

// interval returns the wait after the given zero-based attempt.
func (r *Retrier) interval(attempt int) time.Duration {
	interval := float64(r.config.InitialInterval) * math.Pow(r.config.Multiplier, float64(attempt))
	if r.config.JitterFactor > 0 {
		jitter := interval * r.config.JitterFactor
		interval += (rand.Float64()*2 - 1) * jitter
	}
	if interval > float64(r.config.MaxInterval) {
		interval = float64(r.config.MaxInterval)
	}
	if interval < 0 {
		interval = float64(r.config.InitialInterval)
	}
	return time.Duration(interval)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type exhaustedError struct {
	attempts int
	err      error
}

func (e *exhaustedError) Error() string {
	return ErrExhausted.Error() + ": " + e.err.Error()
}

// Unwrap exposes both the sentinel and the last attempt's error.
func (e *exhaustedError) Unwrap() []error {
	return []error{ErrExhausted, e.err}
}

// Attempts returns how many attempts were made when err came from Do
// exhausting its budget, or 0 otherwise.
func Attempts(err error) int {
	var ex *exhaustedError
	if errors.As(err, &ex) {
		return ex.attempts
	}
	return 0
}
