// Package retry runs operations with capped exponential backoff.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// ErrMaxRetriesExceeded is returned when every attempt failed with a retryable error
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// Config contains retry configuration
type Config struct {
	// MaxRetries is the number of retries after the first attempt (0 = single attempt)
	MaxRetries int
	// InitialInterval is the wait before the first retry
	InitialInterval time.Duration
	// MaxInterval caps the wait between attempts
	MaxInterval time.Duration
	// Multiplier grows the interval after each retry
	Multiplier float64
	// JitterFactor randomizes each interval by ±factor (0-1)
	JitterFactor float64
}

// DefaultConfig returns defaults suited to short store transactions:
// 100ms, 200ms, 400ms then stop.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.2,
	}
}

// Operation is the function to be retried
type Operation func(ctx context.Context) error

// PermanentError wraps an error that must not be retried
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent marks err as not retryable
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Result describes how a retried operation went
type Result struct {
	// Err is the final error (nil on success). Permanent errors are unwrapped.
	Err error
	// Attempts counts every call of the operation, including the first
	Attempts int
	// LastError is the error of the last attempt
	LastError error
	// TotalDuration includes the time spent waiting
	TotalDuration time.Duration
}

// Callback is invoked before waiting for the next attempt
type Callback func(attempt int, err error, wait time.Duration)

// Retrier handles retry logic with exponential backoff
type Retrier struct {
	config *Config
}

// New creates a Retrier, filling zero values with defaults
func New(config *Config) *Retrier {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	cfg := *config

	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = defaults.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = defaults.MaxInterval
	}
	if cfg.MaxInterval < cfg.InitialInterval {
		cfg.MaxInterval = cfg.InitialInterval
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = defaults.Multiplier
	}
	cfg.JitterFactor = math.Max(0, math.Min(1, cfg.JitterFactor))

	return &Retrier{config: &cfg}
}

// Do runs op until it succeeds, returns a permanent error, the retries are
// used up, or ctx is done.
func (r *Retrier) Do(ctx context.Context, op Operation) *Result {
	return r.DoWithCallback(ctx, op, nil)
}

// DoWithCallback is Do with a hook before each retry
func (r *Retrier) DoWithCallback(ctx context.Context, op Operation, callback Callback) *Result {
	started := time.Now()
	result := &Result{}
	finish := func(err error) *Result {
		result.Err = err
		result.TotalDuration = time.Since(started)
		return result
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if result.LastError == nil {
				result.LastError = err
			}
			return finish(err)
		}

		result.Attempts = attempt + 1
		err := op(ctx)
		if err == nil {
			return finish(nil)
		}
		result.LastError = err

		var permErr *PermanentError
		if errors.As(err, &permErr) {
			result.LastError = permErr.Err
			return finish(permErr.Err)
		}

		if attempt >= r.config.MaxRetries {
			return finish(ErrMaxRetriesExceeded)
		}

		wait := r.interval(attempt)
		if callback != nil {
			callback(attempt+1, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return finish(ctx.Err())
		case <-timer.C:
		}
	}
}

// interval returns the backoff before retry number attempt+1
func (r *Retrier) interval(attempt int) time.Duration {
	wait := float64(r.config.InitialInterval) * math.Pow(r.config.Multiplier, float64(attempt))

	if r.config.JitterFactor > 0 {
		spread := wait * r.config.JitterFactor
		wait += (rand.Float64()*2 - 1) * spread
	}

	if wait > float64(r.config.MaxInterval) {
		wait = float64(r.config.MaxInterval)
	}
	if wait <= 0 {
		wait = float64(r.config.InitialInterval)
	}
	return time.Duration(wait)
}

// Do is a convenience wrapper around New(config).Do
func Do(ctx context.Context, config *Config, op Operation) *Result {
	return New(config).Do(ctx, op)
}
