// Package retry runs an operation until it succeeds, a bound is reached or
// the context ends. Scheduling is delegated to cenkalti/backoff; this
// package keeps the attempt accounting callers log and classify on.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// NonRetryableError stops Do on the first occurrence.
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// ExhaustedError is returned once every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

type Config struct {
	MaxAttempts  int           // total attempts, <=0 means one
	InitialDelay time.Duration // delay before the second attempt
	MaxDelay     time.Duration // cap for the growing delay
	Multiplier   float64       // 1 keeps the delay fixed, 0 means 2
	AddJitter    bool          // +/-25% per sleep

	// OnFailure, when set, observes each failed attempt before the sleep.
	OnFailure func(attempt int, err error)
}

// Fixed returns a config that waits the same delay between attempts.
func Fixed(attempts int, delay time.Duration) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: delay,
		MaxDelay:     delay,
		Multiplier:   1,
	}
}

// Backoff returns a jittered exponential config for short contention loops.
func Backoff(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: 20 * time.Millisecond,
		MaxDelay:     500 * time.Millisecond,
		Multiplier:   2,
		AddJitter:    true,
	}
}

func (cfg Config) normalized() (Config, error) {
	if cfg.InitialDelay < 0 || cfg.MaxDelay < 0 || cfg.Multiplier < 0 {
		return cfg, errors.New("retry: negative delay or multiplier")
	}
	if cfg.Multiplier > 1000 {
		cfg.Multiplier = 1000
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		return cfg, errors.New("retry: MaxDelay must be >= InitialDelay")
	}
	return cfg, nil
}

func (cfg Config) policy() backoff.BackOff {
	if cfg.Multiplier == 1 && !cfg.AddJitter {
		return backoff.NewConstantBackOff(cfg.InitialDelay)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialDelay
	b.MaxInterval = cfg.MaxDelay
	b.Multiplier = cfg.Multiplier
	b.RandomizationFactor = 0
	if cfg.AddJitter {
		b.RandomizationFactor = 0.25
	}
	b.Reset()
	return b
}

// budget bounds the total elapsed time generously enough that only
// MaxAttempts ends the loop.
func (cfg Config) budget() time.Duration {
	return time.Duration(cfg.MaxAttempts+1) * (cfg.MaxDelay + cfg.MaxDelay/4 + time.Second)
}

func Do(ctx context.Context, cfg Config, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult is Do for functions that produce a value.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var zero T
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := cfg.normalized()
	if err != nil {
		return zero, err
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	attempt := 0
	var lastErr error
	op := func() (T, error) {
		attempt++
		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if IsNonRetryable(err) {
			return out, backoff.Permanent(err)
		}
		if cfg.OnFailure != nil {
			cfg.OnFailure(attempt, err)
		}
		return out, err
	}

	out, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(cfg.policy()),
		backoff.WithMaxTries(uint(cfg.MaxAttempts)),
		backoff.WithMaxElapsedTime(cfg.budget()),
	)
	if err == nil {
		return out, nil
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	if IsNonRetryable(err) {
		return out, err
	}
	if cerr := ctx.Err(); cerr != nil {
		return out, fmt.Errorf("retry cancelled after attempt %d: %w", attempt, cerr)
	}
	return out, &ExhaustedError{Attempts: attempt, Err: lastErr}
}
