// Package retry provides bounded exponential backoff for provider calls.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/wallet-explorer/internal/logging"
)

// SleepFunc waits for the given duration. Tests inject a recording fake so
// rate-limit behavior can be verified without real delays.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc, honoring context cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Config configures retry behavior
type Config struct {
	MaxAttempts  int           // Total number of attempts, including the first
	InitialDelay time.Duration // Delay before the first retry
	MaxDelay     time.Duration // Cap on the delay between retries
	Multiplier   float64       // Multiplier for exponential backoff
	Sleep        SleepFunc     // Defaults to Sleep when nil
}

// DefaultConfig returns the retry configuration used against the chain
// provider: 3 attempts with delays of 1s then 2s.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
	}
}

// RetryableFunc is attempted up to MaxAttempts times. It returns the error
// for the attempt and whether that error warrants another attempt.
type RetryableFunc func(ctx context.Context, attempt int) (retryable bool, err error)

// Result contains information about the retry operation
type Result struct {
	Attempts  int
	Success   bool
	LastError error
}

// Do executes a function with bounded exponential backoff. Errors the
// function reports as non-retryable propagate immediately.
func Do(ctx context.Context, config *Config, fn RetryableFunc) *Result {
	logger := logging.FromContext(ctx)
	sleep := config.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	result := &Result{}

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result.Attempts = attempt

		retryable, err := fn(ctx, attempt)
		if err == nil {
			result.Success = true
			if attempt > 1 {
				logger.WithField("attempts", attempt).Info("Operation succeeded after retry")
			}
			return result
		}

		result.LastError = err

		if !retryable || attempt >= config.MaxAttempts {
			return result
		}

		delay := backoffDelay(config, attempt)
		logger.WithFields(map[string]interface{}{
			"attempt":     attempt,
			"maxAttempts": config.MaxAttempts,
			"delay":       delay.String(),
			"error":       err.Error(),
		}).Warn("Operation throttled, retrying with exponential backoff")

		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			result.LastError = sleepErr
			return result
		}
	}

	return result
}

// backoffDelay calculates the delay before the next attempt:
// initialDelay * multiplier^(attempt-1), capped at MaxDelay.
func backoffDelay(config *Config, attempt int) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.Multiplier, float64(attempt-1))
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	return time.Duration(delay)
}
