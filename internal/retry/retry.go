package retry

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/skopiLandToken/skopi-sub000/internal/logging"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts     int           // Maximum number of attempts, including the first
	InitialDelay    time.Duration // Delay before the second attempt
	MaxDelay        time.Duration // Cap on any single delay
	Multiplier      float64       // Exponential backoff multiplier
	RetryableErrors []string      // Substrings that mark an error retryable; empty retries everything
}

// DefaultRetryConfig returns a default retry configuration
// Pattern: 1s, 2s, 4s, 8s, max 30s
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// RetryResult contains information about the retry operation
type RetryResult struct {
	Attempts      int           `json:"attempts"`
	Success       bool          `json:"success"`
	TotalDuration time.Duration `json:"totalDuration"`
	LastError     error         `json:"lastError,omitempty"`
}

// Err converts a failed result into an error
func (r *RetryResult) Err() error {
	if r.Success {
		return nil
	}
	return fmt.Errorf("operation failed after %d attempts: %w", r.Attempts, r.LastError)
}

// RetryFunc is a function that can be retried
type RetryFunc func(ctx context.Context, attempt int) error

// WithExponentialBackoff executes fn until it succeeds, the attempts run out,
// the error is not retryable, or ctx is done.
func WithExponentialBackoff(ctx context.Context, config *RetryConfig, fn RetryFunc) *RetryResult {
	logger := logging.FromContext(ctx)
	startTime := time.Now()
	result := &RetryResult{}

	maxAttempts := config.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt

		err := fn(ctx, attempt)
		if err == nil {
			result.Success = true
			result.LastError = nil
			result.TotalDuration = time.Since(startTime)
			if attempt > 1 {
				logger.WithFields(map[string]interface{}{
					"attempts":      attempt,
					"totalDuration": result.TotalDuration.String(),
				}).Info("Operation succeeded after retry")
			}
			return result
		}
		result.LastError = err

		if !IsRetryable(err, config.RetryableErrors) {
			logger.WithError(err).Warn("Operation failed with non-retryable error")
			break
		}
		if attempt >= maxAttempts {
			logger.WithFields(map[string]interface{}{
				"attempts":      attempt,
				"totalDuration": time.Since(startTime).String(),
				"error":         err.Error(),
			}).Error("Operation failed after max retry attempts")
			break
		}
		if ctx.Err() != nil {
			result.LastError = ctx.Err()
			break
		}

		delay := calculateDelay(config, attempt)
		logger.WithFields(map[string]interface{}{
			"attempt":     attempt,
			"maxAttempts": maxAttempts,
			"delay":       delay.String(),
			"error":       err.Error(),
		}).Warn("Operation failed, retrying with exponential backoff")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			logger.WithError(ctx.Err()).Warn("Retry cancelled during backoff")
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(startTime)
			return result
		}
	}

	result.TotalDuration = time.Since(startTime)
	return result
}

// calculateDelay returns initialDelay * multiplier^(attempt-1), capped at MaxDelay
func calculateDelay(config *RetryConfig, attempt int) time.Duration {
	multiplier := config.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := float64(config.InitialDelay) * math.Pow(multiplier, float64(attempt-1))
	if config.MaxDelay > 0 && delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	return time.Duration(delay)
}

// WithRetry retries fn using the default configuration
func WithRetry(ctx context.Context, fn RetryFunc) error {
	return WithExponentialBackoff(ctx, DefaultRetryConfig(), fn).Err()
}

// Connect retries a constructor that dials an external dependency, such as
// Postgres or Redis at process start, and returns the first value it builds.
func Connect[T any](ctx context.Context, config *RetryConfig, name string, dial func(ctx context.Context) (T, error)) (T, error) {
	var value T
	logger := logging.FromContext(ctx).WithField("dependency", name)
	result := WithExponentialBackoff(logging.WithLogger(ctx, logger), config, func(ctx context.Context, _ int) error {
		v, err := dial(ctx)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if err := result.Err(); err != nil {
		return value, fmt.Errorf("connect %s: %w", name, err)
	}
	return value, nil
}

// IsRetryable reports whether err matches one of the configured patterns.
// With no patterns every non-nil error is retryable.
func IsRetryable(err error, retryableErrors []string) bool {
	if err == nil {
		return false
	}
	if len(retryableErrors) == 0 {
		return true
	}
	msg := err.Error()
	for _, pattern := range retryableErrors {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
