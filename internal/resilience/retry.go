// Package resilience guards every outbound call to a generation provider.
//
// Three layers compose around each call: an admission gate bounds
// concurrency and request rate, a circuit breaker fails fast while a
// dependency is unhealthy, and a retry policy absorbs transient errors
// with exponential backoff. The Orchestrator fixes the composition order
// (gate → breaker → retry) per dependency name so that failures in one
// provider cannot starve capacity owed to another.
package resilience

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/haven-app/haven/internal/log"
)

// RetryConfig configures the retry policy for provider calls.
type RetryConfig struct {
	MaxAttempts  int           // Total attempts, first try included (default: 3)
	InitialDelay time.Duration // Backoff before the second attempt (default: 500ms)
	MaxDelay     time.Duration // Backoff cap (default: 10s)
	Multiplier   float64       // Exponential growth factor (default: 2.0)
	Jitter       bool          // Inflate each delay by up to 30% (default: true)
}

// DefaultRetryConfig returns sensible defaults for generation API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// withDefaults fills zero values with defaults.
func (cfg RetryConfig) withDefaults() RetryConfig {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = def.Multiplier
	}
	return cfg
}

// delay computes the backoff before attempt+1, attempt counting from 1.
// The unjittered value is min(MaxDelay, InitialDelay×Multiplier^(attempt-1));
// jitter inflates it by up to 30%, still capped at MaxDelay. The result is
// never below the unjittered value.
func (cfg RetryConfig) delay(attempt int) time.Duration {
	base := float64(cfg.InitialDelay)
	for i := 1; i < attempt; i++ {
		base *= cfg.Multiplier
		if base >= float64(cfg.MaxDelay) {
			base = float64(cfg.MaxDelay)
			break
		}
	}

	d := base
	if cfg.Jitter {
		d = min(base*(1+0.3*rand.Float64()), float64(cfg.MaxDelay))
		if d < base {
			d = base
		}
	}
	return time.Duration(d)
}

// Retry executes op with bounded exponential-backoff retries.
//
// The retryable classifier decides whether a failure is worth another
// attempt; nil means DefaultRetryable. A non-retryable error is returned
// immediately. Once attempts are exhausted the last error is returned.
// The backoff sleep respects ctx cancellation.
func Retry[T any](ctx context.Context, cfg RetryConfig, logger log.Logger, op func(context.Context) (T, error), retryable func(error) bool) (T, error) {
	cfg = cfg.withDefaults()
	if retryable == nil {
		retryable = DefaultRetryable
	}
	if logger == nil {
		logger = log.NewNop()
	}

	var zero T
	var lastErr error
	start := time.Now()

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Debug("call succeeded after retry",
					"attempts", attempt,
					"elapsed", time.Since(start),
				)
			}
			return v, nil
		}

		lastErr = err

		if !retryable(err) {
			return zero, err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		d := cfg.delay(attempt)
		logger.Debug("retrying after error",
			"attempt", attempt,
			"delay", d,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("canceled during retry backoff: %w", ctx.Err())
		case <-time.After(d):
		}
	}

	return zero, fmt.Errorf("all %d attempts failed: %w", cfg.MaxAttempts, lastErr)
}

// DefaultRetryable classifies transient dependency errors: rate limiting,
// server-side 5xx conditions, and network resets or timeouts. Everything
// else, including client-side 4xx errors, is not retried.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()

	// Rate limiting and quota exhaustion
	if containsAny(msg, "rate limit", "quota exceeded", "429") {
		return true
	}

	// Transient server errors
	if containsAny(msg, "500", "502", "503", "504", "unavailable") {
		return true
	}

	// Network and timeout errors
	if containsAny(msg, "connection reset", "timeout", "temporary", "408") {
		return true
	}

	return false
}

// containsAny checks if s contains any of the substrings (case-insensitive).
func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}
