package config

import (
	"fmt"
	"os"
	"time"
)

// Validate checks configuration values. Returns sentinel errors
// checkable with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPort, c.Server.Port)
	}
	if c.Server.RatePerMinute < 1 {
		return fmt.Errorf("%w: rate_per_minute must be positive, got %d", ErrInvalidRateLimit, c.Server.RatePerMinute)
	}
	if c.Server.RateBurst < 1 {
		return fmt.Errorf("%w: rate_burst must be positive, got %d", ErrInvalidRateLimit, c.Server.RateBurst)
	}

	if !c.AI.Simulate && os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
			"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
			ErrMissingAPIKey)
	}
	if c.AI.Model == "" {
		return fmt.Errorf("%w: ai.model cannot be empty", ErrInvalidModelName)
	}
	if c.AI.TTSModel == "" {
		return fmt.Errorf("%w: ai.tts_model cannot be empty", ErrInvalidModelName)
	}

	r := c.Resilience
	if r.RetryMaxAttempts < 1 || r.RetryMaxAttempts > 10 {
		return fmt.Errorf("%w: retry_max_attempts must be between 1 and 10, got %d", ErrInvalidRetry, r.RetryMaxAttempts)
	}
	if r.RetryInitialDelay <= 0 || r.RetryMaxDelay < r.RetryInitialDelay {
		return fmt.Errorf("%w: retry delays must be positive with max >= initial", ErrInvalidRetry)
	}
	if r.BreakerFailureThreshold < 1 {
		return fmt.Errorf("%w: breaker_failure_threshold must be positive, got %d", ErrInvalidBreaker, r.BreakerFailureThreshold)
	}
	if r.BreakerSuccessThreshold < 1 {
		return fmt.Errorf("%w: breaker_success_threshold must be positive, got %d", ErrInvalidBreaker, r.BreakerSuccessThreshold)
	}
	if r.BreakerResetTimeout <= 0 || r.BreakerCallTimeout <= 0 {
		return fmt.Errorf("%w: breaker timeouts must be positive", ErrInvalidBreaker)
	}
	if r.GateMaxConcurrent < 1 {
		return fmt.Errorf("%w: gate_max_concurrent must be positive, got %d", ErrInvalidGate, r.GateMaxConcurrent)
	}
	if r.GatePerMinute < 1 {
		return fmt.Errorf("%w: gate_per_minute must be positive, got %d", ErrInvalidGate, r.GatePerMinute)
	}
	if r.GateQueueLimit < 0 {
		return fmt.Errorf("%w: gate_queue_limit cannot be negative, got %d", ErrInvalidGate, r.GateQueueLimit)
	}

	for name, d := range map[string]time.Duration{
		"cache.default_ttl":      c.Cache.DefaultTTL,
		"cache.sweep_interval":   c.Cache.SweepInterval,
		"session.idle_timeout":   c.Session.IdleTimeout,
		"session.sweep_interval": c.Session.SweepInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidDuration, name, d)
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log.level must be debug, info, warn or error, got %q", ErrInvalidLogLevel, c.Log.Level)
	}

	return nil
}
