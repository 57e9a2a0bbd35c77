package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// BreakerState represents the state of the circuit breaker.
type BreakerState int

const (
	// BreakerClosed is the normal operation state.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects all requests until the reset timeout elapses.
	BreakerOpen
	// BreakerHalfOpen allows probe requests to check recovery.
	BreakerHalfOpen
)

// String returns the string representation of the breaker state.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           // Failures before opening (default: 5)
	SuccessThreshold int           // Half-open successes to close (default: 2)
	ResetTimeout     time.Duration // Open duration before a probe is allowed (default: 30s)
	CallTimeout      time.Duration // Per-call timeout; a timeout counts as a failure (default: 30s)
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		ResetTimeout:     30 * time.Second,
		CallTimeout:      30 * time.Second,
	}
}

// ErrCircuitOpen is returned when the circuit is open. Rejections carry a
// retry-after hint via OpenError; match with errors.Is(err, ErrCircuitOpen).
var ErrCircuitOpen = errors.New("circuit breaker is open")

// OpenError is the rejection returned while the breaker is open.
type OpenError struct {
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit open, retry in %s", e.RetryAfter.Round(time.Second))
}

func (e *OpenError) Unwrap() error { return ErrCircuitOpen }

// BreakerMetrics is a snapshot of the breaker's observable state.
type BreakerMetrics struct {
	State       BreakerState
	Failures    int
	Successes   int
	LastFailure time.Time
	NextAttempt time.Time
}

// Breaker implements the circuit breaker pattern for one dependency.
// Failure and success counters are reset on every state transition;
// while open, a future next-attempt time is always set.
type Breaker struct {
	mu sync.Mutex

	state       BreakerState
	failures    int
	successes   int
	lastFailure time.Time
	nextAttempt time.Time

	failureThreshold int
	successThreshold int
	resetTimeout     time.Duration
	callTimeout      time.Duration
}

// NewBreaker creates a circuit breaker in the closed state.
func NewBreaker(cfg BreakerConfig) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}

	return &Breaker{
		state:            BreakerClosed,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		resetTimeout:     cfg.ResetTimeout,
		callTimeout:      cfg.CallTimeout,
	}
}

// allow checks if a request may proceed, handling the open → half-open
// transition when the reset timeout has elapsed.
func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		if !time.Now().Before(b.nextAttempt) {
			b.transition(BreakerHalfOpen)
			return nil // probe
		}
		return &OpenError{RetryAfter: time.Until(b.nextAttempt)}
	case BreakerHalfOpen:
		return nil
	}
	return nil
}

// success records a successful call.
func (b *Breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerHalfOpen:
		b.successes++
		if b.successes >= b.successThreshold {
			b.transition(BreakerClosed)
		}
	case BreakerClosed:
		b.failures = 0
	case BreakerOpen:
		// A call admitted before the breaker opened finished late; ignore.
	}
}

// failure records a failed call.
func (b *Breaker) failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = time.Now()

	switch b.state {
	case BreakerClosed:
		if b.failures >= b.failureThreshold {
			b.open()
		}
	case BreakerHalfOpen:
		b.open()
	case BreakerOpen:
	}
}

// open transitions to the open state with a fresh next-attempt time.
// Caller must hold b.mu.
func (b *Breaker) open() {
	b.transition(BreakerOpen)
	b.nextAttempt = time.Now().Add(b.resetTimeout)
}

// transition moves to a new state, resetting both counters.
// Caller must hold b.mu.
func (b *Breaker) transition(to BreakerState) {
	b.state = to
	b.failures = 0
	b.successes = 0
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Metrics returns a snapshot of state, counters, and timestamps.
func (b *Breaker) Metrics() BreakerMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerMetrics{
		State:       b.state,
		Failures:    b.failures,
		Successes:   b.successes,
		LastFailure: b.lastFailure,
		NextAttempt: b.nextAttempt,
	}
}

// Reset forces the breaker closed with zeroed counters.
// Operator intervention only.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(BreakerClosed)
	b.lastFailure = time.Time{}
	b.nextAttempt = time.Time{}
}

// Guard wraps op with the breaker. Rejected calls never invoke op. The
// call races against the configured timeout; a timeout counts as a failure
// toward opening the circuit, while cancellation of the caller's own
// context does not.
//
// dependencyFailure classifies op's errors: only errors it reports true
// for count toward opening the circuit. Deterministic caller-side errors
// (an invalid prompt, a safety refusal) say nothing about the
// dependency's health and must not trip it. nil counts every error.
func Guard[T any](ctx context.Context, b *Breaker, op func(context.Context) (T, error), dependencyFailure func(error) bool) (T, error) {
	var zero T

	if err := b.allow(); err != nil {
		return zero, err
	}

	callCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	// Buffered so a late completion after timeout does not leak the goroutine.
	ch := make(chan result, 1)

	go func() {
		v, err := op(callCtx)
		ch <- result{v: v, err: err}
	}()

	select {
	case <-callCtx.Done():
		if ctx.Err() != nil {
			// Caller went away; not a dependency failure.
			return zero, fmt.Errorf("call abandoned: %w", ctx.Err())
		}
		b.failure()
		return zero, fmt.Errorf("call timed out after %s: %w", b.callTimeout, callCtx.Err())
	case r := <-ch:
		if r.err != nil {
			if ctx.Err() == nil && (dependencyFailure == nil || dependencyFailure(r.err)) {
				b.failure()
			}
			return zero, r.err
		}
		b.success()
		return r.v, nil
	}
}
