package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haven-app/haven/internal/log"
)

func TestDefaultGateConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultGateConfig()
	if cfg.MaxConcurrent <= 0 || cfg.PerMinute <= 0 || cfg.QueueLimit <= 0 {
		t.Errorf("defaults should all be positive, got %+v", cfg)
	}
}

func TestAdmit_RunsImmediatelyUnderCapacity(t *testing.T) {
	t.Parallel()

	g := NewGate(GateConfig{MaxConcurrent: 2, PerMinute: 600, QueueLimit: 4}, log.NewNop())

	got, err := Admit(t.Context(), g, func(context.Context) (string, error) {
		return "ran", nil
	})
	if err != nil {
		t.Fatalf("Admit returned error: %v", err)
	}
	if got != "ran" {
		t.Errorf("result = %q", got)
	}
	if g.InFlight() != 0 {
		t.Errorf("slot should be released, in-flight = %d", g.InFlight())
	}
}

func TestAdmit_ConcurrencyNeverExceedsLimit(t *testing.T) {
	t.Parallel()

	const limit = 3
	g := NewGate(GateConfig{MaxConcurrent: limit, PerMinute: 6000, QueueLimit: 64}, log.NewNop())

	var inFlight, peak atomic.Int32
	var wg sync.WaitGroup

	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = Admit(t.Context(), g, func(context.Context) (int, error) {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				inFlight.Add(-1)
				return 0, nil
			})
		}()
	}
	wg.Wait()

	if p := peak.Load(); p > limit {
		t.Errorf("peak in-flight = %d, limit %d", p, limit)
	}
}

func TestAdmit_QueueFullFailsFast(t *testing.T) {
	t.Parallel()

	g := NewGate(GateConfig{MaxConcurrent: 1, PerMinute: 6000, QueueLimit: 1}, log.NewNop())

	release := make(chan struct{})
	started := make(chan struct{})

	// Occupy the only slot.
	go func() {
		_, _ = Admit(t.Context(), g, func(context.Context) (int, error) {
			close(started)
			<-release
			return 0, nil
		})
	}()
	<-started

	// Fill the only queue position.
	queued := make(chan error, 1)
	go func() {
		_, err := Admit(t.Context(), g, func(context.Context) (int, error) { return 0, nil })
		queued <- err
	}()

	// Wait for the waiter to register.
	deadline := time.Now().Add(2 * time.Second)
	for g.QueueDepth() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if g.QueueDepth() != 1 {
		t.Fatal("setup: expected one queued caller")
	}

	// The next caller finds slot and queue both full.
	_, err := Admit(t.Context(), g, func(context.Context) (int, error) { return 0, nil })
	if !errors.Is(err, ErrOverCapacity) {
		t.Errorf("want ErrOverCapacity, got %v", err)
	}

	close(release)
	if err := <-queued; err != nil {
		t.Errorf("queued caller should eventually run, got %v", err)
	}
}

func TestAdmit_QueuedRunsInArrivalOrderAfterRelease(t *testing.T) {
	t.Parallel()

	g := NewGate(GateConfig{MaxConcurrent: 1, PerMinute: 6000, QueueLimit: 8}, log.NewNop())

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = Admit(t.Context(), g, func(context.Context) (int, error) {
			close(started)
			<-release
			return 0, nil
		})
	}()
	<-started

	done := make(chan int, 1)
	go func() {
		v, _ := Admit(t.Context(), g, func(context.Context) (int, error) { return 99, nil })
		done <- v
	}()

	select {
	case <-done:
		t.Fatal("queued work ran while the slot was held")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)

	select {
	case v := <-done:
		if v != 99 {
			t.Errorf("result = %d, want 99", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("queued work never ran after the slot freed")
	}
}

func TestAdmit_CanceledWhileQueued(t *testing.T) {
	t.Parallel()

	g := NewGate(GateConfig{MaxConcurrent: 1, PerMinute: 6000, QueueLimit: 4}, log.NewNop())

	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})
	go func() {
		_, _ = Admit(t.Context(), g, func(context.Context) (int, error) {
			close(started)
			<-release
			return 0, nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		_, err := Admit(ctx, g, func(context.Context) (int, error) { return 0, nil })
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("want context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("queued caller did not observe cancellation")
	}

	if g.QueueDepth() != 0 {
		t.Errorf("queue depth = %d after cancellation, want 0", g.QueueDepth())
	}
}

func TestAdmit_RateStarvedWaiterHoldsNoSlot(t *testing.T) {
	t.Parallel()

	g := NewGate(GateConfig{MaxConcurrent: 1, PerMinute: 1, QueueLimit: 4}, log.NewNop())

	// Spend the minute budget.
	if _, err := Admit(t.Context(), g, func(context.Context) (int, error) { return 0, nil }); err != nil {
		t.Fatalf("first call should be admitted: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := Admit(ctx, g, func(context.Context) (int, error) { return 0, nil })
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for g.QueueDepth() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if g.QueueDepth() != 1 {
		t.Fatal("setup: expected one caller waiting for budget")
	}

	// Waiting for budget, not running: no in-flight slot is held.
	if n := g.InFlight(); n != 0 {
		t.Errorf("in-flight = %d while rate-starved, want 0", n)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("want context.Canceled, got %v", err)
	}
}

func TestAdmit_PerMinuteBudgetRefusesOrQueues(t *testing.T) {
	t.Parallel()

	// Budget of 2 per minute: the first two calls pass, the third cannot
	// be admitted immediately and must wait for budget, so with a canceled
	// context it errors rather than running.
	g := NewGate(GateConfig{MaxConcurrent: 10, PerMinute: 2, QueueLimit: 4}, log.NewNop())

	for i := range 2 {
		if _, err := Admit(t.Context(), g, func(context.Context) (int, error) { return 0, nil }); err != nil {
			t.Fatalf("call %d should be admitted: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Millisecond)
	defer cancel()

	ran := false
	_, err := Admit(ctx, g, func(context.Context) (int, error) {
		ran = true
		return 0, nil
	})
	if err == nil || ran {
		t.Errorf("third call within the window should have waited for budget, err=%v ran=%v", err, ran)
	}
}
