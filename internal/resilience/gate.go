package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/haven-app/haven/internal/log"
)

// GateConfig configures an admission gate.
type GateConfig struct {
	MaxConcurrent int // In-flight call limit (default: 4)
	PerMinute     int // Rolling per-minute call budget (default: 60)
	QueueLimit    int // Bounded pending queue; beyond this, admission is refused (default: 32)
}

// DefaultGateConfig returns sensible defaults for one provider.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MaxConcurrent: 4,
		PerMinute:     60,
		QueueLimit:    32,
	}
}

// ErrOverCapacity is returned when the pending queue is full. The caller
// may retry later; the gate never buffers unbounded work.
var ErrOverCapacity = errors.New("admission gate over capacity")

// Gate bounds concurrent and per-minute calls to one dependency.
// Work beyond the concurrency limit waits in a bounded queue in arrival
// order; work beyond the queue bound is refused.
type Gate struct {
	slots   chan struct{} // counting semaphore: in-flight calls
	waiters chan struct{} // counting semaphore: queued callers
	minute  *rate.Limiter // rolling per-minute budget
	logger  log.Logger
}

// NewGate creates an admission gate.
func NewGate(cfg GateConfig, logger log.Logger) *Gate {
	def := DefaultGateConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = def.PerMinute
	}
	if cfg.QueueLimit <= 0 {
		cfg.QueueLimit = def.QueueLimit
	}
	if logger == nil {
		logger = log.NewNop()
	}

	return &Gate{
		slots:   make(chan struct{}, cfg.MaxConcurrent),
		waiters: make(chan struct{}, cfg.QueueLimit),
		minute:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.PerMinute)), cfg.PerMinute),
		logger:  logger,
	}
}

// InFlight returns the number of currently running calls.
func (g *Gate) InFlight() int { return len(g.slots) }

// QueueDepth returns the number of callers waiting for admission.
func (g *Gate) QueueDepth() int { return len(g.waiters) }

// tryAdmit attempts immediate admission: a free slot and per-minute budget.
func (g *Gate) tryAdmit() bool {
	select {
	case g.slots <- struct{}{}:
	default:
		return false
	}
	if !g.minute.Allow() {
		<-g.slots
		return false
	}
	return true
}

// admit blocks until per-minute budget and a slot are available, or ctx
// is done. Budget is reserved before the slot; a rate-starved waiter
// holds no in-flight capacity. The slot is held on success.
func (g *Gate) admit(ctx context.Context) error {
	if err := g.minute.Wait(ctx); err != nil {
		return fmt.Errorf("canceled waiting for rate budget: %w", err)
	}
	select {
	case g.slots <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("canceled waiting for admission: %w", ctx.Err())
	}
	return nil
}

// release returns an in-flight slot.
func (g *Gate) release() { <-g.slots }

// Admit runs op under the gate. If capacity is immediately available the
// operation runs at once; otherwise the caller joins the bounded queue.
// A full queue refuses admission with ErrOverCapacity.
func Admit[T any](ctx context.Context, g *Gate, op func(context.Context) (T, error)) (T, error) {
	var zero T

	if !g.tryAdmit() {
		select {
		case g.waiters <- struct{}{}:
		default:
			g.logger.Warn("admission refused, queue full",
				"in_flight", g.InFlight(),
				"queued", g.QueueDepth(),
			)
			return zero, ErrOverCapacity
		}

		err := g.admit(ctx)
		<-g.waiters
		if err != nil {
			return zero, err
		}
	}

	defer g.release()
	return op(ctx)
}
