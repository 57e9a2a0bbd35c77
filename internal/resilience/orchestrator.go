package resilience

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/haven-app/haven/internal/log"
)

// tracerName identifies spans emitted around orchestrated calls.
const tracerName = "haven/resilience"

// OrchestratorConfig configures the shared resilience chain. The same
// tuning applies to every dependency; each dependency gets its own gate
// and breaker instance so one provider's failures cannot starve another.
type OrchestratorConfig struct {
	Retry   RetryConfig
	Breaker BreakerConfig
	Gate    GateConfig
}

// dependency is the per-provider slice of the chain.
type dependency struct {
	gate    *Gate
	breaker *Breaker
}

// Orchestrator composes admission gate → circuit breaker → retry policy
// around every outbound provider call. It is the only path through which
// generation providers are reached; response caching sits in front of it
// at the call sites.
type Orchestrator struct {
	mu   sync.Mutex
	deps map[string]*dependency

	cfg    OrchestratorConfig
	logger log.Logger
	tracer trace.Tracer
}

// NewOrchestrator creates an orchestrator. Dependencies are materialized
// lazily on first use, keyed by name.
func NewOrchestrator(cfg OrchestratorConfig, logger log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Orchestrator{
		deps:   make(map[string]*dependency),
		cfg:    cfg,
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
}

// dependency returns the gate/breaker pair for name, creating it on
// first use.
func (o *Orchestrator) dependency(name string) *dependency {
	o.mu.Lock()
	defer o.mu.Unlock()

	d, ok := o.deps[name]
	if !ok {
		d = &dependency{
			gate:    NewGate(o.cfg.Gate, o.logger.With("dependency", name)),
			breaker: NewBreaker(o.cfg.Breaker),
		}
		o.deps[name] = d
	}
	return d
}

// Breaker exposes the named dependency's breaker for metrics and
// operator reset.
func (o *Orchestrator) Breaker(name string) *Breaker {
	return o.dependency(name).breaker
}

// Gate exposes the named dependency's admission gate.
func (o *Orchestrator) Gate(name string) *Gate {
	return o.dependency(name).gate
}

// Execute runs op through the full chain for the named dependency:
//
//	gate.Admit( breaker.Guard( retry.Retry( op ) ) )
//
// retryable classifies errors for the retry policy; nil uses
// DefaultRetryable. The same classifier tells the breaker which errors
// are dependency failures: a non-retryable business error surfaces
// immediately and leaves the failure count alone, while timeouts and
// exhausted retries count toward opening the circuit. Circuit-open and
// over-capacity errors are never produced by op itself, so they are
// never retried locally.
func Execute[T any](ctx context.Context, o *Orchestrator, dep string, op func(context.Context) (T, error), retryable func(error) bool) (T, error) {
	d := o.dependency(dep)
	if retryable == nil {
		retryable = DefaultRetryable
	}

	ctx, span := o.tracer.Start(ctx, "provider.call",
		trace.WithAttributes(attribute.String("dependency", dep)),
	)
	defer span.End()

	v, err := Admit(ctx, d.gate, func(ctx context.Context) (T, error) {
		return Guard(ctx, d.breaker, func(ctx context.Context) (T, error) {
			return Retry(ctx, o.cfg.Retry, o.logger, op, retryable)
		}, retryable)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Debug("orchestrated call failed", "dependency", dep, "error", err)
	}
	return v, err
}
