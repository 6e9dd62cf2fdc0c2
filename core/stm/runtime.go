package stm

import (
	"sync/atomic"

	internaltelemetry "github.com/sushant-115/gojostm/internal/telemetry"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// Runtime commits transaction programs. It carries no transactional state of
// its own: TVars may be shared between runtimes, and a single Runtime is
// normally shared by the whole process.
type Runtime struct {
	logger       *zap.Logger
	tracer       trace.Tracer
	metrics      *internaltelemetry.STMMetrics
	maxConflicts int

	commits   atomic.Uint64
	conflicts atomic.Uint64
	retries   atomic.Uint64
	wakeups   atomic.Uint64
	aborts    atomic.Uint64
	parked    atomic.Int64
}

// Option configures a Runtime.
type Option func(*Runtime) error

// WithLogger sets the logger. The runtime logs under the name "stm".
func WithLogger(logger *zap.Logger) Option {
	return func(rt *Runtime) error {
		if logger != nil {
			rt.logger = logger.Named("stm")
		}
		return nil
	}
}

// WithMeter registers the runtime's instruments with meter. A nil meter
// leaves the runtime without metrics.
func WithMeter(meter metric.Meter) Option {
	return func(rt *Runtime) error {
		if meter == nil {
			return nil
		}
		m, err := internaltelemetry.NewSTMMetrics(meter)
		if err != nil {
			return err
		}
		rt.metrics = m
		return nil
	}
}

// WithTracer makes every Commit run inside a span of tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(rt *Runtime) error {
		if tracer != nil {
			rt.tracer = tracer
		}
		return nil
	}
}

// WithMaxConflicts bounds the number of consecutive validation failures a
// single Commit tolerates before giving up with ErrTooManyConflicts. Zero,
// the default, means no bound.
func WithMaxConflicts(n int) Option {
	return func(rt *Runtime) error {
		if n < 0 {
			n = 0
		}
		rt.maxConflicts = n
		return nil
	}
}

// NewRuntime creates a Runtime.
func NewRuntime(opts ...Option) (*Runtime, error) {
	rt := &Runtime{
		logger: zap.NewNop(),
		tracer: nooptrace.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		if err := opt(rt); err != nil {
			return nil, err
		}
	}
	return rt, nil
}

// MustNewRuntime is like NewRuntime but panics on error.
func MustNewRuntime(opts ...Option) *Runtime {
	rt, err := NewRuntime(opts...)
	if err != nil {
		panic(err)
	}
	return rt
}

// Stats is a snapshot of a Runtime's counters.
type Stats struct {
	Commits   uint64 // transactions committed
	Conflicts uint64 // attempts discarded by validation
	Retries   uint64 // attempts that parked on Retry
	Wakeups   uint64 // parked transactions woken by a commit
	Aborts    uint64 // transactions failed with an application error
	Parked    int64  // transactions parked right now
}

// Stats returns the current counters.
func (rt *Runtime) Stats() Stats {
	return Stats{
		Commits:   rt.commits.Load(),
		Conflicts: rt.conflicts.Load(),
		Retries:   rt.retries.Load(),
		Wakeups:   rt.wakeups.Load(),
		Aborts:    rt.aborts.Load(),
		Parked:    rt.parked.Load(),
	}
}
