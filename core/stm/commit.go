package stm

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Commit runs t atomically and returns its result.
//
// The program is interpreted against a private log, then its reads are
// validated and its writes published under the locks of the TVars involved.
// A stale read discards the attempt and the program is interpreted again. A
// retry parks the caller until a TVar it read changes. An error raised with
// Abort or Try is returned as is, with nothing written.
//
// Commit returns early, with an error whose cause is ctx.Err(), if ctx is
// done before the program commits.
func Commit[A any](ctx context.Context, rt *Runtime, t Txn[A]) (A, error) {
	v, err := rt.commit(ctx, t.n)
	if err != nil {
		var zero A
		return zero, err
	}
	return cast[A](v), nil
}

func (rt *Runtime) commit(ctx context.Context, program node) (any, error) {
	txnID := uuid.New()
	ctx, span := rt.tracer.Start(ctx, "stm.Commit",
		trace.WithAttributes(attribute.String("stm.txn_id", txnID.String())))
	defer span.End()

	attempts, conflicts := 0, 0
	defer func() {
		span.SetAttributes(attribute.Int("stm.attempts", attempts))
		if rt.metrics != nil {
			rt.metrics.AttemptsHistogram.Record(ctx, int64(attempts))
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "cancelled")
			return nil, errors.Wrap(err, "stm: commit cancelled")
		}
		attempts++

		l := newTxnLog()
		v, err := attempt(program, l)
		switch err {
		case nil:
			if rt.publish(l) {
				rt.commits.Add(1)
				if rt.metrics != nil {
					rt.metrics.CommitsCounter.Add(ctx, 1)
				}
				return v, nil
			}
		case errRetry:
			woken, err := rt.park(ctx, txnID, l)
			if err != nil {
				span.SetStatus(codes.Error, "cancelled while parked")
				return nil, err
			}
			if woken {
				conflicts = 0
				continue
			}
			// The read set went stale before the waiter was registered:
			// there is nothing to wait for, run again straight away.
		case errStale:
		default:
			rt.aborts.Add(1)
			if rt.metrics != nil {
				rt.metrics.AbortsCounter.Add(ctx, 1)
			}
			rt.debug("transaction aborted", txnID, zap.Int("attempt", attempts), zap.Error(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "aborted")
			return nil, err
		}

		conflicts++
		rt.conflicts.Add(1)
		if rt.metrics != nil {
			rt.metrics.ConflictsCounter.Add(ctx, 1)
		}
		rt.debug("stale read set, re-running transaction", txnID,
			zap.Int("attempt", attempts), zap.Int("entries", l.size()))
		if rt.maxConflicts > 0 && conflicts > rt.maxConflicts {
			span.SetStatus(codes.Error, "too many conflicts")
			return nil, errors.Wrapf(ErrTooManyConflicts, "gave up after %d attempts", attempts)
		}
	}
}

// attempt interprets program once. A panic raised while the log is stale is
// a symptom of an inconsistent snapshot and turns into errStale; any other
// panic belongs to the caller.
func attempt(program node, l *txnLog) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			if !l.valid() {
				v, err = nil, errStale
				return
			}
			panic(r)
		}
	}()
	return interpret(program, l)
}

// publish validates l and applies its writes. Every cell of the log is locked
// in id order for the duration; waiters of written cells are notified once the
// locks are released.
//
// A woken waiter is removed here only from the written cells, whose locks are
// held. Its subscriptions on other cells are dropped by the waiter itself in
// deregister; until then a commit to those cells may notify it again, which
// its single-slot channel absorbs.
func (rt *Runtime) publish(l *txnLog) bool {
	cells := l.lockSet()
	lockCells(cells)
	if !l.valid() {
		unlockCells(cells)
		return false
	}
	var woken []*waiter
	l.forEach(func(e *logEntry) {
		if e.written {
			e.c.write(e.value)
			woken = e.c.takeWaiters(woken)
		}
	})
	unlockCells(cells)

	for _, w := range woken {
		w.notify()
	}
	return true
}

// park blocks the caller of a retried attempt until one of the cells in its
// read set is written or ctx is done. It reports false without blocking when
// the read set is already stale.
func (rt *Runtime) park(ctx context.Context, txnID uuid.UUID, l *txnLog) (bool, error) {
	w := newWaiter(l.readSet())
	if !w.register(l) {
		return false, nil
	}

	rt.retries.Add(1)
	rt.parked.Add(1)
	if rt.metrics != nil {
		rt.metrics.RetriesCounter.Add(ctx, 1)
		rt.metrics.ParkedUpDownCounter.Add(ctx, 1)
	}
	defer func() {
		rt.parked.Add(-1)
		if rt.metrics != nil {
			rt.metrics.ParkedUpDownCounter.Add(ctx, -1)
		}
	}()
	rt.debug("transaction retried, waiting for a change", txnID, zap.Int("watched", len(w.cells)))

	select {
	case <-w.ch:
		w.deregister()
		rt.wakeups.Add(1)
		if rt.metrics != nil {
			rt.metrics.WakeupsCounter.Add(ctx, 1)
		}
		rt.debug("parked transaction woken", txnID)
		return true, nil
	case <-ctx.Done():
		w.deregister()
		return false, errors.Wrap(ctx.Err(), "stm: commit cancelled while waiting for retry")
	}
}

func (rt *Runtime) debug(msg string, txnID uuid.UUID, fields ...zapcore.Field) {
	if ce := rt.logger.Check(zap.DebugLevel, msg); ce != nil {
		ce.Write(append(fields, zap.Stringer("txn_id", txnID))...)
	}
}
