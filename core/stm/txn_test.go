package stm

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- Test Helpers ---

// setupRuntime creates a Runtime with a no-op logger for isolated testing.
func setupRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	rt, err := NewRuntime(append([]Option{WithLogger(zap.NewNop())}, opts...)...)
	require.NoError(t, err)
	return rt
}

// newVar commits the creation of a TVar and returns it.
func newVar[T any](t *testing.T, rt *Runtime, initial T) *TVar[T] {
	t.Helper()
	tv, err := Commit(context.Background(), rt, NewTVar(initial))
	require.NoError(t, err)
	return tv
}

// load commits a read of tv.
func load[T any](t *testing.T, rt *Runtime, tv *TVar[T]) T {
	t.Helper()
	v, err := Commit(context.Background(), rt, tv.Get())
	require.NoError(t, err)
	return v
}

// --- Test Cases ---

func TestTxn_ReadYourWrites(t *testing.T) {
	rt := setupRuntime(t)
	tv := newVar(t, rt, 1)

	prog := Then(tv.Set(42), tv.Get())
	v, err := Commit(context.Background(), rt, prog)
	require.NoError(t, err)
	require.Equal(t, 42, v)

	// Modify sees the pending value too.
	prog = Then(tv.Set(10), Then(tv.Modify(func(x int) int { return x + 1 }), tv.Get()))
	v, err = Commit(context.Background(), rt, prog)
	require.NoError(t, err)
	require.Equal(t, 11, v)
	require.Equal(t, 11, load(t, rt, tv))
}

func TestTxn_ProgramsAreInert(t *testing.T) {
	rt := setupRuntime(t)
	tv := newVar(t, rt, 0)

	inc := tv.Modify(func(x int) int { return x + 1 })
	require.Equal(t, 0, load(t, rt, tv), "building a program must not run it")

	for i := 0; i < 3; i++ {
		_, err := Commit(context.Background(), rt, inc)
		require.NoError(t, err)
	}
	require.Equal(t, 3, load(t, rt, tv))
}

func TestTxn_MapAndSequence(t *testing.T) {
	rt := setupRuntime(t)
	a := newVar(t, rt, 1)
	b := newVar(t, rt, 2)
	c := newVar(t, rt, 3)

	sum := Map(Sequence(a.Get(), b.Get(), c.Get()), func(xs []int) int {
		total := 0
		for _, x := range xs {
			total += x
		}
		return total
	})

	for i := 0; i < 2; i++ {
		v, err := Commit(context.Background(), rt, sum)
		require.NoError(t, err)
		require.Equal(t, 6, v)
	}

	xs, err := Commit(context.Background(), rt, Sequence[int]())
	require.NoError(t, err)
	require.Empty(t, xs)
}

func TestTxn_LongBindChain(t *testing.T) {
	rt := setupRuntime(t)
	tv := newVar(t, rt, 0)

	const n = 100000
	prog := tv.Get()
	for i := 0; i < n; i++ {
		prog = Bind(prog, func(x int) Txn[int] { return Pure(x + 1) })
	}
	prog = Bind(prog, func(x int) Txn[int] { return Then(tv.Set(x), Pure(x)) })

	v, err := Commit(context.Background(), rt, prog)
	require.NoError(t, err)
	require.Equal(t, n, v)
	require.Equal(t, n, load(t, rt, tv))
}

func TestTxn_OrElseRetryFallsBack(t *testing.T) {
	rt := setupRuntime(t)
	tv := newVar(t, rt, 5)

	// OrElse(Retry, P) behaves like P.
	p := Then(tv.Modify(func(x int) int { return x * 2 }), tv.Get())
	v, err := Commit(context.Background(), rt, OrElse(Retry[int](), p))
	require.NoError(t, err)
	require.Equal(t, 10, v)
	require.Equal(t, 10, load(t, rt, tv))

	// OrElse(P, anything) where P does not retry behaves like P.
	v, err = Commit(context.Background(), rt, OrElse(p, Then(tv.Set(-1), Pure(-1))))
	require.NoError(t, err)
	require.Equal(t, 20, v)
	require.Equal(t, 20, load(t, rt, tv))
}

func TestTxn_OrElseDiscardsPrimaryWrites(t *testing.T) {
	rt := setupRuntime(t)
	x := newVar(t, rt, "original")
	y := newVar(t, rt, 0)

	primary := Then(x.Set("primary"), Then(y.Set(1), Retry[string]()))
	fallback := Bind(x.Get(), func(s string) Txn[string] { return Pure("fallback saw " + s) })

	v, err := Commit(context.Background(), rt, OrElse(primary, fallback))
	require.NoError(t, err)
	require.Equal(t, "fallback saw original", v)
	require.Equal(t, "original", load(t, rt, x))
	require.Equal(t, 0, load(t, rt, y))
}

func TestTxn_OrElseSeesOuterWrites(t *testing.T) {
	rt := setupRuntime(t)
	x := newVar(t, rt, 0)

	prog := Then(x.Set(7), OrElse(
		Bind(x.Get(), func(v int) Txn[int] { return Then(Check(v == 7), Pure(v)) }),
		Pure(-1),
	))
	v, err := Commit(context.Background(), rt, prog)
	require.NoError(t, err)
	require.Equal(t, 7, v)
}

func TestTxn_GuardAndCheck(t *testing.T) {
	rt := setupRuntime(t)
	tv := newVar(t, rt, 3)

	positive := Guard(Map(tv.Get(), func(x int) bool { return x > 0 }))
	_, err := Commit(context.Background(), rt, Then(positive, tv.Set(0)))
	require.NoError(t, err)

	v, err := Commit(context.Background(), rt, OrElse(Then(positive, Pure("positive")), Pure("not positive")))
	require.NoError(t, err)
	require.Equal(t, "not positive", v)

	v, err = Commit(context.Background(), rt, OrElse(Then(Check(true), Pure("ok")), Pure("retried")))
	require.NoError(t, err)
	require.Equal(t, "ok", v)
}

func TestTxn_AbortIsReturnedAndNothingIsWritten(t *testing.T) {
	rt := setupRuntime(t)
	tv := newVar(t, rt, 1)
	errBoom := errors.New("boom")

	runs := 0
	prog := Bind(tv.Get(), func(x int) Txn[int] {
		runs++
		return Then(tv.Set(x+100), Abort[int](errBoom))
	})

	_, err := Commit(context.Background(), rt, prog)
	require.ErrorIs(t, err, errBoom)
	require.Equal(t, 1, runs, "user errors must not be retried")
	require.Equal(t, 1, load(t, rt, tv))

	stats := rt.Stats()
	require.Equal(t, uint64(1), stats.Aborts)
	require.Equal(t, uint64(0), stats.Conflicts)
	require.Equal(t, uint64(0), stats.Retries)

	_, err = Commit(context.Background(), rt, Abort[Unit](nil))
	require.ErrorIs(t, err, ErrAborted)
}

func TestTxn_TryWrapsFallibleFunctions(t *testing.T) {
	rt := setupRuntime(t)
	tv := newVar(t, rt, "12")

	parse := func(s string) (int, error) {
		n := 0
		for _, r := range s {
			if r < '0' || r > '9' {
				return 0, errors.Errorf("not a number: %q", s)
			}
			n = n*10 + int(r-'0')
		}
		return n, nil
	}

	v, err := Commit(context.Background(), rt, Try(tv.Get(), parse))
	require.NoError(t, err)
	require.Equal(t, 12, v)

	_, err = Commit(context.Background(), rt, Then(tv.Set("x1"), Try(tv.Get(), parse)))
	require.EqualError(t, err, `not a number: "x1"`)
	require.Equal(t, "12", load(t, rt, tv))
}

func TestTxn_HandleErrorRollsBackFailedBranch(t *testing.T) {
	rt := setupRuntime(t)
	tv := newVar(t, rt, 1)
	log := newVar(t, rt, "")
	errBoom := errors.New("boom")

	failing := Then(tv.Set(5), Abort[int](errBoom))
	prog := HandleError(failing, func(err error) Txn[int] {
		return Then(log.Set(err.Error()), tv.Get())
	})

	v, err := Commit(context.Background(), rt, prog)
	require.NoError(t, err)
	require.Equal(t, 1, v, "the handler must not see the failed branch's write")
	require.Equal(t, 1, load(t, rt, tv))
	require.Equal(t, "boom", load(t, rt, log))

	// Retries pass through HandleError untouched.
	v, err = Commit(context.Background(), rt, OrElse(
		HandleError(Retry[int](), func(error) Txn[int] { return Pure(-1) }),
		Pure(2),
	))
	require.NoError(t, err)
	require.Equal(t, 2, v)
}

func TestTxn_NewTVarComposes(t *testing.T) {
	rt := setupRuntime(t)
	registry := newVar[[]*TVar[int]](t, rt, nil)

	register := func(initial int) Txn[*TVar[int]] {
		return Bind(NewTVar(initial), func(tv *TVar[int]) Txn[*TVar[int]] {
			return Then(registry.Modify(func(xs []*TVar[int]) []*TVar[int] {
				return append(append([]*TVar[int](nil), xs...), tv)
			}), Pure(tv))
		})
	}

	a, err := Commit(context.Background(), rt, register(1))
	require.NoError(t, err)
	b, err := Commit(context.Background(), rt, register(2))
	require.NoError(t, err)
	require.Less(t, a.ID(), b.ID())

	all := load(t, rt, registry)
	require.Equal(t, []*TVar[int]{a, b}, all)
	require.Equal(t, 2, load(t, rt, b))

	// An aborted registration leaves no trace.
	_, err = Commit(context.Background(), rt, Then(register(3), Abort[Unit](nil)))
	require.ErrorIs(t, err, ErrAborted)
	require.Len(t, load(t, rt, registry), 2)
}

func TestTxn_InterfaceResults(t *testing.T) {
	rt := setupRuntime(t)
	tv := newVar[error](t, rt, nil)

	v, err := Commit(context.Background(), rt, tv.Get())
	require.NoError(t, err)
	require.Nil(t, v)

	errSet := errors.New("set")
	v, err = Commit(context.Background(), rt, Then(tv.Set(errSet), tv.Get()))
	require.NoError(t, err)
	require.Equal(t, errSet, v)
}

func TestTxn_PanicsPropagate(t *testing.T) {
	rt := setupRuntime(t)
	tv := newVar(t, rt, 1)

	prog := Map(tv.Get(), func(int) int { panic("boom") })
	require.PanicsWithValue(t, "boom", func() {
		_, _ = Commit(context.Background(), rt, prog)
	})
	require.PanicsWithValue(t, "stm: zero Txn value", func() {
		_, _ = Commit(context.Background(), rt, Txn[int]{})
	})
}
