package stm

// Unit is the result type of programs that only have effects.
type Unit = struct{}

// Txn is a transaction program producing a value of type A. It is an inert
// description: nothing happens until it is passed to Commit.
type Txn[A any] struct {
	n node
}

// node is the sealed set of program variants understood by the interpreter.
type node interface {
	txnNode()
}

type (
	pureNode struct {
		value any
	}
	allocNode struct {
		alloc func() any
	}
	bindNode struct {
		src node
		f   func(any) node
	}
	getNode struct {
		c *cell
	}
	setNode struct {
		c     *cell
		value any
	}
	modifyNode struct {
		c *cell
		f func(any) any
	}
	retryNode  struct{}
	orElseNode struct {
		primary, fallback node
	}
	checkNode struct {
		pred node
	}
	abortNode struct {
		err error
	}
	handleErrorNode struct {
		src node
		f   func(error) node
	}
)

func (*pureNode) txnNode()        {}
func (*allocNode) txnNode()       {}
func (*bindNode) txnNode()        {}
func (*getNode) txnNode()         {}
func (*setNode) txnNode()         {}
func (*modifyNode) txnNode()      {}
func (*retryNode) txnNode()       {}
func (*orElseNode) txnNode()      {}
func (*checkNode) txnNode()       {}
func (*abortNode) txnNode()       {}
func (*handleErrorNode) txnNode() {}

var theRetry = &retryNode{}

// cast converts an interpreter value back to its static type. A nil
// interface stands for the zero value of interface-typed results.
func cast[A any](v any) A {
	if v == nil {
		var zero A
		return zero
	}
	return v.(A)
}

// Pure returns a program that produces a without touching any TVar.
func Pure[A any](a A) Txn[A] {
	return Txn[A]{n: &pureNode{value: a}}
}

// Bind runs t and then the program f builds from its result.
func Bind[A, B any](t Txn[A], f func(A) Txn[B]) Txn[B] {
	return Txn[B]{n: &bindNode{src: t.n, f: func(v any) node {
		return f(cast[A](v)).n
	}}}
}

// Map transforms the result of t with f.
func Map[A, B any](t Txn[A], f func(A) B) Txn[B] {
	return Txn[B]{n: &bindNode{src: t.n, f: func(v any) node {
		return &pureNode{value: f(cast[A](v))}
	}}}
}

// Then runs t, discards its result, and runs next.
func Then[A, B any](t Txn[A], next Txn[B]) Txn[B] {
	return Txn[B]{n: &bindNode{src: t.n, f: func(any) node {
		return next.n
	}}}
}

// Void discards the result of t.
func Void[A any](t Txn[A]) Txn[Unit] {
	return Then(t, Pure(Unit{}))
}

// Sequence runs ts in order and collects their results.
func Sequence[A any](ts ...Txn[A]) Txn[[]A] {
	var step func(i int, acc []A) Txn[[]A]
	step = func(i int, acc []A) Txn[[]A] {
		if i == len(ts) {
			return Pure(acc)
		}
		return Bind(ts[i], func(a A) Txn[[]A] {
			return step(i+1, append(acc, a))
		})
	}
	// The accumulator is allocated per interpretation so that concurrent
	// commits of the same program never share it.
	return Txn[[]A]{n: &bindNode{src: &pureNode{}, f: func(any) node {
		return step(0, make([]A, 0, len(ts))).n
	}}}
}

// Retry abandons the current attempt. The commit parks until another
// transaction writes one of the TVars read so far, then starts over.
func Retry[A any]() Txn[A] {
	return Txn[A]{n: theRetry}
}

// Check retries unless cond holds.
func Check(cond bool) Txn[Unit] {
	if cond {
		return Pure(Unit{})
	}
	return Txn[Unit]{n: theRetry}
}

// Guard runs pred and retries unless it yields true.
func Guard(pred Txn[bool]) Txn[Unit] {
	return Txn[Unit]{n: &checkNode{pred: pred.n}}
}

// OrElse runs primary; if it retries, its writes are discarded and fallback
// runs instead. The TVars primary read stay part of the transaction: they are
// validated at commit and watched if fallback retries as well.
func OrElse[A any](primary, fallback Txn[A]) Txn[A] {
	return Txn[A]{n: &orElseNode{primary: primary.n, fallback: fallback.n}}
}

// Abort fails the transaction with err. Nothing is written and Commit returns
// err to its caller without retrying. A nil err is replaced by ErrAborted.
func Abort[A any](err error) Txn[A] {
	if err == nil {
		err = ErrAborted
	}
	return Txn[A]{n: &abortNode{err: err}}
}

// Try maps the result of t with a fallible function. A non-nil error aborts
// the transaction.
func Try[A, B any](t Txn[A], f func(A) (B, error)) Txn[B] {
	return Txn[B]{n: &bindNode{src: t.n, f: func(v any) node {
		b, err := f(cast[A](v))
		if err != nil {
			return &abortNode{err: err}
		}
		return &pureNode{value: b}
	}}}
}

// HandleError runs t; if t aborts, its writes are discarded and the program
// built by f from the error runs instead. Retries are not errors and pass
// through unchanged.
func HandleError[A any](t Txn[A], f func(error) Txn[A]) Txn[A] {
	return Txn[A]{n: &handleErrorNode{src: t.n, f: func(err error) node {
		return f(err).n
	}}}
}
