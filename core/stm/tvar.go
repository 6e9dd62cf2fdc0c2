package stm

import (
	"sync"
	"sync/atomic"
)

// nextID hands out TVar identifiers in creation order. The identifiers define
// the global order in which commits lock TVars.
var nextID atomic.Uint64

// cellState is an immutable (value, version) pair. Interpretation loads it
// without locking; commits replace it while holding the cell's mutex.
type cellState struct {
	value   any
	version uint64
}

// cell is the untyped part of a TVar that the log and the commit engine work
// with.
type cell struct {
	id    uint64
	mu    sync.Mutex
	state atomic.Pointer[cellState]

	// waiters is guarded by mu.
	waiters map[*waiter]struct{}
}

func (c *cell) init(value any) {
	c.id = nextID.Add(1)
	c.state.Store(&cellState{value: value})
}

// load returns the current snapshot. Safe without mu.
func (c *cell) load() *cellState {
	return c.state.Load()
}

// version returns the current version. Only meaningful to the caller while
// mu is held.
func (c *cell) version() uint64 {
	return c.state.Load().version
}

// write installs a new value with the next version. c.mu must be held.
func (c *cell) write(value any) {
	cur := c.state.Load()
	c.state.Store(&cellState{value: value, version: cur.version + 1})
}

// subscribe registers w for changes of c. c.mu must be held.
func (c *cell) subscribe(w *waiter) {
	if c.waiters == nil {
		c.waiters = make(map[*waiter]struct{})
	}
	c.waiters[w] = struct{}{}
}

// unsubscribe removes w. c.mu must be held.
func (c *cell) unsubscribe(w *waiter) {
	delete(c.waiters, w)
}

// takeWaiters removes every waiter subscribed to c and appends it to dst.
// c.mu must be held.
func (c *cell) takeWaiters(dst []*waiter) []*waiter {
	for w := range c.waiters {
		dst = append(dst, w)
		delete(c.waiters, w)
	}
	return dst
}

// numWaiters is used by tests. c.mu must be held.
func (c *cell) numWaiters() int {
	return len(c.waiters)
}

// TVar is a transactional variable holding a value of type T. Its value can
// only be observed and changed by transaction programs.
type TVar[T any] struct {
	cell
}

// NewTVar returns a program that creates a TVar holding initial. Creation is
// a transaction of its own, so it can be composed with other operations in
// the same commit. The TVar becomes visible to other goroutines only through
// the program's result or through values written by the same commit.
func NewTVar[T any](initial T) Txn[*TVar[T]] {
	return Txn[*TVar[T]]{n: &allocNode{alloc: func() any {
		tv := &TVar[T]{}
		tv.init(initial)
		return tv
	}}}
}

// ID returns the TVar's process-unique identifier.
func (tv *TVar[T]) ID() uint64 {
	return tv.id
}

// Get returns a program that reads the TVar.
func (tv *TVar[T]) Get() Txn[T] {
	return Txn[T]{n: &getNode{c: &tv.cell}}
}

// Set returns a program that replaces the TVar's value.
func (tv *TVar[T]) Set(value T) Txn[Unit] {
	return Txn[Unit]{n: &setNode{c: &tv.cell, value: value}}
}

// Modify returns a program that applies f to the TVar's value.
func (tv *TVar[T]) Modify(f func(T) T) Txn[Unit] {
	return Txn[Unit]{n: &modifyNode{c: &tv.cell, f: func(v any) any {
		return f(cast[T](v))
	}}}
}
