package tdata

import "github.com/sushant-115/gojostm/core/stm"

// Maybe is the result of a non-blocking take: Value is meaningful only when
// OK is true.
type Maybe[T any] struct {
	Value T
	OK    bool
}

func some[T any](v T) Maybe[T] {
	return Maybe[T]{Value: v, OK: true}
}

// TMVar is a box that is either empty or holds one value.
type TMVar[T any] struct {
	slot *stm.TVar[Maybe[T]]
}

// NewTMVar returns a program that creates a TMVar holding v.
func NewTMVar[T any](v T) stm.Txn[*TMVar[T]] {
	return newTMVar(some(v))
}

// NewEmptyTMVar returns a program that creates an empty TMVar.
func NewEmptyTMVar[T any]() stm.Txn[*TMVar[T]] {
	return newTMVar(Maybe[T]{})
}

func newTMVar[T any](initial Maybe[T]) stm.Txn[*TMVar[T]] {
	return stm.Map(stm.NewTVar(initial), func(tv *stm.TVar[Maybe[T]]) *TMVar[T] {
		return &TMVar[T]{slot: tv}
	})
}

// Put stores v, retrying while the box is full.
func (m *TMVar[T]) Put(v T) stm.Txn[stm.Unit] {
	return stm.Bind(m.slot.Get(), func(cur Maybe[T]) stm.Txn[stm.Unit] {
		if cur.OK {
			return stm.Retry[stm.Unit]()
		}
		return m.slot.Set(some(v))
	})
}

// Take empties the box and returns its value, retrying while it is empty.
func (m *TMVar[T]) Take() stm.Txn[T] {
	return stm.Bind(m.slot.Get(), func(cur Maybe[T]) stm.Txn[T] {
		if !cur.OK {
			return stm.Retry[T]()
		}
		return stm.Then(m.slot.Set(Maybe[T]{}), stm.Pure(cur.Value))
	})
}

// TryTake is Take that reports an empty box instead of waiting.
func (m *TMVar[T]) TryTake() stm.Txn[Maybe[T]] {
	return stm.OrElse(stm.Map(m.Take(), some[T]), stm.Pure(Maybe[T]{}))
}

// Read returns the value without taking it, retrying while the box is empty.
func (m *TMVar[T]) Read() stm.Txn[T] {
	return stm.Bind(m.slot.Get(), func(cur Maybe[T]) stm.Txn[T] {
		if !cur.OK {
			return stm.Retry[T]()
		}
		return stm.Pure(cur.Value)
	})
}
