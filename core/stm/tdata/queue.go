package tdata

import "github.com/sushant-115/gojostm/core/stm"

// TQueue is a FIFO queue. Items are appended to the back slice and served
// from the front slice; when the front runs dry the back becomes the new
// front. Slices stored in the TVars are never modified in place.
type TQueue[T any] struct {
	capacity    int
	front, back *stm.TVar[[]T]
}

// NewTQueue returns a program that creates a queue holding at most capacity
// items. A capacity of zero or less means unbounded.
func NewTQueue[T any](capacity int) stm.Txn[*TQueue[T]] {
	return stm.Bind(stm.NewTVar[[]T](nil), func(front *stm.TVar[[]T]) stm.Txn[*TQueue[T]] {
		return stm.Map(stm.NewTVar[[]T](nil), func(back *stm.TVar[[]T]) *TQueue[T] {
			return &TQueue[T]{capacity: capacity, front: front, back: back}
		})
	})
}

// Capacity returns the bound given at creation.
func (q *TQueue[T]) Capacity() int {
	return q.capacity
}

// Size returns the number of queued items.
func (q *TQueue[T]) Size() stm.Txn[int] {
	return stm.Bind(q.front.Get(), func(front []T) stm.Txn[int] {
		return stm.Map(q.back.Get(), func(back []T) int {
			return len(front) + len(back)
		})
	})
}

// Offer appends v, retrying while the queue is full.
func (q *TQueue[T]) Offer(v T) stm.Txn[stm.Unit] {
	push := q.back.Modify(func(back []T) []T {
		return append(back[:len(back):len(back)], v)
	})
	if q.capacity <= 0 {
		return push
	}
	return stm.Bind(q.Size(), func(n int) stm.Txn[stm.Unit] {
		if n >= q.capacity {
			return stm.Retry[stm.Unit]()
		}
		return push
	})
}

// Poll removes and returns the oldest item, retrying while the queue is
// empty.
func (q *TQueue[T]) Poll() stm.Txn[T] {
	return stm.Bind(q.front.Get(), func(front []T) stm.Txn[T] {
		if len(front) > 0 {
			return stm.Then(q.front.Set(front[1:]), stm.Pure(front[0]))
		}
		return stm.Bind(q.back.Get(), func(back []T) stm.Txn[T] {
			if len(back) == 0 {
				return stm.Retry[T]()
			}
			return stm.Then(stm.Then(q.back.Set(nil), q.front.Set(back[1:])), stm.Pure(back[0]))
		})
	})
}

// TryPoll is Poll that reports an empty queue instead of waiting.
func (q *TQueue[T]) TryPoll() stm.Txn[Maybe[T]] {
	return stm.OrElse(stm.Map(q.Poll(), some[T]), stm.Pure(Maybe[T]{}))
}

// Peek returns the oldest item without removing it, retrying while the queue
// is empty.
func (q *TQueue[T]) Peek() stm.Txn[T] {
	return stm.Bind(q.front.Get(), func(front []T) stm.Txn[T] {
		if len(front) > 0 {
			return stm.Pure(front[0])
		}
		return stm.Bind(q.back.Get(), func(back []T) stm.Txn[T] {
			if len(back) == 0 {
				return stm.Retry[T]()
			}
			return stm.Pure(back[0])
		})
	})
}
