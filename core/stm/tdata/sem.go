package tdata

import (
	"github.com/pkg/errors"
	"github.com/sushant-115/gojostm/core/stm"
)

// ErrNegativePermits is returned when a semaphore is created with fewer than
// zero permits.
var ErrNegativePermits = errors.New("tdata: negative permit count")

// TSem is a counting semaphore.
type TSem struct {
	permits *stm.TVar[int]
}

// NewTSem returns a program that creates a semaphore holding n permits.
func NewTSem(n int) stm.Txn[*TSem] {
	if n < 0 {
		return stm.Abort[*TSem](errors.Wrapf(ErrNegativePermits, "n=%d", n))
	}
	return stm.Map(stm.NewTVar(n), func(tv *stm.TVar[int]) *TSem {
		return &TSem{permits: tv}
	})
}

// Acquire takes a permit, retrying while none is available.
func (s *TSem) Acquire() stm.Txn[stm.Unit] {
	return stm.Bind(s.permits.Get(), func(n int) stm.Txn[stm.Unit] {
		if n == 0 {
			return stm.Retry[stm.Unit]()
		}
		return s.permits.Set(n - 1)
	})
}

// Release returns a permit.
func (s *TSem) Release() stm.Txn[stm.Unit] {
	return s.permits.Modify(func(n int) int { return n + 1 })
}

// Available reports the number of free permits.
func (s *TSem) Available() stm.Txn[int] {
	return s.permits.Get()
}
