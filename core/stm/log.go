package stm

import (
	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
)

// logEntry is what one attempt knows about one TVar.
type logEntry struct {
	c *cell

	// read is set when the attempt observed the TVar's committed state.
	// observed and seen are the version and value it saw; they never change
	// after the first read.
	read     bool
	observed uint64
	seen     any

	// value is what the program currently sees: seen, or the pending write.
	value   any
	written bool
}

// txnLog is the read/write log of a single interpretation attempt.
type txnLog struct {
	// entries maps cell id to *logEntry in first-access order.
	entries *linkedhashmap.Map
}

func newTxnLog() *txnLog {
	return &txnLog{entries: linkedhashmap.New()}
}

func (l *txnLog) entry(c *cell) (*logEntry, bool) {
	e, ok := l.entries.Get(c.id)
	if !ok {
		return nil, false
	}
	return e.(*logEntry), true
}

func (l *txnLog) size() int {
	return l.entries.Size()
}

// read returns the value the program sees for c: the pending write if there
// is one, else the value observed by the first read. The first read of c
// loads its snapshot without locking and records the version.
func (l *txnLog) read(c *cell) any {
	if e, ok := l.entry(c); ok {
		return e.value
	}
	s := c.load()
	l.recordRead(c, s)
	return s.value
}

// recordRead inserts a read entry for c unless c is already logged.
func (l *txnLog) recordRead(c *cell, s *cellState) {
	if _, ok := l.entry(c); ok {
		return
	}
	l.entries.Put(c.id, &logEntry{
		c:        c,
		read:     true,
		observed: s.version,
		seen:     s.value,
		value:    s.value,
	})
}

// recordWrite upserts the pending value for c. An existing observed version
// is left untouched; a TVar written without being read is still logged so it
// takes part in locking and commit.
func (l *txnLog) recordWrite(c *cell, value any) {
	if e, ok := l.entry(c); ok {
		e.value = value
		e.written = true
		return
	}
	l.entries.Put(c.id, &logEntry{c: c, value: value, written: true})
}

// modify writes f applied to the value the program currently sees.
func (l *txnLog) modify(c *cell, f func(any) any) {
	l.recordWrite(c, f(l.read(c)))
}

// forEach visits entries in first-access order.
func (l *txnLog) forEach(fn func(e *logEntry)) {
	it := l.entries.Iterator()
	for it.Next() {
		fn(it.Value().(*logEntry))
	}
}

// fork returns a sub-log that starts with a copy of every entry of l, so a
// nested program sees the outer program's reads and writes but its own
// changes stay private until adopted.
func (l *txnLog) fork() *txnLog {
	child := newTxnLog()
	l.forEach(func(e *logEntry) {
		cp := *e
		child.entries.Put(e.c.id, &cp)
	})
	return child
}

// adopt replaces l's entries with those of a fork that completed.
func (l *txnLog) adopt(child *txnLog) {
	l.entries = child.entries
}

// mergeReads keeps the reads of an abandoned fork. Its writes are dropped.
func (l *txnLog) mergeReads(child *txnLog) {
	child.forEach(func(e *logEntry) {
		if !e.read {
			return
		}
		if _, ok := l.entry(e.c); ok {
			return
		}
		l.entries.Put(e.c.id, &logEntry{
			c:        e.c,
			read:     true,
			observed: e.observed,
			seen:     e.seen,
			value:    e.seen,
		})
	})
}

// sorted returns the cells of the entries accepted by keep, ordered by id.
func (l *txnLog) sorted(keep func(e *logEntry) bool) []*cell {
	byID := treemap.NewWith(utils.UInt64Comparator)
	l.forEach(func(e *logEntry) {
		if keep(e) {
			byID.Put(e.c.id, e.c)
		}
	})
	cells := make([]*cell, 0, byID.Size())
	for _, v := range byID.Values() {
		cells = append(cells, v.(*cell))
	}
	return cells
}

// readSet returns the cells whose committed state the attempt observed.
func (l *txnLog) readSet() []*cell {
	return l.sorted(func(e *logEntry) bool { return e.read })
}

// writeSet returns the cells the attempt wants to change.
func (l *txnLog) writeSet() []*cell {
	return l.sorted(func(e *logEntry) bool { return e.written })
}

// lockSet returns the union of the read and write sets in the global lock
// order.
func (l *txnLog) lockSet() []*cell {
	return l.sorted(func(*logEntry) bool { return true })
}

// valid reports whether every observed version is still current. The answer
// is only stable while the locks of the read set are held.
func (l *txnLog) valid() bool {
	ok := true
	l.forEach(func(e *logEntry) {
		if ok && e.read && e.c.version() != e.observed {
			ok = false
		}
	})
	return ok
}

// hasWrites reports whether the attempt wants to change anything.
func (l *txnLog) hasWrites() bool {
	found := false
	l.forEach(func(e *logEntry) {
		if e.written {
			found = true
		}
	})
	return found
}
