package stm

// waiter is a transaction parked after Retry. It is subscribed to every cell
// of the retried attempt's read set.
type waiter struct {
	cells []*cell
	// ch has room for one signal; notify never blocks and repeated
	// notifications collapse into one wake-up.
	ch chan struct{}
}

func newWaiter(cells []*cell) *waiter {
	return &waiter{cells: cells, ch: make(chan struct{}, 1)}
}

func (w *waiter) notify() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// register validates l and, if it is still current, subscribes w to all of
// w.cells. Validation and subscription happen under the locks of the whole
// read set, taken in global order, so any commit that invalidates the read
// set either finished before validation or finds w subscribed.
func (w *waiter) register(l *txnLog) bool {
	lockCells(w.cells)
	defer unlockCells(w.cells)

	if !l.valid() {
		return false
	}
	for _, c := range w.cells {
		c.subscribe(w)
	}
	return true
}

// deregister removes w from every cell it was registered on. Cells are locked
// one at a time: no ordering is needed because only one lock is ever held.
func (w *waiter) deregister() {
	for _, c := range w.cells {
		c.mu.Lock()
		c.unsubscribe(w)
		c.mu.Unlock()
	}
}

// lockCells locks cells, which must be sorted by id.
func lockCells(cells []*cell) {
	for _, c := range cells {
		c.mu.Lock()
	}
}

func unlockCells(cells []*cell) {
	for _, c := range cells {
		c.mu.Unlock()
	}
}
