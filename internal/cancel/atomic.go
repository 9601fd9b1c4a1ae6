package cancel

import "sync/atomic"

// AtomicCanceler is the stop flag the toggle loop polls once per period.
// Done is a single atomic load: no channel, no select, no allocation.
type AtomicCanceler struct {
	done atomic.Bool
}

// NewAtomic returns a flag that is not yet set.
func NewAtomic() *AtomicCanceler {
	return &AtomicCanceler{}
}

// Done reports whether Cancel has been called.
func (a *AtomicCanceler) Done() bool {
	return a.done.Load()
}

// Cancel sets the flag. Repeated calls are no-ops.
func (a *AtomicCanceler) Cancel() {
	a.done.Store(true)
}
