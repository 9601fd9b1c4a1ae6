// Package rt applies best-effort real-time hints to the calling OS thread:
// CPU affinity and a fixed-priority scheduling class.
//
// Hints are a capability: the toggle loop receives a Hints value and never
// calls the OS directly, so tests run with Noop or Recorder and no privilege.
// Callers must hold the OS thread (runtime.LockOSThread) for the hints to
// stick to the goroutine that asked for them.
package rt

import (
	"errors"
	"sync"
)

// ErrUnsupported is returned by hints the platform cannot apply.
var ErrUnsupported = errors.New("rt: not supported on this platform")

// Hints pins and prioritizes the calling thread.
type Hints interface {
	// PinToCore binds the calling thread to one CPU.
	PinToCore(core int) error

	// SetPriority moves the calling thread to a fixed-priority real-time
	// scheduling class with the given priority.
	SetPriority(priority int) error
}

// Noop accepts every hint and changes nothing.
type Noop struct{}

// PinToCore does nothing.
func (Noop) PinToCore(int) error { return nil }

// SetPriority does nothing.
func (Noop) SetPriority(int) error { return nil }

// Recorder records hint calls and returns configured errors.
// It is safe for concurrent use.
type Recorder struct {
	mu          sync.Mutex
	PinErr      error
	PriorityErr error
	Cores       []int
	Priorities  []int
}

// PinToCore records core and returns PinErr.
func (r *Recorder) PinToCore(core int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Cores = append(r.Cores, core)
	return r.PinErr
}

// SetPriority records priority and returns PriorityErr.
func (r *Recorder) SetPriority(priority int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Priorities = append(r.Priorities, priority)
	return r.PriorityErr
}

// Calls returns copies of the recorded cores and priorities.
func (r *Recorder) Calls() (cores, priorities []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.Cores...), append([]int(nil), r.Priorities...)
}
