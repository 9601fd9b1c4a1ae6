// Package gpio holds the output line the toggle loop drives.
//
// The loop only needs SetValue; opening and closing the line belong to the
// controller. Linux lines are requested through the GPIO character device.
package gpio

import (
	"errors"
	"sync"
)

// Consumer is the label the line is requested under, visible in gpioinfo.
const Consumer = "toggle-jitter"

// Logical levels.
const (
	Low  = 0
	High = 1
)

// ErrUnsupported is returned by Open on platforms without GPIO support.
var ErrUnsupported = errors.New("gpio: character device not supported on this platform")

// Line is an output line.
type Line interface {
	// SetValue drives the line to Low or High.
	SetValue(value int) error

	// Close releases the line.
	Close() error
}

// Null is a Line that accepts every write. Used for dry runs on hosts
// without GPIO hardware.
type Null struct{}

// SetValue does nothing.
func (Null) SetValue(int) error { return nil }

// Close does nothing.
func (Null) Close() error { return nil }

// Recorder is a Line that records every value written.
// Setting FailAfter > 0 makes write number FailAfter+1 and later
// return Err.
type Recorder struct {
	mu        sync.Mutex
	values    []int
	closed    bool
	FailAfter int
	Err       error
}

// SetValue records value, or fails once FailAfter writes have succeeded.
func (r *Recorder) SetValue(value int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailAfter > 0 && len(r.values) >= r.FailAfter {
		return r.Err
	}
	r.values = append(r.values, value)
	return nil
}

// Close marks the line closed.
func (r *Recorder) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// Values returns a copy of the values written so far.
func (r *Recorder) Values() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.values...)
}

// Closed reports whether Close has been called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
