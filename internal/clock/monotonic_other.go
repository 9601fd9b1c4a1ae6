//go:build !linux

package clock

import (
	"time"
	_ "unsafe" // Required for go:linkname
)

// nanotime returns the current monotonic time in nanoseconds.
// This is faster than time.Now() because it returns a single int64
// and avoids constructing a time.Time struct.
//
//go:linkname nanotime runtime.nanotime
func nanotime() int64

// Monotonic reads the runtime's monotonic clock. Sleeps are relative sleeps
// to the absolute deadline, recomputed on every call, so drift does not
// accumulate even though the host has no absolute-time sleep.
type Monotonic struct{}

// NewMonotonic returns the runtime monotonic clock.
func NewMonotonic() (*Monotonic, error) {
	return &Monotonic{}, nil
}

// Now returns the current monotonic time.
func (m *Monotonic) Now() Timestamp {
	return FromNanoseconds(nanotime())
}

// SleepUntil blocks until deadline.
func (m *Monotonic) SleepUntil(deadline Timestamp) error {
	if d := deadline.Sub(m.Now()); d > 0 {
		time.Sleep(d)
	}
	return nil
}
