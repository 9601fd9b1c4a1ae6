//go:build linux

package clock

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// clockID is the clock both read and slept on. CLOCK_MONOTONIC_RAW cannot
// be passed to clock_nanosleep, so reads use the same clock as sleeps.
const clockID = unix.CLOCK_MONOTONIC

// Monotonic reads CLOCK_MONOTONIC and sleeps with clock_nanosleep in
// TIMER_ABSTIME mode.
type Monotonic struct{}

// NewMonotonic returns the host monotonic clock.
// It fails if the clock cannot be read.
func NewMonotonic() (*Monotonic, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(clockID, &ts); err != nil {
		return nil, fmt.Errorf("clock: open monotonic time source: %w", err)
	}
	return &Monotonic{}, nil
}

// Now returns the current monotonic time.
func (m *Monotonic) Now() Timestamp {
	var ts unix.Timespec
	_ = unix.ClockGettime(clockID, &ts)
	return Timestamp{Sec: int64(ts.Sec), Nsec: int64(ts.Nsec)}
}

// SleepUntil blocks until deadline. Interrupted sleeps are resumed with the
// same absolute deadline.
func (m *Monotonic) SleepUntil(deadline Timestamp) error {
	ts := unix.NsecToTimespec(deadline.Nanoseconds())
	for {
		err := unix.ClockNanosleep(clockID, unix.TIMER_ABSTIME, &ts, nil)
		if err != unix.EINTR {
			return err
		}
	}
}
