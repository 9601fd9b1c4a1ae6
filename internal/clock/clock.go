// Package clock provides the monotonic time source used by the toggle loop.
//
// This package offers:
//   - Timestamp: seconds + nanoseconds pair with single-carry addition
//   - Monotonic: the host's monotonic clock with absolute-time sleeps
//   - Fake: a deterministic clock for tests
//   - MeasureOverhead: one-shot calibration of the cost of reading a clock
//
// Deadlines are absolute: callers accumulate a fixed period onto a fixed
// origin and sleep until the result, so loop overhead never accumulates.
package clock

import "time"

const nsPerSec = int64(time.Second)

// Clock reads monotonic time and sleeps until absolute deadlines.
type Clock interface {
	// Now returns the current monotonic time.
	Now() Timestamp

	// SleepUntil blocks until the clock reaches deadline.
	// Returns immediately if the deadline has already passed.
	SleepUntil(deadline Timestamp) error
}

// Timestamp is a point in monotonic time.
// Nsec is always in [0, 1e9).
type Timestamp struct {
	Sec  int64
	Nsec int64
}

// FromNanoseconds converts a nanosecond count into a Timestamp.
func FromNanoseconds(ns int64) Timestamp {
	return Timestamp{Sec: ns / nsPerSec, Nsec: ns % nsPerSec}
}

// Add returns t advanced by d, carrying at most one second into Sec.
// d must be in [0, 1s); larger values leave Nsec out of range.
func (t Timestamp) Add(d time.Duration) Timestamp {
	t.Nsec += int64(d)
	if t.Nsec >= nsPerSec {
		t.Sec++
		t.Nsec -= nsPerSec
	}
	return t
}

// Sub returns the duration t-u.
func (t Timestamp) Sub(u Timestamp) time.Duration {
	return time.Duration((t.Sec-u.Sec)*nsPerSec + (t.Nsec - u.Nsec))
}

// Nanoseconds returns t as a single nanosecond count.
func (t Timestamp) Nanoseconds() int64 {
	return t.Sec*nsPerSec + t.Nsec
}

// Before reports whether t is earlier than u.
func (t Timestamp) Before(u Timestamp) bool {
	return t.Sec < u.Sec || (t.Sec == u.Sec && t.Nsec < u.Nsec)
}
