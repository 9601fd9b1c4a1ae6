package clock

import (
	"sync"
	"time"
)

// Fake is a deterministic Clock for tests.
//
// Time only moves on SleepUntil, Advance, or a Now with a read cost set.
// By default a sleep wakes exactly on its deadline; WakeFunc can shift the
// wake time to simulate scheduling latency. OnSleep runs after every sleep
// with the 1-based sleep count.
type Fake struct {
	mu       sync.Mutex
	now      Timestamp
	readCost time.Duration
	sleeps   []Timestamp

	// WakeFunc maps a deadline to the simulated wake time.
	WakeFunc func(deadline Timestamp) Timestamp

	// OnSleep is called after each completed sleep.
	OnSleep func(n int)
}

// NewFake returns a Fake clock starting at start.
func NewFake(start Timestamp) *Fake {
	return &Fake{now: start}
}

// SetReadCost makes every Now() call advance the clock by d.
func (f *Fake) SetReadCost(d time.Duration) {
	f.mu.Lock()
	f.readCost = d
	f.mu.Unlock()
}

// Now returns the current fake time.
func (f *Fake) Now() Timestamp {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.now
	if f.readCost > 0 {
		f.now = FromNanoseconds(f.now.Nanoseconds() + int64(f.readCost))
	}
	return t
}

// SleepUntil moves the clock to the wake time for deadline.
func (f *Fake) SleepUntil(deadline Timestamp) error {
	f.mu.Lock()
	wake := deadline
	if f.WakeFunc != nil {
		wake = f.WakeFunc(deadline)
	}
	if f.now.Before(wake) {
		f.now = wake
	}
	f.sleeps = append(f.sleeps, deadline)
	n := len(f.sleeps)
	hook := f.OnSleep
	f.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return nil
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = FromNanoseconds(f.now.Nanoseconds() + int64(d))
	f.mu.Unlock()
}

// Deadlines returns a copy of every deadline passed to SleepUntil.
func (f *Fake) Deadlines() []Timestamp {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Timestamp, len(f.sleeps))
	copy(out, f.sleeps)
	return out
}
