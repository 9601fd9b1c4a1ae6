// Package scheduler runs the precision toggle loop.
//
// The loop runs on a dedicated, locked OS thread. Every iteration it sleeps
// until an absolute deadline, reads the wake time, flips the output line
// and pushes the corrected interval since the previous wake into a sample
// queue. Deadlines accumulate from a fixed origin (start + N*period), so
// time spent inside the loop never shifts later deadlines.
//
// Lifecycle:
//
//	Idle -> Armed -> Running -> Stopping -> Stopped
//	              \-> Failed (startup configuration error or fatal loop error)
package scheduler

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/randomizedcoder/toggle-jitter/internal/cancel"
	"github.com/randomizedcoder/toggle-jitter/internal/clock"
	"github.com/randomizedcoder/toggle-jitter/internal/gpio"
	"github.com/randomizedcoder/toggle-jitter/internal/journal"
	"github.com/randomizedcoder/toggle-jitter/internal/queue"
	"github.com/randomizedcoder/toggle-jitter/internal/rt"
)

// CoreUnset leaves the loop thread's CPU affinity untouched.
const CoreUnset = -1

var (
	// ErrInvalidPeriod is returned for periods outside (0, 1s).
	// Deadline arithmetic carries at most one second per iteration.
	ErrInvalidPeriod = errors.New("scheduler: period must be greater than 0 and less than 1s")

	// ErrInvalidCore is returned for a negative core other than CoreUnset.
	ErrInvalidCore = errors.New("scheduler: invalid core")

	// ErrOverheadExceedsPeriod is returned by Start when reading the clock
	// costs as much as a whole period.
	ErrOverheadExceedsPeriod = errors.New("scheduler: calibrated clock overhead is not below the period")

	// ErrNegativeInterval stops the loop when a measured interval is
	// shorter than the calibrated overhead.
	ErrNegativeInterval = errors.New("scheduler: measured interval below calibrated overhead")

	// ErrLineWrite stops the loop when the output line cannot be driven.
	ErrLineWrite = errors.New("scheduler: output line write failed")

	// ErrSleep stops the loop when the absolute-time sleep fails.
	ErrSleep = errors.New("scheduler: absolute sleep failed")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("scheduler: already started")
)

// Config is the loop configuration, read-only once the loop starts.
type Config struct {
	// Core is the CPU the loop thread is pinned to, or CoreUnset.
	Core int
	// Priority is the SCHED_FIFO priority; values below 1 keep the
	// default scheduling class.
	Priority int
	// Period is the time between two toggles.
	Period time.Duration
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Period <= 0 || c.Period >= time.Second {
		return fmt.Errorf("%w: got %v", ErrInvalidPeriod, c.Period)
	}
	if c.Core < CoreUnset {
		return fmt.Errorf("%w: %d", ErrInvalidCore, c.Core)
	}
	return nil
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the monotonic clock.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithHints replaces the real-time hints (default rt.NewOS()).
func WithHints(h rt.Hints) Option {
	return func(s *Scheduler) { s.hints = h }
}

// WithJournal sets where lifecycle events are posted.
func WithJournal(j *journal.Journal) Option {
	return func(s *Scheduler) { s.journal = j }
}

// WithCalibrator replaces clock.MeasureOverhead.
func WithCalibrator(fn func(clock.Clock) time.Duration) Option {
	return func(s *Scheduler) { s.calibrate = fn }
}

// Scheduler owns the toggle loop.
type Scheduler struct {
	cfg       Config
	line      gpio.Line
	samples   queue.Queue[uint64]
	stop      cancel.Observer
	clock     clock.Clock
	hints     rt.Hints
	journal   *journal.Journal
	calibrate func(clock.Clock) time.Duration

	state      atomic.Int32
	iterations atomic.Uint64

	// Written by the loop goroutine before ready/done are signalled.
	overhead time.Duration
	err      error
	done     chan struct{}
}

// New creates a Scheduler driving line and pushing samples, stopping when
// stop reports Done. The clock defaults to clock.NewMonotonic().
func New(cfg Config, line gpio.Line, samples queue.Queue[uint64], stop cancel.Observer, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		cfg:       cfg,
		line:      line,
		samples:   samples,
		stop:      stop,
		hints:     rt.NewOS(),
		calibrate: clock.MeasureOverhead,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		c, err := clock.NewMonotonic()
		if err != nil {
			return nil, err
		}
		s.clock = c
	}
	return s, nil
}

// Start launches the loop on its own OS thread and returns once the loop is
// armed, or with the startup error (ErrOverheadExceedsPeriod).
// Hint failures are not errors; they are posted to the journal.
func (s *Scheduler) Start() error {
	if !s.state.CompareAndSwap(int32(Idle), int32(Armed)) {
		return ErrAlreadyStarted
	}
	ready := make(chan error, 1)
	go s.run(ready)
	return <-ready
}

// Wait blocks until the loop has exited and returns its error.
// A nil error means the loop stopped on request.
func (s *Scheduler) Wait() error {
	<-s.done
	return s.err
}

// Done is closed when the loop has exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Overhead returns the calibrated clock overhead. Valid once Start returned.
func (s *Scheduler) Overhead() time.Duration {
	return s.overhead
}

// Iterations returns the number of completed toggles.
func (s *Scheduler) Iterations() uint64 {
	return s.iterations.Load()
}

func (s *Scheduler) run(ready chan<- error) {
	// Never unlocked: affinity and priority belong to this thread, which
	// the runtime discards when the goroutine exits while locked.
	runtime.LockOSThread()
	defer close(s.done)

	s.applyHints()

	overhead := s.calibrate(s.clock)
	if overhead >= s.cfg.Period {
		s.err = fmt.Errorf("%w: overhead %v, period %v", ErrOverheadExceedsPeriod, overhead, s.cfg.Period)
		s.state.Store(int32(Failed))
		ready <- s.err
		return
	}
	s.overhead = overhead
	s.journal.Post(journal.Event{Producer: journal.Scheduler, Kind: journal.Armed, Value: int64(overhead)})
	ready <- nil

	s.err = s.loop()
	n := int64(s.iterations.Load())
	if s.err != nil {
		s.state.Store(int32(Failed))
		s.journal.Post(journal.Event{Producer: journal.Scheduler, Kind: journal.Failed, Value: n, Err: s.err})
		return
	}
	s.state.Store(int32(Stopped))
	s.journal.Post(journal.Event{Producer: journal.Scheduler, Kind: journal.Stopped, Value: n})
}

// applyHints pins and prioritizes the loop thread. Failures degrade
// timing but never stop the loop.
func (s *Scheduler) applyHints() {
	if s.cfg.Core != CoreUnset {
		if err := s.hints.PinToCore(s.cfg.Core); err != nil {
			s.journal.Post(journal.Event{Producer: journal.Scheduler, Kind: journal.AffinityDegraded, Value: int64(s.cfg.Core), Err: err})
		}
	}
	if s.cfg.Priority >= 1 {
		if err := s.hints.SetPriority(s.cfg.Priority); err != nil {
			s.journal.Post(journal.Event{Producer: journal.Scheduler, Kind: journal.PriorityDegraded, Value: int64(s.cfg.Priority), Err: err})
		}
	}
}

func (s *Scheduler) loop() error {
	period := s.cfg.Period
	overhead := s.overhead

	deadline := s.clock.Now()
	baseline := deadline
	level := gpio.Low

	s.state.Store(int32(Running))
	for !s.stop.Done() {
		deadline = deadline.Add(period)
		if err := s.clock.SleepUntil(deadline); err != nil {
			return fmt.Errorf("%w: %w", ErrSleep, err)
		}

		// The wake time, not the post-write time, is the toggle instant.
		now := s.clock.Now()

		level ^= 1
		if err := s.line.SetValue(level); err != nil {
			return fmt.Errorf("%w: %w", ErrLineWrite, err)
		}

		sample, err := CorrectInterval(now.Sub(baseline), overhead)
		if err != nil {
			return err
		}
		baseline = now

		// Full queue: the sample is dropped and counted by the queue.
		s.samples.Push(sample)
		s.iterations.Add(1)
	}
	s.state.Store(int32(Stopping))
	return nil
}

// CorrectInterval subtracts the calibrated clock overhead from a measured
// interval. It never wraps: an interval shorter than the overhead is an
// error.
func CorrectInterval(elapsed, overhead time.Duration) (uint64, error) {
	if elapsed < overhead {
		return 0, fmt.Errorf("%w: interval %v, overhead %v", ErrNegativeInterval, elapsed, overhead)
	}
	return uint64(elapsed - overhead), nil
}
