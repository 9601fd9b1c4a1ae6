package scheduler_test

import (
	"errors"
	"testing"
	"time"

	"github.com/randomizedcoder/toggle-jitter/internal/cancel"
	"github.com/randomizedcoder/toggle-jitter/internal/clock"
	"github.com/randomizedcoder/toggle-jitter/internal/gpio"
	"github.com/randomizedcoder/toggle-jitter/internal/journal"
	"github.com/randomizedcoder/toggle-jitter/internal/queue"
	"github.com/randomizedcoder/toggle-jitter/internal/rt"
	"github.com/randomizedcoder/toggle-jitter/internal/scheduler"
)

var start = clock.Timestamp{Sec: 100, Nsec: 999_500_000}

func fixedOverhead(d time.Duration) scheduler.Option {
	return scheduler.WithCalibrator(func(clock.Clock) time.Duration { return d })
}

// stopAfter cancels c once the fake clock has completed n sleeps.
func stopAfter(fc *clock.Fake, c cancel.Canceler, n int) {
	fc.OnSleep = func(i int) {
		if i == n {
			c.Cancel()
		}
	}
}

func drain(t *testing.T, r *queue.SampleRing) []uint64 {
	t.Helper()
	var out []uint64
	for {
		v, ok := r.Pop()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

func mustRing(t *testing.T, n int) *queue.SampleRing {
	t.Helper()
	r, err := queue.NewSampleRing(n)
	if err != nil {
		t.Fatalf("NewSampleRing(%d): %v", n, err)
	}
	return r
}

func mustRun(t *testing.T, s *scheduler.Scheduler) error {
	t.Helper()
	if err := s.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not exit")
	}
	return s.Wait()
}

func TestScheduler_SamplesSubtractOverhead(t *testing.T) {
	fc := clock.NewFake(start)
	stop := cancel.NewAtomic()
	stopAfter(fc, stop, 5)
	ring := mustRing(t, 16)
	line := &gpio.Recorder{}

	s, err := scheduler.New(scheduler.Config{Core: scheduler.CoreUnset, Period: time.Millisecond}, line, ring, stop,
		scheduler.WithClock(fc), scheduler.WithHints(rt.Noop{}), fixedOverhead(2*time.Microsecond))
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	if err := mustRun(t, s); err != nil {
		t.Fatalf("Wait() = %v", err)
	}

	got := drain(t, ring)
	if len(got) != 5 {
		t.Fatalf("got %d samples, want 5: %v", len(got), got)
	}
	for i, v := range got {
		if v != 998_000 {
			t.Errorf("sample %d = %d, want 998000", i, v)
		}
	}
	if want := []int{1, 0, 1, 0, 1}; !equalInts(line.Values(), want) {
		t.Errorf("line values = %v, want %v", line.Values(), want)
	}
	if s.State() != scheduler.Stopped {
		t.Errorf("State() = %v, want stopped", s.State())
	}
	if s.Iterations() != 5 {
		t.Errorf("Iterations() = %d, want 5", s.Iterations())
	}
	if s.Overhead() != 2*time.Microsecond {
		t.Errorf("Overhead() = %v", s.Overhead())
	}
}

// Late wakes stretch one interval and shrink the next; deadlines stay on
// the start + N*P grid.
func TestScheduler_DeadlinesDoNotDrift(t *testing.T) {
	const n = 50
	period := 700 * time.Microsecond
	fc := clock.NewFake(start)
	fc.WakeFunc = func(d clock.Timestamp) clock.Timestamp {
		late := time.Duration(d.Nsec%7) * 10 * time.Microsecond
		return d.Add(late)
	}
	stop := cancel.NewAtomic()
	stopAfter(fc, stop, n)
	ring := mustRing(t, n)

	s, err := scheduler.New(scheduler.Config{Core: scheduler.CoreUnset, Period: period}, gpio.Null{}, ring, stop,
		scheduler.WithClock(fc), scheduler.WithHints(rt.Noop{}), fixedOverhead(0))
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	if err := mustRun(t, s); err != nil {
		t.Fatalf("Wait() = %v", err)
	}

	deadlines := fc.Deadlines()
	if len(deadlines) != n {
		t.Fatalf("got %d deadlines, want %d", len(deadlines), n)
	}
	for i, d := range deadlines {
		if got, want := d.Sub(start), time.Duration(i+1)*period; got != want {
			t.Fatalf("deadline %d at start+%v, want start+%v", i, got, want)
		}
	}

	// Intervals chain wake to wake, so they sum to the last wake time.
	var sum time.Duration
	for _, v := range drain(t, ring) {
		sum += time.Duration(v)
	}
	last := fc.WakeFunc(deadlines[n-1])
	if want := last.Sub(start); sum != want {
		t.Errorf("sum of intervals = %v, want %v", sum, want)
	}
}

func TestScheduler_Hints(t *testing.T) {
	tests := []struct {
		name           string
		cfg            scheduler.Config
		pinErr         error
		prioErr        error
		wantCores      []int
		wantPriorities []int
		wantKinds      []journal.Kind
	}{
		{
			name:      "priority zero skips elevation",
			cfg:       scheduler.Config{Core: 0, Priority: 0, Period: time.Millisecond},
			wantCores: []int{0},
			wantKinds: []journal.Kind{journal.Armed, journal.Stopped},
		},
		{
			name:      "unset core skips affinity",
			cfg:       scheduler.Config{Core: scheduler.CoreUnset, Priority: -3, Period: time.Millisecond},
			wantKinds: []journal.Kind{journal.Armed, journal.Stopped},
		},
		{
			name:           "degraded hints keep running",
			cfg:            scheduler.Config{Core: 3, Priority: 80, Period: time.Millisecond},
			pinErr:         errors.New("invalid argument"),
			prioErr:        errors.New("operation not permitted"),
			wantCores:      []int{3},
			wantPriorities: []int{80},
			wantKinds:      []journal.Kind{journal.AffinityDegraded, journal.PriorityDegraded, journal.Armed, journal.Stopped},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fc := clock.NewFake(start)
			stop := cancel.NewAtomic()
			stopAfter(fc, stop, 3)
			ring := mustRing(t, 8)
			hints := &rt.Recorder{PinErr: tc.pinErr, PriorityErr: tc.prioErr}
			j, err := journal.New()
			if err != nil {
				t.Fatalf("journal.New() = %v", err)
			}

			s, err := scheduler.New(tc.cfg, gpio.Null{}, ring, stop,
				scheduler.WithClock(fc), scheduler.WithHints(hints), scheduler.WithJournal(j), fixedOverhead(time.Microsecond))
			if err != nil {
				t.Fatalf("New() = %v", err)
			}
			if err := mustRun(t, s); err != nil {
				t.Fatalf("Wait() = %v", err)
			}

			cores, prios := hints.Calls()
			if !equalInts(cores, tc.wantCores) {
				t.Errorf("PinToCore calls = %v, want %v", cores, tc.wantCores)
			}
			if !equalInts(prios, tc.wantPriorities) {
				t.Errorf("SetPriority calls = %v, want %v", prios, tc.wantPriorities)
			}
			var kinds []journal.Kind
			j.Drain(func(e journal.Event) { kinds = append(kinds, e.Kind) })
			if len(kinds) != len(tc.wantKinds) {
				t.Fatalf("journal kinds = %v, want %v", kinds, tc.wantKinds)
			}
			for i := range kinds {
				if kinds[i] != tc.wantKinds[i] {
					t.Errorf("journal kinds = %v, want %v", kinds, tc.wantKinds)
					break
				}
			}
			if got := len(drain(t, ring)); got != 3 {
				t.Errorf("got %d samples, want 3", got)
			}
		})
	}
}

func TestScheduler_LineFailureIsFatal(t *testing.T) {
	fc := clock.NewFake(start)
	ring := mustRing(t, 8)
	writeErr := errors.New("device gone")
	line := &gpio.Recorder{FailAfter: 3, Err: writeErr}

	s, err := scheduler.New(scheduler.Config{Core: scheduler.CoreUnset, Period: time.Millisecond}, line, ring, cancel.NewAtomic(),
		scheduler.WithClock(fc), scheduler.WithHints(rt.Noop{}), fixedOverhead(0))
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	err = mustRun(t, s)
	if !errors.Is(err, scheduler.ErrLineWrite) || !errors.Is(err, writeErr) {
		t.Fatalf("Wait() = %v, want ErrLineWrite wrapping %v", err, writeErr)
	}
	if s.State() != scheduler.Failed {
		t.Errorf("State() = %v, want failed", s.State())
	}
	if got := len(drain(t, ring)); got != 3 {
		t.Errorf("got %d samples, want 3", got)
	}
}

func TestScheduler_NegativeIntervalIsFatal(t *testing.T) {
	fc := clock.NewFake(start)
	// Wake 1µs after start, before the 2µs overhead has elapsed.
	fc.WakeFunc = func(clock.Timestamp) clock.Timestamp { return start.Add(time.Microsecond) }
	ring := mustRing(t, 8)

	s, err := scheduler.New(scheduler.Config{Core: scheduler.CoreUnset, Period: time.Millisecond}, gpio.Null{}, ring, cancel.NewAtomic(),
		scheduler.WithClock(fc), scheduler.WithHints(rt.Noop{}), fixedOverhead(2*time.Microsecond))
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	if err := mustRun(t, s); !errors.Is(err, scheduler.ErrNegativeInterval) {
		t.Fatalf("Wait() = %v, want ErrNegativeInterval", err)
	}
	if ring.Len() != 0 {
		t.Errorf("ring holds %d samples, want 0", ring.Len())
	}
}

func TestScheduler_OverheadNotBelowPeriod(t *testing.T) {
	for _, overhead := range []time.Duration{time.Millisecond, 3 * time.Millisecond} {
		s, err := scheduler.New(scheduler.Config{Core: scheduler.CoreUnset, Period: time.Millisecond}, gpio.Null{}, mustRing(t, 4), cancel.NewAtomic(),
			scheduler.WithClock(clock.NewFake(start)), scheduler.WithHints(rt.Noop{}), fixedOverhead(overhead))
		if err != nil {
			t.Fatalf("New() = %v", err)
		}
		if err := s.Start(); !errors.Is(err, scheduler.ErrOverheadExceedsPeriod) {
			t.Fatalf("overhead %v: Start() = %v, want ErrOverheadExceedsPeriod", overhead, err)
		}
		if err := s.Wait(); !errors.Is(err, scheduler.ErrOverheadExceedsPeriod) {
			t.Errorf("Wait() = %v", err)
		}
		if s.State() != scheduler.Failed {
			t.Errorf("State() = %v, want failed", s.State())
		}
	}
}

func TestScheduler_FullRingDropsSilently(t *testing.T) {
	fc := clock.NewFake(start)
	stop := cancel.NewAtomic()
	stopAfter(fc, stop, 10)
	ring := mustRing(t, 4)

	s, err := scheduler.New(scheduler.Config{Core: scheduler.CoreUnset, Period: time.Millisecond}, gpio.Null{}, ring, stop,
		scheduler.WithClock(fc), scheduler.WithHints(rt.Noop{}), fixedOverhead(0))
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	if err := mustRun(t, s); err != nil {
		t.Fatalf("Wait() = %v", err)
	}
	if ring.Len() != 4 || ring.Dropped() != 6 {
		t.Errorf("Len() = %d, Dropped() = %d, want 4 and 6", ring.Len(), ring.Dropped())
	}
	if s.Iterations() != 10 {
		t.Errorf("Iterations() = %d, want 10", s.Iterations())
	}
}

func TestScheduler_StopsWithinAPeriod(t *testing.T) {
	if testing.Short() {
		t.Skip("real clock")
	}
	period := time.Millisecond
	stop := cancel.NewAtomic()
	ring := mustRing(t, 1024)

	s, err := scheduler.New(scheduler.Config{Core: scheduler.CoreUnset, Period: period}, gpio.Null{}, ring, stop,
		scheduler.WithHints(rt.Noop{}))
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	stop.Cancel()
	select {
	case <-s.Done():
	case <-time.After(period + 200*time.Millisecond):
		t.Fatal("loop did not observe cancellation")
	}
	if err := s.Wait(); err != nil {
		t.Fatalf("Wait() = %v", err)
	}
	if ring.Len() == 0 {
		t.Error("no samples recorded")
	}
}

func TestScheduler_StartTwice(t *testing.T) {
	fc := clock.NewFake(start)
	stop := cancel.NewAtomic()
	stop.Cancel()
	s, err := scheduler.New(scheduler.Config{Core: scheduler.CoreUnset, Period: time.Millisecond}, gpio.Null{}, mustRing(t, 4), stop,
		scheduler.WithClock(fc), scheduler.WithHints(rt.Noop{}), fixedOverhead(0))
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if err := s.Start(); !errors.Is(err, scheduler.ErrAlreadyStarted) {
		t.Errorf("second Start() = %v, want ErrAlreadyStarted", err)
	}
	if err := s.Wait(); err != nil {
		t.Errorf("Wait() = %v", err)
	}
	if s.Iterations() != 0 {
		t.Errorf("Iterations() = %d, want 0 for a pre-cancelled run", s.Iterations())
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  scheduler.Config
		want error
	}{
		{"zero period", scheduler.Config{Period: 0}, scheduler.ErrInvalidPeriod},
		{"negative period", scheduler.Config{Period: -time.Millisecond}, scheduler.ErrInvalidPeriod},
		{"one second", scheduler.Config{Period: time.Second}, scheduler.ErrInvalidPeriod},
		{"bad core", scheduler.Config{Core: -2, Period: time.Millisecond}, scheduler.ErrInvalidCore},
		{"max period", scheduler.Config{Core: scheduler.CoreUnset, Period: time.Second - 1}, nil},
		{"1ns", scheduler.Config{Core: 0, Period: 1}, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.want == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Errorf("Validate() = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCorrectInterval(t *testing.T) {
	if v, err := scheduler.CorrectInterval(time.Millisecond, 2*time.Microsecond); err != nil || v != 998_000 {
		t.Errorf("CorrectInterval() = %d, %v", v, err)
	}
	if v, err := scheduler.CorrectInterval(5, 5); err != nil || v != 0 {
		t.Errorf("CorrectInterval(equal) = %d, %v", v, err)
	}
	if _, err := scheduler.CorrectInterval(1, 5); !errors.Is(err, scheduler.ErrNegativeInterval) {
		t.Errorf("CorrectInterval(short) err = %v", err)
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
