package clock_test

import (
	"testing"
	"time"

	"github.com/randomizedcoder/toggle-jitter/internal/clock"
)

func TestTimestamp_AddSingleCarry(t *testing.T) {
	tests := []struct {
		name   string
		start  clock.Timestamp
		period time.Duration
		want   clock.Timestamp
	}{
		{"no carry", clock.Timestamp{Sec: 5, Nsec: 100}, 1000, clock.Timestamp{Sec: 5, Nsec: 1100}},
		{"exact carry", clock.Timestamp{Sec: 5, Nsec: 999_000_000}, time.Millisecond, clock.Timestamp{Sec: 6, Nsec: 0}},
		{"carry with remainder", clock.Timestamp{Sec: 0, Nsec: 600_000_000}, 500 * time.Millisecond, clock.Timestamp{Sec: 1, Nsec: 100_000_000}},
		{"max period", clock.Timestamp{Sec: 1, Nsec: 999_999_999}, time.Second - 1, clock.Timestamp{Sec: 2, Nsec: 999_999_998}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.start.Add(tc.period); got != tc.want {
				t.Errorf("Add() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

// Accumulating a sub-second period N times lands exactly on start + N*P.
func TestTimestamp_AddDriftFree(t *testing.T) {
	periods := []time.Duration{1, 999, 333_333, time.Millisecond, 123_456_789, time.Second - 1}
	for _, p := range periods {
		start := clock.Timestamp{Sec: 42, Nsec: 987_654_321}
		ts := start
		const n = 10_000
		for i := 0; i < n; i++ {
			ts = ts.Add(p)
			if ts.Nsec < 0 || ts.Nsec >= int64(time.Second) {
				t.Fatalf("period %v: Nsec out of range after %d adds: %+v", p, i+1, ts)
			}
		}
		if got, want := ts.Sub(start), time.Duration(n)*p; got != want {
			t.Errorf("period %v: accumulated %v, want %v", p, got, want)
		}
	}
}

func TestTimestamp_SubAndConvert(t *testing.T) {
	a := clock.Timestamp{Sec: 10, Nsec: 100}
	b := clock.Timestamp{Sec: 9, Nsec: 999_999_900}
	if d := a.Sub(b); d != 200 {
		t.Errorf("Sub() = %v, want 200ns", d)
	}
	if d := b.Sub(a); d != -200 {
		t.Errorf("Sub() = %v, want -200ns", d)
	}
	if got := clock.FromNanoseconds(a.Nanoseconds()); got != a {
		t.Errorf("FromNanoseconds(Nanoseconds()) = %+v, want %+v", got, a)
	}
	if !b.Before(a) || a.Before(b) {
		t.Error("Before() ordering wrong")
	}
}

func TestMeasureOverhead_Fake(t *testing.T) {
	f := clock.NewFake(clock.Timestamp{Sec: 1})
	f.SetReadCost(2 * time.Microsecond)

	if got := clock.MeasureOverhead(f); got != 2*time.Microsecond {
		t.Errorf("MeasureOverhead() = %v, want 2µs", got)
	}
}

func TestMeasureOverhead_FreeReads(t *testing.T) {
	f := clock.NewFake(clock.Timestamp{})
	if got := clock.MeasureOverhead(f); got != 0 {
		t.Errorf("MeasureOverhead() = %v, want 0", got)
	}
}

func TestMonotonic(t *testing.T) {
	m, err := clock.NewMonotonic()
	if err != nil {
		t.Fatalf("NewMonotonic: %v", err)
	}

	a := m.Now()
	deadline := a.Add(5 * time.Millisecond)
	if err := m.SleepUntil(deadline); err != nil {
		t.Fatalf("SleepUntil: %v", err)
	}
	b := m.Now()
	if b.Before(deadline) {
		t.Errorf("woke at %+v before deadline %+v", b, deadline)
	}

	overhead := clock.MeasureOverhead(m)
	if overhead < 0 || overhead > time.Millisecond {
		t.Errorf("MeasureOverhead() = %v, expected between 0 and 1ms", overhead)
	}
	t.Logf("Monotonic read overhead: %v", overhead)
}

func TestMonotonic_PastDeadline(t *testing.T) {
	m, _ := clock.NewMonotonic()
	past := clock.FromNanoseconds(m.Now().Nanoseconds() - int64(time.Second))

	start := time.Now()
	if err := m.SleepUntil(past); err != nil {
		t.Fatalf("SleepUntil: %v", err)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Error("expected immediate return for a past deadline")
	}
}

func TestFake_WakeFuncAndHook(t *testing.T) {
	f := clock.NewFake(clock.Timestamp{Sec: 1})
	f.WakeFunc = func(d clock.Timestamp) clock.Timestamp { return d.Add(500) }
	var calls []int
	f.OnSleep = func(n int) { calls = append(calls, n) }

	d := clock.Timestamp{Sec: 1, Nsec: 1000}
	_ = f.SleepUntil(d)
	_ = f.SleepUntil(d.Add(1000))

	if now := f.Now(); now != (clock.Timestamp{Sec: 1, Nsec: 2500}) {
		t.Errorf("Now() = %+v", now)
	}
	if len(calls) != 2 || calls[1] != 2 {
		t.Errorf("OnSleep calls = %v", calls)
	}
	if len(f.Deadlines()) != 2 {
		t.Errorf("Deadlines() = %v", f.Deadlines())
	}
}

// A sleep to a deadline already behind the clock returns without moving
// time backwards, like an absolute sleep on a late wake.
func TestFake_PastDeadlineKeepsTime(t *testing.T) {
	f := clock.NewFake(clock.Timestamp{Sec: 1})
	f.Advance(3 * time.Millisecond)
	want := clock.Timestamp{Sec: 1, Nsec: 3_000_000}
	if now := f.Now(); now != want {
		t.Fatalf("Now() after Advance = %+v, want %+v", now, want)
	}

	_ = f.SleepUntil(clock.Timestamp{Sec: 1, Nsec: 1_000_000})
	if now := f.Now(); now != want {
		t.Errorf("Now() after past sleep = %+v, want %+v", now, want)
	}
	if d := f.Deadlines(); len(d) != 1 || d[0] != (clock.Timestamp{Sec: 1, Nsec: 1_000_000}) {
		t.Errorf("Deadlines() = %v", d)
	}
}
