// Command calibrate measures the fixed costs the toggle loop runs on:
// reading the clock, checking the stop flag, pushing a sample, posting a
// journal event and waking from an absolute sleep.
//
// Usage:
//
//	go run ./cmd/calibrate -n 10000000 --sleeps 1000 --period 1ms -c 3
package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"time"

	flag "github.com/spf13/pflag"
	"go.uber.org/multierr"

	"github.com/randomizedcoder/toggle-jitter/internal/cancel"
	"github.com/randomizedcoder/toggle-jitter/internal/clock"
	"github.com/randomizedcoder/toggle-jitter/internal/journal"
	"github.com/randomizedcoder/toggle-jitter/internal/queue"
	"github.com/randomizedcoder/toggle-jitter/internal/rt"
)

func main() {
	iterations := flag.IntP("iterations", "n", 10_000_000, "number of iterations per cost benchmark")
	rounds := flag.Int("rounds", 20, "overhead calibration rounds")
	sleeps := flag.Int("sleeps", 1000, "absolute sleeps to measure wake latency")
	period := flag.Duration("period", time.Millisecond, "sleep period")
	core := flag.IntP("core", "c", -1, "pin the measuring thread to this core (-1 = no pinning)")
	priority := flag.Int("priority", 0, "SCHED_FIFO priority (0 = default scheduling)")
	flag.Parse()

	if err := validateFlags(*iterations, *rounds, *sleeps, *period); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	mono, err := clock.NewMonotonic()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	runtime.LockOSThread()
	hints := rt.NewOS()
	if *core >= 0 {
		if err := hints.PinToCore(*core); err != nil {
			fmt.Fprintf(os.Stderr, "warning: pin to core %d: %v\n", *core, err)
		}
	}
	if *priority >= 1 {
		if err := hints.SetPriority(*priority); err != nil {
			fmt.Fprintf(os.Stderr, "warning: set priority %d: %v\n", *priority, err)
		}
	}

	fmt.Printf("Calibrating toggle loop costs (%d iterations)\n", *iterations)
	fmt.Printf("Architecture: %s/%s, online CPUs: %v\n", runtime.GOOS, runtime.GOARCH, rt.OnlineCPUs())
	fmt.Println("─────────────────────────────────────────────────")

	overheadReport(mono, *rounds)
	costReport(mono, *iterations)
	sleepReport(mono, *sleeps, *period)
}

// validateFlags rejects settings the reports cannot run with.
func validateFlags(iterations, rounds, sleeps int, period time.Duration) error {
	var errs error
	if iterations < 1 {
		errs = multierr.Append(errs, fmt.Errorf("--iterations %d: want at least 1", iterations))
	}
	if rounds < 1 {
		errs = multierr.Append(errs, fmt.Errorf("--rounds %d: want at least 1", rounds))
	}
	if sleeps < 0 {
		errs = multierr.Append(errs, fmt.Errorf("--sleeps %d: want 0 or more", sleeps))
	}
	if period <= 0 || period >= time.Second {
		errs = multierr.Append(errs, fmt.Errorf("--period %v: want greater than 0 and less than 1s", period))
	}
	return errs
}

func overheadReport(c clock.Clock, rounds int) {
	results := make([]time.Duration, rounds)
	for i := range results {
		results[i] = clock.MeasureOverhead(c)
	}
	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })

	fmt.Printf("\nClock read overhead (%d rounds):\n", rounds)
	fmt.Printf("  min %v  median %v  max %v\n", results[0], results[len(results)/2], results[len(results)-1])
}

type costInfo struct {
	name string
	run  func(n int)
}

func costReport(c clock.Clock, n int) {
	atomicStop := cancel.NewAtomic()
	ctxStop := cancel.NewContext(context.Background())
	ring, err := queue.NewSampleRing(1024)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	jr, err := journal.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	costs := []costInfo{
		{"Clock.Now", func(n int) {
			for i := 0; i < n; i++ {
				_ = c.Now()
			}
		}},
		{"AtomicCanceler.Done", func(n int) {
			for i := 0; i < n; i++ {
				_ = atomicStop.Done()
			}
		}},
		{"ContextCanceler.Done", func(n int) {
			for i := 0; i < n; i++ {
				_ = ctxStop.Done()
			}
		}},
		{"SampleRing push+pop", func(n int) {
			for i := 0; i < n; i++ {
				ring.Push(uint64(i))
				ring.Pop()
			}
		}},
		{"Journal post+drain", func(n int) {
			e := journal.Event{Producer: journal.Scheduler, Kind: journal.Running}
			for i := 0; i < n; i++ {
				jr.Post(e)
				jr.Drain(func(journal.Event) {})
			}
		}},
	}

	fmt.Printf("\nPer-operation cost:\n")
	for _, info := range costs {
		start := time.Now()
		info.run(n)
		d := time.Since(start)
		perOp := float64(d.Nanoseconds()) / float64(n)
		fmt.Printf("  %-22s %12v  %8.2f ns/op  %8.2f M/s\n", info.name, d, perOp, 1000/perOp)
	}
}

func sleepReport(c clock.Clock, n int, period time.Duration) {
	if n <= 0 {
		return
	}
	late := make([]time.Duration, 0, n)
	deadline := c.Now()
	for i := 0; i < n; i++ {
		deadline = deadline.Add(period)
		if err := c.SleepUntil(deadline); err != nil {
			fmt.Fprintf(os.Stderr, "error: sleep: %v\n", err)
			return
		}
		late = append(late, c.Now().Sub(deadline))
	}
	sort.Slice(late, func(i, j int) bool { return late[i] < late[j] })

	pct := func(p float64) time.Duration { return late[int(p*float64(len(late)-1))] }
	fmt.Printf("\nWake latency after absolute sleep (%d x %v):\n", n, period)
	fmt.Printf("  min %v  p50 %v  p99 %v  max %v\n", late[0], pct(0.50), pct(0.99), late[len(late)-1])
	fmt.Printf("\nNote: run with -c and --priority (as root) to see the effect of real-time hints.\n")
}
