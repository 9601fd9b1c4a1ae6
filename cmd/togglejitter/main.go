// Command togglejitter toggles a GPIO line at a fixed period and records
// the timing jitter of every toggle.
//
// Usage:
//
//	togglejitter -f 500 -c 3 --priority 80
//	togglejitter --period 250us --dry-run -p
//
// Press Enter (on a terminal) or send SIGINT/SIGTERM to stop. The recorded
// intervals are written to jitter_log_YYYYMMDD_HHMMSS.csv in --out.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/randomizedcoder/toggle-jitter/internal/cancel"
	"github.com/randomizedcoder/toggle-jitter/internal/config"
	"github.com/randomizedcoder/toggle-jitter/internal/consumer"
	"github.com/randomizedcoder/toggle-jitter/internal/export"
	"github.com/randomizedcoder/toggle-jitter/internal/gpio"
	"github.com/randomizedcoder/toggle-jitter/internal/journal"
	"github.com/randomizedcoder/toggle-jitter/internal/queue"
	"github.com/randomizedcoder/toggle-jitter/internal/rt"
	"github.com/randomizedcoder/toggle-jitter/internal/scheduler"
)

const (
	journalInterval = time.Second
	handlerTimeout  = 5 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := config.Parse(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if err := cfg.Validate(rt.OnlineCPUs()); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	format, _ := export.ParseFormat(cfg.Format)

	runID := uuid.New().String()
	logger, err := newLogger(cfg, runID)
	if err != nil {
		fmt.Fprintf(stderr, "error: build logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	period := cfg.TogglePeriod()
	logger.Info("starting",
		zap.String("chip", cfg.Chip),
		zap.Int("line", cfg.Line),
		zap.Duration("period", period),
		zap.Int("core", cfg.Core),
		zap.Int("priority", cfg.Priority),
		zap.Int("capacity", cfg.Capacity),
		zap.Bool("dry_run", cfg.DryRun),
	)

	line, err := openLine(cfg)
	if err != nil {
		logger.Error("open GPIO line", zap.Error(err))
		return 1
	}

	ring, err := queue.NewSampleRing(cfg.Capacity)
	if err != nil {
		logger.Error("create sample ring", zap.Error(err))
		closeLine(line, logger)
		return 1
	}
	jr, err := journal.New()
	if err != nil {
		logger.Error("create journal", zap.Error(err))
		closeLine(line, logger)
		return 1
	}

	// The loop polls a lock-free flag; the handler waits on a context.
	stopLoop := cancel.NewAtomic()
	stopHandler := cancel.NewContext(context.Background())

	sched, err := scheduler.New(scheduler.Config{Core: cfg.Core, Priority: cfg.Priority, Period: period},
		line, ring, stopLoop, scheduler.WithJournal(jr))
	if err != nil {
		logger.Error("create scheduler", zap.Error(err))
		closeLine(line, logger)
		return 1
	}

	started := time.Now()
	if err := sched.Start(); err != nil {
		jr.LogTo(logger)
		logger.Error("scheduler did not start", zap.Error(err))
		closeLine(line, logger)
		return 1
	}

	logPaths := make(chan string, 1)
	handler := consumer.New(consumer.Config{Period: period, Refresh: cfg.Refresh, Window: cfg.Window}, ring, logger,
		consumer.WithJournal(jr),
		consumer.WithExport(func(ms []export.Measurement, dropped uint64) error {
			h := export.Header{RunID: runID, Started: started, Period: period, Overhead: sched.Overhead(), Dropped: dropped}
			path, err := export.WriteFile(cfg.OutDir, format, h, ms)
			if err == nil {
				logPaths <- path
				logger.Info("jitter log written", zap.String("path", path), zap.Int("samples", len(ms)))
			}
			return err
		}),
		plotOption(cfg, logger),
	)

	var wg sync.WaitGroup
	var handlerErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		handlerErr = handler.Run(stopHandler.Context())
	}()

	var enter <-chan struct{}
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintln(stdout, "Press Enter to stop...")
		enter = enterPressed(f)
	}

	waitForStop(ctx, enter, sched, jr, logger)

	// The loop may push one more sample after the flag is set, so the
	// handler's final drain waits until the loop has exited.
	errs := stopScheduler(stopLoop, sched, period+time.Second)
	stopHandler.Cancel()
	handlerDone := waitWithTimeout(&wg, handlerTimeout)
	if handlerDone {
		errs = multierr.Append(errs, handlerErr)
	} else {
		errs = multierr.Append(errs, errors.New("data handler did not stop in time"))
	}
	errs = multierr.Append(errs, line.Close())

	jr.LogTo(logger)
	if lost := jr.Lost(); lost > 0 {
		logger.Warn("journal events lost", zap.Uint64("lost", lost))
	}

	var logPath string
	select {
	case logPath = <-logPaths:
	default:
	}

	// A handler that missed its deadline still owns its state.
	var stats consumer.Stats
	if handlerDone {
		stats = handler.Stats()
	}
	logger.Info("stopped", zap.Object("stats", stats), zap.Uint64("iterations", sched.Iterations()))
	printSummary(stdout, summary{
		Stats:      stats,
		Period:     period,
		Overhead:   sched.Overhead(),
		Iterations: sched.Iterations(),
		LogPath:    logPath,
		Err:        errs,
	})

	if errs != nil {
		for _, err := range multierr.Errors(errs) {
			logger.Error("shutdown", zap.Error(err))
		}
		return 1
	}
	return 0
}

// stopScheduler sets the loop's stop flag and waits for the loop to exit.
func stopScheduler(stop cancel.Canceler, sched *scheduler.Scheduler, timeout time.Duration) error {
	stop.Cancel()
	select {
	case <-sched.Done():
		return sched.Wait()
	case <-time.After(timeout):
		return errors.New("scheduler did not stop in time")
	}
}

// waitForStop blocks until a signal, Enter, or the loop exiting on its own,
// logging journal events meanwhile.
func waitForStop(ctx context.Context, enter <-chan struct{}, sched *scheduler.Scheduler, jr *journal.Journal, logger *zap.Logger) {
	ticker := time.NewTicker(journalInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("signal received, stopping")
			return
		case <-enter:
			logger.Info("enter pressed, stopping")
			return
		case <-sched.Done():
			return
		case <-ticker.C:
			jr.LogTo(logger)
		}
	}
}

func openLine(cfg *config.Config) (gpio.Line, error) {
	if cfg.DryRun {
		return gpio.Null{}, nil
	}
	return gpio.Open(cfg.Chip, cfg.Line)
}

func plotOption(cfg *config.Config, logger *zap.Logger) consumer.Option {
	if !cfg.Plot {
		return func(*consumer.Handler) {}
	}
	if !consumer.GnuplotAvailable() {
		logger.Warn("gnuplot not found, install gnuplot to enable plotting")
		return func(*consumer.Handler) {}
	}
	gp, err := consumer.StartGnuplot()
	if err != nil {
		logger.Warn("live plot disabled", zap.Error(err))
		return func(*consumer.Handler) {}
	}
	return consumer.WithPlotter(gp)
}

func enterPressed(r io.Reader) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		_, _ = bufio.NewReader(r).ReadString('\n')
		close(ch)
	}()
	return ch
}

// waitWithTimeout waits for a WaitGroup with a timeout.
// Returns true if all goroutines finished, false if timeout.
func waitWithTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func closeLine(line gpio.Line, logger *zap.Logger) {
	if err := line.Close(); err != nil {
		logger.Warn("close GPIO line", zap.Error(err))
	}
}
