// Package consumer is the data handler on the slow side of the sample ring.
//
// A Handler wakes every refresh interval, drains whatever the toggle loop
// has published, numbers the samples, keeps running statistics and
// optionally redraws a live plot. It tolerates empty drains and makes no
// assumption about arrival rate. On termination it drains once more and
// hands every measurement to the export function.
package consumer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/randomizedcoder/toggle-jitter/internal/export"
	"github.com/randomizedcoder/toggle-jitter/internal/journal"
)

// Defaults.
const (
	DefaultRefresh = 200 * time.Millisecond
	DefaultWindow  = 100

	batchSize = 256
)

// Source is the consumer end of the sample ring.
type Source interface {
	PopBatch(dst []uint64) int
	Dropped() uint64
}

// Plotter redraws the live view.
type Plotter interface {
	Plot(window []export.Measurement, period time.Duration) error
	Close() error
}

// ExportFunc receives every measurement and the ring's drop count once the
// handler stops.
type ExportFunc func(ms []export.Measurement, dropped uint64) error

// Config controls a Handler.
type Config struct {
	// Period is the nominal interval; jitter is measured against it.
	Period time.Duration
	// Refresh is the drain cadence.
	Refresh time.Duration
	// Window is the number of recent samples the jitter figures cover.
	Window int
}

func (c *Config) setDefaults() {
	if c.Refresh <= 0 {
		c.Refresh = DefaultRefresh
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
}

// Option customizes a Handler.
type Option func(*Handler)

// WithJournal posts overflow and lifecycle events to j.
func WithJournal(j *journal.Journal) Option {
	return func(h *Handler) { h.journal = j }
}

// WithPlotter enables live plotting.
func WithPlotter(p Plotter) Option {
	return func(h *Handler) { h.plot = p }
}

// WithExport sets the function called with all measurements on stop.
func WithExport(fn ExportFunc) Option {
	return func(h *Handler) { h.export = fn }
}

// Handler drains a Source. All methods except Run must be called from the
// goroutine running Run, or after Run has returned.
type Handler struct {
	cfg     Config
	src     Source
	logger  *zap.Logger
	journal *journal.Journal
	plot    Plotter
	export  ExportFunc

	overflow    rate.Sometimes
	lastDropped uint64

	buf          []uint64
	measurements []export.Measurement
	stats        Stats
}

// New creates a Handler reading from src.
func New(cfg Config, src Source, logger *zap.Logger, opts ...Option) *Handler {
	cfg.setDefaults()
	h := &Handler{
		cfg:      cfg,
		src:      src,
		logger:   logger,
		buf:      make([]uint64, batchSize),
		overflow: rate.Sometimes{First: 1, Interval: time.Second},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run drains the source every refresh interval until ctx is done, then
// drains the remainder, closes the plotter and exports.
func (h *Handler) Run(ctx context.Context) error {
	h.journal.Post(journal.Event{Producer: journal.Consumer, Kind: journal.Running, Value: int64(h.cfg.Refresh)})
	ticker := time.NewTicker(h.cfg.Refresh)
	defer ticker.Stop()

	for {
		h.Drain()
		h.redraw()

		select {
		case <-ctx.Done():
			return h.finish()
		case <-ticker.C:
		}
	}
}

// Drain moves everything currently published into the measurement log and
// returns the number of samples read. An empty source is not an error.
func (h *Handler) Drain() int {
	total := 0
	for {
		n := h.src.PopBatch(h.buf)
		if n == 0 {
			break
		}
		for _, v := range h.buf[:n] {
			m := export.Measurement{Seq: uint64(len(h.measurements)), Interval: time.Duration(v)}
			h.measurements = append(h.measurements, m)
			h.stats.add(m.Interval)
		}
		total += n
	}
	h.checkOverflow()
	return total
}

func (h *Handler) checkOverflow() {
	dropped := h.src.Dropped()
	if dropped == h.lastDropped {
		return
	}
	h.lastDropped = dropped
	h.stats.Dropped = dropped
	h.overflow.Do(func() {
		h.logger.Warn("sample ring overflowed, consumer is falling behind",
			zap.Uint64("dropped", dropped),
			zap.Int("recorded", len(h.measurements)),
		)
		h.journal.Post(journal.Event{Producer: journal.Consumer, Kind: journal.Overflow, Value: int64(dropped)})
	})
}

func (h *Handler) redraw() {
	if h.plot == nil || len(h.measurements) == 0 {
		return
	}
	if err := h.plot.Plot(h.Window(), h.cfg.Period); err != nil {
		h.logger.Warn("live plot failed, plotting disabled", zap.Error(err))
		if cerr := h.plot.Close(); cerr != nil {
			h.logger.Debug("close plotter", zap.Error(cerr))
		}
		h.plot = nil
	}
}

func (h *Handler) finish() error {
	h.Drain()
	h.redraw()

	var err error
	if h.plot != nil {
		if cerr := h.plot.Close(); cerr != nil {
			h.logger.Warn("close plotter", zap.Error(cerr))
		}
		h.plot = nil
	}
	if h.export != nil {
		if eerr := h.export(h.measurements, h.src.Dropped()); eerr != nil {
			err = fmt.Errorf("consumer: export: %w", eerr)
		}
	}
	h.journal.Post(journal.Event{Producer: journal.Consumer, Kind: journal.Stopped, Value: int64(len(h.measurements))})
	return err
}

// Measurements returns the measurement log.
func (h *Handler) Measurements() []export.Measurement {
	return h.measurements
}

// Window returns the most recent Window measurements.
func (h *Handler) Window() []export.Measurement {
	start := len(h.measurements) - h.cfg.Window
	if start < 0 {
		start = 0
	}
	return h.measurements[start:]
}

// Stats returns the running statistics, with jitter figures over the
// current window.
func (h *Handler) Stats() Stats {
	s := h.stats
	s.WindowMaxAbsJitter, s.WindowMeanAbsJitter = WindowJitter(h.Window(), h.cfg.Period)
	return s
}
