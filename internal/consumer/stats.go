package consumer

import (
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/randomizedcoder/toggle-jitter/internal/export"
)

// Stats summarizes the recorded intervals.
type Stats struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	sum   time.Duration

	// Jitter over the last window, jitter = interval - period.
	WindowMaxAbsJitter  time.Duration
	WindowMeanAbsJitter time.Duration

	Dropped uint64
}

func (s *Stats) add(d time.Duration) {
	if s.Count == 0 || d < s.Min {
		s.Min = d
	}
	if d > s.Max {
		s.Max = d
	}
	s.sum += d
	s.Count++
}

// Mean returns the average interval.
func (s Stats) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.sum / time.Duration(s.Count)
}

// MarshalLogObject lets Stats be logged with zap.Object.
func (s Stats) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint64("count", s.Count)
	enc.AddDuration("min", s.Min)
	enc.AddDuration("max", s.Max)
	enc.AddDuration("mean", s.Mean())
	enc.AddDuration("window_max_abs_jitter", s.WindowMaxAbsJitter)
	enc.AddDuration("window_mean_abs_jitter", s.WindowMeanAbsJitter)
	enc.AddUint64("dropped", s.Dropped)
	return nil
}

// WindowJitter returns the largest and the mean absolute jitter of ms
// against period. The mean is truncated to whole nanoseconds.
func WindowJitter(ms []export.Measurement, period time.Duration) (maxAbs, meanAbs time.Duration) {
	if len(ms) == 0 {
		return 0, 0
	}
	var sum time.Duration
	for _, m := range ms {
		j := m.Jitter(period)
		if j < 0 {
			j = -j
		}
		if j > maxAbs {
			maxAbs = j
		}
		sum += j
	}
	return maxAbs, sum / time.Duration(len(ms))
}
