package clock

import "time"

const (
	warmupReads      = 10
	calibrationPairs = 100
)

// MeasureOverhead measures the fixed cost of one Now() call.
//
// It warms up the read path, then issues back-to-back reads and returns the
// smallest observed delta. The minimum is used because every other sample
// contains interrupts or preemption on top of the read cost.
func MeasureOverhead(c Clock) time.Duration {
	for i := 0; i < warmupReads; i++ {
		a := c.Now()
		b := c.Now()
		_ = b.Sub(a)
	}

	best := time.Duration(-1)
	for i := 0; i < calibrationPairs; i++ {
		a := c.Now()
		b := c.Now()
		d := b.Sub(a)
		if d < 0 {
			continue
		}
		if best < 0 || d < best {
			best = d
		}
	}
	if best < 0 {
		return 0
	}
	return best
}
