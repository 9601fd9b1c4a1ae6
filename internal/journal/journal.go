// Package journal carries lifecycle events from the workers to the
// controller without blocking the sender.
//
// The toggle loop must not write to a logger: a log write can block on I/O
// for longer than a period. Instead it posts events to a sharded
// multi-producer ring, one shard per producer, and the controller drains
// and logs them at its own pace.
package journal

import (
	"fmt"
	"sync/atomic"
	"time"

	ring "github.com/randomizedcoder/go-lock-free-ring"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	capacity = 256
	shards   = 4
)

// Producer identifies the shard an event is written to.
type Producer uint64

const (
	Scheduler Producer = iota
	Consumer
	Controller
)

func (p Producer) String() string {
	switch p {
	case Scheduler:
		return "scheduler"
	case Consumer:
		return "consumer"
	case Controller:
		return "controller"
	default:
		return fmt.Sprintf("producer(%d)", uint64(p))
	}
}

// Kind classifies an event.
type Kind uint8

const (
	Armed Kind = iota + 1
	AffinityDegraded
	PriorityDegraded
	Running
	Stopped
	Failed
	Overflow
)

func (k Kind) String() string {
	switch k {
	case Armed:
		return "armed"
	case AffinityDegraded:
		return "affinity_degraded"
	case PriorityDegraded:
		return "priority_degraded"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	case Overflow:
		return "overflow"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Event is one journal entry. Value carries a kind-specific number:
// the core or priority for degraded hints, the overhead in ns for Armed,
// the drain interval in ns for Running, the iteration or sample count for
// Stopped and Failed, the drop count for Overflow.
type Event struct {
	Producer Producer
	Kind     Kind
	Value    int64
	Err      error
}

// Journal is a non-blocking MPSC event queue.
// Post may be called from any number of goroutines, one per Producer;
// Drain from exactly one.
type Journal struct {
	r    *ring.ShardedRing
	lost atomic.Uint64
}

// New creates an empty Journal.
func New() (*Journal, error) {
	r, err := ring.NewShardedRing(capacity, shards)
	if err != nil {
		return nil, fmt.Errorf("journal: create ring: %w", err)
	}
	return &Journal{r: r}, nil
}

// Post enqueues e on the shard of e.Producer. Returns false and counts the
// event as lost if the shard is full. A nil Journal discards every event.
func (j *Journal) Post(e Event) bool {
	if j == nil {
		return false
	}
	if !j.r.Write(uint64(e.Producer), e) {
		j.lost.Add(1)
		return false
	}
	return true
}

// Drain hands every queued event to fn and returns how many were drained.
func (j *Journal) Drain(fn func(Event)) int {
	n := 0
	for {
		v, ok := j.r.TryRead()
		if !ok {
			return n
		}
		if e, ok := v.(Event); ok {
			fn(e)
			n++
		}
	}
}

// Lost returns the number of events dropped because a shard was full.
func (j *Journal) Lost() uint64 {
	return j.lost.Load()
}

// Level returns the log level an event is reported at.
func (e Event) Level() zapcore.Level {
	switch e.Kind {
	case AffinityDegraded, PriorityDegraded, Overflow:
		return zapcore.WarnLevel
	case Failed:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// LogTo drains the journal into logger and returns the number of events.
func (j *Journal) LogTo(logger *zap.Logger) int {
	return j.Drain(func(e Event) {
		fields := []zap.Field{
			zap.Stringer("producer", e.Producer),
			zap.Stringer("event", e.Kind),
		}
		switch e.Kind {
		case Armed:
			fields = append(fields, zap.Duration("overhead", time.Duration(e.Value)))
		case Running:
			fields = append(fields, zap.Duration("interval", time.Duration(e.Value)))
		case AffinityDegraded:
			fields = append(fields, zap.Int64("core", e.Value))
		case PriorityDegraded:
			fields = append(fields, zap.Int64("priority", e.Value))
		case Stopped, Failed:
			fields = append(fields, zap.Int64("count", e.Value))
		case Overflow:
			fields = append(fields, zap.Int64("dropped", e.Value))
		}
		if e.Err != nil {
			fields = append(fields, zap.Error(e.Err))
		}
		if ce := logger.Check(e.Level(), "worker event"); ce != nil {
			ce.Write(fields...)
		}
	})
}
