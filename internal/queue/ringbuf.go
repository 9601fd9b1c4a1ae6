package queue

import (
	"sync/atomic"
)

// RingBuffer is a lock-free SPSC (Single-Producer Single-Consumer) byte queue.
//
// WARNING: This queue is NOT safe for multiple producers or multiple consumers.
// Using it incorrectly will cause data races and undefined behavior.
//
// The write cursor (head) and read cursor (tail) grow monotonically; the
// position inside the backing store is cursor modulo capacity. The producer
// copies the payload first and publishes it by storing head afterwards, so
// a consumer that loads head observes every byte written before it.
type RingBuffer struct {
	buf  []byte
	size uint64

	// Cache line padding to prevent false sharing
	_pad0 [56]byte //nolint:unused

	head atomic.Uint64 // Written by producer, read by consumer

	_pad1 [56]byte //nolint:unused

	tail atomic.Uint64 // Written by consumer, read by producer

	_pad2 [56]byte //nolint:unused

	dropped atomic.Uint64 // Written by producer

	// SPSC guards: detect concurrent misuse
	pushActive atomic.Uint32
	popActive  atomic.Uint32
}

// New creates a RingBuffer holding exactly capacity bytes.
func New(capacity int) (*RingBuffer, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &RingBuffer{
		buf:  make([]byte, capacity),
		size: uint64(capacity),
	}, nil
}

// Enqueue copies the whole record p into the buffer.
// The record is either stored completely or not at all: when it does not
// fit, ErrBufferFull is returned and the drop counter is incremented.
// Enqueue never blocks.
//
// SPSC CONTRACT: Only ONE goroutine may call Enqueue().
func (r *RingBuffer) Enqueue(p []byte) error {
	// SPSC guard: panic if concurrent Enqueue detected
	if !r.pushActive.CompareAndSwap(0, 1) {
		panic("queue: concurrent Enqueue on SPSC RingBuffer - only one producer allowed")
	}
	defer r.pushActive.Store(0)

	n := uint64(len(p))
	if n == 0 {
		return nil
	}
	if n > r.size {
		r.dropped.Add(1)
		return ErrRecordTooLarge
	}

	head := r.head.Load()
	tail := r.tail.Load()

	// Check if full
	if r.size-(head-tail) < n {
		r.dropped.Add(1)
		return ErrBufferFull
	}

	// Write payload in one or two segments depending on wrap-around
	pos := head % r.size
	first := r.size - pos
	if first >= n {
		copy(r.buf[pos:pos+n], p)
	} else {
		copy(r.buf[pos:], p[:first])
		copy(r.buf[:n-first], p[first:])
	}

	// Publish (store-release semantics via atomic)
	r.head.Store(head + n)

	return nil
}

// Dequeue copies and removes up to len(p) bytes from the buffer.
// Returns the number of bytes copied, which is 0 when the buffer is empty.
// Dequeue never blocks.
//
// SPSC CONTRACT: Only ONE goroutine may call Dequeue().
func (r *RingBuffer) Dequeue(p []byte) int {
	// SPSC guard: panic if concurrent Dequeue detected
	if !r.popActive.CompareAndSwap(0, 1) {
		panic("queue: concurrent Dequeue on SPSC RingBuffer - only one consumer allowed")
	}
	defer r.popActive.Store(0)

	tail := r.tail.Load()
	head := r.head.Load()

	n := head - tail
	if n == 0 || len(p) == 0 {
		return 0
	}
	if uint64(len(p)) < n {
		n = uint64(len(p))
	}

	pos := tail % r.size
	first := r.size - pos
	if first >= n {
		copy(p[:n], r.buf[pos:pos+n])
	} else {
		copy(p[:first], r.buf[pos:])
		copy(p[first:n], r.buf[:n-first])
	}

	// Consume (store-release semantics via atomic)
	r.tail.Store(tail + n)

	return int(n)
}

// Available returns the number of bytes ready to be dequeued.
// This is an approximation and may be slightly stale.
func (r *RingBuffer) Available() int {
	tail := r.tail.Load()
	head := r.head.Load()
	return int(head - tail)
}

// FreeSpace returns the number of bytes that can be enqueued right now.
// This is an approximation and may be slightly stale.
func (r *RingBuffer) FreeSpace() int {
	return int(r.size) - r.Available()
}

// Cap returns the capacity of the buffer in bytes.
func (r *RingBuffer) Cap() int {
	return int(r.size)
}

// Dropped returns the number of records rejected by Enqueue.
func (r *RingBuffer) Dropped() uint64 {
	return r.dropped.Load()
}
