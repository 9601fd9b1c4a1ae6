// Package queue provides the lock-free SPSC ring buffer that carries jitter
// samples from the toggle loop to the data handler.
//
// This package offers two layers:
//   - RingBuffer: byte-oriented circular buffer with exact capacity
//   - SampleRing: fixed-size 8-byte sample records on top of a RingBuffer
//
// # RingBuffer Safety (IMPORTANT)
//
// RingBuffer is a Single-Producer Single-Consumer (SPSC) queue.
// It is NOT safe for multiple goroutines to call Enqueue() or Dequeue()
// concurrently.
//
// The implementation includes runtime guards that panic on misuse.
// This catches bugs early but adds ~1-2ns overhead per operation.
//
// Correct usage:
//   - Exactly ONE goroutine calls Enqueue() (the toggle loop)
//   - Exactly ONE goroutine calls Dequeue() (the data handler)
//   - These may be the same goroutine or different goroutines
//
// # Overflow policy
//
// The writer is never blocked. A record that does not fit is rejected with
// ErrBufferFull and counted in Dropped(); records already in the buffer are
// never overwritten.
package queue

import "errors"

var (
	// ErrInvalidCapacity is returned when a buffer is created with a
	// capacity that cannot hold a single byte.
	ErrInvalidCapacity = errors.New("queue: capacity must be positive")

	// ErrBufferFull is returned by Enqueue when the record does not fit.
	// The record is dropped and counted.
	ErrBufferFull = errors.New("queue: buffer full")

	// ErrRecordTooLarge is returned by Enqueue when the record is larger
	// than the whole buffer and could never fit.
	ErrRecordTooLarge = errors.New("queue: record larger than capacity")
)

// Queue is a single-producer single-consumer queue.
//
// Implementations are non-blocking: Push returns false if full,
// Pop returns false if empty.
type Queue[T any] interface {
	// Push adds an item to the queue.
	// Returns false if the queue is full.
	Push(T) bool

	// Pop removes and returns an item from the queue.
	// Returns false if the queue is empty.
	Pop() (T, bool)
}
