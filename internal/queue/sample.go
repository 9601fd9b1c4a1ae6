package queue

import "encoding/binary"

// SampleSize is the width in bytes of one encoded jitter sample.
const SampleSize = 8

// SampleRing stores fixed-width uint64 samples in a RingBuffer.
// Samples are encoded little-endian, one 8-byte record each.
//
// The SPSC contract of RingBuffer applies: one goroutine pushes,
// one goroutine pops.
type SampleRing struct {
	rb *RingBuffer
}

// NewSampleRing creates a SampleRing able to hold exactly samples records.
func NewSampleRing(samples int) (*SampleRing, error) {
	if samples <= 0 {
		return nil, ErrInvalidCapacity
	}
	rb, err := New(samples * SampleSize)
	if err != nil {
		return nil, err
	}
	return &SampleRing{rb: rb}, nil
}

// Push enqueues one sample.
// Returns false if the ring is full; the sample is dropped and counted.
func (s *SampleRing) Push(v uint64) bool {
	var rec [SampleSize]byte
	binary.LittleEndian.PutUint64(rec[:], v)
	return s.rb.Enqueue(rec[:]) == nil
}

// Pop dequeues one sample.
// Returns false if the ring is empty.
func (s *SampleRing) Pop() (uint64, bool) {
	if s.rb.Available() < SampleSize {
		return 0, false
	}
	var rec [SampleSize]byte
	if s.rb.Dequeue(rec[:]) != SampleSize {
		return 0, false
	}
	return binary.LittleEndian.Uint64(rec[:]), true
}

// PopBatch dequeues up to len(dst) samples into dst and returns the count.
func (s *SampleRing) PopBatch(dst []uint64) int {
	n := 0
	for n < len(dst) {
		v, ok := s.Pop()
		if !ok {
			break
		}
		dst[n] = v
		n++
	}
	return n
}

// Len returns the number of samples ready to be popped.
func (s *SampleRing) Len() int {
	return s.rb.Available() / SampleSize
}

// Cap returns the capacity in samples.
func (s *SampleRing) Cap() int {
	return s.rb.Cap() / SampleSize
}

// Dropped returns the number of samples rejected because the ring was full.
func (s *SampleRing) Dropped() uint64 {
	return s.rb.Dropped()
}

// Buffer returns the underlying byte ring, for diagnostics.
func (s *SampleRing) Buffer() *RingBuffer {
	return s.rb
}
