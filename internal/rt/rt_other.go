//go:build !linux

package rt

import "runtime"

// OS is the fallback for platforms without thread affinity or SCHED_FIFO.
type OS struct{}

// NewOS returns the host implementation.
func NewOS() Hints {
	return OS{}
}

// PinToCore always fails with ErrUnsupported.
func (OS) PinToCore(int) error { return ErrUnsupported }

// SetPriority always fails with ErrUnsupported.
func (OS) SetPriority(int) error { return ErrUnsupported }

// OnlineCPUs returns 0..runtime.NumCPU()-1.
func OnlineCPUs() CPUList {
	return FirstCPUs(runtime.NumCPU())
}
