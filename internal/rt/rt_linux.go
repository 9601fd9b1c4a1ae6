//go:build linux

package rt

import (
	"fmt"
	"os"
	"runtime"

	"golang.org/x/sys/unix"
)

// schedFIFO is SCHED_FIFO from <sched.h>.
const schedFIFO = 1

// OS applies hints through sched_setaffinity(2) and sched_setattr(2).
type OS struct{}

// NewOS returns the host implementation.
func NewOS() Hints {
	return OS{}
}

// PinToCore binds the calling thread (pid 0) to core.
func (OS) PinToCore(core int) error {
	if core < 0 {
		return fmt.Errorf("rt: invalid core %d", core)
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("rt: pin thread to core %d: %w", core, err)
	}
	return nil
}

// SetPriority switches the calling thread to SCHED_FIFO at priority.
// Usually requires CAP_SYS_NICE.
func (OS) SetPriority(priority int) error {
	attr := unix.SchedAttr{
		Size:     unix.SizeofSchedAttr,
		Policy:   schedFIFO,
		Priority: uint32(priority),
	}
	if err := unix.SchedSetAttr(0, &attr, 0); err != nil {
		return fmt.Errorf("rt: set SCHED_FIFO priority %d: %w", priority, err)
	}
	return nil
}

// onlinePath lists the CPUs the kernel has brought online, independent of
// this process's affinity mask.
const onlinePath = "/sys/devices/system/cpu/online"

// OnlineCPUs returns the online CPUs. If sysfs is unreadable it falls back
// to 0..runtime.NumCPU()-1.
func OnlineCPUs() CPUList {
	data, err := os.ReadFile(onlinePath)
	if err != nil {
		return FirstCPUs(runtime.NumCPU())
	}
	cpus, err := ParseCPUList(string(data))
	if err != nil || len(cpus) == 0 {
		return FirstCPUs(runtime.NumCPU())
	}
	return cpus
}
