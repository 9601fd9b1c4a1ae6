package rt

import (
	"fmt"
	"strconv"
	"strings"
)

// CPUList is a set of CPU ids in ascending order.
type CPUList []int

// ParseCPUList parses the kernel's CPU list format, e.g. "0-3,6".
func ParseCPUList(s string) (CPUList, error) {
	var out CPUList
	s = strings.TrimSpace(s)
	if s == "" {
		return out, nil
	}
	for _, part := range strings.Split(s, ",") {
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(lo)
		if err != nil {
			return nil, fmt.Errorf("rt: cpu list %q: %w", s, err)
		}
		last := first
		if isRange {
			if last, err = strconv.Atoi(hi); err != nil {
				return nil, fmt.Errorf("rt: cpu list %q: %w", s, err)
			}
		}
		if first < 0 || last < first {
			return nil, fmt.Errorf("rt: cpu list %q: bad range %q", s, part)
		}
		for c := first; c <= last; c++ {
			out = append(out, c)
		}
	}
	return out, nil
}

// FirstCPUs returns the ids 0..n-1.
func FirstCPUs(n int) CPUList {
	out := make(CPUList, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// Contains reports whether core is in the list.
func (l CPUList) Contains(core int) bool {
	for _, c := range l {
		if c == core {
			return true
		}
	}
	return false
}

func (l CPUList) String() string {
	parts := make([]string, 0, len(l))
	for i := 0; i < len(l); {
		j := i
		for j+1 < len(l) && l[j+1] == l[j]+1 {
			j++
		}
		if j > i {
			parts = append(parts, fmt.Sprintf("%d-%d", l[i], l[j]))
		} else {
			parts = append(parts, strconv.Itoa(l[i]))
		}
		i = j + 1
	}
	return strings.Join(parts, ",")
}
