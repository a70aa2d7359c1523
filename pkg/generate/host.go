package generate

import "runtime"

// HostCapabilities describes the execution environment a session runs on.
// It is supplied explicitly at session start rather than probed mid-run,
// so tests and callers on constrained hosts can pin the values.
type HostCapabilities struct {
	// Cores is the number of usable CPU cores. Values < 1 are treated as 1.
	Cores int

	// MemoryBytes is the memory budget available to a session. Zero means
	// unknown, in which case a conservative default budget applies.
	MemoryBytes int64

	// LowPower marks mobile-class or otherwise constrained hosts. Low
	// power hosts get fewer workers and smaller chunks.
	LowPower bool
}

// defaultMemoryBudget is assumed when the host memory is unknown.
const defaultMemoryBudget = int64(1 << 30)

// Detect probes the current process environment. Memory is left unknown;
// callers with better information should fill it in.
func Detect() HostCapabilities {
	return HostCapabilities{Cores: runtime.NumCPU()}
}

// Workers returns the compositing worker count for this host.
func (h HostCapabilities) Workers() int {
	cores := h.Cores
	if cores < 1 {
		cores = 1
	}
	if h.LowPower {
		if cores > 2 {
			return 2
		}
		return cores
	}
	// keep one core free for the solver loop
	if cores > 1 {
		return cores - 1
	}
	return 1
}

// InitialChunkSize returns the starting chunk size for the scheduler,
// bounded to [MinChunkSize, MaxChunkSize].
func (h HostCapabilities) InitialChunkSize() int {
	if h.LowPower {
		return MinChunkSize
	}
	cores := h.Cores
	if cores < 1 {
		cores = 1
	}
	size := cores * 8
	if size < MinChunkSize {
		return MinChunkSize
	}
	if size > MaxChunkSize {
		return MaxChunkSize
	}
	return size
}

// MemoryBudget returns the effective memory budget.
func (h HostCapabilities) MemoryBudget() int64 {
	if h.MemoryBytes > 0 {
		return h.MemoryBytes
	}
	return defaultMemoryBudget
}
