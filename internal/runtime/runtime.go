// Package runtime abstracts the GPU runtime the selection core measures
// kernels against. The core never compiles or launches kernels itself; it
// hands buffers and solutions to a Handle and reads back elapsed times.
package runtime

import (
	"errors"
	"sync"
)

// ErrNoDevice is returned by handles that cannot launch kernels.
var ErrNoDevice = errors.New("runtime: no device available")

// Buffer is an opaque device allocation.
type Buffer interface {
	// Size returns the allocation size in bytes.
	Size() int
}

// Kernel is the launch descriptor a handle needs to compile and run one
// kernel. It mirrors the build plan entries produced by the solvers.
type Kernel struct {
	Name        string
	File        string
	CompOptions string
	LocalWk     []int
	GlobalWk    []int
}

// Handle is the narrow slice of a GPU runtime the selection core needs:
// materializing measurement buffers, scoped profiling and timed kernel
// launches.
type Handle interface {
	// Write uploads host data and returns the device buffer.
	Write(data []float32) Buffer
	// EnableProfiling toggles kernel time collection. Enabling is scoped;
	// callers must disable on every exit path.
	EnableProfiling(on bool)
	// ProfilingEnabled reports the current profiling state.
	ProfilingEnabled() bool
	// RunKernel compiles, launches and times one kernel against the given
	// buffers, returning the elapsed time in milliseconds.
	RunKernel(k Kernel, args ...Buffer) (float64, error)
}

// HostHandle is an in-memory Handle used by tests and host-only builds.
type HostHandle struct {
	mu        sync.Mutex
	profiling bool
}

// NewHostHandle returns a fresh host handle with profiling disabled.
func NewHostHandle() *HostHandle {
	return &HostHandle{}
}

type hostBuffer struct {
	data []float32
}

func (b *hostBuffer) Size() int { return len(b.data) * 4 }

func (h *HostHandle) Write(data []float32) Buffer {
	cp := make([]float32, len(data))
	copy(cp, data)
	return &hostBuffer{data: cp}
}

func (h *HostHandle) EnableProfiling(on bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.profiling = on
}

func (h *HostHandle) ProfilingEnabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.profiling
}

// RunKernel always fails on the host handle; kernel execution needs a
// real device runtime.
func (h *HostHandle) RunKernel(Kernel, ...Buffer) (float64, error) {
	return 0, ErrNoDevice
}
