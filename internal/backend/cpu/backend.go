// Package cpu implements the reference CPU backend: a pure Go, forward-only
// implementation of tensor.Backend with gonum BLAS for matrix products and
// gonum distributions for sampling.
package cpu

import (
	"math/rand/v2"
	"sync"

	. "github.com/gomlx/exceptions"

	"github.com/born-ml/synapse/internal/parallel"
	"github.com/born-ml/synapse/internal/tensor"
)

// CPUBackend implements tensor operations on CPU.
//
// All kernels support Float32 and Float64 tensors; index tensors may be
// Int32 or Int64. The random source is seeded at construction and guarded
// by a mutex, so a single backend may be shared between goroutines.
type CPUBackend struct {
	device tensor.Device
	par    parallel.Config

	mu  sync.Mutex
	src rand.Source
}

// Option configures a CPUBackend.
type Option func(*CPUBackend)

// WithSeed makes the backend's random source deterministic.
func WithSeed(seed uint64) Option {
	return func(cpu *CPUBackend) {
		cpu.src = rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	}
}

// WithWorkers sets the number of goroutines convolution and pooling
// kernels fan out to. 1 runs them on the calling goroutine. Results do not
// depend on the worker count.
func WithWorkers(n int) Option {
	return func(cpu *CPUBackend) {
		cpu.par.NumWorkers = n
	}
}

// New creates a new CPU backend.
//
// Example:
//
//	backend := cpu.New(cpu.WithSeed(42))
func New(opts ...Option) *CPUBackend {
	cpu := &CPUBackend{
		device: tensor.CPU,
		par:    parallel.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(cpu)
	}
	if cpu.src == nil {
		cpu.src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return cpu
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// newOutput allocates a result tensor, turning an invalid output shape into
// a panic naming the op.
func (cpu *CPUBackend) newOutput(op string, shape tensor.Shape, dtype tensor.DataType) *tensor.RawTensor {
	out, err := tensor.NewRaw(shape, dtype, cpu.device)
	if err != nil {
		Panicf("%s: failed to create result tensor: %v", op, err)
	}
	return out
}

// checkFloat panics unless every tensor is a float tensor of the same dtype.
func checkFloat(op string, tensors ...*tensor.RawTensor) tensor.DataType {
	dtype := tensors[0].DType()
	if !dtype.IsFloat() {
		Panicf("%s: unsupported dtype %s", op, dtype)
	}
	for _, t := range tensors[1:] {
		if t != nil && t.DType() != dtype {
			Panicf("%s: dtype mismatch %s vs %s", op, dtype, t.DType())
		}
	}
	return dtype
}
