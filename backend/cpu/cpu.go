// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	internalcpu "github.com/born-ml/synapse/internal/backend/cpu"
	"github.com/born-ml/synapse/tensor"
)

// Backend represents the CPU backend implementation.
//
// The CPU backend provides pure Go implementations of all tensor operations,
// with matrix products through gonum BLAS.
type Backend = internalcpu.CPUBackend

// Option configures New.
type Option = internalcpu.Option

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a new CPU backend.
//
// Example:
//
//	import (
//	    "github.com/born-ml/synapse/backend/cpu"
//	    "github.com/born-ml/synapse/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New(cpu.WithSeed(42))
//	    x := tensor.Randn[float32](tensor.Shape{2, 3}, backend)
//	}
func New(opts ...Option) *Backend {
	return internalcpu.New(opts...)
}

// WithSeed seeds the backend's random source, making weight
// initialization, dropout and noise sampling reproducible.
func WithSeed(seed uint64) Option {
	return internalcpu.WithSeed(seed)
}

// WithWorkers bounds the number of goroutines used by the convolution and
// pooling kernels. Results do not depend on it.
func WithWorkers(n int) Option {
	return internalcpu.WithWorkers(n)
}
