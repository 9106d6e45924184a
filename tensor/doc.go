// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor is the public tensor API of synapse.
//
// The package defines the types layers are written against:
//   - Tensor[T, B]: typed tensor bound to a backend
//   - RawTensor: untyped row-major buffer handed to backends
//   - Backend: the runtime contract (convolutions, LSTM, pooling, RNG)
//   - Shape, DataType, Device: core type definitions
//
// Example:
//
//	backend := cpu.New(cpu.WithSeed(42))
//	x := tensor.Randn[float32](tensor.Shape{2, 3}, backend)
//	y := x.MulScalar(0.1).Add(x)
package tensor
