package cpu

import (
	. "github.com/gomlx/exceptions"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/born-ml/synapse/internal/tensor"
)

// RandNormal samples a tensor from the standard normal distribution.
func (cpu *CPUBackend) RandNormal(shape tensor.Shape, dtype tensor.DataType) *tensor.RawTensor {
	if !dtype.IsFloat() {
		Panicf("rand_normal: unsupported dtype %s", dtype)
	}
	result := cpu.newOutput("rand_normal", shape, dtype)

	cpu.mu.Lock()
	defer cpu.mu.Unlock()
	dist := distuv.Normal{Mu: 0, Sigma: 1, Src: cpu.src}
	switch dtype {
	case tensor.Float32:
		data := result.AsFloat32()
		for i := range data {
			data[i] = float32(dist.Rand())
		}
	case tensor.Float64:
		data := result.AsFloat64()
		for i := range data {
			data[i] = dist.Rand()
		}
	}
	return result
}

// RandUniform samples a tensor uniformly from [low, high).
func (cpu *CPUBackend) RandUniform(shape tensor.Shape, dtype tensor.DataType, low, high float64) *tensor.RawTensor {
	if !dtype.IsFloat() {
		Panicf("rand_uniform: unsupported dtype %s", dtype)
	}
	if !(low < high) {
		Panicf("rand_uniform: empty range [%g, %g)", low, high)
	}
	result := cpu.newOutput("rand_uniform", shape, dtype)

	cpu.mu.Lock()
	defer cpu.mu.Unlock()
	dist := distuv.Uniform{Min: low, Max: high, Src: cpu.src}
	switch dtype {
	case tensor.Float32:
		data := result.AsFloat32()
		for i := range data {
			data[i] = float32(dist.Rand())
		}
	case tensor.Float64:
		data := result.AsFloat64()
		for i := range data {
			data[i] = dist.Rand()
		}
	}
	return result
}

// Dropout zeroes each element with probability p and scales survivors by
// 1/(1-p) (inverted dropout).
func (cpu *CPUBackend) Dropout(x *tensor.RawTensor, p float64) *tensor.RawTensor {
	dtype := checkFloat("dropout", x)
	if p < 0 || p >= 1 {
		Panicf("dropout: probability %g outside [0, 1)", p)
	}
	if p == 0 {
		return x.Clone()
	}
	result := cpu.newOutput("dropout", x.Shape(), dtype)

	cpu.mu.Lock()
	defer cpu.mu.Unlock()
	keep := distuv.Bernoulli{P: 1 - p, Src: cpu.src}
	scale := 1 / (1 - p)
	switch dtype {
	case tensor.Float32:
		in, out := x.AsFloat32(), result.AsFloat32()
		for i, v := range in {
			if keep.Rand() == 1 {
				out[i] = v * float32(scale)
			}
		}
	case tensor.Float64:
		in, out := x.AsFloat64(), result.AsFloat64()
		for i, v := range in {
			if keep.Rand() == 1 {
				out[i] = v * scale
			}
		}
	}
	return result
}
