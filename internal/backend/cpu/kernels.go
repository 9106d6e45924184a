package cpu

import (
	. "github.com/gomlx/exceptions"
	"golang.org/x/exp/constraints"

	"github.com/born-ml/synapse/internal/tensor"
)

// view returns the typed data of a float tensor; nil tensors give nil.
func view[T constraints.Float](r *tensor.RawTensor) []T {
	if r == nil {
		return nil
	}
	var dummy T
	switch any(dummy).(type) {
	case float32:
		return any(r.AsFloat32()).([]T)
	case float64:
		return any(r.AsFloat64()).([]T)
	default:
		panic("unsupported float type")
	}
}

// unravel converts a flat row-major index into a multi-index of dims.
func unravel(flat int, dims []int, out []int) {
	for d := len(dims) - 1; d >= 0; d-- {
		out[d] = flat % dims[d]
		flat /= dims[d]
	}
}

// positions lists every multi-index of dims in row-major order.
func positions(dims []int) [][]int {
	n := tensor.Shape(dims).NumElements()
	out := make([][]int, n)
	for i := range out {
		out[i] = make([]int, len(dims))
		unravel(i, dims, out[i])
	}
	return out
}

// spatialOffset returns the flat offset of pos in a tensor with the given
// spatial dims, or -1 when pos falls outside.
func spatialOffset(pos, dims []int) int {
	offset := 0
	for d, p := range pos {
		if p < 0 || p >= dims[d] {
			return -1
		}
		offset = offset*dims[d] + p
	}
	return offset
}

// perDim fills a per-dimension parameter: nil means def everywhere, a
// single value is repeated, otherwise one value per spatial dimension.
func perDim(op, name string, values []int, rank, def int) []int {
	if len(values) > 1 && len(values) != rank {
		Panicf("%s: %s has %d entries for %d spatial dimensions", op, name, len(values), rank)
	}
	out := make([]int, rank)
	for i := range out {
		switch {
		case len(values) == 0:
			out[i] = def
		case len(values) == 1:
			out[i] = values[0]
		default:
			out[i] = values[i]
		}
	}
	return out
}
