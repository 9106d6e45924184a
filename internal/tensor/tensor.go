package tensor

import (
	"fmt"

	"github.com/gomlx/exceptions"
)

// Tensor pairs a RawTensor with the backend that computes on it. T fixes
// the element type at compile time; the raw dtype always matches it.
//
//	backend := cpu.New(cpu.WithSeed(1))
//	w := tensor.Randn[float32](tensor.Shape{8, 4}, backend)
//	y := x.MatMul(w.Transpose())
type Tensor[T DType, B Backend] struct {
	raw     *RawTensor
	backend B
}

// New wraps raw. It panics if raw does not hold elements of type T.
func New[T DType, B Backend](raw *RawTensor, b B) *Tensor[T, B] {
	if want := DataTypeOf[T](); raw.DType() != want {
		exceptions.Panicf("tensor.New: raw tensor holds %s, want %s", raw.DType(), want)
	}
	return &Tensor[T, B]{raw: raw, backend: b}
}

// Shape returns the dimensions of t.
func (t *Tensor[T, B]) Shape() Shape { return t.raw.Shape() }

// DType returns the runtime element type.
func (t *Tensor[T, B]) DType() DataType { return t.raw.DType() }

// Device returns the device holding t.
func (t *Tensor[T, B]) Device() Device { return t.raw.Device() }

// NumElements returns the number of elements of t.
func (t *Tensor[T, B]) NumElements() int { return t.raw.NumElements() }

// Raw returns the untyped tensor handed to backend ops.
func (t *Tensor[T, B]) Raw() *RawTensor { return t.raw }

// Backend returns the backend t computes on.
func (t *Tensor[T, B]) Backend() B { return t.backend }

// Clone returns a deep copy on the same backend.
func (t *Tensor[T, B]) Clone() *Tensor[T, B] {
	return &Tensor[T, B]{raw: t.raw.Clone(), backend: t.backend}
}

// BitEqual reports whether t and other hold the same shape and the same
// bytes. Two NaNs with equal bit patterns compare equal.
func (t *Tensor[T, B]) BitEqual(other *Tensor[T, B]) bool {
	return t.raw.BitEqual(other.raw)
}

// Data returns the elements of t in row-major order. The slice aliases the
// tensor's memory.
func (t *Tensor[T, B]) Data() []T {
	var view any
	switch t.raw.DType() {
	case Float32:
		view = t.raw.AsFloat32()
	case Float64:
		view = t.raw.AsFloat64()
	case Int32:
		view = t.raw.AsInt32()
	case Int64:
		view = t.raw.AsInt64()
	case Bool:
		view = t.raw.AsBool()
	}
	return view.([]T)
}

// At returns the element at the given multi-index.
func (t *Tensor[T, B]) At(indices ...int) T {
	return t.Data()[t.flatIndex(indices)]
}

// Set stores value at the given multi-index.
func (t *Tensor[T, B]) Set(value T, indices ...int) {
	t.Data()[t.flatIndex(indices)] = value
}

func (t *Tensor[T, B]) flatIndex(indices []int) int {
	shape := t.Shape()
	if len(indices) != len(shape) {
		exceptions.Panicf("tensor: %d indices for %d-D tensor %v", len(indices), len(shape), shape)
	}
	flat := 0
	for d, i := range indices {
		if i < 0 || i >= shape[d] {
			exceptions.Panicf("tensor: index %d out of range [0, %d) in dimension %d", i, shape[d], d)
		}
		flat = flat*shape[d] + i
	}
	return flat
}

// String describes t without its values.
func (t *Tensor[T, B]) String() string {
	return fmt.Sprintf("%s%v@%s", t.DType(), t.Shape(), t.Device())
}
