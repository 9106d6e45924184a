package tensor

import "github.com/pkg/errors"

// Zeros returns a zero-filled tensor on b's device.
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return New[T](MustNewRaw(shape, DataTypeOf[T](), b.Device()), b)
}

// FromSlice copies data into a new tensor of the given shape.
func FromSlice[T DType, B Backend](data []T, shape Shape, b B) (*Tensor[T, B], error) {
	if n := shape.NumElements(); n != len(data) {
		return nil, errors.Errorf("tensor.FromSlice: shape %v holds %d elements, got %d", shape, n, len(data))
	}
	raw, err := NewRaw(shape, DataTypeOf[T](), b.Device())
	if err != nil {
		return nil, err
	}
	t := New[T](raw, b)
	copy(t.Data(), data)
	return t, nil
}

// Full returns a tensor with every element set to value.
func Full[T DType, B Backend](shape Shape, value T, b B) *Tensor[T, B] {
	t := Zeros[T](shape, b)
	data := t.Data()
	for i := range data {
		data[i] = value
	}
	return t
}

// Ones is Full with value 1.
func Ones[T ~float32 | ~float64 | ~int32 | ~int64, B Backend](shape Shape, b B) *Tensor[T, B] {
	return Full(shape, T(1), b)
}

// Randn draws every element from N(0, 1) using b's random source.
//
//	eps := tensor.Randn[float32](weight.Shape(), backend)
func Randn[T ~float32 | ~float64, B Backend](shape Shape, b B) *Tensor[T, B] {
	return New[T](b.RandNormal(shape, DataTypeOf[T]()), b)
}
