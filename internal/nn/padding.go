package nn

import (
	"strings"

	"github.com/pkg/errors"
)

// PaddingMode selects how convolution layers pad their input.
//
// Padding is always applied as an explicit zero pad before the primitive
// op; the primitive's own padding is disabled (conv) or pinned to
// dilation*(kernel-1) (transpose).
type PaddingMode int

const (
	// PaddingSame keeps the spatial length for stride 1. It is the zero
	// value, so an unset ConvConfig.Padding means same.
	PaddingSame PaddingMode = iota

	// PaddingValid adds no padding to a convolution. For a transposed
	// convolution it cancels the extension caused by the pinned native
	// padding.
	PaddingValid

	// PaddingCausal pads only on the left of the first spatial dimension,
	// so output position t never depends on input positions after t.
	// Remaining spatial dimensions use same padding.
	PaddingCausal
)

// String returns the mode name as accepted by ParsePaddingMode.
func (m PaddingMode) String() string {
	switch m {
	case PaddingSame:
		return "same"
	case PaddingValid:
		return "valid"
	case PaddingCausal:
		return "causal"
	default:
		return "unknown"
	}
}

// ParsePaddingMode parses "valid", "same" or "causal" (case-insensitive).
func ParsePaddingMode(s string) (PaddingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "same":
		return PaddingSame, nil
	case "valid":
		return PaddingValid, nil
	case "causal":
		return PaddingCausal, nil
	}
	return 0, errors.Wrapf(ErrInvalidPadding, "%q", s)
}

// extent is the distance between the first and last tap of a dilated kernel.
func extent(kernel, dilation int) int {
	return dilation * (kernel - 1)
}

// samePad splits the kernel extent e so the left side gets the larger half:
// kernel 3 gives (1, 1), kernel 4 gives (2, 1).
func samePad(e int) [2]int {
	return [2]int{(e + 1) / 2, e / 2}
}

func checkKernel(kernel, dilation []int) error {
	if len(kernel) == 0 {
		return errors.Wrap(ErrInvalidConfig, "empty kernel size")
	}
	if len(dilation) != len(kernel) {
		return errors.Wrapf(ErrInvalidConfig, "kernel size %v and dilation %v differ in rank", kernel, dilation)
	}
	for i := range kernel {
		if kernel[i] < 1 || dilation[i] < 1 {
			return errors.Wrapf(ErrInvalidConfig, "kernel size %v and dilation %v must be positive", kernel, dilation)
		}
	}
	return nil
}

// ConvPadding returns the explicit (left, right) zero padding per spatial
// dimension that a forward convolution applies before running with zero
// native padding.
//
//	valid:  (0, 0)
//	same:   (ceil(e/2), floor(e/2)) with e = dilation*(kernel-1)
//	causal: (e, 0) on the first spatial dimension, same on the others
//
// For dilation 1 this is (k/2, (k-1)/2) for same and (k-1, 0) for causal.
func ConvPadding(mode PaddingMode, kernel, dilation []int) ([][2]int, error) {
	if err := checkKernel(kernel, dilation); err != nil {
		return nil, err
	}
	pads := make([][2]int, len(kernel))
	for i := range kernel {
		e := extent(kernel[i], dilation[i])
		switch mode {
		case PaddingValid:
		case PaddingSame:
			pads[i] = samePad(e)
		case PaddingCausal:
			if i == 0 {
				pads[i] = [2]int{e, 0}
			} else {
				pads[i] = samePad(e)
			}
		default:
			return nil, errors.Wrapf(ErrInvalidPadding, "mode %d", int(mode))
		}
	}
	return pads, nil
}

// TransposeNativePadding returns the native padding a transposed
// convolution runs with: dilation*(kernel-1) per spatial dimension, except
// for valid padding with stride > 1, which runs unpadded.
func TransposeNativePadding(mode PaddingMode, kernel, dilation, stride []int) []int {
	native := make([]int, len(kernel))
	for i := range kernel {
		if mode == PaddingValid && stride[i] > 1 {
			continue
		}
		native[i] = extent(kernel[i], dilation[i])
	}
	return native
}

// TransposePadding returns the explicit (left, right) zero padding applied
// to the input of a transposed convolution whose native padding is
// TransposeNativePadding. same and causal match ConvPadding. valid pads
// dilation*(kernel-1) on both sides for stride 1 and nothing otherwise, so
// its output length is always (n-1)*stride + dilation*(kernel-1) + 1.
func TransposePadding(mode PaddingMode, kernel, dilation, stride []int) ([][2]int, error) {
	if mode != PaddingValid {
		return ConvPadding(mode, kernel, dilation)
	}
	if err := checkKernel(kernel, dilation); err != nil {
		return nil, err
	}
	if len(stride) != len(kernel) {
		return nil, errors.Wrapf(ErrInvalidConfig, "%d strides for %d kernel dimensions", len(stride), len(kernel))
	}
	pads := make([][2]int, len(kernel))
	for i := range kernel {
		if stride[i] > 1 {
			continue
		}
		e := extent(kernel[i], dilation[i])
		pads[i] = [2]int{e, e}
	}
	return pads, nil
}

// ConvOutputLength returns the output length of one spatial dimension of a
// convolution over an input of length n, after explicit padding pad and
// with zero native padding.
func ConvOutputLength(n, kernel, dilation, stride int, pad [2]int) int {
	return (n+pad[0]+pad[1]-extent(kernel, dilation)-1)/stride + 1
}

// ConvTransposeOutputLength returns the output length of one spatial
// dimension of a transposed convolution over an input of length n, after
// explicit padding pad, running with the given native and output padding.
func ConvTransposeOutputLength(n, kernel, dilation, stride, native, outputPadding int, pad [2]int) int {
	return (n+pad[0]+pad[1]-1)*stride - 2*native + extent(kernel, dilation) + outputPadding + 1
}
