package nn

import (
	"github.com/born-ml/synapse/internal/tensor"
)

// Upsample3D repeats every voxel of [N, C, D, H, W] inputs by an integer
// scale factor per spatial dimension (nearest neighbour).
type Upsample3D[B tensor.Backend] struct {
	shapeOp[B]
	scale   []int
	backend B
}

// NewUpsample3D creates an Upsample3D layer. scale holds one factor used
// for all three dimensions or exactly three factors.
func NewUpsample3D[B tensor.Backend](scale []int, backend B) (*Upsample3D[B], error) {
	s, err := perDim("Upsample3d", "scale_factor", scale, 3, 0)
	if err != nil {
		return nil, err
	}
	return &Upsample3D[B]{scale: s, backend: backend}, nil
}

// Forward upsamples the input.
func (u *Upsample3D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	checkRank("Upsample3d", input, 3)
	return tensor.New[float32, B](u.backend.UpsampleNearest(input.Raw(), u.scale), u.backend)
}

// ScaleFactor returns the scale factor per spatial dimension.
func (u *Upsample3D[B]) ScaleFactor() []int {
	return u.scale
}
