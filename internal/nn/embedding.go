package nn

import (
	"context"

	"github.com/pkg/errors"

	"github.com/born-ml/synapse/internal/tensor"
)

// EmbeddingConfig configures an Embedding layer.
type EmbeddingConfig struct {
	NumEmbeddings int
	EmbeddingDim  int

	// PaddingIdx, if set, names a row that starts as zeros. Negative
	// values count from the end.
	PaddingIdx *int
}

// Embedding is a lookup table that maps discrete indices to dense vectors,
// with variational noise on the table.
//
// Architecture:
//   - Weight: [NumEmbed, EmbedDim] learnable parameter
//   - Forward: indices [batch, seq] -> embeddings [batch, seq, EmbedDim]
//
// Example:
//
//	embed, err := nn.NewEmbedding(nn.EmbeddingConfig{NumEmbeddings: 10000, EmbeddingDim: 256}, backend)
//
//	indices, _ := tensor.FromSlice([]int32{1, 2, 3, 4, 5, 10, 11, 12, 13, 14},
//	    tensor.Shape{2, 5}, backend)
//	embeddings := embed.Forward(indices) // [2, 5, 256]
type Embedding[B tensor.Backend] struct {
	mode
	weight     *Parameter[B]
	numEmbed   int
	embedDim   int
	paddingIdx int // -1 for none
	noise      NoiseState[B]
	backend    B
}

var _ NoisyLayer[tensor.Backend] = (*Embedding[tensor.Backend])(nil)

// NewEmbedding creates a new Embedding layer.
//
// The embedding weights are initialized from a standard normal distribution
// N(0, 1); the padding row, if any, is zeroed.
func NewEmbedding[B tensor.Backend](cfg EmbeddingConfig, backend B) (*Embedding[B], error) {
	if cfg.NumEmbeddings < 1 || cfg.EmbeddingDim < 1 {
		return nil, errors.Wrapf(ErrInvalidConfig, "embedding: num_embeddings=%d embedding_dim=%d",
			cfg.NumEmbeddings, cfg.EmbeddingDim)
	}
	paddingIdx := -1
	if cfg.PaddingIdx != nil {
		paddingIdx = *cfg.PaddingIdx
		if paddingIdx < 0 {
			paddingIdx += cfg.NumEmbeddings
		}
		if paddingIdx < 0 || paddingIdx >= cfg.NumEmbeddings {
			return nil, errors.Wrapf(ErrInvalidConfig, "embedding: padding_idx %d out of range for %d embeddings",
				*cfg.PaddingIdx, cfg.NumEmbeddings)
		}
	}

	weight := Randn(tensor.Shape{cfg.NumEmbeddings, cfg.EmbeddingDim}, backend)
	if paddingIdx >= 0 {
		row := weight.Data()[paddingIdx*cfg.EmbeddingDim : (paddingIdx+1)*cfg.EmbeddingDim]
		clear(row)
	}
	return &Embedding[B]{
		weight:     NewParameter("weight", weight),
		numEmbed:   cfg.NumEmbeddings,
		embedDim:   cfg.EmbeddingDim,
		paddingIdx: paddingIdx,
		backend:    backend,
	}, nil
}

// Forward looks up the embedding of every index. Indices outside
// [0, NumEmbed) panic.
func (e *Embedding[B]) Forward(indices *tensor.Tensor[int32, B]) *tensor.Tensor[float32, B] {
	w := e.noise.resolve(0, e.weight, e.Training())
	return tensor.New[float32, B](e.backend.Embedding(w.Raw(), indices.Raw()), e.backend)
}

// Parameters returns [weight].
func (e *Embedding[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{e.weight}
}

// EligibleWeights returns [weight].
func (e *Embedding[B]) EligibleWeights() []*Parameter[B] {
	return []*Parameter[B]{e.weight}
}

// ConfigureNoise sets the noise standard deviation.
func (e *Embedding[B]) ConfigureNoise(std float64, opts ...NoiseOption) error {
	return e.noise.Configure(std, opts...)
}

// SampleNoise draws a new noise sample for the table.
func (e *Embedding[B]) SampleNoise(ctx context.Context, synchronize bool) error {
	return e.noise.Sample(ctx, e.EligibleWeights(), synchronize)
}

// ClearNoise drops the current noise sample.
func (e *Embedding[B]) ClearNoise() {
	e.noise.Clear()
}

// NoiseActive reports whether noise samples are applied in training mode.
func (e *Embedding[B]) NoiseActive() bool {
	return e.noise.Active()
}

// Noise returns the layer's noise state.
func (e *Embedding[B]) Noise() *NoiseState[B] {
	return &e.noise
}

// Weight returns the embedding table.
func (e *Embedding[B]) Weight() *Parameter[B] {
	return e.weight
}

// NumEmbeddings returns the vocabulary size.
func (e *Embedding[B]) NumEmbeddings() int {
	return e.numEmbed
}

// EmbeddingDim returns the embedding vector size.
func (e *Embedding[B]) EmbeddingDim() int {
	return e.embedDim
}

// PaddingIdx returns the padding row, -1 if none.
func (e *Embedding[B]) PaddingIdx() int {
	return e.paddingIdx
}
