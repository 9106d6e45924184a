package nn

import (
	"maps"
	"slices"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/synapse/internal/tensor"
)

// Builder constructs a layer from its Config.
type Builder[B tensor.Backend] func(cfg Config, backend B) (Layer[B], error)

// Builders returns the layer registry: layer name to constructor.
//
// Parameter keys per layer:
//
//	Linear                 in_features, out_features, bias
//	SwitchLinear           num_experts, in_features, out_features, bias
//	Conv1d/2d/3d           in_channels, out_channels, kernel_size, stride, dilation,
//	                       groups, bias, padding, channels_last
//	ConvTranspose1d/2d/3d  as Conv plus output_padding
//	LSTM                   input_size, hidden_size, num_layers, batch_first, bidirectional, bias
//	Embedding              num_embeddings, embedding_dim, padding_idx
//	MaxPool1d/2d/3d        kernel_size, stride, padding, dilation
//	Dropout                p
//	Flatten                start_dim, end_dim
//	Transpose              dim0, dim1
//	Permute                dims
//	Reshape                shape, include_batch
//	Unsqueeze              dim
//	GlobalAvgPool1d/2d/3d  keepdim (GlobalAvgPool1d also dim)
//	GlobalMaxPool2d        keepdim
//	Upsample3d             scale_factor
func Builders[B tensor.Backend]() map[string]Builder[B] {
	return map[string]Builder[B]{
		"Linear":       buildLinear[B],
		"SwitchLinear": buildSwitchLinear[B],

		"Conv1d": convBuilder(NewConv1D[B]),
		"Conv2d": convBuilder(NewConv2D[B]),
		"Conv3d": convBuilder(NewConv3D[B]),

		"ConvTranspose1d": convTransposeBuilder(NewConvTranspose1D[B]),
		"ConvTranspose2d": convTransposeBuilder(NewConvTranspose2D[B]),
		"ConvTranspose3d": convTransposeBuilder(NewConvTranspose3D[B]),

		"LSTM":      buildLSTM[B],
		"Embedding": buildEmbedding[B],

		"MaxPool1d": poolBuilder(NewMaxPool1D[B]),
		"MaxPool2d": poolBuilder(NewMaxPool2D[B]),
		"MaxPool3d": poolBuilder(NewMaxPool3D[B]),

		"Dropout": buildDropout[B],

		"Flatten":         buildFlatten[B],
		"Transpose":       buildTranspose[B],
		"Permute":         buildPermute[B],
		"Reshape":         buildReshape[B],
		"Unsqueeze":       buildUnsqueeze[B],
		"GlobalAvgPool1d": buildGlobalAvgPool1D[B],
		"GlobalAvgPool2d": globalPoolBuilder[B](NewGlobalAvgPool2D[B]),
		"GlobalAvgPool3d": globalPoolBuilder[B](NewGlobalAvgPool3D[B]),
		"GlobalMaxPool2d": globalPoolBuilder[B](NewGlobalMaxPool2D[B]),
		"Upsample3d":      buildUpsample3D[B],
	}
}

// LayerNames returns the registered layer names, sorted.
func LayerNames() []string {
	return slices.Sorted(maps.Keys(Builders[tensor.Backend]()))
}

// Build constructs the layer registered under name.
func Build[B tensor.Backend](name string, cfg Config, backend B) (Layer[B], error) {
	builder, ok := Builders[B]()[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownLayer, "%q", name)
	}
	layer, err := builder(cfg, backend)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("built %s with %d parameters", name, NumParameters(layer))
	return layer, nil
}

// finish returns layer unless the reader or the constructor failed. The
// explicit nil keeps a typed nil pointer out of the Layer interface.
func finish[B tensor.Backend, L Layer[B]](r *configReader, layer L, err error) (Layer[B], error) {
	if err == nil {
		err = r.done()
	}
	if err != nil {
		return nil, err
	}
	return layer, nil
}

func buildLinear[B tensor.Backend](cfg Config, backend B) (Layer[B], error) {
	r := newConfigReader("Linear", cfg)
	r.required("in_features")
	r.required("out_features")
	c := LinearConfig{
		InFeatures:  r.int("in_features", 0),
		OutFeatures: r.int("out_features", 0),
		NoBias:      !r.bool("bias", true),
	}
	if r.err != nil {
		return nil, r.err
	}
	l, err := NewLinear(c, backend)
	return finish[B](r, l, err)
}

func buildSwitchLinear[B tensor.Backend](cfg Config, backend B) (Layer[B], error) {
	r := newConfigReader("SwitchLinear", cfg)
	r.required("num_experts")
	r.required("in_features")
	r.required("out_features")
	c := SwitchLinearConfig{
		NumExperts:  r.int("num_experts", 0),
		InFeatures:  r.int("in_features", 0),
		OutFeatures: r.int("out_features", 0),
		NoBias:      !r.bool("bias", true),
	}
	if r.err != nil {
		return nil, r.err
	}
	l, err := NewSwitchLinear(c, backend)
	return finish[B](r, l, err)
}

func readConvConfig(r *configReader) ConvConfig {
	r.required("in_channels")
	r.required("out_channels")
	r.required("kernel_size")
	return ConvConfig{
		InChannels:   r.int("in_channels", 0),
		OutChannels:  r.int("out_channels", 0),
		KernelSize:   r.ints("kernel_size"),
		Stride:       r.ints("stride"),
		Dilation:     r.ints("dilation"),
		Groups:       r.int("groups", 1),
		NoBias:       !r.bool("bias", true),
		Padding:      r.padding("padding"),
		ChannelsLast: r.bool("channels_last", false),
	}
}

func convBuilder[B tensor.Backend](newConv func(ConvConfig, B) (*Conv[B], error)) Builder[B] {
	return func(cfg Config, backend B) (Layer[B], error) {
		r := newConfigReader("Conv", cfg)
		c := readConvConfig(r)
		if r.err != nil {
			return nil, r.err
		}
		l, err := newConv(c, backend)
		return finish[B](r, l, err)
	}
}

func convTransposeBuilder[B tensor.Backend](newConv func(ConvTransposeConfig, B) (*ConvTranspose[B], error)) Builder[B] {
	return func(cfg Config, backend B) (Layer[B], error) {
		r := newConfigReader("ConvTranspose", cfg)
		c := ConvTransposeConfig{
			ConvConfig:    readConvConfig(r),
			OutputPadding: r.ints("output_padding"),
		}
		if r.err != nil {
			return nil, r.err
		}
		l, err := newConv(c, backend)
		return finish[B](r, l, err)
	}
}

func buildLSTM[B tensor.Backend](cfg Config, backend B) (Layer[B], error) {
	r := newConfigReader("LSTM", cfg)
	r.required("input_size")
	r.required("hidden_size")
	c := LSTMConfig{
		InputSize:     r.int("input_size", 0),
		HiddenSize:    r.int("hidden_size", 0),
		NumLayers:     r.int("num_layers", 1),
		BatchFirst:    r.bool("batch_first", false),
		Bidirectional: r.bool("bidirectional", false),
		NoBias:        !r.bool("bias", true),
	}
	if r.err != nil {
		return nil, r.err
	}
	l, err := NewLSTM(c, backend)
	return finish[B](r, l, err)
}

func buildEmbedding[B tensor.Backend](cfg Config, backend B) (Layer[B], error) {
	r := newConfigReader("Embedding", cfg)
	r.required("num_embeddings")
	r.required("embedding_dim")
	c := EmbeddingConfig{
		NumEmbeddings: r.int("num_embeddings", 0),
		EmbeddingDim:  r.int("embedding_dim", 0),
		PaddingIdx:    r.optionalInt("padding_idx"),
	}
	if r.err != nil {
		return nil, r.err
	}
	l, err := NewEmbedding(c, backend)
	return finish[B](r, l, err)
}

func poolBuilder[B tensor.Backend](newPool func(PoolConfig, B) (*MaxPool[B], error)) Builder[B] {
	return func(cfg Config, backend B) (Layer[B], error) {
		r := newConfigReader("MaxPool", cfg)
		r.required("kernel_size")
		c := PoolConfig{
			KernelSize: r.ints("kernel_size"),
			Stride:     r.ints("stride"),
			Padding:    r.ints("padding"),
			Dilation:   r.ints("dilation"),
		}
		if r.err != nil {
			return nil, r.err
		}
		l, err := newPool(c, backend)
		return finish[B](r, l, err)
	}
}

func buildDropout[B tensor.Backend](cfg Config, backend B) (Layer[B], error) {
	r := newConfigReader("Dropout", cfg)
	p := r.float("p", 0.5)
	if r.err != nil {
		return nil, r.err
	}
	l, err := NewDropout(p, backend)
	return finish[B](r, l, err)
}

func buildFlatten[B tensor.Backend](cfg Config, _ B) (Layer[B], error) {
	r := newConfigReader("Flatten", cfg)
	l := NewFlatten[B](r.int("start_dim", 1), r.int("end_dim", -1))
	return finish[B](r, l, nil)
}

func buildTranspose[B tensor.Backend](cfg Config, _ B) (Layer[B], error) {
	r := newConfigReader("Transpose", cfg)
	r.required("dim0")
	r.required("dim1")
	l := NewTranspose[B](r.int("dim0", 0), r.int("dim1", 0))
	return finish[B](r, l, nil)
}

func buildPermute[B tensor.Backend](cfg Config, _ B) (Layer[B], error) {
	r := newConfigReader("Permute", cfg)
	r.required("dims")
	dims := r.ints("dims")
	if r.err != nil {
		return nil, r.err
	}
	l, err := NewPermute[B](dims)
	return finish[B](r, l, err)
}

func buildReshape[B tensor.Backend](cfg Config, _ B) (Layer[B], error) {
	r := newConfigReader("Reshape", cfg)
	r.required("shape")
	shape := r.ints("shape")
	includeBatch := r.bool("include_batch", true)
	if r.err != nil {
		return nil, r.err
	}
	l, err := NewReshape[B](shape, includeBatch)
	return finish[B](r, l, err)
}

func buildUnsqueeze[B tensor.Backend](cfg Config, _ B) (Layer[B], error) {
	r := newConfigReader("Unsqueeze", cfg)
	r.required("dim")
	l := NewUnsqueeze[B](r.int("dim", 0))
	return finish[B](r, l, nil)
}

func buildGlobalAvgPool1D[B tensor.Backend](cfg Config, _ B) (Layer[B], error) {
	r := newConfigReader("GlobalAvgPool1d", cfg)
	l := NewGlobalAvgPool[B]([]int{r.int("dim", 1)}, r.bool("keepdim", false))
	return finish[B](r, l, nil)
}

func globalPoolBuilder[B tensor.Backend, L Layer[B]](newPool func(keepDim bool) L) Builder[B] {
	return func(cfg Config, _ B) (Layer[B], error) {
		r := newConfigReader("GlobalPool", cfg)
		l := newPool(r.bool("keepdim", false))
		return finish[B](r, l, nil)
	}
}

func buildUpsample3D[B tensor.Backend](cfg Config, backend B) (Layer[B], error) {
	r := newConfigReader("Upsample3d", cfg)
	r.required("scale_factor")
	scale := r.ints("scale_factor")
	if r.err != nil {
		return nil, r.err
	}
	l, err := NewUpsample3D(scale, backend)
	return finish[B](r, l, err)
}
