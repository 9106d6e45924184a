package main

import (
	"context"
	"fmt"
	"math"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/synapse/internal/backend/cpu"
	"github.com/born-ml/synapse/internal/distributed"
	"github.com/born-ml/synapse/internal/nn"
	"github.com/born-ml/synapse/internal/tensor"
)

// Backend is the runtime every replica runs on.
type Backend = *cpu.CPUBackend

type replica struct {
	rank   int
	layers []nn.Layer[Backend]
}

// input holds the random input of one layer, shared by all replicas.
type input struct {
	x       *tensor.Tensor[float32, Backend]
	indices *tensor.Tensor[int32, Backend]
	mask    *tensor.Tensor[float32, Backend]
}

// result is the outcome of one layer across replicas.
type result struct {
	entry   Entry
	params  int
	input   tensor.Shape
	output  tensor.Shape
	noise   string
	agree   bool
	meanAbs float64
}

// report is what run returns: the model and one result per layer.
type report struct {
	model   *Model
	results []result
}

// run builds the replicas, samples noise and runs every layer once.
func run(ctx context.Context, model *Model) (*report, error) {
	replicas, err := buildReplicas(model)
	if err != nil {
		return nil, err
	}
	if !model.Eval && model.NoiseStd > 0 {
		if err := sampleNoise(ctx, model, replicas); err != nil {
			return nil, err
		}
	}

	inputs := cpu.New(cpu.WithSeed(model.Seed))
	rep := &report{model: model}
	for i, entry := range model.Layers {
		in, err := makeInput(entry, replicas[0].layers[i], inputs)
		if err != nil {
			return nil, errors.WithMessagef(err, "layer %q", entry.Name)
		}
		outputs := make([]*tensor.Tensor[float32, Backend], len(replicas))
		for _, r := range replicas {
			y, err := forward(entry, r.layers[i], in)
			if err != nil {
				return nil, errors.WithMessagef(err, "layer %q (replica %d)", entry.Name, r.rank)
			}
			outputs[r.rank] = y
		}
		res := summarize(entry, replicas[0].layers[i], outputs)
		if in.x != nil {
			res.input = in.x.Shape()
		} else {
			res.input = in.indices.Shape()
		}
		rep.results = append(rep.results, res)
	}
	return rep, nil
}

// buildReplicas builds every layer once per replica. Replicas draw from
// differently seeded backends but start from rank 0's weights.
func buildReplicas(model *Model) ([]*replica, error) {
	replicas := make([]*replica, model.Replicas)
	for rank := range replicas {
		backend := cpu.New(cpu.WithSeed(model.Seed + 1 + uint64(rank)))
		r := &replica{rank: rank}
		for i, entry := range model.Layers {
			layer, err := nn.Build(entry.Type, entry.Params, backend)
			if err != nil {
				return nil, errors.WithMessagef(err, "layer %q", entry.Name)
			}
			layer.SetTraining(!model.Eval)
			if rank > 0 {
				if err := nn.LoadStateDict(layer, nn.StateDict(replicas[0].layers[i])); err != nil {
					return nil, errors.WithMessagef(err, "layer %q (replica %d)", entry.Name, rank)
				}
			}
			r.layers = append(r.layers, layer)
		}
		replicas[rank] = r
	}
	klog.V(1).Infof("built %d layers on %d replicas", len(model.Layers), len(replicas))
	return replicas, nil
}

// sampleNoise configures and samples noise for every noisy layer, each
// replica in its own goroutine. With several replicas the samples are
// broadcast from rank 0.
func sampleNoise(ctx context.Context, model *Model, replicas []*replica) error {
	group, err := distributed.NewGroup(len(replicas))
	if err != nil {
		return err
	}
	synchronize := len(replicas) > 1
	klog.V(1).Infof("sampling noise in group %s (synchronize=%v)", group.ID(), synchronize)
	return distributed.Run(ctx, group, func(ctx context.Context, m *distributed.Member) error {
		for i, layer := range replicas[m.Rank()].layers {
			noisy, ok := layer.(nn.NoisyLayer[Backend])
			if !ok {
				continue
			}
			name := model.Layers[i].Name
			if err := noisy.ConfigureNoise(model.NoiseStd, nn.WithCollective(m)); err != nil {
				return errors.WithMessagef(err, "layer %q", name)
			}
			if err := noisy.SampleNoise(ctx, synchronize); err != nil {
				return errors.WithMessagef(err, "layer %q (replica %d)", name, m.Rank())
			}
		}
		return nil
	})
}

func makeInput(entry Entry, layer nn.Layer[Backend], backend Backend) (*input, error) {
	shape := tensor.Shape(entry.Input)
	if e, ok := layer.(*nn.Embedding[Backend]); ok {
		indices := tensor.Zeros[int32](shape, backend)
		data := indices.Data()
		for i := range data {
			data[i] = int32(i % e.NumEmbeddings())
		}
		return &input{indices: indices}, nil
	}

	in := &input{x: tensor.Randn[float32](shape, backend)}
	if len(entry.MaskLengths) > 0 {
		mask, err := lengthMask(shape, entry.MaskLengths, backend)
		if err != nil {
			return nil, err
		}
		in.mask = mask
	}
	return in, nil
}

// lengthMask returns a [N, T, 1, ...] mask that is 1 for t < lengths[n].
func lengthMask(shape tensor.Shape, lengths []int, backend Backend) (*tensor.Tensor[float32, Backend], error) {
	if len(shape) < 2 || len(lengths) != shape[0] {
		return nil, errors.Errorf("mask_lengths %v do not match input %v", lengths, shape)
	}
	maskShape := make(tensor.Shape, len(shape))
	for d := range maskShape {
		maskShape[d] = 1
	}
	maskShape[0], maskShape[1] = shape[0], shape[1]
	mask := tensor.Zeros[float32](maskShape, backend)
	data := mask.Data()
	for n, length := range lengths {
		if length < 1 || length > shape[1] {
			return nil, errors.Errorf("mask length %d outside [1, %d]", length, shape[1])
		}
		for t := 0; t < length; t++ {
			data[n*shape[1]+t] = 1
		}
	}
	return mask, nil
}

// forward runs one layer. Shape errors inside the layers panic; they are
// turned into errors here.
func forward(entry Entry, layer nn.Layer[Backend], in *input) (out *tensor.Tensor[float32, Backend], err error) {
	exception := exceptions.Try(func() {
		switch l := layer.(type) {
		case *nn.Embedding[Backend]:
			out = l.Forward(in.indices)
		case *nn.SwitchLinear[Backend]:
			out, err = l.Forward(in.x, entry.Indices)
		case *nn.GlobalAvgPool[Backend]:
			out = l.ForwardMasked(in.x, in.mask)
		case nn.Module[Backend]:
			out = l.Forward(in.x)
		default:
			err = errors.Errorf("%s has no forward pass", entry.Type)
		}
	})
	if exception != nil {
		return nil, errors.Errorf("forward pass failed: %v", exception)
	}
	return out, err
}

func summarize(entry Entry, layer nn.Layer[Backend], outputs []*tensor.Tensor[float32, Backend]) result {
	res := result{
		entry:  entry,
		params: nn.NumParameters(layer),
		output: outputs[0].Shape(),
		noise:  noiseStatus(layer),
		agree:  true,
	}
	for _, y := range outputs[1:] {
		if !outputs[0].Raw().BitEqual(y.Raw()) {
			res.agree = false
		}
	}
	data := outputs[0].Data()
	var sum float64
	for _, v := range data {
		sum += math.Abs(float64(v))
	}
	if len(data) > 0 {
		res.meanAbs = sum / float64(len(data))
	}
	return res
}

func noiseStatus(layer nn.Layer[Backend]) string {
	noisy, ok := layer.(nn.NoisyLayer[Backend])
	switch {
	case !ok:
		return "-"
	case !layer.Training() || !noisy.NoiseActive():
		return "off"
	}
	std, _ := noisy.Noise().Std()
	return fmt.Sprintf("σ=%g", std)
}
