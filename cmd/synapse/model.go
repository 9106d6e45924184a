package main

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/synapse/internal/nn"
)

// Model is the YAML description of a stack of independent layers.
//
// Example:
//
//	seed: 7
//	noise_std: 0.075
//	replicas: 2
//	layers:
//	  - type: Conv1d
//	    params: {in_channels: 4, out_channels: 8, kernel_size: 3, padding: causal}
//	    input: [2, 4, 16]
type Model struct {
	Seed     uint64  `yaml:"seed"`
	NoiseStd float64 `yaml:"noise_std"`
	Replicas int     `yaml:"replicas"`
	Eval     bool    `yaml:"eval"`
	Layers   []Entry `yaml:"layers"`
}

// Entry is one layer of a Model.
type Entry struct {
	Name   string    `yaml:"name"`
	Type   string    `yaml:"type"`
	Params nn.Config `yaml:"params"`

	// Input is the shape of the random input. Embedding inputs are int32
	// indices, every other layer takes float32.
	Input []int `yaml:"input"`

	// Indices selects the expert of every example (SwitchLinear only).
	Indices []int `yaml:"indices"`

	// MaskLengths masks positions >= MaskLengths[n] along dimension 1 of
	// example n (GlobalAvgPool layers only).
	MaskLengths []int `yaml:"mask_lengths"`
}

func loadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading model file")
	}
	model, err := parseModel(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "model file %q", path)
	}
	return model, nil
}

func parseModel(data []byte) (*Model, error) {
	model := &Model{}
	if err := yaml.Unmarshal(data, model); err != nil {
		return nil, errors.Wrap(err, "parsing YAML")
	}
	if model.Replicas == 0 {
		model.Replicas = 1
	}
	if model.Replicas < 0 {
		return nil, errors.Errorf("replicas must be positive, got %d", model.Replicas)
	}
	if len(model.Layers) == 0 {
		return nil, errors.New("no layers")
	}
	seen := make(map[string]bool, len(model.Layers))
	for i := range model.Layers {
		entry := &model.Layers[i]
		if entry.Type == "" {
			return nil, errors.Errorf("layer %d: missing type", i)
		}
		if entry.Name == "" {
			entry.Name = entry.Type
		}
		if seen[entry.Name] {
			return nil, errors.Errorf("layer %d: duplicate name %q", i, entry.Name)
		}
		seen[entry.Name] = true
		if len(entry.Input) == 0 {
			return nil, errors.Errorf("layer %q: missing input shape", entry.Name)
		}
		for _, d := range entry.Input {
			if d < 1 {
				return nil, errors.Errorf("layer %q: invalid input shape %v", entry.Name, entry.Input)
			}
		}
	}
	return model, nil
}
