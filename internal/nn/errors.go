package nn

import "github.com/pkg/errors"

// Errors returned by layer construction and the noise API. They are
// wrapped with context, so compare with errors.Is.
var (
	// ErrInvalidPadding reports a padding mode outside valid, same, causal
	// (or one the layer kind does not support).
	ErrInvalidPadding = errors.New("nn: invalid padding mode")

	// ErrInvalidConfig reports malformed layer configuration: non-positive
	// sizes, per-dimension lists of the wrong length, bad scale factors.
	ErrInvalidConfig = errors.New("nn: invalid layer configuration")

	// ErrExpertIndex reports an expert index outside [0, num_experts).
	ErrExpertIndex = errors.New("nn: expert index out of range")

	// ErrNoiseNotConfigured is returned by SampleNoise before ConfigureNoise.
	ErrNoiseNotConfigured = errors.New("nn: noise not configured")

	// ErrUnknownLayer is returned by Build for an unregistered layer name.
	ErrUnknownLayer = errors.New("nn: unknown layer")
)
