// Package distributed provides the collective-communication capability used
// to keep sampled weight noise identical across training replicas.
//
// A Collective is injected into layers instead of being looked up globally,
// so single-process code can use Local and tests can simulate several
// replicas in one process with a Group.
package distributed

import (
	"context"

	"github.com/pkg/errors"

	"github.com/born-ml/synapse/internal/tensor"
)

var (
	// ErrDesynchronized is returned when participants disagree on a
	// collective call: different root, different tensor layout or
	// a different call order.
	ErrDesynchronized = errors.New("distributed: participants out of sync")

	// ErrInvalidRank is returned for a rank outside [0, Size()).
	ErrInvalidRank = errors.New("distributed: invalid rank")
)

// Collective is a blocking collective-communication primitive shared by a
// fixed set of participants.
//
// Every participant must issue the same collective calls in the same order;
// this is a precondition on the caller and not something an implementation
// can enforce.
type Collective interface {
	// Rank is this participant's index in [0, Size()).
	Rank() int

	// Size is the number of participants.
	Size() int

	// Broadcast sends root's t to every participant and returns the
	// received value (root gets t back). It blocks until every participant
	// has the value or ctx is done.
	Broadcast(ctx context.Context, t *tensor.RawTensor, root int) (*tensor.RawTensor, error)
}

// Local is the single-participant Collective: Broadcast is the identity.
type Local struct{}

var _ Collective = Local{}

// Rank always returns 0.
func (Local) Rank() int { return 0 }

// Size always returns 1.
func (Local) Size() int { return 1 }

// Broadcast returns t unchanged.
func (Local) Broadcast(ctx context.Context, t *tensor.RawTensor, root int) (*tensor.RawTensor, error) {
	if root != 0 {
		return nil, errors.Wrapf(ErrInvalidRank, "root %d for a single participant", root)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.WithMessage(err, "broadcast cancelled")
	}
	return t, nil
}
