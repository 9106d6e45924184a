// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package distributed provides the collectives used to keep noise samples
// identical across participants.
package distributed

import (
	"context"

	"github.com/born-ml/synapse/internal/distributed"
)

// Collective is a group communication handle.
type Collective = distributed.Collective

// Local is the single-participant collective.
type Local = distributed.Local

// Group is a set of in-process participants connected by channels.
type Group = distributed.Group

// Member is one participant of a Group.
type Member = distributed.Member

// Errors. Compare with errors.Is.
var (
	ErrDesynchronized = distributed.ErrDesynchronized
	ErrInvalidRank    = distributed.ErrInvalidRank
)

// NewGroup creates a group of size participants.
func NewGroup(size int) (*Group, error) {
	return distributed.NewGroup(size)
}

// Run calls fn once per member of g, each in its own goroutine, and
// returns the first error. The first failure cancels the context of the
// others.
func Run(ctx context.Context, g *Group, fn func(ctx context.Context, m *Member) error) error {
	return distributed.Run(ctx, g, fn)
}
