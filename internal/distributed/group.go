package distributed

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/born-ml/synapse/internal/tensor"
)

// Group simulates a set of participants inside one process. Each
// participant talks through its Member; messages travel over unbuffered
// channels, so a root's Broadcast returns only after every other member
// has received the value.
type Group struct {
	id      string
	members []*Member
	inbox   []chan message
}

type message struct {
	seq     uint64
	root    int
	payload *tensor.RawTensor
}

// Member is one participant of a Group. It implements Collective.
// A Member must be used by a single goroutine.
type Member struct {
	group *Group
	rank  int
	seq   uint64
}

var _ Collective = (*Member)(nil)

// NewGroup creates a group of size participants.
func NewGroup(size int) (*Group, error) {
	if size < 1 {
		return nil, errors.Errorf("distributed: group size must be positive, got %d", size)
	}
	g := &Group{
		id:      uuid.NewString(),
		members: make([]*Member, size),
		inbox:   make([]chan message, size),
	}
	for rank := range g.members {
		g.members[rank] = &Member{group: g, rank: rank}
		g.inbox[rank] = make(chan message)
	}
	return g, nil
}

// ID identifies the group in logs.
func (g *Group) ID() string { return g.id }

// Size returns the number of participants.
func (g *Group) Size() int { return len(g.members) }

// Member returns the participant with the given rank.
func (g *Group) Member(rank int) (*Member, error) {
	if rank < 0 || rank >= len(g.members) {
		return nil, errors.Wrapf(ErrInvalidRank, "rank %d for group of %d", rank, len(g.members))
	}
	return g.members[rank], nil
}

// Run calls fn once per member, each in its own goroutine, and waits for
// all of them. The first error cancels the context given to the others, so
// a failing participant cannot leave the rest blocked in a collective.
func Run(ctx context.Context, g *Group, fn func(ctx context.Context, m *Member) error) error {
	eg, ctx := errgroup.WithContext(ctx)
	for _, m := range g.members {
		eg.Go(func() error {
			return fn(ctx, m)
		})
	}
	return eg.Wait()
}

// Rank returns the member's index.
func (m *Member) Rank() int { return m.rank }

// Size returns the group size.
func (m *Member) Size() int { return len(m.group.members) }

// Broadcast implements Collective.
//
// The root sends a copy of t to every other member, in rank order; the
// others block until the root's value arrives, check that it matches their
// own call (sequence number, root and tensor layout) and return it.
func (m *Member) Broadcast(ctx context.Context, t *tensor.RawTensor, root int) (*tensor.RawTensor, error) {
	g := m.group
	if root < 0 || root >= len(g.members) {
		return nil, errors.Wrapf(ErrInvalidRank, "broadcast root %d for group of %d", root, len(g.members))
	}
	m.seq++

	if m.rank == root {
		for rank, inbox := range g.inbox {
			if rank == root {
				continue
			}
			select {
			case inbox <- message{seq: m.seq, root: root, payload: t.Clone()}:
			case <-ctx.Done():
				return nil, errors.WithMessagef(ctx.Err(), "group %s: broadcast #%d from rank %d to rank %d",
					g.id, m.seq, root, rank)
			}
		}
		klog.V(2).Infof("group %s: rank %d broadcast #%d %v", g.id, root, m.seq, t.Shape())
		return t, nil
	}

	select {
	case msg := <-g.inbox[m.rank]:
		if msg.seq != m.seq || msg.root != root {
			return nil, errors.Wrapf(ErrDesynchronized, "group %s: rank %d expected broadcast #%d from %d, got #%d from %d",
				g.id, m.rank, m.seq, root, msg.seq, msg.root)
		}
		if !msg.payload.SameLayout(t) {
			return nil, errors.Wrapf(ErrDesynchronized, "group %s: rank %d expected %s%v, received %s%v",
				g.id, m.rank, t.DType(), t.Shape(), msg.payload.DType(), msg.payload.Shape())
		}
		return msg.payload, nil
	case <-ctx.Done():
		return nil, errors.WithMessagef(ctx.Err(), "group %s: rank %d waiting for broadcast #%d from %d",
			g.id, m.rank, m.seq, root)
	}
}
