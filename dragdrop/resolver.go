package dragdrop

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"collabnest/board"
	"collabnest/domain"
)

// Mutator is the subset of the optimistic layer a drop can trigger.
type Mutator interface {
	SetStatus(ctx context.Context, id string, status domain.Status) error
	SetOrganization(ctx context.Context, id, organization string) error
	Reorder(ctx context.Context, p domain.Partition, orderedIDs []string) error
}

type Outcome int

const (
	NoOp Outcome = iota
	MovedPartition
	Reordered
)

func (o Outcome) String() string {
	switch o {
	case MovedPartition:
		return "moved-partition"
	case Reordered:
		return "reordered"
	default:
		return "noop"
	}
}

// Resolver turns a drop of activeID onto overID into at most one mutation.
// overID is either a partition identifier (a column, or an organization
// board) or the id of another task.
type Resolver struct {
	store *board.Store
	mut   Mutator
	kind  domain.PartitionKind
	log   log.FieldLogger

	mu         sync.RWMutex
	partitions map[string]struct{}
}

func NewResolver(store *board.Store, mut Mutator, kind domain.PartitionKind, partitionIDs []string, logger log.FieldLogger) *Resolver {
	if logger == nil {
		logger = log.StandardLogger()
	}
	r := &Resolver{store: store, mut: mut, kind: kind, log: logger}
	r.SetPartitions(partitionIDs)
	return r
}

// NewStatusResolver resolves drops on the todo / inprogress / done board.
func NewStatusResolver(store *board.Store, mut Mutator, logger log.FieldLogger) *Resolver {
	ids := make([]string, len(domain.Statuses))
	for i, s := range domain.Statuses {
		ids[i] = string(s)
	}
	return NewResolver(store, mut, domain.KindStatus, ids, logger)
}

// SetPartitions replaces the known partition identifiers, e.g. when the set
// of rendered organization boards changes.
func (r *Resolver) SetPartitions(ids []string) {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	r.mu.Lock()
	r.partitions = set
	r.mu.Unlock()
}

func (r *Resolver) isPartition(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.partitions[id]
	return ok
}

// Resolve applies the drop. Unresolvable drops return NoOp with a nil error;
// a mutation failure is returned together with the attempted outcome.
func (r *Resolver) Resolve(ctx context.Context, activeID, overID string) (Outcome, error) {
	if activeID == "" || overID == "" || activeID == overID {
		return NoOp, nil
	}
	active, ok := r.store.Find(activeID)
	if !ok {
		return NoOp, nil
	}
	from := r.kind.KeyOf(active)

	if r.isPartition(overID) {
		if from == overID {
			return NoOp, nil
		}
		return MovedPartition, r.move(ctx, activeID, overID)
	}

	over, ok := r.store.Find(overID)
	if !ok {
		r.log.WithField("over", overID).Debug("drop target not found")
		return NoOp, nil
	}
	to := r.kind.KeyOf(over)
	if from != to {
		return MovedPartition, r.move(ctx, activeID, to)
	}

	p := domain.Partition{Kind: r.kind, Key: from}
	ids := partitionIDs(r.store.Partition(p))
	oldIndex, newIndex := indexOf(ids, activeID), indexOf(ids, overID)
	if oldIndex < 0 || newIndex < 0 {
		return NoOp, nil
	}
	return Reordered, r.mut.Reorder(ctx, p, Move(ids, oldIndex, newIndex))
}

func (r *Resolver) move(ctx context.Context, id, key string) error {
	if r.kind == domain.KindOrganization {
		return r.mut.SetOrganization(ctx, id, key)
	}
	return r.mut.SetStatus(ctx, id, domain.Status(key))
}

// Move returns a copy of ids with the element at from moved to index to; the
// elements in between shift by one.
func Move(ids []string, from, to int) []string {
	out := make([]string, 0, len(ids))
	item := ids[from]
	for i, id := range ids {
		if i == from {
			continue
		}
		out = append(out, id)
	}
	out = append(out[:to], append([]string{item}, out[to:]...)...)
	return out
}

func partitionIDs(tasks []domain.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
