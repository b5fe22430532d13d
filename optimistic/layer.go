package optimistic

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"collabnest/board"
	"collabnest/domain"
)

// TempIDPrefix marks ids that only exist locally until the server confirms a
// create.
const TempIDPrefix = "temp-"

// Layer applies every mutation to the store before the remote call returns
// and reconciles the store with the outcome afterwards.
//
// Each id keeps a queue of claims, one per command still waiting for the
// server, in issue order. Only the newest claim may confirm or revert the
// record. A claim that settles while newer ones are pending hands its revert
// target on: a failure passes its own snapshot to the next claim, a success
// passes the server's copy. The store therefore always falls back to the
// last state the server accepted once every command on the id has failed.
type Layer struct {
	store *board.Store
	api   RemoteAPI
	log   log.FieldLogger

	mu      sync.Mutex
	pending map[string][]*claim

	now    func() time.Time
	tempID func() string
}

type claim struct {
	before domain.Task
	known  bool
}

func New(store *board.Store, api RemoteAPI, logger log.FieldLogger) *Layer {
	if store == nil || api == nil {
		panic("optimistic.New: store and api are required")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Layer{
		store:   store,
		api:     api,
		log:     logger,
		pending: make(map[string][]*claim),
		now:     time.Now,
		tempID:  func() string { return TempIDPrefix + uuid.NewString() },
	}
}

func (l *Layer) Store() *board.Store { return l.store }

// Do runs cmd: local apply, remote call, then confirm or revert. The remote
// error is returned to the caller after the store has been restored.
func (l *Layer) Do(ctx context.Context, cmd Command) error {
	l.mu.Lock()
	if err := cmd.Apply(l.store); err != nil {
		l.mu.Unlock()
		return err
	}
	claims := l.claimLocked(cmd)
	l.mu.Unlock()

	err := cmd.Execute(ctx, l.api)

	l.mu.Lock()
	defer l.mu.Unlock()
	newest := func(id string) bool {
		q := l.pending[id]
		return len(q) > 0 && q[len(q)-1] == claims[id]
	}
	entry := l.log.WithField("command", cmd.Name()).WithField("tasks", strings.Join(cmd.TaskIDs(), ","))
	if err != nil {
		cmd.Revert(l.store, func(id string) (domain.Task, bool) {
			if !newest(id) {
				return domain.Task{}, false
			}
			c := claims[id]
			return c.before, c.known
		}, err)
		entry.WithError(err).Warn("optimistic mutation reverted")
	} else {
		cmd.Confirm(l.store, newest)
		entry.Debug("optimistic mutation confirmed")
	}
	for id, c := range claims {
		if l.settleLocked(id, c, cmd, err == nil) {
			entry.WithField("task", id).Debug("superseded by a newer mutation")
		}
	}
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.Name(), err)
	}
	return nil
}

func (l *Layer) claimLocked(cmd Command) map[string]*claim {
	ids := cmd.TaskIDs()
	claims := make(map[string]*claim, len(ids))
	for _, id := range ids {
		if _, dup := claims[id]; dup {
			continue
		}
		c := &claim{}
		c.before, c.known = cmd.Before(id)
		l.pending[id] = append(l.pending[id], c)
		claims[id] = c
	}
	return claims
}

// settleLocked drops c from the queue of id and reports whether a newer claim
// was still pending, in which case that claim inherits the revert target.
func (l *Layer) settleLocked(id string, c *claim, cmd Command, ok bool) bool {
	q := l.pending[id]
	i := 0
	for i < len(q) && q[i] != c {
		i++
	}
	if i == len(q) {
		return false
	}
	superseded := i < len(q)-1
	if superseded {
		next := q[i+1]
		if ok {
			if res, found := cmd.After(id); found {
				next.before, next.known = res, true
			}
		} else {
			next.before, next.known = c.before, c.known
		}
	}
	q = append(q[:i], q[i+1:]...)
	if len(q) == 0 {
		delete(l.pending, id)
	} else {
		l.pending[id] = q
	}
	return superseded
}

// Pending reports whether a mutation on id is still waiting for the server.
func (l *Layer) Pending(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending[id]) > 0
}

// Create inserts a temporary record immediately and returns the server record
// that replaced it.
func (l *Layer) Create(ctx context.Context, in domain.TaskInput) (domain.Task, error) {
	if err := in.Validate(); err != nil {
		return domain.Task{}, err
	}
	cmd := NewCreate(l.tempID(), in, l.now()).(*createCommand)
	if err := l.Do(ctx, cmd); err != nil {
		return domain.Task{}, err
	}
	return cmd.result, nil
}

func (l *Layer) Update(ctx context.Context, id string, patch domain.TaskPatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	if patch.IsEmpty() {
		return nil
	}
	return l.Do(ctx, NewUpdate(id, patch))
}

func (l *Layer) SetStatus(ctx context.Context, id string, status domain.Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidStatus, status)
	}
	return l.Do(ctx, NewSetStatus(id, status))
}

func (l *Layer) SetOrganization(ctx context.Context, id, organization string) error {
	if organization == "" {
		return fmt.Errorf("%w: empty organization", domain.ErrInvalidPartition)
	}
	return l.Do(ctx, NewSetOrganization(id, organization))
}

// Reorder assigns order = index to the tasks of p in the given sequence.
func (l *Layer) Reorder(ctx context.Context, p domain.Partition, orderedIDs []string) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return l.Do(ctx, NewReorder(p, orderedIDs))
}

func (l *Layer) Delete(ctx context.Context, id string) error {
	return l.Do(ctx, NewDelete(id))
}
