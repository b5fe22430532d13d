package optimistic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"collabnest/board"
	"collabnest/domain"
)

// Command is one optimistic mutation. Apply runs the forward action against
// the store and captures what Before reports; Execute performs the remote
// call and After reports its result. Confirm only touches ids for which owns
// reports true. Revert writes the record restore hands back, which may be an
// older snapshot than Before when earlier commands failed, and skips ids for
// which restore reports false. Neither inserts records that disappeared in
// the meantime.
type Command interface {
	Name() string
	TaskIDs() []string
	Apply(s *board.Store) error
	Execute(ctx context.Context, api RemoteAPI) error
	Before(id string) (domain.Task, bool)
	After(id string) (domain.Task, bool)
	Confirm(s *board.Store, owns func(id string) bool)
	Revert(s *board.Store, restore func(id string) (domain.Task, bool), cause error)
}

// patchCommand covers every single-record field change: status, organization
// and form edits.
type patchCommand struct {
	name  string
	id    string
	patch domain.TaskPatch
	call  func(ctx context.Context, api RemoteAPI, id string, patch domain.TaskPatch) (domain.Task, error)

	snapshot domain.Task
	result   domain.Task
}

func (c *patchCommand) Name() string      { return c.name }
func (c *patchCommand) TaskIDs() []string { return []string{c.id} }

func (c *patchCommand) Apply(s *board.Store) error {
	cur, ok := s.Find(c.id)
	if !ok {
		return fmt.Errorf("%s %s: %w", c.name, c.id, ErrTaskNotFound)
	}
	c.snapshot = cur
	s.Replace(c.id, c.patch.Apply(cur))
	return nil
}

func (c *patchCommand) Execute(ctx context.Context, api RemoteAPI) error {
	res, err := c.call(ctx, api, c.id, c.patch)
	if err != nil {
		return err
	}
	c.result = res
	return nil
}

func (c *patchCommand) Before(id string) (domain.Task, bool) { return c.snapshot, id == c.id }
func (c *patchCommand) After(id string) (domain.Task, bool)  { return c.result, id == c.id }

func (c *patchCommand) Confirm(s *board.Store, owns func(string) bool) {
	if owns(c.id) {
		s.Replace(c.id, c.result)
	}
}

func (c *patchCommand) Revert(s *board.Store, restore func(string) (domain.Task, bool), cause error) {
	prev, ok := restore(c.id)
	if !ok {
		return
	}
	if errors.Is(cause, ErrRemoteNotFound) {
		s.Remove(c.id)
		return
	}
	s.Replace(c.id, prev)
}

func NewSetStatus(id string, status domain.Status) Command {
	return &patchCommand{
		name:  "set status",
		id:    id,
		patch: domain.TaskPatch{Status: &status},
		call: func(ctx context.Context, api RemoteAPI, id string, p domain.TaskPatch) (domain.Task, error) {
			return api.SetTaskStatus(ctx, id, *p.Status)
		},
	}
}

func NewSetOrganization(id, organization string) Command {
	return &patchCommand{
		name:  "set organization",
		id:    id,
		patch: domain.TaskPatch{Organization: &organization},
		call:  updateCall,
	}
}

func NewUpdate(id string, patch domain.TaskPatch) Command {
	return &patchCommand{name: "update", id: id, patch: patch, call: updateCall}
}

func updateCall(ctx context.Context, api RemoteAPI, id string, p domain.TaskPatch) (domain.Task, error) {
	return api.UpdateTask(ctx, id, p)
}

// createCommand inserts a temporary record that is re-keyed to the server
// record on success and removed on failure.
type createCommand struct {
	tempID string
	input  domain.TaskInput
	now    time.Time

	result domain.Task
}

func NewCreate(tempID string, in domain.TaskInput, now time.Time) Command {
	in.ClientRef = tempID
	return &createCommand{tempID: tempID, input: in, now: now}
}

func (c *createCommand) Name() string      { return "create" }
func (c *createCommand) TaskIDs() []string { return []string{c.tempID} }

func (c *createCommand) Apply(s *board.Store) error {
	s.Add(c.input.NewTask(c.tempID, c.now))
	return nil
}

func (c *createCommand) Execute(ctx context.Context, api RemoteAPI) error {
	res, err := api.CreateTask(ctx, c.input)
	if err != nil {
		return err
	}
	c.result = res
	return nil
}

// The temporary record must always be resolved, so ownership is ignored. If
// it was removed before the server answered, nothing is written; a realtime
// echo may still bring the server record in.
func (c *createCommand) Confirm(s *board.Store, _ func(string) bool) {
	s.Rekey(c.tempID, c.result)
}

func (c *createCommand) Revert(s *board.Store, _ func(string) (domain.Task, bool), _ error) {
	s.Remove(c.tempID)
}

func (c *createCommand) Before(string) (domain.Task, bool) { return domain.Task{}, false }

func (c *createCommand) After(id string) (domain.Task, bool) {
	return c.result, id == c.tempID && c.result.ID != ""
}

type deleteCommand struct {
	id       string
	snapshot domain.Task
	index    int
}

func NewDelete(id string) Command {
	return &deleteCommand{id: id}
}

func (c *deleteCommand) Name() string      { return "delete" }
func (c *deleteCommand) TaskIDs() []string { return []string{c.id} }

func (c *deleteCommand) Apply(s *board.Store) error {
	cur, ok := s.Find(c.id)
	if !ok {
		return fmt.Errorf("delete %s: %w", c.id, ErrTaskNotFound)
	}
	c.snapshot = cur
	c.index = s.IndexOf(c.id)
	s.Remove(c.id)
	return nil
}

func (c *deleteCommand) Execute(ctx context.Context, api RemoteAPI) error {
	if err := api.DeleteTask(ctx, c.id); err != nil && !errors.Is(err, ErrRemoteNotFound) {
		return err
	}
	return nil
}

func (c *deleteCommand) Before(id string) (domain.Task, bool) { return c.snapshot, id == c.id }
func (c *deleteCommand) After(string) (domain.Task, bool)       { return domain.Task{}, false }

func (c *deleteCommand) Confirm(*board.Store, func(string) bool) {}

func (c *deleteCommand) Revert(s *board.Store, restore func(string) (domain.Task, bool), _ error) {
	if prev, ok := restore(c.id); ok {
		s.Insert(c.index, prev)
	}
}

// reorderCommand rewrites a partition's order locally and persists it with a
// single remote call.
type reorderCommand struct {
	partition domain.Partition
	ids       []string

	snapshot []domain.Task
	result   []domain.Task
}

func NewReorder(p domain.Partition, orderedIDs []string) Command {
	return &reorderCommand{partition: p, ids: append([]string(nil), orderedIDs...)}
}

func (c *reorderCommand) Name() string { return "reorder" }

func (c *reorderCommand) TaskIDs() []string {
	out := make([]string, len(c.snapshot))
	for i, t := range c.snapshot {
		out[i] = t.ID
	}
	return out
}

func (c *reorderCommand) Apply(s *board.Store) error {
	ordered := make([]domain.Task, 0, len(c.ids))
	for _, id := range c.ids {
		t, ok := s.Find(id)
		if !ok || !c.partition.Contains(t) {
			continue
		}
		c.snapshot = append(c.snapshot, t)
		ordered = append(ordered, t)
	}
	if len(ordered) == 0 {
		return fmt.Errorf("reorder %s: %w", c.partition, ErrTaskNotFound)
	}
	s.SetPartitionOrder(c.partition, ordered)
	return nil
}

func (c *reorderCommand) Execute(ctx context.Context, api RemoteAPI) error {
	res, err := api.ReorderTasks(ctx, c.partition, c.TaskIDs())
	if err != nil {
		return err
	}
	c.result = res
	return nil
}

func (c *reorderCommand) Confirm(s *board.Store, owns func(string) bool) {
	for _, t := range c.result {
		if owns(t.ID) {
			s.Replace(t.ID, t)
		}
	}
}

func (c *reorderCommand) Revert(s *board.Store, restore func(string) (domain.Task, bool), _ error) {
	for _, t := range c.snapshot {
		if prev, ok := restore(t.ID); ok {
			s.Replace(t.ID, prev)
		}
	}
}

func (c *reorderCommand) Before(id string) (domain.Task, bool) { return findTask(c.snapshot, id) }
func (c *reorderCommand) After(id string) (domain.Task, bool)  { return findTask(c.result, id) }

func findTask(tasks []domain.Task, id string) (domain.Task, bool) {
	for _, t := range tasks {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Task{}, false
}
