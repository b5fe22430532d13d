package domain

import (
	"fmt"

	"github.com/bytedance/sonic"
)

const (
	TaskCreatedEvent  = "task-created"
	TaskUpdatedEvent  = "task-updated"
	TaskDeletedEvent  = "task-deleted"
	TaskAssignedEvent = "task-assigned"
)

// Event is one of TaskCreated, TaskUpdated or TaskDeleted. Payloads are
// validated by DecodeEvent before they become an Event, so consumers never
// see partial shapes.
type Event interface {
	Name() string
	TaskID() string
}

type TaskCreated struct{ Task Task }

type TaskUpdated struct{ Task Task }

type TaskDeleted struct{ ID string }

func (e TaskCreated) Name() string   { return TaskCreatedEvent }
func (e TaskCreated) TaskID() string { return e.Task.ID }
func (e TaskUpdated) Name() string   { return TaskUpdatedEvent }
func (e TaskUpdated) TaskID() string { return e.Task.ID }
func (e TaskDeleted) Name() string   { return TaskDeletedEvent }
func (e TaskDeleted) TaskID() string { return e.ID }

// DeletedTaskData is the wire payload of a task-deleted event.
type DeletedTaskData struct {
	ID           string `json:"id"`
	Organization string `json:"organization,omitempty"`
}

// AssignmentNotice is sent to the assignee's user room when a task is
// assigned to them.
type AssignmentNotice struct {
	TaskID       string `json:"taskId"`
	Title        string `json:"title"`
	Organization string `json:"organization,omitempty"`
	Message      string `json:"message"`
}

// DecodeEvent validates a raw realtime payload for the named event.
func DecodeEvent(name string, data []byte) (Event, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, fmt.Errorf("%w: %s has no body", ErrMalformedEvent, name)
	}
	switch name {
	case TaskCreatedEvent, TaskUpdatedEvent:
		var t Task
		if err := sonic.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, name, err)
		}
		if t.ID == "" {
			return nil, fmt.Errorf("%w: %s without id", ErrMalformedEvent, name)
		}
		if !t.Status.Valid() {
			return nil, fmt.Errorf("%w: %s task %s has status %q", ErrMalformedEvent, name, t.ID, t.Status)
		}
		if name == TaskCreatedEvent {
			return TaskCreated{Task: t}, nil
		}
		return TaskUpdated{Task: t}, nil
	case TaskDeletedEvent:
		var d DeletedTaskData
		if err := sonic.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, name, err)
		}
		if d.ID == "" {
			return nil, fmt.Errorf("%w: %s without id", ErrMalformedEvent, name)
		}
		return TaskDeleted{ID: d.ID}, nil
	default:
		return nil, fmt.Errorf("%w: unknown event %q", ErrMalformedEvent, name)
	}
}

// EventPayload returns the wire body for ev.
func EventPayload(ev Event) any {
	switch e := ev.(type) {
	case TaskCreated:
		return e.Task
	case TaskUpdated:
		return e.Task
	case TaskDeleted:
		return DeletedTaskData{ID: e.ID}
	}
	return nil
}
