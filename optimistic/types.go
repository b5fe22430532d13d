package optimistic

import (
	"context"
	"errors"

	"collabnest/domain"
)

// RemoteAPI is the authoritative task backend. Every successful call returns
// the server's copy of the affected records.
type RemoteAPI interface {
	CreateTask(ctx context.Context, in domain.TaskInput) (domain.Task, error)
	UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error)
	SetTaskStatus(ctx context.Context, id string, status domain.Status) (domain.Task, error)
	ReorderTasks(ctx context.Context, p domain.Partition, ids []string) ([]domain.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

var (
	// ErrTaskNotFound is returned when a mutation targets an id that is not
	// in the local store. No remote call is made.
	ErrTaskNotFound = errors.New("task not found")

	// ErrRemoteNotFound is matched (via errors.Is) by RemoteAPI errors that
	// mean the server no longer has the task.
	ErrRemoteNotFound = errors.New("remote task not found")
)
