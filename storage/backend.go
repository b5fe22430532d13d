package storage

import (
	"context"
	"errors"
	"sort"

	"collabnest/domain"
)

var ErrNotFound = errors.New("task not found")

// Backend is the authoritative task persistence used by the API server.
type Backend interface {
	// ListTasks returns the tasks of one organization board ("" is the
	// personal board) ordered by order then creation time.
	ListTasks(ctx context.Context, organization string) ([]domain.Task, error)
	GetTask(ctx context.Context, id string) (domain.Task, error)
	FindByClientRef(ctx context.Context, ref string) (domain.Task, error)
	CreateTask(ctx context.Context, t domain.Task) error
	UpdateTask(ctx context.Context, t domain.Task) error
	// ReorderTasks sets order = index for each listed task that belongs to
	// p and returns the updated records in the given sequence.
	ReorderTasks(ctx context.Context, p domain.Partition, ids []string) ([]domain.Task, error)
	// DeleteTask removes the task and returns the deleted record.
	DeleteTask(ctx context.Context, id string) (domain.Task, error)
}

func sortTasks(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Order != tasks[j].Order {
			return tasks[i].Order < tasks[j].Order
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}
