package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Status is the board column a task belongs to.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "inprogress"
	StatusDone       Status = "done"
)

// Statuses lists the board columns in render order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusDone}

// ParseStatus validates a raw column identifier.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	return slices.Contains(Statuses, s)
}

// Priority is a descriptive field and has no effect on ordering.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPriority, s)
	}
	return p, nil
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// AssignedToEveryone marks a task assigned to all organization members.
const AssignedToEveryone = "everyone"

// Task represents a single board card. Owner is the user who created it;
// personal tasks (no organization) are only visible to their owner.
type Task struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Status       Status     `json:"status"`
	Priority     Priority   `json:"priority,omitempty"`
	Organization string     `json:"organization,omitempty"`
	Order        int        `json:"order"`
	DueDate      *time.Time `json:"dueDate,omitempty"`
	AssignedTo   string     `json:"assignedTo,omitempty"`
	Labels       []string   `json:"labels,omitempty"`
	ClientRef    string     `json:"clientRef,omitempty"`
	Owner        string     `json:"owner,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Clone returns a copy that shares no memory with t.
func (t Task) Clone() Task {
	out := t
	if t.DueDate != nil {
		d := *t.DueDate
		out.DueDate = &d
	}
	if t.Labels != nil {
		out.Labels = append([]string(nil), t.Labels...)
	}
	return out
}

// TaskInput carries the fields accepted when creating a task.
type TaskInput struct {
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Status       Status     `json:"status,omitempty"`
	Priority     Priority   `json:"priority"`
	Organization string     `json:"organization,omitempty"`
	Order        *int       `json:"order,omitempty"`
	DueDate      *time.Time `json:"dueDate,omitempty"`
	AssignedTo   string     `json:"assignedTo,omitempty"`
	Labels       []string   `json:"labels,omitempty"`
	ClientRef    string     `json:"clientRef,omitempty"`
}

// Validate applies the same required-field rules the task schema enforces.
func (in TaskInput) Validate() error {
	var missing []string
	if strings.TrimSpace(in.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(in.Description) == "" {
		missing = append(missing, "description")
	}
	if in.DueDate == nil {
		missing = append(missing, "dueDate")
	}
	if in.Priority == "" {
		missing = append(missing, "priority")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidTask, strings.Join(missing, ", "))
	}
	if !in.Priority.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPriority, in.Priority)
	}
	if in.Status != "" && !in.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, in.Status)
	}
	return nil
}

// NewTask builds the record for a validated input. Status defaults to todo.
func (in TaskInput) NewTask(id string, now time.Time) Task {
	t := Task{
		ID:           id,
		Title:        strings.TrimSpace(in.Title),
		Description:  strings.TrimSpace(in.Description),
		Status:       in.Status,
		Priority:     in.Priority,
		Organization: in.Organization,
		AssignedTo:   in.AssignedTo,
		ClientRef:    in.ClientRef,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if t.Status == "" {
		t.Status = StatusTodo
	}
	if in.Order != nil {
		t.Order = *in.Order
	}
	if in.DueDate != nil {
		d := *in.DueDate
		t.DueDate = &d
	}
	if in.Labels != nil {
		t.Labels = append([]string(nil), in.Labels...)
	}
	return t
}

// TaskPatch carries a partial update. Nil fields are left unchanged.
type TaskPatch struct {
	Title        *string    `json:"title,omitempty"`
	Description  *string    `json:"description,omitempty"`
	Status       *Status    `json:"status,omitempty"`
	Priority     *Priority  `json:"priority,omitempty"`
	Organization *string    `json:"organization,omitempty"`
	Order        *int       `json:"order,omitempty"`
	DueDate      *time.Time `json:"dueDate,omitempty"`
	AssignedTo   *string    `json:"assignedTo,omitempty"`
	Labels       *[]string  `json:"labels,omitempty"`
}

func (p TaskPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil && p.Priority == nil &&
		p.Organization == nil && p.Order == nil && p.DueDate == nil && p.AssignedTo == nil && p.Labels == nil
}

func (p TaskPatch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return fmt.Errorf("%w: title must not be empty", ErrInvalidTask)
	}
	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, *p.Status)
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPriority, *p.Priority)
	}
	return nil
}

// Apply returns t with the patch fields written over it.
func (p TaskPatch) Apply(t Task) Task {
	out := t.Clone()
	if p.Title != nil {
		out.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.Priority != nil {
		out.Priority = *p.Priority
	}
	if p.Organization != nil {
		out.Organization = *p.Organization
	}
	if p.Order != nil {
		out.Order = *p.Order
	}
	if p.DueDate != nil {
		d := *p.DueDate
		out.DueDate = &d
	}
	if p.AssignedTo != nil {
		out.AssignedTo = *p.AssignedTo
	}
	if p.Labels != nil {
		out.Labels = append([]string(nil), (*p.Labels)...)
	}
	return out
}
