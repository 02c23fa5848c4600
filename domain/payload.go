package domain

import (
	"errors"
	"strings"
)

// ErrEmptyTitle is returned when a draft has no title.
var ErrEmptyTitle = errors.New("task title is required")

// TaskDraft is the content of the task form, used for both create and edit.
type TaskDraft struct {
	Title     string  `json:"title"`
	DueDate   string  `json:"dueDate,omitempty"`
	DueTime   string  `json:"dueTime,omitempty"`
	Status    Status  `json:"status,omitempty"`
	Completed bool    `json:"completed"`
	Labels    []Label `json:"labels,omitempty"`
}

// Validate checks the draft before it is turned into a payload.
func (d TaskDraft) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return ErrEmptyTitle
	}
	return nil
}

// NewTaskPayload builds the create payload for owner. The remote store reads
// the title from the description field, so both carry the draft title.
func NewTaskPayload(d TaskDraft, owner string) RawTask {
	status := StatusTodo
	if d.Completed {
		status = StatusDone
	}
	t := Task{
		Title:       d.Title,
		Description: d.Title,
		DueDate:     d.DueDate,
		DueTime:     d.DueTime,
		Status:      status,
		Labels:      cloneLabels(d.Labels),
		Owner:       owner,
	}
	return t.Raw()
}

// EditPayload merges a draft into an existing task. A completed draft is done.
// Otherwise a todo or in-progress draft status applies; with no status (or a
// done status without the completed flag) the task keeps its column, except
// that a task unchecked from done goes back to todo.
func EditPayload(t Task, d TaskDraft) Task {
	out := t.clone()
	out.Title = d.Title
	out.Description = d.Title
	out.DueDate = d.DueDate
	out.DueTime = d.DueTime
	if d.Labels != nil {
		out.Labels = cloneLabels(d.Labels)
	}
	switch {
	case d.Completed:
		out.Status = StatusDone
	case d.Status.Valid() && d.Status != StatusDone:
		out.Status = d.Status
	case t.Status == StatusDone:
		out.Status = StatusTodo
	}
	return out
}
