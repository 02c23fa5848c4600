package domain

import "github.com/bytedance/sonic"

// Status is the board placement of a task. Column ids use the same values.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
)

// Statuses lists every status in board order.
var Statuses = [...]Status{StatusTodo, StatusInProgress, StatusDone}

// Valid reports whether s is one of the three board statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Label is a colored tag attached to a task.
type Label struct {
	Text  string `json:"text"`
	Color string `json:"color"`
}

// Task is the canonical in-memory task. Completion is derived from Status and
// never stored separately.
type Task struct {
	ID          string
	Title       string
	Description string
	DueDate     string
	DueTime     string
	Status      Status
	Labels      []Label
	Owner       string
}

// Completed reports whether the task sits in the done column.
func (t Task) Completed() bool { return t.Status == StatusDone }

type taskJSON struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	DueDate     string  `json:"dueDate,omitempty"`
	DueTime     string  `json:"dueTime,omitempty"`
	Status      Status  `json:"status"`
	Completed   bool    `json:"completed"`
	Labels      []Label `json:"labels"`
	Owner       string  `json:"owner,omitempty"`
}

// MarshalJSON emits the task with its derived completed flag.
func (t Task) MarshalJSON() ([]byte, error) {
	labels := t.Labels
	if labels == nil {
		labels = []Label{}
	}
	return sonic.Marshal(taskJSON{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		DueDate:     t.DueDate,
		DueTime:     t.DueTime,
		Status:      t.Status,
		Completed:   t.Completed(),
		Labels:      labels,
		Owner:       t.Owner,
	})
}

// Raw converts the task back to the remote store shape. Status and completed
// are always consistent in the result.
func (t Task) Raw() RawTask {
	title := t.Title
	desc := t.Description
	completed := t.Completed()
	return RawTask{
		ID:          t.ID,
		Title:       &title,
		Description: &desc,
		Status:      string(t.Status),
		Completed:   &completed,
		DueDate:     t.DueDate,
		DueTime:     t.DueTime,
		Labels:      cloneLabels(t.Labels),
		Owner:       t.Owner,
	}
}

// clone returns a copy that shares no slices with t.
func (t Task) clone() Task {
	t.Labels = cloneLabels(t.Labels)
	return t
}

func cloneLabels(in []Label) []Label {
	if in == nil {
		return nil
	}
	out := make([]Label, len(in))
	copy(out, in)
	return out
}

// RawTask is a task record as exchanged with the remote task store. Fields
// that may be absent are pointers.
type RawTask struct {
	ID          string  `json:"id,omitempty"`
	LegacyID    string  `json:"_id,omitempty"`
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      string  `json:"status,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
	DueDate     string  `json:"dueDate,omitempty"`
	DueTime     string  `json:"dueTime,omitempty"`
	Labels      []Label `json:"labels,omitempty"`
	Owner       string  `json:"owner,omitempty"`
}

// Identity returns the record id, falling back to the secondary identifier.
func (r RawTask) Identity() string {
	if r.ID != "" {
		return r.ID
	}
	return r.LegacyID
}
