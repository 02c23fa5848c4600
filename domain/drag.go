package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidDrag is returned for gestures that do not match the board.
var ErrInvalidDrag = errors.New("invalid drag")

// Location is a position inside a column.
type Location struct {
	DroppableID Status `json:"droppableId"`
	Index       int    `json:"index"`
}

// Combine names the item a task was dropped onto. Combining is not
// supported; the field is accepted so a drop result can be forwarded as is.
type Combine struct {
	DraggableID string `json:"draggableId"`
	DroppableID Status `json:"droppableId"`
}

// DragResult describes a finished drag gesture. Destination is nil when the
// gesture was cancelled. Type, Reason, Mode and Combine are carried by the
// drag layer and ignored.
type DragResult struct {
	Source      Location  `json:"source"`
	Destination *Location `json:"destination"`
	DraggableID string    `json:"draggableId"`
	Type        string    `json:"type,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Mode        string    `json:"mode,omitempty"`
	Combine     *Combine  `json:"combine,omitempty"`
}

// NoOp reports whether the gesture leaves the board unchanged.
func (r DragResult) NoOp() bool {
	return r.Destination == nil || *r.Destination == r.Source
}

// CrossColumn reports whether the gesture moves a task between columns.
func (r DragResult) CrossColumn() bool {
	return r.Destination != nil && r.Destination.DroppableID != r.Source.DroppableID
}

// ApplyDrag computes the board after a drag gesture. When the task changed
// column, the moved task is returned as the payload to persist; reorders
// inside a column return a nil task. On error the input board is returned.
func ApplyDrag(b Board, r DragResult) (Board, *Task, error) {
	if r.NoOp() {
		return b, nil, nil
	}
	src := columnIndex(r.Source.DroppableID)
	if src < 0 {
		return b, nil, fmt.Errorf("%w: unknown source column %q", ErrInvalidDrag, r.Source.DroppableID)
	}
	dst := columnIndex(r.Destination.DroppableID)
	if dst < 0 {
		return b, nil, fmt.Errorf("%w: unknown destination column %q", ErrInvalidDrag, r.Destination.DroppableID)
	}
	srcTasks := b.columns[src].Tasks
	if r.Source.Index < 0 || r.Source.Index >= len(srcTasks) {
		return b, nil, fmt.Errorf("%w: source index %d out of range", ErrInvalidDrag, r.Source.Index)
	}
	moved := srcTasks[r.Source.Index]
	if r.DraggableID != "" && moved.ID != r.DraggableID {
		return b, nil, fmt.Errorf("%w: task %s is not at %s[%d]", ErrInvalidDrag, r.DraggableID, r.Source.DroppableID, r.Source.Index)
	}

	remaining := remove(srcTasks, r.Source.Index)
	if src == dst {
		if r.Destination.Index < 0 || r.Destination.Index > len(remaining) {
			return b, nil, fmt.Errorf("%w: destination index %d out of range", ErrInvalidDrag, r.Destination.Index)
		}
		return b.withColumn(src, insert(remaining, r.Destination.Index, moved)), nil, nil
	}

	dstTasks := b.columns[dst].Tasks
	if r.Destination.Index < 0 || r.Destination.Index > len(dstTasks) {
		return b, nil, fmt.Errorf("%w: destination index %d out of range", ErrInvalidDrag, r.Destination.Index)
	}
	moved = moved.clone()
	moved.Status = r.Destination.DroppableID
	out := b.withColumn(src, remaining).withColumn(dst, insert(dstTasks, r.Destination.Index, moved))
	return out, &moved, nil
}

// ToggleComplete flips a task between done and todo.
func ToggleComplete(t Task) Task {
	t = t.clone()
	if t.Completed() {
		t.Status = StatusTodo
	} else {
		t.Status = StatusDone
	}
	return t
}

// MoveTask returns a board where the task with the given id is placed at the
// end of the column matching its new status. Used for optimistic patches that
// do not come from a drag gesture.
func MoveTask(b Board, t Task) Board {
	_, from, idx, ok := b.Find(t.ID)
	if !ok {
		return b
	}
	src := columnIndex(from)
	dst := columnIndex(t.Status)
	if dst < 0 {
		return b
	}
	if src == dst {
		tasks := make([]Task, len(b.columns[src].Tasks))
		copy(tasks, b.columns[src].Tasks)
		tasks[idx] = t.clone()
		return b.withColumn(src, tasks)
	}
	out := b.withColumn(src, remove(b.columns[src].Tasks, idx))
	dstTasks := out.columns[dst].Tasks
	return out.withColumn(dst, insert(dstTasks, len(dstTasks), t.clone()))
}

func remove(tasks []Task, i int) []Task {
	out := make([]Task, 0, len(tasks)-1)
	out = append(out, tasks[:i]...)
	return append(out, tasks[i+1:]...)
}

func insert(tasks []Task, i int, t Task) []Task {
	out := make([]Task, 0, len(tasks)+1)
	out = append(out, tasks[:i]...)
	out = append(out, t)
	return append(out, tasks[i:]...)
}
