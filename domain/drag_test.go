package domain

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func sampleBoard() Board {
	return Partition([]Task{
		{ID: "t1", Title: "one", Status: StatusTodo},
		{ID: "t2", Title: "two", Status: StatusTodo},
		{ID: "t3", Title: "three", Status: StatusTodo},
		{ID: "p1", Title: "progress", Status: StatusInProgress},
		{ID: "d1", Title: "done", Status: StatusDone},
	})
}

func loc(col Status, idx int) *Location {
	return &Location{DroppableID: col, Index: idx}
}

func TestApplyDragNoOp(t *testing.T) {
	tests := map[string]DragResult{
		"cancelled": {Source: Location{DroppableID: StatusTodo, Index: 0}, DraggableID: "t1"},
		"same spot": {Source: Location{DroppableID: StatusTodo, Index: 1}, Destination: loc(StatusTodo, 1), DraggableID: "t2"},
	}
	for name, r := range tests {
		t.Run(name, func(t *testing.T) {
			b := sampleBoard()
			got, moved, err := ApplyDrag(b, r)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if moved != nil {
				t.Fatalf("expected no mutation, got %#v", moved)
			}
			if !reflect.DeepEqual(got, sampleBoard()) {
				t.Fatalf("board changed on no-op drag")
			}
		})
	}
}

func TestApplyDragSameColumnReorder(t *testing.T) {
	b := sampleBoard()
	got, moved, err := ApplyDrag(b, DragResult{
		Source:      Location{DroppableID: StatusTodo, Index: 0},
		Destination: loc(StatusTodo, 2),
		DraggableID: "t1",
	})
	if err != nil {
		t.Fatalf("apply drag: %v", err)
	}
	if moved != nil {
		t.Fatalf("reorder must not produce a mutation, got %#v", moved)
	}
	if ids := strings.Join(columnIDs(t, got, StatusTodo), ","); ids != "t2,t3,t1" {
		t.Fatalf("unexpected order: %s", ids)
	}
	c, _ := got.Column(StatusTodo)
	if c.Tasks[2].Status != StatusTodo {
		t.Fatalf("status changed on reorder: %s", c.Tasks[2].Status)
	}
	if ids := strings.Join(columnIDs(t, b, StatusTodo), ","); ids != "t1,t2,t3" {
		t.Fatalf("input board mutated: %s", ids)
	}
}

func TestApplyDragCrossColumn(t *testing.T) {
	b := sampleBoard()
	got, moved, err := ApplyDrag(b, DragResult{
		Source:      Location{DroppableID: StatusTodo, Index: 0},
		Destination: loc(StatusDone, 0),
		DraggableID: "t1",
	})
	if err != nil {
		t.Fatalf("apply drag: %v", err)
	}
	if moved == nil {
		t.Fatal("expected mutation payload")
	}
	if moved.ID != "t1" || moved.Status != StatusDone || !moved.Completed() {
		t.Fatalf("unexpected payload: %#v", moved)
	}
	raw := moved.Raw()
	if raw.Status != "done" || raw.Completed == nil || !*raw.Completed {
		t.Fatalf("unexpected raw payload: %#v", raw)
	}
	if ids := strings.Join(columnIDs(t, got, StatusTodo), ","); ids != "t2,t3" {
		t.Fatalf("todo column: %s", ids)
	}
	if ids := strings.Join(columnIDs(t, got, StatusDone), ","); ids != "t1,d1" {
		t.Fatalf("done column: %s", ids)
	}
	if s := got.Stats(); s.Total != 5 || s.Done != 2 || s.Todo != 2 {
		t.Fatalf("unexpected stats: %#v", s)
	}
	if _, col, _, _ := b.Find("t1"); col != StatusTodo {
		t.Fatalf("input board mutated, t1 in %s", col)
	}
}

func TestApplyDragOutOfDone(t *testing.T) {
	got, moved, err := ApplyDrag(sampleBoard(), DragResult{
		Source:      Location{DroppableID: StatusDone, Index: 0},
		Destination: loc(StatusInProgress, 1),
		DraggableID: "d1",
	})
	if err != nil {
		t.Fatalf("apply drag: %v", err)
	}
	if moved == nil || moved.Completed() || moved.Status != StatusInProgress {
		t.Fatalf("unexpected payload: %#v", moved)
	}
	if ids := strings.Join(columnIDs(t, got, StatusInProgress), ","); ids != "p1,d1" {
		t.Fatalf("in-progress column: %s", ids)
	}
}

func TestApplyDragInvalid(t *testing.T) {
	tests := map[string]DragResult{
		"unknown source":     {Source: Location{DroppableID: "backlog"}, Destination: loc(StatusDone, 0)},
		"unknown dest":       {Source: Location{DroppableID: StatusTodo}, Destination: loc("backlog", 0)},
		"source range":       {Source: Location{DroppableID: StatusTodo, Index: 5}, Destination: loc(StatusDone, 0)},
		"negative dest":      {Source: Location{DroppableID: StatusTodo}, Destination: loc(StatusDone, -1)},
		"dest range":         {Source: Location{DroppableID: StatusTodo}, Destination: loc(StatusDone, 3)},
		"reorder range":      {Source: Location{DroppableID: StatusTodo}, Destination: loc(StatusTodo, 3)},
		"draggable mismatch": {Source: Location{DroppableID: StatusTodo}, Destination: loc(StatusDone, 0), DraggableID: "t2"},
	}
	for name, r := range tests {
		t.Run(name, func(t *testing.T) {
			got, moved, err := ApplyDrag(sampleBoard(), r)
			if !errors.Is(err, ErrInvalidDrag) {
				t.Fatalf("expected ErrInvalidDrag, got %v", err)
			}
			if moved != nil || !reflect.DeepEqual(got, sampleBoard()) {
				t.Fatal("invalid drag must leave the board unchanged")
			}
		})
	}
}

func TestApplyDragAppendToColumnEnd(t *testing.T) {
	got, _, err := ApplyDrag(sampleBoard(), DragResult{
		Source:      Location{DroppableID: StatusTodo, Index: 1},
		Destination: loc(StatusDone, 1),
		DraggableID: "t2",
	})
	if err != nil {
		t.Fatalf("apply drag: %v", err)
	}
	if ids := strings.Join(columnIDs(t, got, StatusDone), ","); ids != "d1,t2" {
		t.Fatalf("done column: %s", ids)
	}
}

func TestToggleComplete(t *testing.T) {
	task := Task{ID: "1", Status: StatusInProgress, Labels: []Label{{Text: "a"}}}
	done := ToggleComplete(task)
	if !done.Completed() {
		t.Fatal("expected toggled task to be completed")
	}
	if reopened := ToggleComplete(done); reopened.Status != StatusTodo {
		t.Fatalf("expected reopened task in todo, got %s", reopened.Status)
	}
	done.Labels[0].Text = "changed"
	if task.Labels[0].Text != "a" {
		t.Fatal("toggle must not share labels with the input")
	}
}

func TestMoveTask(t *testing.T) {
	b := sampleBoard()
	task, _, _, _ := b.Find("t2")
	got := MoveTask(b, ToggleComplete(task))
	if ids := strings.Join(columnIDs(t, got, StatusDone), ","); ids != "d1,t2" {
		t.Fatalf("done column: %s", ids)
	}
	if ids := strings.Join(columnIDs(t, got, StatusTodo), ","); ids != "t1,t3" {
		t.Fatalf("todo column: %s", ids)
	}

	task.Title = "renamed"
	got = MoveTask(b, task)
	moved, col, idx, _ := got.Find("t2")
	if moved.Title != "renamed" || col != StatusTodo || idx != 1 {
		t.Fatalf("unexpected in-place update: %#v %s %d", moved, col, idx)
	}

	if !reflect.DeepEqual(MoveTask(b, Task{ID: "missing", Status: StatusDone}), b) {
		t.Fatal("moving an unknown task must not change the board")
	}
}
