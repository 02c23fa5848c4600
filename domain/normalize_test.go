package domain

import (
	"reflect"
	"testing"
)

func ptrString(s string) *string { return &s }
func ptrBool(b bool) *bool       { return &b }

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    string
		completed *bool
		want      Status
	}{
		{"dash", "in-progress", nil, StatusInProgress},
		{"underscore", "in_progress", nil, StatusInProgress},
		{"upper", " IN_PROGRESS ", nil, StatusInProgress},
		{"done", "done", nil, StatusDone},
		{"done wins over false flag", "done", ptrBool(false), StatusDone},
		{"in progress wins over true flag", "in-progress", ptrBool(true), StatusInProgress},
		{"completed only", "", ptrBool(true), StatusDone},
		{"not completed", "", ptrBool(false), StatusTodo},
		{"todo", "todo", nil, StatusTodo},
		{"unknown", "archived", nil, StatusTodo},
		{"empty", "", nil, StatusTodo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeStatus(tt.status, tt.completed); got != tt.want {
				t.Fatalf("NormalizeStatus(%q, %v) = %q, want %q", tt.status, tt.completed, got, tt.want)
			}
		})
	}
}

func TestNormalizeTitleFromDescription(t *testing.T) {
	task, ok := Normalize(RawTask{ID: "1", Title: ptrString("title"), Description: ptrString("desc")})
	if !ok {
		t.Fatal("expected record to normalize")
	}
	if task.Title != "desc" || task.Description != "desc" {
		t.Fatalf("unexpected title/description: %q/%q", task.Title, task.Description)
	}

	task, _ = Normalize(RawTask{ID: "2", Title: ptrString("only title")})
	if task.Title != "only title" || task.Description != "" {
		t.Fatalf("unexpected title fallback: %#v", task)
	}

	task, _ = Normalize(RawTask{ID: "3", Title: ptrString("t"), Description: ptrString("")})
	if task.Title != "t" {
		t.Fatalf("expected empty description to fall back to title, got %q", task.Title)
	}

	task, _ = Normalize(RawTask{ID: "4"})
	if task.Title != "" {
		t.Fatalf("expected empty title, got %q", task.Title)
	}
}

func TestNormalizeUsesSecondaryIdentity(t *testing.T) {
	task, ok := Normalize(RawTask{LegacyID: "mongo-1", Status: "done"})
	if !ok || task.ID != "mongo-1" {
		t.Fatalf("expected legacy id to be used, got %#v ok=%v", task, ok)
	}
	if !task.Completed() {
		t.Fatal("expected done task to be completed")
	}
}

func TestNormalizeBatchSkipsRecordsWithoutIdentity(t *testing.T) {
	tasks := NormalizeBatch([]RawTask{{Status: "done"}, {ID: "a"}, {Description: ptrString("orphan")}})
	if len(tasks) != 1 || tasks[0].ID != "a" {
		t.Fatalf("unexpected tasks: %#v", tasks)
	}
}

func TestNormalizeBatchFirstOccurrenceWins(t *testing.T) {
	tasks := NormalizeBatch([]RawTask{
		{ID: "1", Description: ptrString("first"), Status: "todo"},
		{ID: "2", Description: ptrString("other")},
		{ID: "1", Description: ptrString("second"), Status: "done"},
		{LegacyID: "2", Description: ptrString("legacy dup")},
	})
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].Title != "first" || tasks[0].Status != StatusTodo {
		t.Fatalf("expected first record to win, got %#v", tasks[0])
	}
	if tasks[1].Title != "other" {
		t.Fatalf("expected primary id record to win, got %#v", tasks[1])
	}
}

func TestNormalizeBatchEmpty(t *testing.T) {
	for _, in := range [][]RawTask{nil, {}} {
		tasks := NormalizeBatch(in)
		if tasks == nil || len(tasks) != 0 {
			t.Fatalf("expected empty non-nil slice, got %#v", tasks)
		}
	}
}

func TestNormalizeCompletedMatchesStatus(t *testing.T) {
	raws := []RawTask{
		{ID: "1", Status: "todo"},
		{ID: "2", Status: "in_progress", Completed: ptrBool(true)},
		{ID: "3", Completed: ptrBool(true)},
		{ID: "4", Status: "done", Completed: ptrBool(false)},
		{ID: "5", Status: "weird"},
	}
	for _, task := range NormalizeBatch(raws) {
		if task.Completed() != (task.Status == StatusDone) {
			t.Fatalf("task %s: completed=%v status=%s", task.ID, task.Completed(), task.Status)
		}
		raw := task.Raw()
		if raw.Completed == nil || *raw.Completed != (raw.Status == string(StatusDone)) {
			t.Fatalf("task %s: raw payload inconsistent: %#v", task.ID, raw)
		}
	}
}

func TestNormalizeBatchIdempotent(t *testing.T) {
	raws := []RawTask{
		{ID: "1", Title: ptrString("a"), Status: "in_progress", Labels: []Label{{Text: "x", Color: "#fff"}}},
		{ID: "2", Description: ptrString("b"), Completed: ptrBool(true), DueDate: "2024-01-02"},
		{ID: "1", Title: ptrString("dup")},
	}
	first := NormalizeBatch(raws)
	second := NormalizeBatch(raws)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("normalizing twice differs:\n%#v\n%#v", first, second)
	}

	back := make([]RawTask, len(first))
	for i, task := range first {
		back[i] = task.Raw()
	}
	if again := NormalizeBatch(back); !reflect.DeepEqual(first, again) {
		t.Fatalf("re-normalizing payloads differs:\n%#v\n%#v", first, again)
	}
}
