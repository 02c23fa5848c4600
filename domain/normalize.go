package domain

import "strings"

// NormalizeStatus resolves the placement of a record from its status string
// and optional completed flag. An in-progress or done status wins over the
// flag; anything else is done when the flag is set and todo otherwise.
func NormalizeStatus(raw string, completed *bool) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "in-progress", "in_progress":
		return StatusInProgress
	case "done":
		return StatusDone
	}
	if completed != nil && *completed {
		return StatusDone
	}
	return StatusTodo
}

// Normalize converts one remote record into a canonical task. It returns false
// when the record carries no identity.
func Normalize(raw RawTask) (Task, bool) {
	id := raw.Identity()
	if id == "" {
		return Task{}, false
	}
	t := Task{
		ID:      id,
		DueDate: raw.DueDate,
		DueTime: raw.DueTime,
		Status:  NormalizeStatus(raw.Status, raw.Completed),
		Labels:  cloneLabels(raw.Labels),
		Owner:   raw.Owner,
	}
	if raw.Description != nil {
		t.Description = *raw.Description
	}
	switch {
	case t.Description != "":
		t.Title = t.Description
	case raw.Title != nil:
		t.Title = *raw.Title
	}
	return t, true
}

// NormalizeBatch normalizes a fetched batch. Records without an identity are
// skipped and the first record wins when an identity repeats.
func NormalizeBatch(raws []RawTask) []Task {
	tasks := make([]Task, 0, len(raws))
	seen := make(map[string]struct{}, len(raws))
	for _, raw := range raws {
		t, ok := Normalize(raw)
		if !ok {
			continue
		}
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		tasks = append(tasks, t)
	}
	return tasks
}
