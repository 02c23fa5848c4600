package domain

import "github.com/bytedance/sonic"

// Column is one of the three fixed board buckets.
type Column struct {
	ID    Status `json:"id"`
	Title string `json:"title"`
	Tasks []Task `json:"tasks"`
}

// Board is the three-column projection of an owner's tasks. The zero value is
// not usable; build boards with Partition or Layout.Partition.
type Board struct {
	columns [len(Statuses)]Column
}

// Layout carries the column titles used when partitioning.
type Layout struct {
	TodoTitle       string `yaml:"todo"`
	InProgressTitle string `yaml:"inProgress"`
	DoneTitle       string `yaml:"done"`
}

// DefaultLayout is used by Partition.
var DefaultLayout = Layout{
	TodoTitle:       "To do",
	InProgressTitle: "In progress",
	DoneTitle:       "Done",
}

// Title returns the configured title for a column, falling back to the default.
func (l Layout) Title(id Status) string {
	var title, fallback string
	switch id {
	case StatusTodo:
		title, fallback = l.TodoTitle, DefaultLayout.TodoTitle
	case StatusInProgress:
		title, fallback = l.InProgressTitle, DefaultLayout.InProgressTitle
	case StatusDone:
		title, fallback = l.DoneTitle, DefaultLayout.DoneTitle
	}
	if title == "" {
		return fallback
	}
	return title
}

// Partition places tasks into columns using DefaultLayout.
func Partition(tasks []Task) Board {
	return DefaultLayout.Partition(tasks)
}

// Partition places every task into the column matching its status, keeping
// input order. Tasks with an unrecognized status land in todo.
func (l Layout) Partition(tasks []Task) Board {
	var b Board
	for i, id := range Statuses {
		b.columns[i] = Column{ID: id, Title: l.Title(id), Tasks: []Task{}}
	}
	for _, t := range tasks {
		i := columnIndex(t.Status)
		if i < 0 {
			t.Status = StatusTodo
			i = 0
		}
		b.columns[i].Tasks = append(b.columns[i].Tasks, t.clone())
	}
	return b
}

func columnIndex(id Status) int {
	for i, s := range Statuses {
		if s == id {
			return i
		}
	}
	return -1
}

// Column returns the column with the given id.
func (b Board) Column(id Status) (Column, bool) {
	i := columnIndex(id)
	if i < 0 {
		return Column{}, false
	}
	return b.columns[i], true
}

// Columns returns the three columns in board order.
func (b Board) Columns() []Column {
	out := make([]Column, len(b.columns))
	copy(out, b.columns[:])
	return out
}

// Tasks flattens the board in column order.
func (b Board) Tasks() []Task {
	var n int
	for _, c := range b.columns {
		n += len(c.Tasks)
	}
	out := make([]Task, 0, n)
	for _, c := range b.columns {
		out = append(out, c.Tasks...)
	}
	return out
}

// Find locates a task by id.
func (b Board) Find(id string) (Task, Status, int, bool) {
	for _, c := range b.columns {
		for i, t := range c.Tasks {
			if t.ID == id {
				return t, c.ID, i, true
			}
		}
	}
	return Task{}, "", -1, false
}

// Stats counts tasks per column.
type Stats struct {
	Todo       int `json:"todo"`
	InProgress int `json:"inProgress"`
	Done       int `json:"done"`
	Total      int `json:"total"`
}

// Stats summarizes the board.
func (b Board) Stats() Stats {
	s := Stats{
		Todo:       len(b.columns[0].Tasks),
		InProgress: len(b.columns[1].Tasks),
		Done:       len(b.columns[2].Tasks),
	}
	s.Total = s.Todo + s.InProgress + s.Done
	return s
}

// MarshalJSON encodes the board as an object keyed by column id.
func (b Board) MarshalJSON() ([]byte, error) {
	out := make(map[Status]Column, len(b.columns))
	for _, c := range b.columns {
		if c.Tasks == nil {
			c.Tasks = []Task{}
		}
		out[c.ID] = c
	}
	return sonic.Marshal(out)
}

// withColumn returns a copy of b with column i replaced.
func (b Board) withColumn(i int, tasks []Task) Board {
	b.columns[i].Tasks = tasks
	return b
}
