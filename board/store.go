package board

import (
	"context"

	"prism-board/domain"
)

// TaskStore is the remote task store the board synchronizes with.
type TaskStore interface {
	FetchTasksByOwner(ctx context.Context, owner string) ([]domain.RawTask, error)
	CreateTask(ctx context.Context, task domain.RawTask) (domain.RawTask, error)
	UpdateTask(ctx context.Context, task domain.RawTask) (domain.RawTask, error)
	DeleteTask(ctx context.Context, id string) error
}
