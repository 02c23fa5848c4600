package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"prism-board/domain"
)

const (
	EventTaskCreated = "task-created"
	EventTaskUpdated = "task-updated"
	EventTaskDeleted = "task-deleted"
)

// TaskEvent describes one persisted task change.
type TaskEvent struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Owner      string          `json:"owner"`
	TaskID     string          `json:"taskId"`
	Task       *domain.RawTask `json:"task,omitempty"`
	OccurredAt int64           `json:"occurredAt"`
}

func newTaskEvent(typ, owner, taskID string, task *domain.RawTask, at time.Time) TaskEvent {
	return TaskEvent{
		ID:         uuid.NewString(),
		Type:       typ,
		Owner:      owner,
		TaskID:     taskID,
		Task:       task,
		OccurredAt: at.UnixMilli(),
	}
}

func encodeTaskEvent(ev TaskEvent) (string, error) {
	return sonic.MarshalString(ev)
}

// publish enqueues a change event after a successful write. Failures are
// logged and not returned.
func (s *Storage) publish(ctx context.Context, typ, owner, taskID string, task *domain.RawTask) {
	if s.events == nil {
		return
	}
	ev := newTaskEvent(typ, owner, taskID, task, s.now())
	body, err := encodeTaskEvent(ev)
	if err == nil {
		_, err = s.events.EnqueueMessage(ctx, body, nil)
	}
	if err != nil {
		s.logger.WithFields(log.Fields{
			"event":   typ,
			"owner":   owner,
			"task_id": taskID,
		}).WithError(err).Warn("storage.event.publish_failed")
	}
}
