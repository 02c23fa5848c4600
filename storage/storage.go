package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"prism-board/domain"
)

// ErrTaskNotFound is returned when an update or delete targets a missing task.
var ErrTaskNotFound = errors.New("task not found")

// ErrMissingOwner is returned when a write has no owner to partition by.
var ErrMissingOwner = errors.New("task owner is required")

// Storage keeps tasks in an Azure table partitioned by owner and optionally
// publishes a TaskEvent for every successful write.
type Storage struct {
	taskTable *aztables.Client
	events    *azqueue.QueueClient
	logger    *log.Logger
	now       func() time.Time
}

// New creates a Storage from the given connection string. eventsQueue may be
// empty to disable change events.
func New(connStr, tasksTable, eventsQueue string, logger *log.Logger) (*Storage, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Second * 30,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	s := &Storage{taskTable: svc.NewClient(tasksTable), logger: logger, now: time.Now}
	if eventsQueue == "" {
		return s, nil
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 30,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	s.events, err = azqueue.NewQueueClientFromConnectionString(connStr, eventsQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return s, nil
}

type taskEntity struct {
	aztables.Entity
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Status      string `json:"Status"`
	Completed   bool   `json:"Completed"`
	DueDate     string `json:"DueDate,omitempty"`
	DueTime     string `json:"DueTime,omitempty"`
	Labels      string `json:"Labels,omitempty"`
}

func entityFromRaw(t domain.RawTask) (taskEntity, error) {
	ent := taskEntity{
		Entity:  aztables.Entity{PartitionKey: t.Owner, RowKey: t.Identity()},
		Status:  t.Status,
		DueDate: t.DueDate,
		DueTime: t.DueTime,
	}
	if t.Title != nil {
		ent.Title = *t.Title
	}
	if t.Description != nil {
		ent.Description = *t.Description
	}
	if t.Completed != nil {
		ent.Completed = *t.Completed
	}
	if len(t.Labels) > 0 {
		labels, err := sonic.MarshalString(t.Labels)
		if err != nil {
			return taskEntity{}, fmt.Errorf("encode labels: %w", err)
		}
		ent.Labels = labels
	}
	return ent, nil
}

func (e taskEntity) raw() (domain.RawTask, error) {
	title := e.Title
	desc := e.Description
	completed := e.Completed
	t := domain.RawTask{
		ID:          e.RowKey,
		Title:       &title,
		Description: &desc,
		Status:      e.Status,
		Completed:   &completed,
		DueDate:     e.DueDate,
		DueTime:     e.DueTime,
		Owner:       e.PartitionKey,
	}
	if e.Labels != "" {
		if err := sonic.UnmarshalString(e.Labels, &t.Labels); err != nil {
			return domain.RawTask{}, fmt.Errorf("decode labels of %s: %w", e.RowKey, err)
		}
	}
	return t, nil
}

func decodeTaskEntity(data []byte) (domain.RawTask, error) {
	var ent taskEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.RawTask{}, err
	}
	return ent.raw()
}

func quote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func ownerFilter(owner string) string {
	return "PartitionKey eq " + quote(owner)
}

func idFilter(id string) string {
	return "RowKey eq " + quote(id)
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}

// FetchTasksByOwner retrieves every task of the owner.
func (s *Storage) FetchTasksByOwner(ctx context.Context, owner string) ([]domain.RawTask, error) {
	filter := ownerFilter(owner)
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.RawTask{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			t, err := decodeTaskEntity(e)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

// CreateTask inserts a task, assigning a new id when none is given.
func (s *Storage) CreateTask(ctx context.Context, t domain.RawTask) (domain.RawTask, error) {
	if t.Owner == "" {
		return domain.RawTask{}, ErrMissingOwner
	}
	if t.Identity() == "" {
		t.ID = uuid.NewString()
	}
	ent, err := entityFromRaw(t)
	if err != nil {
		return domain.RawTask{}, err
	}
	payload, err := sonic.Marshal(ent)
	if err != nil {
		return domain.RawTask{}, err
	}
	if _, err := s.taskTable.AddEntity(ctx, payload, nil); err != nil {
		return domain.RawTask{}, err
	}
	created, err := ent.raw()
	if err != nil {
		return domain.RawTask{}, err
	}
	s.publish(ctx, EventTaskCreated, created.Owner, created.ID, &created)
	return created, nil
}

// UpdateTask replaces a stored task.
func (s *Storage) UpdateTask(ctx context.Context, t domain.RawTask) (domain.RawTask, error) {
	id := t.Identity()
	if id == "" {
		return domain.RawTask{}, fmt.Errorf("%w: update without id", ErrTaskNotFound)
	}
	if t.Owner == "" {
		owner, err := s.locate(ctx, id)
		if err != nil {
			return domain.RawTask{}, err
		}
		t.Owner = owner
	}
	ent, err := entityFromRaw(t)
	if err != nil {
		return domain.RawTask{}, err
	}
	payload, err := sonic.Marshal(ent)
	if err != nil {
		return domain.RawTask{}, err
	}
	et := azcore.ETagAny
	_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeReplace})
	if err != nil {
		if isNotFound(err) {
			return domain.RawTask{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		return domain.RawTask{}, err
	}
	updated, err := ent.raw()
	if err != nil {
		return domain.RawTask{}, err
	}
	s.publish(ctx, EventTaskUpdated, updated.Owner, updated.ID, &updated)
	return updated, nil
}

// DeleteTask removes a task by id.
func (s *Storage) DeleteTask(ctx context.Context, id string) error {
	owner, err := s.locate(ctx, id)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	if _, err := s.taskTable.DeleteEntity(ctx, owner, id, &aztables.DeleteEntityOptions{IfMatch: &et}); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		return err
	}
	s.publish(ctx, EventTaskDeleted, owner, id, nil)
	return nil
}

// locate finds the partition holding the task id.
func (s *Storage) locate(ctx context.Context, id string) (string, error) {
	filter := idFilter(id)
	sel := "PartitionKey,RowKey"
	top := int32(1)
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter, Select: &sel, Top: &top})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return "", err
		}
		for _, e := range resp.Entities {
			var ent aztables.Entity
			if err := sonic.Unmarshal(e, &ent); err != nil {
				return "", err
			}
			return ent.PartitionKey, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrTaskNotFound, id)
}
