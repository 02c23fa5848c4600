package board

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"prism-board/domain"
)

// DefaultMutationTimeout bounds a single remote call.
const DefaultMutationTimeout = 30 * time.Second

// ErrMissingIdentity is returned when an update or delete has no task id, or
// a create has no owner.
var ErrMissingIdentity = errors.New("task identity is required")

// MutationKind names the remote operation of a mutation.
type MutationKind string

const (
	MutationCreate MutationKind = "create"
	MutationUpdate MutationKind = "update"
	MutationDelete MutationKind = "delete"
)

// Mutation is one remote write. Task carries the payload for create and
// update; TaskID identifies the task for delete.
type Mutation struct {
	Kind   MutationKind
	Task   domain.RawTask
	TaskID string
	// Moved marks updates that change the task's column.
	Moved bool
}

func (m Mutation) target() string {
	if m.Kind == MutationDelete {
		return m.TaskID
	}
	return m.Task.Identity()
}

func (m Mutation) validate() error {
	switch m.Kind {
	case MutationCreate:
		if m.Task.Owner == "" {
			return fmt.Errorf("%w: create without owner", ErrMissingIdentity)
		}
	case MutationUpdate, MutationDelete:
		if m.target() == "" {
			return fmt.Errorf("%w: %s without id", ErrMissingIdentity, m.Kind)
		}
	default:
		return fmt.Errorf("unknown mutation kind %q", m.Kind)
	}
	return nil
}

func (m Mutation) successMessage() string {
	switch m.Kind {
	case MutationCreate:
		return "Task created"
	case MutationDelete:
		return "Task deleted"
	}
	if m.Moved {
		return "Task moved"
	}
	return "Task updated"
}

func (m Mutation) failureMessage(err error) string {
	return fmt.Sprintf("Could not %s task: %v", m.Kind, err)
}

// Dispatcher sends mutations to the remote store and reconciles afterwards:
// every call yields exactly one notification, and only successful calls
// trigger a reload. Calls are neither retried nor cancellable.
type Dispatcher struct {
	store    TaskStore
	notifier *Notifier
	reload   func(ctx context.Context) error
	timeout  time.Duration
	logger   *log.Logger
	tracer   trace.Tracer
	inFlight atomic.Int64
}

// NewDispatcher creates a dispatcher. reload is invoked after each successful
// mutation.
func NewDispatcher(store TaskStore, notifier *Notifier, reload func(ctx context.Context) error, timeout time.Duration, logger *log.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultMutationTimeout
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Dispatcher{
		store:    store,
		notifier: notifier,
		reload:   reload,
		timeout:  timeout,
		logger:   logger,
		tracer:   otel.Tracer("prism-board/board"),
	}
}

// Create sends a new task.
func (d *Dispatcher) Create(ctx context.Context, task domain.RawTask) error {
	return d.Run(ctx, Mutation{Kind: MutationCreate, Task: task})
}

// Update sends a modified task.
func (d *Dispatcher) Update(ctx context.Context, task domain.RawTask) error {
	return d.Run(ctx, Mutation{Kind: MutationUpdate, Task: task})
}

// Delete removes a task.
func (d *Dispatcher) Delete(ctx context.Context, id string) error {
	return d.Run(ctx, Mutation{Kind: MutationDelete, TaskID: id})
}

// InFlight returns the number of remote calls that have not resolved yet.
func (d *Dispatcher) InFlight() int {
	return int(d.inFlight.Load())
}

// Run executes one mutation: remote call, notification, reload on success.
// The caller's cancellation does not abort the remote call.
func (d *Dispatcher) Run(ctx context.Context, m Mutation) error {
	fields := log.Fields{"mutation": m.Kind, "task": m.target()}
	if err := m.validate(); err != nil {
		d.notifier.Show(KindError, m.failureMessage(err))
		d.logger.WithFields(fields).WithError(err).Warn("board.mutation.rejected")
		return err
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()
	ctx, span := d.tracer.Start(ctx, "board.mutation", trace.WithAttributes(
		attribute.String("mutation.kind", string(m.Kind)),
		attribute.String("task.id", m.target()),
	))
	defer span.End()

	d.inFlight.Add(1)
	start := time.Now()
	err := d.send(ctx, m)
	d.inFlight.Add(-1)
	fields["remote_ms"] = float64(time.Since(start)) / float64(time.Millisecond)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.notifier.Show(KindError, m.failureMessage(err))
		d.logger.WithFields(fields).WithError(err).Error("board.mutation.failed")
		return err
	}

	d.notifier.Show(KindSuccess, m.successMessage())
	d.logger.WithFields(fields).Debug("board.mutation.succeeded")
	if d.reload != nil {
		if rerr := d.reload(ctx); rerr != nil {
			span.AddEvent("reload failed")
			d.logger.WithFields(fields).WithError(rerr).Warn("board.reload.failed")
		}
	}
	return nil
}

func (d *Dispatcher) send(ctx context.Context, m Mutation) error {
	switch m.Kind {
	case MutationCreate:
		_, err := d.store.CreateTask(ctx, withConsistentStatus(m.Task))
		return err
	case MutationUpdate:
		task := withConsistentStatus(m.Task)
		if task.ID == "" {
			task.ID = task.LegacyID
		}
		_, err := d.store.UpdateTask(ctx, task)
		return err
	default:
		return d.store.DeleteTask(ctx, m.TaskID)
	}
}

// withConsistentStatus rewrites status and completed so both describe the
// same placement, using the normalizer's precedence.
func withConsistentStatus(task domain.RawTask) domain.RawTask {
	status := domain.NormalizeStatus(task.Status, task.Completed)
	completed := status == domain.StatusDone
	task.Status = string(status)
	task.Completed = &completed
	return task
}
