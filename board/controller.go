package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"prism-board/domain"
)

// ErrUnknownTask is returned when a gesture names a task that is not on the board.
var ErrUnknownTask = errors.New("task not on board")

// Options configures a Controller.
type Options struct {
	Layout            domain.Layout
	NotificationDelay time.Duration
	MutationTimeout   time.Duration
	// IdleTTL drops an owner's session after this long without requests or
	// stream subscribers. Zero keeps sessions until Close.
	IdleTTL time.Duration
	Logger  *log.Logger
}

// Controller owns one owner's board. The board is replaced wholesale by
// reloads and patched only by optimistic gestures, both under the lock.
type Controller struct {
	owner      string
	store      TaskStore
	layout     domain.Layout
	logger     *log.Logger
	broker     *broker
	notifier   *Notifier
	dispatcher *Dispatcher

	mu       sync.RWMutex
	board    domain.Board
	loadedAt time.Time
}

// NewController creates a controller with an empty board. Call Load to fetch
// the owner's tasks.
func NewController(owner string, store TaskStore, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	delay := opts.NotificationDelay
	if delay == 0 {
		delay = DefaultNotificationDelay
	}
	c := &Controller{
		owner:  owner,
		store:  store,
		layout: opts.Layout,
		logger: logger,
		broker: newBroker(),
		board:  opts.Layout.Partition(nil),
	}
	c.notifier = NewNotifier(delay, c.broker.notify)
	c.dispatcher = NewDispatcher(store, c.notifier, c.Load, opts.MutationTimeout, logger)
	return c
}

// Owner returns the owner id the board is scoped to.
func (c *Controller) Owner() string { return c.owner }

// Notifier returns the controller's notification slot.
func (c *Controller) Notifier() *Notifier { return c.notifier }

// Dispatcher returns the controller's mutation dispatcher.
func (c *Controller) Dispatcher() *Dispatcher { return c.dispatcher }

// InFlight returns the number of unresolved remote mutations.
func (c *Controller) InFlight() int { return c.dispatcher.InFlight() }

// Subscribe returns a channel signalled whenever the board or the
// notification changes, and a function to stop the subscription.
func (c *Controller) Subscribe() (<-chan struct{}, func()) {
	return c.broker.subscribe()
}

// Board returns the current board.
func (c *Controller) Board() domain.Board {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.board
}

// Stats summarizes the current board.
func (c *Controller) Stats() domain.Stats {
	return c.Board().Stats()
}

// LoadedAt returns when the board was last replaced by a reload.
func (c *Controller) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

// Load fetches every task of the owner and replaces the board.
func (c *Controller) Load(ctx context.Context) error {
	raws, err := c.store.FetchTasksByOwner(ctx, c.owner)
	if err != nil {
		return fmt.Errorf("fetch tasks for %s: %w", c.owner, err)
	}
	tasks := domain.NormalizeBatch(raws)
	if skipped := len(raws) - len(tasks); skipped > 0 {
		c.logger.WithFields(log.Fields{"owner": c.owner, "skipped": skipped}).Debug("board.normalize.skipped")
	}
	b := c.layout.Partition(tasks)

	c.mu.Lock()
	c.board = b
	c.loadedAt = time.Now()
	c.mu.Unlock()
	c.broker.notify()
	return nil
}

// Drag applies a drag gesture to the board immediately. When the task changed
// column the returned mutation must be dispatched to persist it; reorders
// within a column and no-op gestures return nil.
func (c *Controller) Drag(r domain.DragResult) (*Mutation, error) {
	c.mu.Lock()
	next, moved, err := domain.ApplyDrag(c.board, r)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	changed := !r.NoOp()
	c.board = next
	c.mu.Unlock()
	if changed {
		c.broker.notify()
	}
	if moved == nil {
		return nil, nil
	}
	return &Mutation{Kind: MutationUpdate, Task: moved.Raw(), Moved: true}, nil
}

// Toggle flips a task between done and todo on the board immediately and
// returns the update to dispatch.
func (c *Controller) Toggle(id string) (*Mutation, error) {
	c.mu.Lock()
	task, _, _, ok := c.board.Find(id)
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	toggled := domain.ToggleComplete(task)
	c.board = domain.MoveTask(c.board, toggled)
	c.mu.Unlock()
	c.broker.notify()
	return &Mutation{Kind: MutationUpdate, Task: toggled.Raw(), Moved: true}, nil
}

// Create builds the create mutation for a drafted task.
func (c *Controller) Create(d domain.TaskDraft) (*Mutation, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &Mutation{Kind: MutationCreate, Task: domain.NewTaskPayload(d, c.owner)}, nil
}

// Edit builds the update mutation applying a draft to an existing task.
func (c *Controller) Edit(id string, d domain.TaskDraft) (*Mutation, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	task, _, _, ok := c.Board().Find(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	edited := domain.EditPayload(task, d)
	if edited.Owner == "" {
		edited.Owner = c.owner
	}
	return &Mutation{Kind: MutationUpdate, Task: edited.Raw(), Moved: edited.Status != task.Status}, nil
}

// Delete builds the delete mutation for a task on the board.
func (c *Controller) Delete(id string) (*Mutation, error) {
	if _, _, _, ok := c.Board().Find(id); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	return &Mutation{Kind: MutationDelete, TaskID: id}, nil
}

// Dispatch sends a mutation and reconciles the board when it succeeds.
func (c *Controller) Dispatch(ctx context.Context, m Mutation) error {
	return c.dispatcher.Run(ctx, m)
}

// Close releases the controller's timers.
func (c *Controller) Close() {
	c.notifier.Stop()
}
