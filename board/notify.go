package board

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultNotificationDelay is how long a notification stays visible.
const DefaultNotificationDelay = 5 * time.Second

// Kind classifies a notification.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Notification is a transient message shown after a mutation resolves.
type Notification struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// Notifier holds at most one visible notification. A new notification
// replaces the previous one; each dismisses itself after the configured delay.
type Notifier struct {
	delay    time.Duration
	onChange func()
	now      func() time.Time

	mu      sync.Mutex
	current *Notification
	timer   *time.Timer
}

// NewNotifier creates a notifier. A non-positive delay disables auto-dismiss.
// onChange, if set, is called after every show or dismiss.
func NewNotifier(delay time.Duration, onChange func()) *Notifier {
	return &Notifier{delay: delay, onChange: onChange, now: time.Now}
}

// Show replaces the current notification.
func (n *Notifier) Show(kind Kind, message string) Notification {
	note := Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		Message:   message,
		CreatedAt: n.now().UTC(),
	}
	n.mu.Lock()
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.current = &note
	if n.delay > 0 {
		id := note.ID
		n.timer = time.AfterFunc(n.delay, func() { n.Close(id) })
	}
	n.mu.Unlock()
	n.changed()
	return note
}

// Current returns the visible notification, if any.
func (n *Notifier) Current() (Notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil {
		return Notification{}, false
	}
	return *n.current, true
}

// Close dismisses the notification with the given id. Closing a notification
// that was already replaced or dismissed is a no-op.
func (n *Notifier) Close(id string) bool {
	n.mu.Lock()
	if n.current == nil || n.current.ID != id {
		n.mu.Unlock()
		return false
	}
	n.current = nil
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.mu.Unlock()
	n.changed()
	return true
}

// Stop cancels the pending auto-dismiss timer.
func (n *Notifier) Stop() {
	n.mu.Lock()
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.mu.Unlock()
}

func (n *Notifier) changed() {
	if n.onChange != nil {
		n.onChange()
	}
}
