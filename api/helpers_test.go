package api

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"prism-board/board"
	"prism-board/domain"
)

const testSecret = "test-secret"

func testToken(t *testing.T, owner string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": owner,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func strPtr(s string) *string { return &s }

type memStore struct {
	mu       sync.Mutex
	tasks    []domain.RawTask
	fetchErr error
	writeErr error
	block    chan struct{}
	updates  []domain.RawTask
	creates  []domain.RawTask
	deletes  []string
	fetches  int
}

func newMemStore() *memStore {
	return &memStore{tasks: []domain.RawTask{
		{ID: "1", Description: strPtr("one"), Status: "todo", Owner: "owner"},
		{ID: "2", Description: strPtr("two"), Status: "in-progress", Owner: "owner"},
		{ID: "3", Description: strPtr("three"), Completed: boolPtr(true), Owner: "owner"},
	}}
}

func boolPtr(b bool) *bool { return &b }

func (m *memStore) FetchTasksByOwner(ctx context.Context, owner string) ([]domain.RawTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	out := make([]domain.RawTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		if t.Owner == owner {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) wait() {
	m.mu.Lock()
	block := m.block
	m.mu.Unlock()
	if block != nil {
		<-block
	}
}

func (m *memStore) CreateTask(ctx context.Context, task domain.RawTask) (domain.RawTask, error) {
	m.wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates = append(m.creates, task)
	if m.writeErr != nil {
		return domain.RawTask{}, m.writeErr
	}
	task.ID = "new-" + task.Owner
	m.tasks = append(m.tasks, task)
	return task, nil
}

func (m *memStore) UpdateTask(ctx context.Context, task domain.RawTask) (domain.RawTask, error) {
	m.wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, task)
	if m.writeErr != nil {
		return domain.RawTask{}, m.writeErr
	}
	for i := range m.tasks {
		if m.tasks[i].ID == task.ID {
			m.tasks[i] = task
			return task, nil
		}
	}
	return domain.RawTask{}, errors.New("not found")
}

func (m *memStore) DeleteTask(ctx context.Context, id string) error {
	m.wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, id)
	if m.writeErr != nil {
		return m.writeErr
	}
	for i := range m.tasks {
		if m.tasks[i].ID == id {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			return nil
		}
	}
	return errors.New("not found")
}

func (m *memStore) counts() (creates, updates, deletes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.creates), len(m.updates), len(m.deletes)
}

type testServer struct {
	e        *echo.Echo
	store    *memStore
	sessions *board.Sessions
	sender   *Sender
	hook     *test.Hook
}

func newTestServer(t *testing.T, store *memStore, deduper Deduper) *testServer {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)

	sessions := board.NewSessions(store, board.Options{NotificationDelay: -1, Logger: logger})
	sender := NewSender(SenderConfig{Workers: 1, Buffer: 8, HandoffTimeout: 10 * time.Millisecond}, deduper, logger)
	t.Cleanup(func() {
		sender.Close()
		sessions.Close()
	})

	e := echo.New()
	NewServer(sessions, NewLocalAuth([]byte(testSecret)), sender, deduper, logger).Register(e)
	return &testServer{e: e, store: store, sessions: sessions, sender: sender, hook: hook}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %v", timeout)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
