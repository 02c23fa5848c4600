package board

import (
	"context"
	"sync"
	"time"
)

type session struct {
	ctrl     *Controller
	lastUsed time.Time
}

// Sessions keeps one loaded controller per owner. With Options.IdleTTL set,
// sessions nobody used or streamed for that long are closed and forgotten.
type Sessions struct {
	store TaskStore
	opts  Options
	now   func() time.Time

	mu      sync.Mutex
	byOwner map[string]*session

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSessions creates an empty session set backed by store.
func NewSessions(store TaskStore, opts Options) *Sessions {
	s := &Sessions{
		store:   store,
		opts:    opts,
		now:     time.Now,
		byOwner: make(map[string]*session),
		stop:    make(chan struct{}),
	}
	if opts.IdleTTL > 0 {
		s.wg.Add(1)
		go s.janitor(opts.IdleTTL / 2)
	}
	return s
}

// Get returns the owner's controller, creating and loading it on first use.
// A controller whose first load fails is not kept.
func (s *Sessions) Get(ctx context.Context, owner string) (*Controller, error) {
	s.mu.Lock()
	if sess, ok := s.byOwner[owner]; ok {
		sess.lastUsed = s.now()
		s.mu.Unlock()
		return sess.ctrl, nil
	}
	s.mu.Unlock()

	c := NewController(owner, s.store, s.opts)
	if err := c.Load(ctx); err != nil {
		c.Close()
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byOwner[owner]; ok {
		c.Close()
		existing.lastUsed = s.now()
		return existing.ctrl, nil
	}
	s.byOwner[owner] = &session{ctrl: c, lastUsed: s.now()}
	return c, nil
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byOwner)
}

func (s *Sessions) janitor(every time.Duration) {
	defer s.wg.Done()
	if every < time.Second {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep(s.now())
		}
	}
}

// sweep closes sessions idle for at least IdleTTL that have no stream
// subscriber and no remote call in flight. It returns how many were removed.
func (s *Sessions) sweep(now time.Time) int {
	if s.opts.IdleTTL <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for owner, sess := range s.byOwner {
		if now.Sub(sess.lastUsed) < s.opts.IdleTTL {
			continue
		}
		if sess.ctrl.broker.len() > 0 || sess.ctrl.InFlight() > 0 {
			continue
		}
		sess.ctrl.Close()
		delete(s.byOwner, owner)
		removed++
	}
	return removed
}

// Close stops every session and the idle sweeper.
func (s *Sessions) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for owner, sess := range s.byOwner {
		sess.ctrl.Close()
		delete(s.byOwner, owner)
	}
}
