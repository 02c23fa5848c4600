package api

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"prism-board/board"
)

// SenderConfig sizes the mutation worker pool.
type SenderConfig struct {
	Workers        int
	Buffer         int
	HandoffTimeout time.Duration
}

// DefaultSenderConfig returns the pool sizing used when nothing is configured.
func DefaultSenderConfig() SenderConfig {
	return SenderConfig{Workers: 8, Buffer: 1024, HandoffTimeout: 15 * time.Millisecond}
}

type mutationJob struct {
	ctrl     *board.Controller
	mutation board.Mutation
	// dedupeKey is removed from the deduper when the mutation fails.
	dedupeKey string
}

// Sender dispatches board mutations on background workers so a request can
// return the optimistic board right away. When the queue stays full past the
// handoff timeout the mutation runs on the caller's goroutine.
type Sender struct {
	jobs    chan mutationJob
	handoff time.Duration
	deduper Deduper
	logger  *log.Logger
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewSender starts the worker pool. deduper may be nil.
func NewSender(cfg SenderConfig, deduper Deduper, logger *log.Logger) *Sender {
	def := DefaultSenderConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Buffer < 0 {
		cfg.Buffer = def.Buffer
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	s := &Sender{
		jobs:    make(chan mutationJob, cfg.Buffer),
		handoff: cfg.HandoffTimeout,
		deduper: deduper,
		logger:  logger,
	}
	for i := 0; i < cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	logger.Infof("mutation sender started, workers: %d, buffer: %d, handoff: %v", cfg.Workers, cfg.Buffer, cfg.HandoffTimeout)
	return s
}

func (s *Sender) worker(id int) {
	defer s.wg.Done()
	for j := range s.jobs {
		s.run(j, id)
	}
}

func (s *Sender) run(j mutationJob, worker int) {
	err := j.ctrl.Dispatch(context.Background(), j.mutation)
	if err == nil {
		return
	}
	owner := j.ctrl.Owner()
	if j.dedupeKey != "" && s.deduper != nil {
		if rerr := s.deduper.Remove(context.Background(), owner, j.dedupeKey); rerr != nil {
			s.logger.WithFields(log.Fields{"owner": owner, "key": j.dedupeKey}).WithError(rerr).Error("dedupe rollback failed")
		}
	}
	s.logger.WithFields(log.Fields{
		"owner":    owner,
		"mutation": j.mutation.Kind,
		"worker":   worker,
	}).WithError(err).Warn("background mutation failed")
}

// Submit hands the mutation to a worker. It reports false when the pool was
// saturated or closed and the mutation was run inline instead.
func (s *Sender) Submit(j mutationJob) bool {
	if s.enqueue(j) {
		return true
	}
	s.logger.WithField("owner", j.ctrl.Owner()).Warn("mutation buffer saturated; processing inline")
	s.run(j, -1)
	return false
}

func (s *Sender) enqueue(j mutationJob) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}

	select {
	case s.jobs <- j:
		return true
	default:
	}

	if s.handoff <= 0 {
		return false
	}
	timer := time.NewTimer(s.handoff)
	defer timer.Stop()
	select {
	case s.jobs <- j:
		return true
	case <-timer.C:
		return false
	}
}

// Close stops accepting jobs and waits for queued mutations to finish.
func (s *Sender) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.jobs)
	s.mu.Unlock()
	s.wg.Wait()
}
