package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"signalbot/internal/eventbus"
	rtsup "signalbot/internal/runtime/supervisor"
	logx "signalbot/pkg/logx"
)

// Service runs tasks on a fixed pool of supervised workers. Every task gets
// a timeout and panic isolation; nothing is retried.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	queue   chan queued
	sup     *rtsup.Supervisor
	busy    map[string]struct{} // exclusive names queued or running
	history []Run

	log logx.Logger
	bus eventbus.Bus

	seq       atomic.Uint64
	running   atomic.Int32
	completed atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64

	fullWarn rate.Sometimes
}

type queued struct {
	task Task
	run  Run
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 200
	}
	return &Service{
		cfg:      cfg,
		log:      log,
		bus:      bus,
		busy:     map[string]struct{}{},
		fullWarn: rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
}

// Start launches the workers. Calling it on a running engine does nothing.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil {
		return
	}
	s.queue = make(chan queued, s.cfg.QueueSize)
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)
	q := s.queue
	for i := 0; i < s.cfg.Workers; i++ {
		s.sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.work(c, q)
			return c.Err()
		})
	}
	s.log.Info("task engine started", logx.Int("workers", s.cfg.Workers), logx.Int("queue", s.cfg.QueueSize))
}

// Stop refuses new tasks, cancels running ones and waits for the workers
// until ctx is done. Queued tasks are discarded.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup := s.sup
	s.queue, s.sup = nil, nil
	s.busy = map[string]struct{}{}
	s.mu.Unlock()
	if sup == nil {
		return
	}
	if err := sup.Stop(ctx); err != nil && ctx.Err() != nil {
		s.log.Warn("task engine stop timed out", logx.Err(ctx.Err()))
		return
	}
	s.log.Info("task engine stopped")
}

// Enqueue hands t to the pool without blocking.
func (s *Service) Enqueue(t Task) error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return fmt.Errorf("task name required")
	}
	if t.Run == nil {
		return fmt.Errorf("task %s: nil run", t.Name)
	}
	now := time.Now()
	r := Run{ID: fmt.Sprintf("%s#%d", t.Name, s.seq.Add(1)), Name: t.Name, Queued: now}

	s.mu.Lock()
	if s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	if t.Timeout <= 0 {
		t.Timeout = s.cfg.DefaultTimeout
	}
	if t.Exclusive {
		if _, ok := s.busy[t.Name]; ok {
			s.mu.Unlock()
			r.Outcome = OutcomeBusy
			s.publish("task.skipped", r)
			return ErrBusy
		}
		s.busy[t.Name] = struct{}{}
	}
	select {
	case s.queue <- queued{task: t, run: r}:
		s.mu.Unlock()
		return nil
	default:
	}
	if t.Exclusive {
		delete(s.busy, t.Name)
	}
	depth := len(s.queue)
	s.mu.Unlock()

	s.dropped.Add(1)
	r.Outcome = OutcomeDropped
	s.publish("task.dropped", r)
	s.fullWarn.Do(func() {
		s.log.Warn("task dropped, queue full", logx.String("task", t.Name), logx.Int("depth", depth), logx.Uint64("dropped", s.dropped.Load()))
	})
	return ErrQueueFull
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	st := Stats{Workers: s.cfg.Workers, Recent: append([]Run(nil), s.history...)}
	if s.queue != nil {
		st.Queued = len(s.queue)
	}
	s.mu.Unlock()
	st.Running = int(s.running.Load())
	st.Completed = s.completed.Load()
	st.Failed = s.failed.Load()
	st.Dropped = s.dropped.Load()
	return st
}

func (s *Service) release(t Task) {
	if !t.Exclusive {
		return
	}
	s.mu.Lock()
	delete(s.busy, t.Name)
	s.mu.Unlock()
}

func (s *Service) record(r Run) {
	s.mu.Lock()
	s.history = append(s.history, r)
	if over := len(s.history) - s.cfg.HistorySize; over > 0 {
		s.history = s.history[over:]
	}
	s.mu.Unlock()
}

func (s *Service) publish(typ string, r Run) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: r})
	}
}
